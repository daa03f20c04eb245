package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const defaultAWSRegion = "us-east-1"

// S3Gateway implements Gateway against an S3-compatible object store. It is
// grounded on the same client construction the teacher uses for its own S3
// backend, including the path-style endpoint override needed for
// MinIO/localstack compatibility.
type S3Gateway struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Gateway takes an optional key prefix, mirroring the teacher's
// NewS3Storage(client, bucketName, prefix ...string) — a shared bucket can
// host more than one application's objects under distinct prefixes.
func NewS3Gateway(client *s3.Client, bucket string, prefix ...string) *S3Gateway {
	g := &S3Gateway{client: client, bucket: bucket}
	if len(prefix) > 0 {
		g.prefix = strings.Trim(prefix[0], "/")
	}
	return g
}

func (g *S3Gateway) key(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

// unkey strips g.prefix back off a key returned by the store, so List's
// output round-trips back through key() on a later Get/Delete call instead
// of being prefixed twice.
func (g *S3Gateway) unkey(key string) string {
	if g.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, g.prefix+"/")
}

// NewS3ClientFromEnv loads the default AWS config, applying a region
// fallback and an optional path-style endpoint override, exactly as the
// teacher's newS3Client does.
func NewS3ClientFromEnv(ctx context.Context, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = defaultAWSRegion
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return s3.NewFromConfig(cfg), nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("storage: s3 endpoint must be a full URL, got %q", endpoint)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

func (g *S3Gateway) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(key)),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	_, err := g.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("storage: s3 get %s: %w", key, err)
	}

	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(key)),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 delete %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(g.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			size := int64(0)
			if obj.Size != nil {
				size = *obj.Size
			}
			out = append(out, ObjectInfo{Key: g.unkey(aws.ToString(obj.Key)), Size: size})
		}
	}
	return out, nil
}

func (g *S3Gateway) MultipartCreate(ctx context.Context, key string) (string, error) {
	out, err := g.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(key)),
	})
	if err != nil {
		return "", fmt.Errorf("storage: s3 create multipart upload %s: %w", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

func (g *S3Gateway) MultipartUploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	input := &s3.UploadPartInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(g.key(key)),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	out, err := g.client.UploadPart(ctx, input)
	if err != nil {
		return "", fmt.Errorf("storage: s3 upload part %d for %s: %w", partNumber, key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (g *S3Gateway) MultipartComplete(ctx context.Context, key, uploadID string, parts []Part) error {
	completedParts := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completedParts[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(g.key(key)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		return fmt.Errorf("storage: s3 complete multipart upload %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) MultipartAbort(ctx context.Context, key, uploadID string) error {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(g.key(key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 abort multipart upload %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) ListMultipartUploads(ctx context.Context, prefix string) ([]InFlightUpload, error) {
	out, err := g.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(g.key(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 list multipart uploads %s: %w", prefix, err)
	}

	result := make([]InFlightUpload, 0, len(out.Uploads))
	for _, u := range out.Uploads {
		result = append(result, InFlightUpload{
			Key:      g.unkey(aws.ToString(u.Key)),
			UploadID: aws.ToString(u.UploadId),
		})
	}
	return result, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
