package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureGateway implements Gateway against Azure Blob Storage. It is the
// alternate backend selectable via configuration for deployments that prefer
// Azure over S3; the teacher declares azblob as a direct dependency for its
// own (REST-emulation) azureblob protocol, but never calls the real SDK —
// this is that dependency's genuine home. Multipart semantics are built on
// block blobs: each uploaded part becomes a staged, base64-encoded block ID,
// and completion commits the block list in the caller-supplied order.
type AzureGateway struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureGateway takes an optional key prefix, the same convention
// NewS3Gateway uses, so both backends can share a container/bucket with
// other applications.
func NewAzureGateway(client *azblob.Client, containerName string, prefix ...string) *AzureGateway {
	g := &AzureGateway{client: client, container: containerName}
	if len(prefix) > 0 {
		g.prefix = strings.Trim(prefix[0], "/")
	}
	return g
}

func (g *AzureGateway) key(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

// unkey strips g.prefix back off a key returned by the store, so List's
// output round-trips back through key() on a later Get/Delete call instead
// of being prefixed twice.
func (g *AzureGateway) unkey(key string) string {
	if g.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, g.prefix+"/")
}

// NewAzureClientFromConnectionString mirrors the env-var-driven client
// construction used elsewhere in this codebase for the S3 backend.
func NewAzureClientFromConnectionString(connectionString string) (*azblob.Client, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure client: %w", err)
	}
	return client, nil
}

func (g *AzureGateway) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := g.client.UploadStream(ctx, g.container, g.key(key), body, nil)
	if err != nil {
		return fmt.Errorf("storage: azure put %s: %w", key, err)
	}
	return nil
}

func (g *AzureGateway) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := g.client.DownloadStream(ctx, g.container, g.key(key), nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("storage: azure get %s: %w", key, err)
	}

	size := int64(0)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

func (g *AzureGateway) Delete(ctx context.Context, key string) error {
	_, err := g.client.DeleteBlob(ctx, g.container, g.key(key), nil)
	if err != nil {
		return fmt.Errorf("storage: azure delete %s: %w", key, err)
	}
	return nil
}

func (g *AzureGateway) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo

	pager := g.client.NewListBlobsFlatPager(g.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(g.key(prefix)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: azure list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			size := int64(0)
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			out = append(out, ObjectInfo{Key: g.unkey(*item.Name), Size: size})
		}
	}
	return out, nil
}

// MultipartCreate has no server-side counterpart in the block-blob model:
// staged blocks are scoped to the blob name itself, so the "uploadId" is
// simply the blob name (the key with the gateway prefix applied), echoed
// back for interface symmetry with the S3 backend.
func (g *AzureGateway) MultipartCreate(ctx context.Context, key string) (string, error) {
	return g.key(key), nil
}

func (g *AzureGateway) MultipartUploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	blockID := encodeBlockID(partNumber)

	buf := new(bytes.Buffer)
	if size >= 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(buf, body); err != nil {
		return "", fmt.Errorf("storage: azure buffering part %d for %s: %w", partNumber, key, err)
	}

	blockClient := g.blockBlobClient(key)
	_, err := blockClient.StageBlock(ctx, blockID, bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		return "", fmt.Errorf("storage: azure stage block %d for %s: %w", partNumber, key, err)
	}
	return blockID, nil
}

func (g *AzureGateway) MultipartComplete(ctx context.Context, key, uploadID string, parts []Part) error {
	blockIDs := make([]string, len(parts))
	for i, p := range parts {
		blockIDs[i] = p.ETag
	}

	blockClient := g.blockBlobClient(key)
	_, err := blockClient.CommitBlockList(ctx, blockIDs, nil)
	if err != nil {
		return fmt.Errorf("storage: azure commit block list for %s: %w", key, err)
	}
	return nil
}

// MultipartAbort discards any staged-but-uncommitted blocks by simply not
// committing them; Azure garbage-collects uncommitted blocks after roughly a
// week on its own, so there is nothing to actively call here beyond removing
// the blob if a prior commit had already landed.
func (g *AzureGateway) MultipartAbort(ctx context.Context, key, uploadID string) error {
	err := g.Delete(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) && !isAzureNotFound(err) {
		return err
	}
	return nil
}

// ListMultipartUploads has no direct Azure analog (uncommitted blocks are
// not independently enumerable per-blob without already knowing the blob
// name), so the reaper relies on abandoned-session blob listing for cleanup
// when running against this backend.
func (g *AzureGateway) ListMultipartUploads(ctx context.Context, prefix string) ([]InFlightUpload, error) {
	return nil, nil
}

func (g *AzureGateway) blockBlobClient(key string) *blockblob.Client {
	containerClient := g.client.ServiceClient().NewContainerClient(g.container)
	return containerClient.NewBlockBlobClient(g.key(key))
}

func encodeBlockID(partNumber int32) string {
	raw := fmt.Sprintf("%05d", partNumber)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}
