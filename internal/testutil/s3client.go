// Package testutil spins up real backing stores for integration tests via
// testcontainers-go, so the storage gateway test suite exercises an actual
// S3 API instead of a hand-rolled fake.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chestsvc/chest/pkg/storage"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewGateway provisions a fresh, uniquely-named bucket against a localstack
// container and returns a ready-to-use S3-backed storage.Gateway.
func NewGateway(t *testing.T) storage.Gateway {
	t.Helper()

	client := S3Client(t)
	bucketName := NewBucket(t, client)

	return storage.NewS3Gateway(client, bucketName)
}

// NewBucket creates a fresh, uniquely-named bucket against client and
// returns its name, for tests that need to build their own storage.Gateway
// (e.g. with a key prefix) rather than using NewGateway's default one.
func NewBucket(t *testing.T, client *s3.Client) string {
	t.Helper()

	ctx := context.Background()
	bucketName := fmt.Sprintf("chest-test-%s", strings.ReplaceAll(uuid.NewString(), "-", ""))

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	require.NoError(t, err)

	return bucketName
}

func S3Client(t *testing.T) *s3.Client {
	t.Helper()

	ctx := context.Background()

	localstackContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack",
			WaitingFor:   wait.ForHTTP("/_localstack/health").WithPort("4566/tcp"),
			ExposedPorts: []string{"4566/tcp"},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = localstackContainer.Terminate(ctx) })

	exposedPort, err := nat.NewPort("tcp", "4566")
	require.NoError(t, err)

	mappedPort, err := localstackContainer.MappedPort(ctx, exposedPort)
	require.NoError(t, err)

	host, err := localstackContainer.Host(ctx)
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%d", host, mappedPort.Int())

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("id", "secret", "")),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(cfg, func(options *s3.Options) {
		options.BaseEndpoint = aws.String(endpoint)
		options.UsePathStyle = true
	})
}
