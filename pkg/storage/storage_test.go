package storage_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/chestsvc/chest/internal/testutil"
	"github.com/chestsvc/chest/pkg/storage"
	"github.com/stretchr/testify/require"
)

func TestS3GatewayPutGetDeleteRoundTrip(t *testing.T) {
	testutil.RequireDocker(t)

	gateway := testutil.NewGateway(t)
	ctx := context.Background()
	key := storage.ObjectKey("session-1", "file-1")

	body := []byte("hello chest")
	require.NoError(t, gateway.Put(ctx, key, bytes.NewReader(body), int64(len(body))))

	rc, size, err := gateway.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	require.EqualValues(t, len(body), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, body, got)

	require.NoError(t, gateway.Delete(ctx, key))

	_, _, err = gateway.Get(ctx, key)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestS3GatewayMultipartRoundTrip(t *testing.T) {
	testutil.RequireDocker(t)

	gateway := testutil.NewGateway(t)
	ctx := context.Background()
	key := storage.ObjectKey("session-2", "file-2")

	uploadID, err := gateway.MultipartCreate(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, uploadID)

	// S3 requires every part but the last to be at least 5MiB.
	part1 := bytes.Repeat([]byte("a"), 5*1024*1024)
	part2 := []byte("final part")

	etag1, err := gateway.MultipartUploadPart(ctx, key, uploadID, 1, bytes.NewReader(part1), int64(len(part1)))
	require.NoError(t, err)
	etag2, err := gateway.MultipartUploadPart(ctx, key, uploadID, 2, bytes.NewReader(part2), int64(len(part2)))
	require.NoError(t, err)

	err = gateway.MultipartComplete(ctx, key, uploadID, []storage.Part{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.NoError(t, err)

	rc, size, err := gateway.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	require.EqualValues(t, len(part1)+len(part2), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, append(part1, part2...), got)
}

func TestS3GatewayMultipartAbort(t *testing.T) {
	testutil.RequireDocker(t)

	gateway := testutil.NewGateway(t)
	ctx := context.Background()
	key := storage.ObjectKey("session-3", "file-3")

	uploadID, err := gateway.MultipartCreate(ctx, key)
	require.NoError(t, err)

	part := []byte("abandoned part")
	_, err = gateway.MultipartUploadPart(ctx, key, uploadID, 1, bytes.NewReader(part), int64(len(part)))
	require.NoError(t, err)

	require.NoError(t, gateway.MultipartAbort(ctx, key, uploadID))

	uploads, err := gateway.ListMultipartUploads(ctx, "session-3/")
	require.NoError(t, err)
	require.Empty(t, uploads)
}

// TestS3GatewayPrefixRoundTrip guards against List and Delete disagreeing on
// whether a returned key still carries the gateway's prefix: a key List
// hands back must pass straight through Delete without the caller having to
// know about the prefix.
func TestS3GatewayPrefixRoundTrip(t *testing.T) {
	testutil.RequireDocker(t)

	client := testutil.S3Client(t)
	bucket := testutil.NewBucket(t, client)
	gateway := storage.NewS3Gateway(client, bucket, "chest-objects")
	ctx := context.Background()
	key := storage.ObjectKey("session-4", "file-4")

	body := []byte("prefixed")
	require.NoError(t, gateway.Put(ctx, key, bytes.NewReader(body), int64(len(body))))

	listed, err := gateway.List(ctx, "session-4/")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, key, listed[0].Key)

	require.NoError(t, gateway.Delete(ctx, listed[0].Key))

	_, _, err = gateway.Get(ctx, key)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
