// Package storage is the blob store gateway: direct-streaming put/get/delete
///list plus a resumable multipart protocol, keyed {sessionId}/{fileId}. Two
// backends implement the same interface — S3 (primary) and Azure Blob
// (alternate) — selected by configuration.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes a single stored object, returned by List.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Part is one completed chunk of a multipart upload, identified by its
// 1-indexed part number and the backend-issued ETag for that part.
type Part struct {
	PartNumber int32
	ETag       string
}

// Gateway is the blob store contract the chest lifecycle engine depends on.
// Both backends stream Put and Get bodies. Part uploads stream on S3;
// AzureGateway.MultipartUploadPart reads each part fully into memory before
// staging it.
type Gateway interface {
	// Put durably stores body under key. size is advisory for backends that
	// benefit from knowing content length ahead of time; pass -1 if unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64) error

	// Get returns a streaming reader and the object's size. Callers must
	// Close the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)

	Delete(ctx context.Context, key string) error

	// List returns every object whose key has the given prefix, used only by
	// the reaper.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	MultipartCreate(ctx context.Context, key string) (uploadID string, err error)
	MultipartUploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (etag string, err error)
	MultipartComplete(ctx context.Context, key, uploadID string, parts []Part) error
	MultipartAbort(ctx context.Context, key, uploadID string) error

	// ListMultipartUploads enumerates in-flight multipart uploads under a key
	// prefix, used by the reaper to abort uploads orphaned by an abandoned
	// session with no persisted uploadId index (see internal/reaper).
	ListMultipartUploads(ctx context.Context, prefix string) ([]InFlightUpload, error)
}

// InFlightUpload identifies one multipart upload a backend reports as still
// open, as discovered via enumeration rather than a persisted index.
type InFlightUpload struct {
	Key      string
	UploadID string
}

func sessionPrefix(sessionID string) string {
	return sessionID + "/"
}

func objectKey(sessionID, fileID string) string {
	return sessionID + "/" + fileID
}

// SessionPrefix returns the key prefix covering every object belonging to a
// session, for the reaper's list/delete pass.
func SessionPrefix(sessionID string) string {
	return sessionPrefix(sessionID)
}

// ObjectKey returns the blob key for a given session/file pair.
func ObjectKey(sessionID, fileID string) string {
	return objectKey(sessionID, fileID)
}
