package reaper

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chestsvc/chest/pkg/metadata"
	"github.com/chestsvc/chest/pkg/storage"
	"github.com/stretchr/testify/require"
)

type fakeMeta struct {
	mu       sync.Mutex
	sessions map[string]*metadata.Session
	files    map[string]int
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{sessions: map[string]*metadata.Session{}, files: map[string]int{}}
}

func (f *fakeMeta) SelectExpiredSessions(_ context.Context, now time.Time) ([]metadata.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []metadata.Session
	for _, s := range f.sessions {
		if s.IsDeleted || !s.UploadComplete {
			continue
		}
		if s.ExpiresAt.Valid && !s.ExpiresAt.Time.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeMeta) SelectAbandonedSessions(_ context.Context, cutoff time.Time) ([]metadata.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []metadata.Session
	for _, s := range f.sessions {
		if s.IsDeleted || s.UploadComplete {
			continue
		}
		if s.CreatedAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeMeta) CountSessionFiles(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[sessionID], nil
}

func (f *fakeMeta) SoftDeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.IsDeleted = true
	}
	return nil
}

func (f *fakeMeta) SoftDeleteFiles(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[sessionID] = 0
	return nil
}

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}}
}

func (b *fakeBlobs) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

func (b *fakeBlobs) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.ObjectInfo
	for key, data := range b.blobs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (b *fakeBlobs) MultipartCreate(_ context.Context, key string) (string, error) { return key, nil }
func (b *fakeBlobs) MultipartUploadPart(_ context.Context, _, _ string, _ int32, _ io.Reader, _ int64) (string, error) {
	return "", nil
}
func (b *fakeBlobs) MultipartComplete(_ context.Context, _, _ string, _ []storage.Part) error {
	return nil
}
func (b *fakeBlobs) MultipartAbort(_ context.Context, _, _ string) error { return nil }
func (b *fakeBlobs) ListMultipartUploads(_ context.Context, _ string) ([]storage.InFlightUpload, error) {
	return nil, nil
}

func TestSweepExpiresAbandonsAndSparesPermanent(t *testing.T) {
	ctx := context.Background()
	meta := newFakeMeta()
	blobs := newFakeBlobs()
	r := New(meta, blobs)

	now := time.Now()

	sealedExpired := &metadata.Session{ID: "sealed-expired", UploadComplete: true, CreatedAt: now.Add(-3 * 24 * time.Hour)}
	sealedExpired.ExpiresAt.Time = now.Add(-1 * time.Hour)
	sealedExpired.ExpiresAt.Valid = true
	meta.sessions[sealedExpired.ID] = sealedExpired
	meta.files[sealedExpired.ID] = 2
	require.NoError(t, blobs.Put(ctx, storage.ObjectKey(sealedExpired.ID, "f1"), strings.NewReader("a"), 1))

	openAbandoned := &metadata.Session{ID: "open-abandoned", UploadComplete: false, CreatedAt: now.Add(-49 * time.Hour)}
	meta.sessions[openAbandoned.ID] = openAbandoned
	meta.files[openAbandoned.ID] = 1
	require.NoError(t, blobs.Put(ctx, storage.ObjectKey(openAbandoned.ID, "f2"), strings.NewReader("b"), 1))

	sealedPermanent := &metadata.Session{ID: "sealed-permanent", UploadComplete: true, CreatedAt: now.Add(-100 * 24 * time.Hour)}
	meta.sessions[sealedPermanent.ID] = sealedPermanent
	meta.files[sealedPermanent.ID] = 1
	require.NoError(t, blobs.Put(ctx, storage.ObjectKey(sealedPermanent.ID, "f3"), strings.NewReader("c"), 1))

	summary := r.Sweep(ctx)
	require.Equal(t, 1, summary.Expired)
	require.Equal(t, 1, summary.Abandoned)
	require.Equal(t, 3, summary.DeletedFiles)
	require.Equal(t, 2, summary.DeletedBlobs)
	require.Empty(t, summary.Errors)

	remaining, err := blobs.List(ctx, storage.SessionPrefix(sealedExpired.ID))
	require.NoError(t, err)
	require.Empty(t, remaining)

	permanentObjects, err := blobs.List(ctx, storage.SessionPrefix(sealedPermanent.ID))
	require.NoError(t, err)
	require.Len(t, permanentObjects, 1)
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	meta := newFakeMeta()
	blobs := newFakeBlobs()
	r := New(meta, blobs)

	now := time.Now()
	sess := &metadata.Session{ID: "sealed-expired", UploadComplete: true, CreatedAt: now.Add(-3 * 24 * time.Hour)}
	sess.ExpiresAt.Time = now.Add(-1 * time.Hour)
	sess.ExpiresAt.Valid = true
	meta.sessions[sess.ID] = sess
	meta.files[sess.ID] = 1
	require.NoError(t, blobs.Put(ctx, storage.ObjectKey(sess.ID, "f1"), strings.NewReader("a"), 1))

	first := r.Sweep(ctx)
	require.Equal(t, 1, first.Expired)
	require.Equal(t, 1, first.DeletedFiles)

	second := r.Sweep(ctx)
	require.Equal(t, 0, second.Expired)
	require.Equal(t, 0, second.Abandoned)
	require.Equal(t, 0, second.DeletedFiles)
	require.Equal(t, 0, second.DeletedBlobs)
}
