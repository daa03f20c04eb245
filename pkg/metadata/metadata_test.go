package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("chest"),
		postgres.WithUsername("chest"),
		postgres.WithPassword("chest"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.db.ExecContext(ctx, Schema)
	require.NoError(t, err)

	return store
}

func TestSessionLifecycleQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := "11111111-1111-4111-8111-111111111111"
	require.NoError(t, store.InsertSession(ctx, id))

	open, err := store.GetOpenSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, open.ID)
	require.False(t, open.UploadComplete)
	require.False(t, open.RetrievalCode.Valid)

	expiry := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Millisecond)
	sealed, err := store.MarkSealed(ctx, id, "ABC123", &expiry)
	require.NoError(t, err)
	require.True(t, sealed)

	_, err = store.GetOpenSession(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	found, err := store.GetSealedByCode(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, id, found.ID)
	require.WithinDuration(t, expiry, found.ExpiresAt.Time, time.Second)
}

func TestMarkSealedIsConditional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := "22222222-2222-4222-8222-222222222222"
	require.NoError(t, store.InsertSession(ctx, id))

	ok, err := store.MarkSealed(ctx, id, "CODE01", nil)
	require.NoError(t, err)
	require.True(t, ok)

	// second seal attempt affects zero rows
	ok, err = store.MarkSealed(ctx, id, "CODE02", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertAndListFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := "33333333-3333-4333-8333-333333333333"
	require.NoError(t, store.InsertSession(ctx, sessionID))

	files := []File{
		{ID: "44444444-4444-4444-8444-444444444444", SessionID: sessionID, OriginalFilename: "a.txt", MimeType: "text/plain", FileSize: 6, IsText: false},
		{ID: "55555555-5555-4555-8555-555555555555", SessionID: sessionID, OriginalFilename: "b.txt", MimeType: "text/plain", FileSize: 2, IsText: true},
	}
	require.NoError(t, store.InsertFiles(ctx, files))

	listed, err := store.ListSessionFiles(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "a.txt", listed[0].OriginalFilename)

	count, err := store.CountSessionFiles(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	ids, err := store.SessionFileIDs(ctx, sessionID)
	require.NoError(t, err)
	require.Contains(t, ids, files[0].ID)
	require.Contains(t, ids, files[1].ID)
}

func TestSoftDeleteCascadesVisibility(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := "66666666-6666-4666-8666-666666666666"
	require.NoError(t, store.InsertSession(ctx, sessionID))
	require.NoError(t, store.InsertFiles(ctx, []File{
		{ID: "77777777-7777-4777-8777-777777777777", SessionID: sessionID, OriginalFilename: "a.txt", MimeType: "text/plain", FileSize: 1},
	}))

	require.NoError(t, store.SoftDeleteFiles(ctx, sessionID))
	require.NoError(t, store.SoftDeleteSession(ctx, sessionID))

	_, err := store.GetOpenSession(ctx, sessionID)
	require.ErrorIs(t, err, ErrNotFound)

	listed, err := store.ListSessionFiles(ctx, sessionID)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestSelectExpiredAndAbandonedSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expiredID := "88888888-8888-4888-8888-888888888888"
	require.NoError(t, store.InsertSession(ctx, expiredID))
	past := time.Now().Add(-time.Hour)
	ok, err := store.MarkSealed(ctx, expiredID, "EXPIR1", &past)
	require.NoError(t, err)
	require.True(t, ok)

	permanentID := "99999999-9999-4999-8999-999999999999"
	require.NoError(t, store.InsertSession(ctx, permanentID))
	ok, err = store.MarkSealed(ctx, permanentID, "PERM01", nil)
	require.NoError(t, err)
	require.True(t, ok)

	abandonedID := "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	require.NoError(t, store.InsertSession(ctx, abandonedID))
	_, err = store.db.ExecContext(ctx, `UPDATE sessions SET created_at = $1 WHERE id = $2`, time.Now().Add(-49*time.Hour), abandonedID)
	require.NoError(t, err)

	expired, err := store.SelectExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, expiredID, expired[0].ID)

	abandoned, err := store.SelectAbandonedSessions(ctx, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	require.Equal(t, abandonedID, abandoned[0].ID)
}
