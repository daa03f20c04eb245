// Package metadata is the typed gateway over the sessions and files tables.
// It is a thin layer on top of database/sql with the jackc/pgx/v5/stdlib
// driver: every query filters is_deleted=false and every mutation stamps
// updated_at=now(), matching the $1-placeholder idiom the pack's resumable
// upload store uses against the same kind of relational KV.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("metadata: not found")

type Session struct {
	ID             string
	RetrievalCode  sql.NullString
	UploadComplete bool
	ExpiresAt      sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDeleted      bool
}

type File struct {
	ID               string
	SessionID        string
	OriginalFilename string
	MimeType         string
	FileSize         int64
	FileExtension    string
	IsText           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	IsDeleted        bool
}

type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL-compatible relational KV via pgx/v5's
// database/sql driver shim.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: opening connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: pinging database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open *sql.DB, e.g. one built by a test harness.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, upload_complete, created_at, updated_at, is_deleted)
		VALUES ($1, false, now(), now(), false)
	`, id)
	if err != nil {
		return fmt.Errorf("metadata: inserting session: %w", err)
	}
	return nil
}

// MarkSealed conditionally updates an open, non-deleted session to sealed.
// It returns false when no row was affected: the session does not exist, is
// deleted, or is already sealed. The result does not tell these cases apart.
func (s *Store) MarkSealed(ctx context.Context, id, retrievalCode string, expiresAt *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET retrieval_code = $2, upload_complete = true, expires_at = $3, updated_at = now()
		WHERE id = $1 AND upload_complete = false AND is_deleted = false
	`, id, retrievalCode, nullableTime(expiresAt))
	if err != nil {
		return false, fmt.Errorf("metadata: marking session sealed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("metadata: reading affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) GetOpenSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, retrieval_code, upload_complete, expires_at, created_at, updated_at, is_deleted
		FROM sessions
		WHERE id = $1 AND upload_complete = false AND is_deleted = false
	`, id)
	return scanSession(row)
}

func (s *Store) GetSealedByCode(ctx context.Context, code string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, retrieval_code, upload_complete, expires_at, created_at, updated_at, is_deleted
		FROM sessions
		WHERE retrieval_code = $1
		  AND upload_complete = true
		  AND is_deleted = false
		  AND (expires_at IS NULL OR expires_at > now())
	`, code)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.RetrievalCode, &sess.UploadComplete, &sess.ExpiresAt,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.IsDeleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: scanning session: %w", err)
	}
	return &sess, nil
}

// InsertFiles batch-inserts the files accumulated by one uploadFiles or
// completeMultipart call.
func (s *Store) InsertFiles(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metadata: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, session_id, original_filename, mime_type, file_size, file_extension, is_text, created_at, updated_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now(), false)
	`)
	if err != nil {
		return fmt.Errorf("metadata: preparing file insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.SessionID, f.OriginalFilename, f.MimeType, f.FileSize, f.FileExtension, f.IsText); err != nil {
			return fmt.Errorf("metadata: inserting file %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metadata: committing file insert: %w", err)
	}
	return nil
}

func (s *Store) ListSessionFiles(ctx context.Context, sessionID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, original_filename, mime_type, file_size, file_extension, is_text, created_at, updated_at, is_deleted
		FROM files
		WHERE session_id = $1 AND is_deleted = false
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("metadata: listing session files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.SessionID, &f.OriginalFilename, &f.MimeType, &f.FileSize, &f.FileExtension, &f.IsText, &f.CreatedAt, &f.UpdatedAt, &f.IsDeleted); err != nil {
			return nil, fmt.Errorf("metadata: scanning file row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFile looks up a single non-deleted file row, used by downloadFile.
func (s *Store) GetFile(ctx context.Context, fileID string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, original_filename, mime_type, file_size, file_extension, is_text, created_at, updated_at, is_deleted
		FROM files
		WHERE id = $1 AND is_deleted = false
	`, fileID)

	var f File
	err := row.Scan(&f.ID, &f.SessionID, &f.OriginalFilename, &f.MimeType, &f.FileSize, &f.FileExtension, &f.IsText, &f.CreatedAt, &f.UpdatedAt, &f.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: scanning file: %w", err)
	}
	return &f, nil
}

// SessionFileIDs returns the set of non-deleted file IDs belonging to a
// session, used by sealChest's ownership/cardinality check: the engine
// verifies every client-submitted fileId is a member of this set, not just
// that the counts match.
func (s *Store) SessionFileIDs(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM files WHERE session_id = $1 AND is_deleted = false
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("metadata: listing session file ids: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("metadata: scanning file id: %w", err)
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

func (s *Store) CountSessionFiles(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM files WHERE session_id = $1 AND is_deleted = false
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("metadata: counting session files: %w", err)
	}
	return count, nil
}

func (s *Store) SoftDeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_deleted = true, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("metadata: soft-deleting session: %w", err)
	}
	return nil
}

func (s *Store) SoftDeleteFiles(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE files SET is_deleted = true, updated_at = now() WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("metadata: soft-deleting session files: %w", err)
	}
	return nil
}

// SelectExpiredSessions returns sealed, non-permanent sessions whose
// expires_at has passed as of now.
func (s *Store) SelectExpiredSessions(ctx context.Context, now time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, retrieval_code, upload_complete, expires_at, created_at, updated_at, is_deleted
		FROM sessions
		WHERE upload_complete = true AND is_deleted = false
		  AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("metadata: selecting expired sessions: %w", err)
	}
	return scanSessions(rows)
}

// SelectAbandonedSessions returns open sessions created before the given
// cutoff (caller passes now - 48h).
func (s *Store) SelectAbandonedSessions(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, retrieval_code, upload_complete, expires_at, created_at, updated_at, is_deleted
		FROM sessions
		WHERE upload_complete = false AND is_deleted = false AND created_at < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("metadata: selecting abandoned sessions: %w", err)
	}
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.RetrievalCode, &sess.UploadComplete, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt, &sess.IsDeleted); err != nil {
			return nil, fmt.Errorf("metadata: scanning session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id              uuid PRIMARY KEY,
    retrieval_code  char(6) UNIQUE,
    upload_complete boolean NOT NULL DEFAULT false,
    expires_at      timestamptz,
    created_at      timestamptz NOT NULL DEFAULT now(),
    updated_at      timestamptz NOT NULL DEFAULT now(),
    is_deleted      boolean NOT NULL DEFAULT false
);
CREATE UNIQUE INDEX IF NOT EXISTS sessions_retrieval_code_idx ON sessions (retrieval_code) WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at) WHERE NOT is_deleted;

CREATE TABLE IF NOT EXISTS files (
    id                uuid PRIMARY KEY,
    session_id        uuid NOT NULL REFERENCES sessions(id),
    original_filename text NOT NULL,
    mime_type         text NOT NULL,
    file_size         bigint NOT NULL,
    file_extension    text NOT NULL DEFAULT '',
    is_text           boolean NOT NULL DEFAULT false,
    created_at        timestamptz NOT NULL DEFAULT now(),
    updated_at        timestamptz NOT NULL DEFAULT now(),
    is_deleted        boolean NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS files_session_id_idx ON files (session_id) WHERE NOT is_deleted;
`
