package chest

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgconn"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func extensionOf(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505), the shape MarkSealed's retrieval_code index
// surfaces on a collision.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
