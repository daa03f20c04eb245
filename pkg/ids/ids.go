// Package ids generates and validates the two identifier shapes a chest
// uses: session/file UUIDs and the 6-character retrieval code shared out of
// band with recipients.
package ids

import (
	"crypto/rand"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

const retrievalCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const retrievalCodeLength = 6

var (
	uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// NewID generates a UUID v4 for use as a session or file identifier.
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether s is a syntactically valid UUID v4, case-insensitively.
func ValidID(s string) bool {
	return uuidPattern.MatchString(normalizeCase(s))
}

// NewRetrievalCode draws retrievalCodeLength independent symbols from the
// 36-symbol alphabet using a cryptographic RNG.
func NewRetrievalCode() (string, error) {
	buf := make([]byte, retrievalCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ids: generating retrieval code: %w", err)
	}

	out := make([]byte, retrievalCodeLength)
	for i, b := range buf {
		out[i] = retrievalCodeAlphabet[int(b)%len(retrievalCodeAlphabet)]
	}
	return string(out), nil
}

// ValidRetrievalCode reports whether s matches the retrieval code pattern
// ^[A-Z0-9]{6}$ exactly (no case-folding: codes are generated uppercase).
func ValidRetrievalCode(s string) bool {
	return codePattern.MatchString(s)
}

func normalizeCase(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
