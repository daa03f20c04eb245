package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIDIsValid(t *testing.T) {
	id := NewID()
	require.True(t, ValidID(id))
}

func TestValidIDRejectsGarbage(t *testing.T) {
	require.False(t, ValidID("not-a-uuid"))
	require.False(t, ValidID(""))
	require.False(t, ValidID("00000000-0000-0000-0000-000000000000")) // not version 4
}

func TestValidIDIsCaseInsensitive(t *testing.T) {
	id := NewID()
	require.True(t, ValidID(id))
	require.True(t, ValidID(strings.ToUpper(id)))
}

func TestNewRetrievalCodeIsValid(t *testing.T) {
	code, err := NewRetrievalCode()
	require.NoError(t, err)
	require.Len(t, code, 6)
	require.True(t, ValidRetrievalCode(code))
}

func TestValidRetrievalCodeRejectsBadShapes(t *testing.T) {
	require.False(t, ValidRetrievalCode("12345"))    // 5 chars
	require.False(t, ValidRetrievalCode("ABCDEFG"))  // 7 chars
	require.False(t, ValidRetrievalCode("ABC123!"))  // non-alphanumeric
	require.False(t, ValidRetrievalCode("abcd99"))   // lowercase not accepted
	require.True(t, ValidRetrievalCode("ABCD99"))
}

func TestRetrievalCodesAreDrawnFromAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewRetrievalCode()
		require.NoError(t, err)
		for _, c := range code {
			require.Contains(t, retrievalCodeAlphabet, string(c))
		}
	}
}
