package totp

import (
	"testing"
	"time"

	gotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func TestValidateAcceptsCurrentCode(t *testing.T) {
	gate, err := ParseSecrets("primary:" + testSecret)
	require.NoError(t, err)

	code, err := gotp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)

	require.True(t, gate.Validate(code))
}

func TestValidateRejectsWrongCode(t *testing.T) {
	gate, err := ParseSecrets("primary:" + testSecret)
	require.NoError(t, err)

	require.False(t, gate.Validate("000000"))
	require.False(t, gate.Validate(""))
}

func TestValidateRejectsWhenNoSecretsConfigured(t *testing.T) {
	gate, err := ParseSecrets("")
	require.NoError(t, err)

	code, err := gotp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)
	require.False(t, gate.Validate(code))
}

func TestParseSecretsSupportsMultipleNamedEntries(t *testing.T) {
	gate, err := ParseSecrets("alice:JBSWY3DPEHPK3PXP,bob:KRSXG5CTMVRXEZLU")
	require.NoError(t, err)
	require.Len(t, gate.secrets, 2)
}

func TestParseSecretsRejectsMalformedEntries(t *testing.T) {
	_, err := ParseSecrets("not-a-valid-entry")
	require.Error(t, err)
}
