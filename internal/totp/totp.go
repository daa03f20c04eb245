// Package totp implements the pluggable admission check spec.md §6
// describes for createChest: RFC 6238 TOTP validation against a configured
// set of base32 secrets. It gates only chest creation — once a chest
// exists, its bearer tokens are the only credential and the TOTP secret is
// never consulted again for that chest.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func timeNow() time.Time { return time.Now() }

// Gate validates a caller-supplied TOTP code against a named set of base32
// secrets, "name1:SECRET1,name2:SECRET2,…" per the configuration format in
// spec.md §6. Any matching secret admits; names are opaque labels used only
// for operator bookkeeping.
type Gate struct {
	secrets map[string]string
}

// ParseSecrets parses the TOTP_SECRETS configuration string into a Gate.
// An empty string yields a Gate with no secrets (Validate always fails),
// matching the "required iff REQUIRE_TOTP=true" rule.
func ParseSecrets(config string) (*Gate, error) {
	secrets := map[string]string{}

	config = strings.TrimSpace(config)
	if config == "" {
		return &Gate{secrets: secrets}, nil
	}

	for _, entry := range strings.Split(config, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, secret, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("totp: malformed entry %q, expected name:SECRET", entry)
		}
		secrets[strings.TrimSpace(name)] = strings.TrimSpace(secret)
	}

	return &Gate{secrets: secrets}, nil
}

// Validate reports whether code is a valid TOTP for any configured secret,
// per RFC 6238: HMAC-SHA-1, 30s step, 6 digits, ±1 step skew tolerance.
func (g *Gate) Validate(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}

	opts := totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}

	for _, secret := range g.secrets {
		ok, err := totp.ValidateCustom(code, secret, timeNow(), opts)
		if err == nil && ok {
			return true
		}
	}
	return false
}
