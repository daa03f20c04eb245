package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestUploadTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret")

	signed, err := svc.MintUpload("session-1")
	require.NoError(t, err)

	claims, err := svc.VerifyUpload(signed)
	require.NoError(t, err)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, TypeUpload, claims.Type)
}

func TestChestTokenPermanentUsesLongExpiry(t *testing.T) {
	svc := NewService("test-secret")

	signed, err := svc.MintChest("session-1", nil)
	require.NoError(t, err)

	claims, err := svc.VerifyChest(signed)
	require.NoError(t, err)
	require.True(t, claims.ExpiresAt.Time.After(time.Now().Add(300*24*time.Hour)))
}

func TestChestTokenExpiryMatchesSessionExpiry(t *testing.T) {
	svc := NewService("test-secret")
	expiry := time.Now().Add(7 * 24 * time.Hour)

	signed, err := svc.MintChest("session-1", &expiry)
	require.NoError(t, err)

	claims, err := svc.VerifyChest(signed)
	require.NoError(t, err)
	require.WithinDuration(t, expiry, claims.ExpiresAt.Time, time.Second)
}

func TestMultipartTokenCarriesState(t *testing.T) {
	svc := NewService("test-secret")

	signed, err := svc.MintMultipart("session-1", "file-1", "upload-abc", "big.bin", "application/octet-stream", 2048)
	require.NoError(t, err)

	claims, err := svc.VerifyMultipart(signed)
	require.NoError(t, err)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, "file-1", claims.FileID)
	require.Equal(t, "upload-abc", claims.UploadID)
	require.Equal(t, "big.bin", claims.Filename)
	require.Equal(t, "application/octet-stream", claims.MimeType)
	require.Equal(t, int64(2048), claims.FileSize)
}

func TestWrongTokenTypeRejected(t *testing.T) {
	svc := NewService("test-secret")

	uploadToken, err := svc.MintUpload("session-1")
	require.NoError(t, err)

	_, err = svc.VerifyChest(uploadToken)
	require.ErrorIs(t, err, ErrWrongTokenType)

	_, err = svc.VerifyMultipart(uploadToken)
	require.ErrorIs(t, err, ErrWrongTokenType)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := NewService("test-secret")

	claims := UploadClaims{
		SessionID: "session-1",
		Type:      TypeUpload,
	}
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-48 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-24 * time.Hour))

	signed, err := svc.sign(claims)
	require.NoError(t, err)

	_, err = svc.VerifyUpload(signed)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestInvalidSignatureRejected(t *testing.T) {
	svc := NewService("test-secret")
	other := NewService("different-secret")

	signed, err := svc.MintUpload("session-1")
	require.NoError(t, err)

	_, err = other.VerifyUpload(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMalformedTokenRejected(t *testing.T) {
	svc := NewService("test-secret")

	_, err := svc.VerifyUpload("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}
