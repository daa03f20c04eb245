// Package tokens mints and verifies the three bearer-credential shapes a
// chest uses — upload, chest, and multipart — as compact HMAC-SHA-256 signed
// JWTs built on golang-jwt/jwt/v5. Each claim struct carries a "type"
// discriminant that verification checks explicitly, so a well-signed token
// of the wrong kind fails distinctly from an expired one.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeUpload    = "upload"
	TypeChest     = "chest"
	TypeMultipart = "multipart"

	uploadTTL    = 24 * time.Hour
	multipartTTL = 48 * time.Hour
	permanentTTL = 365 * 24 * time.Hour
)

var (
	ErrInvalidToken   = errors.New("tokens: invalid token")
	ErrExpiredToken   = errors.New("tokens: expired token")
	ErrWrongTokenType = errors.New("tokens: wrong token type")
)

// UploadClaims authorizes uploadFiles, createMultipartUpload, and sealChest
// against a single sessionId.
type UploadClaims struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// ChestClaims authorizes downloadFile against every file in a sealed chest.
type ChestClaims struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// MultipartClaims carries the entire in-flight chunked-upload state: the
// blob store's own uploadId plus the file metadata supplied at
// createMultipartUpload time. There is deliberately no server-side record of
// this upload; the token is the session.
type MultipartClaims struct {
	SessionID string `json:"sessionId"`
	FileID    string `json:"fileId"`
	UploadID  string `json:"uploadId"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	FileSize  int64  `json:"fileSize"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// Service mints and verifies all three token kinds off a single process-wide
// HMAC signing key. The key is read-only after construction; rotation is by
// redeployment, per spec.
type Service struct {
	secret []byte
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

func (s *Service) MintUpload(sessionID string) (string, error) {
	now := time.Now()
	claims := UploadClaims{
		SessionID: sessionID,
		Type:      TypeUpload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(uploadTTL)),
		},
	}
	return s.sign(claims)
}

// MintChest mints a token valid until expiresAt, or for permanentTTL if
// expiresAt is nil (a permanent chest).
func (s *Service) MintChest(sessionID string, expiresAt *time.Time) (string, error) {
	now := time.Now()
	exp := now.Add(permanentTTL)
	if expiresAt != nil {
		exp = *expiresAt
	}

	claims := ChestClaims{
		SessionID: sessionID,
		Type:      TypeChest,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return s.sign(claims)
}

func (s *Service) MintMultipart(sessionID, fileID, uploadID, filename, mimeType string, fileSize int64) (string, error) {
	now := time.Now()
	claims := MultipartClaims{
		SessionID: sessionID,
		FileID:    fileID,
		UploadID:  uploadID,
		Filename:  filename,
		MimeType:  mimeType,
		FileSize:  fileSize,
		Type:      TypeMultipart,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(multipartTTL)),
		},
	}
	return s.sign(claims)
}

func (s *Service) VerifyUpload(token string) (*UploadClaims, error) {
	claims := &UploadClaims{}
	if err := s.verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeUpload {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *Service) VerifyChest(token string) (*ChestClaims, error) {
	claims := &ChestClaims{}
	if err := s.verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeChest {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *Service) VerifyMultipart(token string) (*MultipartClaims, error) {
	claims := &MultipartClaims{}
	if err := s.verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeMultipart {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("tokens: signing: %w", err)
	}
	return signed, nil
}

func (s *Service) verify(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("tokens: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	return nil
}
