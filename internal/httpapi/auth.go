package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/chestsvc/chest/pkg/chest"
	"github.com/chestsvc/chest/pkg/tokens"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return token, token != ""
}

func tokenError(err error) error {
	if errors.Is(err, tokens.ErrExpiredToken) || errors.Is(err, tokens.ErrInvalidToken) || errors.Is(err, tokens.ErrWrongTokenType) {
		return chest.ErrInvalidBearerToken
	}
	return chest.ErrInvalidBearerToken
}

// requireUploadClaims authorizes uploadFiles, createMultipartUpload, and
// sealChest: the token must be a valid upload token minted for exactly this
// session.
func (s *Server) requireUploadClaims(w http.ResponseWriter, r *http.Request, sessionID string) (*tokens.UploadClaims, bool) {
	raw, ok := bearerToken(r)
	if !ok {
		writeError(w, r, chest.ErrMissingBearerToken)
		return nil, false
	}
	claims, err := s.tokens.VerifyUpload(raw)
	if err != nil {
		writeError(w, r, tokenError(err))
		return nil, false
	}
	if claims.SessionID != sessionID {
		writeError(w, r, chest.ErrTokenMismatch)
		return nil, false
	}
	return claims, true
}

// requireMultipartClaims authorizes uploadPart and completeMultipart: the
// whole in-flight upload's state lives in this token, and its sessionId and
// fileId must both match the path.
func (s *Server) requireMultipartClaims(w http.ResponseWriter, r *http.Request, sessionID, fileID string) (*tokens.MultipartClaims, bool) {
	raw, ok := bearerToken(r)
	if !ok {
		writeError(w, r, chest.ErrMissingBearerToken)
		return nil, false
	}
	claims, err := s.tokens.VerifyMultipart(raw)
	if err != nil {
		writeError(w, r, tokenError(err))
		return nil, false
	}
	if claims.SessionID != sessionID || claims.FileID != fileID {
		writeError(w, r, chest.ErrTokenMismatch)
		return nil, false
	}
	return claims, true
}

// requireChestClaims authorizes downloadFile against every file in a sealed
// chest. The token may arrive either as a bearer header or as a ?token=
// query parameter, since a plain <a href> download link can't set headers.
func (s *Server) requireChestClaims(w http.ResponseWriter, r *http.Request) (*tokens.ChestClaims, bool) {
	raw, ok := bearerToken(r)
	if !ok {
		raw = strings.TrimSpace(r.URL.Query().Get("token"))
		ok = raw != ""
	}
	if !ok {
		writeError(w, r, chest.ErrMissingBearerToken)
		return nil, false
	}
	claims, err := s.tokens.VerifyChest(raw)
	if err != nil {
		writeError(w, r, tokenError(err))
		return nil, false
	}
	return claims, true
}
