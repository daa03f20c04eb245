package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chestsvc/chest/pkg/chest"
	"github.com/chestsvc/chest/pkg/stats"
	"github.com/go-chi/render"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"requireTOTP": s.requireTOTP})
}

type createChestRequest struct {
	TOTPToken string `json:"totpToken"`
}

func (s *Server) handleCreateChest(w http.ResponseWriter, r *http.Request) {
	var req createChestRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(w, r, "malformed request body")
			return
		}
	}

	if s.requireTOTP && !s.totp.Validate(req.TOTPToken) {
		writeError(w, r, chest.ErrAdmissionDenied)
		return
	}

	result, err := s.engine.CreateChest(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"sessionId":   result.SessionID,
		"uploadToken": result.UploadToken,
		"expiresIn":   result.ExpiresIn,
	})
}

// handleUploadFiles streams the request's multipart body part by part,
// materializing each part fully before handing it to the engine — this is
// the small-file path (large transfers are expected to use the chunked
// multipart/create-part-complete flow instead), so buffering one part at a
// time trades a bounded amount of memory for true concurrent blob puts
// downstream in chest.Engine.UploadFiles.
func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	if _, ok := s.requireUploadClaims(w, r, sessionID); !ok {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		badRequest(w, r, "request must be multipart/form-data")
		return
	}

	var items []chest.UploadItem
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			badRequest(w, r, "malformed multipart body")
			return
		}

		switch part.FormName() {
		case "files":
			data, readErr := io.ReadAll(part)
			part.Close()
			if readErr != nil {
				writeError(w, r, chest.NewError(chest.CodeInternal, "reading uploaded file"))
				return
			}
			items = append(items, chest.UploadItem{
				Filename: part.FileName(),
				MimeType: part.Header.Get("Content-Type"),
				Content:  bytes.NewReader(data),
				Size:     int64(len(data)),
			})

		case "textItems":
			data, readErr := io.ReadAll(part)
			part.Close()
			if readErr != nil {
				writeError(w, r, chest.NewError(chest.CodeInternal, "reading text item"))
				return
			}
			var textItem struct {
				Content  string `json:"content"`
				Filename string `json:"filename"`
			}
			if err := json.Unmarshal(data, &textItem); err != nil {
				badRequest(w, r, "malformed textItems entry")
				return
			}
			items = append(items, chest.UploadItem{
				IsText:   true,
				Filename: textItem.Filename,
				Content:  strings.NewReader(textItem.Content),
				Size:     int64(len(textItem.Content)),
			})

		default:
			io.Copy(io.Discard, part) //nolint:errcheck
			part.Close()
		}
	}

	uploaded, err := s.engine.UploadFiles(r.Context(), sessionID, items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type uploadedFile struct {
		FileID   string `json:"fileId"`
		Filename string `json:"filename"`
		IsText   bool   `json:"isText"`
	}
	out := make([]uploadedFile, len(uploaded))
	for i, u := range uploaded {
		out[i] = uploadedFile{FileID: u.FileID, Filename: u.Filename, IsText: u.IsText}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"uploadedFiles": out})
}

type createMultipartRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

func (s *Server) handleCreateMultipart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	if _, ok := s.requireUploadClaims(w, r, sessionID); !ok {
		return
	}

	var req createMultipartRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "malformed request body")
		return
	}

	result, err := s.engine.CreateMultipartUpload(r.Context(), sessionID, req.Filename, req.MimeType, req.FileSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"fileId":   result.FileID,
		"uploadId": result.MultipartToken,
	})
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	fileID := r.PathValue("fid")
	claims, ok := s.requireMultipartClaims(w, r, sessionID, fileID)
	if !ok {
		return
	}

	partNumber, err := strconv.ParseInt(r.PathValue("n"), 10, 32)
	if err != nil {
		badRequest(w, r, "partNumber must be an integer")
		return
	}

	result, err := s.engine.UploadPart(r.Context(), claims, int32(partNumber), r.Body, r.ContentLength)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"etag":       result.ETag,
		"partNumber": result.PartNumber,
	})
}

type partInput struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

type completeMultipartRequest struct {
	Parts []partInput `json:"parts"`
}

func (s *Server) handleCompleteMultipart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	fileID := r.PathValue("fid")
	claims, ok := s.requireMultipartClaims(w, r, sessionID, fileID)
	if !ok {
		return
	}

	var req completeMultipartRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "malformed request body")
		return
	}

	parts := make([]chest.PartInput, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = chest.PartInput{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	result, err := s.engine.CompleteMultipart(r.Context(), claims, parts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"fileId":   result.FileID,
		"filename": result.Filename,
	})
}

type sealChestRequest struct {
	FileIDs      []string `json:"fileIds"`
	ValidityDays int      `json:"validityDays"`
}

func (s *Server) handleSealChest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	if _, ok := s.requireUploadClaims(w, r, sessionID); !ok {
		return
	}

	var req sealChestRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "malformed request body")
		return
	}

	result, err := s.engine.SealChest(r.Context(), sessionID, req.FileIDs, req.ValidityDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"retrievalCode": result.RetrievalCode,
		"expiryDate":    isoOrNull(result.ExpiresAt),
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	result, err := s.engine.RetrieveByCode(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type fileView struct {
		FileID        string `json:"fileId"`
		Filename      string `json:"filename"`
		Size          int64  `json:"size"`
		MimeType      string `json:"mimeType"`
		IsText        bool   `json:"isText"`
		FileExtension string `json:"fileExtension"`
	}
	files := make([]fileView, len(result.Files))
	for i, f := range result.Files {
		files[i] = fileView{
			FileID:        f.ID,
			Filename:      f.OriginalFilename,
			Size:          f.FileSize,
			MimeType:      f.MimeType,
			IsText:        f.IsText,
			FileExtension: f.FileExtension,
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"files":      files,
		"chestToken": result.ChestToken,
		"expiryDate": isoOrNull(result.ExpiresAt),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fid")

	claims, ok := s.requireChestClaims(w, r)
	if !ok {
		return
	}

	result, err := s.engine.DownloadFile(r.Context(), claims, fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer result.Body.Close()

	filename := result.File.OriginalFilename
	if override := strings.TrimSpace(r.URL.Query().Get("filename")); override != "" {
		filename = override
	}

	w.Header().Set("Content-Type", result.File.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.WriteHeader(http.StatusOK)

	startedAt := time.Now()
	written, _ := io.Copy(w, result.Body) //nolint:errcheck
	stats.Default().RecordDownload(written, time.Since(startedAt))
}
