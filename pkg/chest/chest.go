// Package chest is the chest lifecycle engine (C5): the state machine and
// the seven public operations (createChest, uploadFiles,
// createMultipartUpload, uploadPart, completeMultipart, sealChest,
// retrieveByCode) plus downloadFile, bridging the metadata gateway (C3) and
// the blob store gateway (C4). It depends on both only through small local
// interfaces so its tests can run against in-memory fakes instead of a real
// database and object store.
package chest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/chestsvc/chest/pkg/ids"
	"github.com/chestsvc/chest/pkg/metadata"
	"github.com/chestsvc/chest/pkg/stats"
	"github.com/chestsvc/chest/pkg/storage"
	"github.com/chestsvc/chest/pkg/tokens"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// sealCollisionRetries bounds sealChest's retrieval-code regeneration loop:
// the total number of codes tried (the first included) before the seal
// reports Conflict.
const sealCollisionRetries = 5

// MetadataGateway is the subset of pkg/metadata's Store the engine needs.
type MetadataGateway interface {
	InsertSession(ctx context.Context, id string) error
	MarkSealed(ctx context.Context, id, retrievalCode string, expiresAt *time.Time) (bool, error)
	GetOpenSession(ctx context.Context, id string) (*metadata.Session, error)
	GetSealedByCode(ctx context.Context, code string) (*metadata.Session, error)
	InsertFiles(ctx context.Context, files []metadata.File) error
	ListSessionFiles(ctx context.Context, sessionID string) ([]metadata.File, error)
	GetFile(ctx context.Context, fileID string) (*metadata.File, error)
	SessionFileIDs(ctx context.Context, sessionID string) (map[string]struct{}, error)
	CountSessionFiles(ctx context.Context, sessionID string) (int, error)
}

// Engine implements the eight chest operations over a MetadataGateway, a
// storage.Gateway, and a token Service.
type Engine struct {
	meta    MetadataGateway
	blobs   storage.Gateway
	tokens  *tokens.Service
	nowFunc func() time.Time
}

func New(meta MetadataGateway, blobs storage.Gateway, tok *tokens.Service) *Engine {
	return &Engine{meta: meta, blobs: blobs, tokens: tok, nowFunc: time.Now}
}

func (e *Engine) now() time.Time { return e.nowFunc() }

// CreateChestResult is the response shape for createChest.
type CreateChestResult struct {
	SessionID   string
	UploadToken string
	ExpiresIn   int64
}

// CreateChest mints a new session and its upload token. The TOTP admission
// check (§6) is the HTTP layer's responsibility, not the engine's: by the
// time CreateChest is called the caller has already been admitted.
func (e *Engine) CreateChest(ctx context.Context) (*CreateChestResult, error) {
	sessionID := ids.NewID()
	if err := e.meta.InsertSession(ctx, sessionID); err != nil {
		return nil, wrapErr(CodeInternal, "creating session", err)
	}

	uploadToken, err := e.tokens.MintUpload(sessionID)
	if err != nil {
		return nil, wrapErr(CodeInternal, "minting upload token", err)
	}

	stats.Default().RecordSessionCreated()

	return &CreateChestResult{
		SessionID:   sessionID,
		UploadToken: uploadToken,
		ExpiresIn:   int64((24 * time.Hour).Seconds()),
	}, nil
}

// UploadItem is one part of an uploadFiles request, either a binary file or
// an inline text item, as submitted in form-part order.
type UploadItem struct {
	IsText   bool
	Filename string // empty means "use the default"
	MimeType string // empty means "use the default"; ignored for text items
	Content  io.Reader
	Size     int64 // advertised size; -1 if unknown (binary parts only)
}

// UploadedFile describes one stored item, in the order items were submitted.
type UploadedFile struct {
	FileID   string
	Filename string
	IsText   bool
}

// UploadFiles streams each item's body to the blob store and inserts one
// batched files row, per spec.md §4.5(b). All blob puts are issued
// concurrently and awaited together; if any fails the whole call fails and
// no files row is written for this request.
func (e *Engine) UploadFiles(ctx context.Context, sessionID string, items []UploadItem) ([]UploadedFile, error) {
	if _, err := e.meta.GetOpenSession(ctx, sessionID); err != nil {
		return nil, wrapErr(CodeNotFound, "session not open", err)
	}
	if len(items) == 0 {
		return nil, newErr(CodeBadRequest, "no files or text items in request")
	}

	type prepared struct {
		fileID   string
		filename string
		mimeType string
		size     int64
		isText   bool
	}

	fileIDs := make([]string, len(items))
	for i := range items {
		fileIDs[i] = ids.NewID()
	}

	startedAt := e.now()
	preparedItems := make([]prepared, len(items))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		fileID := fileIDs[i]

		group.Go(func() error {
			key := storage.ObjectKey(sessionID, fileID)

			if item.IsText {
				content, err := io.ReadAll(item.Content)
				if err != nil {
					return fmt.Errorf("reading text item %d: %w", i, err)
				}
				filename := item.Filename
				if filename == "" {
					filename = fmt.Sprintf("text-%d.txt", e.now().UnixMilli())
				}
				if err := e.blobs.Put(groupCtx, key, bytesReader(content), int64(len(content))); err != nil {
					return fmt.Errorf("storing text item %d: %w", i, err)
				}
				preparedItems[i] = prepared{
					fileID: fileID, filename: filename, mimeType: "text/plain",
					size: int64(len(content)), isText: true,
				}
				return nil
			}

			filename := item.Filename
			if filename == "" {
				filename = "unnamed-file"
			}
			mimeType := item.MimeType
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			if err := e.blobs.Put(groupCtx, key, item.Content, item.Size); err != nil {
				return fmt.Errorf("storing file %d: %w", i, err)
			}
			preparedItems[i] = prepared{
				fileID: fileID, filename: filename, mimeType: mimeType,
				size: item.Size, isText: false,
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, wrapErr(CodeInternal, "uploading files", err)
	}

	// preparedItems is already in request-part order: each goroutine above
	// writes to its own index, so this map preserves submission order the
	// same way lo.Map preserves the order of the slice it's given.
	rows := lo.Map(preparedItems, func(p prepared, _ int) metadata.File {
		return metadata.File{
			ID: p.fileID, SessionID: sessionID, OriginalFilename: p.filename,
			MimeType: p.mimeType, FileSize: p.size, FileExtension: extensionOf(p.filename),
			IsText: p.isText,
		}
	})
	result := lo.Map(preparedItems, func(p prepared, _ int) UploadedFile {
		return UploadedFile{FileID: p.fileID, Filename: p.filename, IsText: p.isText}
	})

	if err := e.meta.InsertFiles(ctx, rows); err != nil {
		return nil, wrapErr(CodeInternal, "recording uploaded files", err)
	}

	var totalBytes int64
	for _, p := range preparedItems {
		totalBytes += p.size
	}
	stats.Default().RecordUpload(totalBytes, e.now().Sub(startedAt))

	return result, nil
}

// CreateMultipartResult is the response shape for createMultipartUpload.
type CreateMultipartResult struct {
	FileID         string
	MultipartToken string
}

// CreateMultipartUpload allocates a fileId and a blob-store multipart
// session, then mints the multipart token that *is* that session (§9): no
// row is written to the files table until completeMultipart.
func (e *Engine) CreateMultipartUpload(ctx context.Context, sessionID, filename, mimeType string, fileSize int64) (*CreateMultipartResult, error) {
	if _, err := e.meta.GetOpenSession(ctx, sessionID); err != nil {
		return nil, wrapErr(CodeNotFound, "session not open", err)
	}
	if filename == "" || mimeType == "" {
		return nil, newErr(CodeBadRequest, "filename and mimeType are required")
	}
	if fileSize <= 0 {
		return nil, newErr(CodeBadRequest, "fileSize must be positive")
	}

	fileID := ids.NewID()
	key := storage.ObjectKey(sessionID, fileID)

	uploadID, err := e.blobs.MultipartCreate(ctx, key)
	if err != nil {
		return nil, wrapErr(CodeInternal, "creating multipart upload", err)
	}

	multipartToken, err := e.tokens.MintMultipart(sessionID, fileID, uploadID, filename, mimeType, fileSize)
	if err != nil {
		return nil, wrapErr(CodeInternal, "minting multipart token", err)
	}

	return &CreateMultipartResult{FileID: fileID, MultipartToken: multipartToken}, nil
}

// UploadPartResult is the response shape for uploadPart.
type UploadPartResult struct {
	ETag       string
	PartNumber int32
}

// UploadPart resumes the blob-store multipart handle named in claims and
// uploads one part. Parts may arrive out of order and be retried; per
// blob-store semantics, re-uploading a partNumber replaces the prior one.
func (e *Engine) UploadPart(ctx context.Context, claims *tokens.MultipartClaims, partNumber int32, body io.Reader, size int64) (*UploadPartResult, error) {
	if partNumber < 1 || partNumber > 10000 {
		return nil, newErr(CodeBadRequest, "partNumber must be between 1 and 10000")
	}
	if size == 0 {
		return nil, newErr(CodeBadRequest, "part body must not be empty")
	}

	startedAt := e.now()
	key := storage.ObjectKey(claims.SessionID, claims.FileID)
	etag, err := e.blobs.MultipartUploadPart(ctx, key, claims.UploadID, partNumber, body, size)
	if err != nil {
		return nil, wrapErr(CodeInternal, "uploading part", err)
	}
	stats.Default().RecordUpload(size, e.now().Sub(startedAt))

	return &UploadPartResult{ETag: etag, PartNumber: partNumber}, nil
}

// PartInput is one entry of completeMultipart's parts[] request field.
type PartInput struct {
	PartNumber int32
	ETag       string
}

// CompleteMultipartResult is the response shape for completeMultipart.
type CompleteMultipartResult struct {
	FileID   string
	Filename string
}

// CompleteMultipart sorts parts by partNumber ascending, assembles them at
// the blob store, then writes the files row — the commit point for a
// chunked file (§9): a failed complete leaves no row behind.
func (e *Engine) CompleteMultipart(ctx context.Context, claims *tokens.MultipartClaims, parts []PartInput) (*CompleteMultipartResult, error) {
	if len(parts) == 0 {
		return nil, newErr(CodeBadRequest, "parts must not be empty")
	}

	sorted := make([]PartInput, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	storageParts := make([]storage.Part, len(sorted))
	for i, p := range sorted {
		storageParts[i] = storage.Part{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	key := storage.ObjectKey(claims.SessionID, claims.FileID)
	if err := e.blobs.MultipartComplete(ctx, key, claims.UploadID, storageParts); err != nil {
		return nil, wrapErr(CodeInternal, "completing multipart upload", err)
	}

	row := metadata.File{
		ID: claims.FileID, SessionID: claims.SessionID, OriginalFilename: claims.Filename,
		MimeType: claims.MimeType, FileSize: claims.FileSize, FileExtension: extensionOf(claims.Filename),
		IsText: false,
	}
	if err := e.meta.InsertFiles(ctx, []metadata.File{row}); err != nil {
		return nil, wrapErr(CodeInternal, "recording completed file", err)
	}

	return &CompleteMultipartResult{FileID: claims.FileID, Filename: claims.Filename}, nil
}

// SealResult is the response shape for sealChest.
type SealResult struct {
	RetrievalCode string
	ExpiresAt     *time.Time
}

var validityDayOptions = map[int]bool{1: true, 3: true, 7: true, 15: true, -1: true}

// SealChest validates the ownership/cardinality of the submitted fileIds,
// computes the expiry, allocates a unique retrieval code (trying at most
// sealCollisionRetries codes in total on collision), and
// conditionally marks the session sealed.
func (e *Engine) SealChest(ctx context.Context, sessionID string, fileIDs []string, validityDays int) (*SealResult, error) {
	if !validityDayOptions[validityDays] {
		return nil, newErr(CodeBadRequest, "validityDays must be one of 1, 3, 7, 15, -1")
	}
	for _, id := range fileIDs {
		if !ids.ValidID(id) {
			return nil, newErr(CodeBadRequest, fmt.Sprintf("invalid fileId %q", id))
		}
	}

	owned, err := e.meta.SessionFileIDs(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(CodeInternal, "loading session files", err)
	}
	if len(owned) != len(fileIDs) {
		return nil, ErrFileNotInSession
	}
	for _, id := range fileIDs {
		if _, ok := owned[id]; !ok {
			return nil, ErrFileNotInSession
		}
	}

	var expiresAt *time.Time
	if validityDays != -1 {
		t := e.now().Add(time.Duration(validityDays) * 24 * time.Hour)
		expiresAt = &t
	}

	var lastErr error
	for attempt := 0; attempt < sealCollisionRetries; attempt++ {
		code, err := ids.NewRetrievalCode()
		if err != nil {
			return nil, wrapErr(CodeInternal, "generating retrieval code", err)
		}

		sealed, err := e.meta.MarkSealed(ctx, sessionID, code, expiresAt)
		if err != nil {
			if isUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, wrapErr(CodeInternal, "sealing session", err)
		}
		if !sealed {
			return nil, ErrAlreadySealed
		}

		stats.Default().RecordSessionSealed()
		return &SealResult{RetrievalCode: code, ExpiresAt: expiresAt}, nil
	}

	return nil, wrapErr(CodeConflict, ErrCodeCollision.Message, lastErr)
}

// RetrieveResult is the response shape for retrieveByCode.
type RetrieveResult struct {
	Files      []metadata.File
	ChestToken string
	ExpiresAt  *time.Time
}

// RetrieveByCode looks up a sealed, non-expired session by its retrieval
// code, lists its files in creation order, and mints a chest token whose
// expiry matches the session's.
func (e *Engine) RetrieveByCode(ctx context.Context, code string) (*RetrieveResult, error) {
	if !ids.ValidRetrievalCode(code) {
		return nil, newErr(CodeBadRequest, "malformed retrieval code")
	}

	sess, err := e.meta.GetSealedByCode(ctx, code)
	if err != nil {
		return nil, wrapErr(CodeNotFound, ErrCodeNotFound.Message, err)
	}

	files, err := e.meta.ListSessionFiles(ctx, sess.ID)
	if err != nil {
		return nil, wrapErr(CodeInternal, "listing session files", err)
	}

	var expiresAt *time.Time
	if sess.ExpiresAt.Valid {
		t := sess.ExpiresAt.Time
		expiresAt = &t
	}

	chestToken, err := e.tokens.MintChest(sess.ID, expiresAt)
	if err != nil {
		return nil, wrapErr(CodeInternal, "minting chest token", err)
	}

	return &RetrieveResult{Files: files, ChestToken: chestToken, ExpiresAt: expiresAt}, nil
}

// DownloadResult streams a file's blob body alongside the metadata needed
// to set response headers.
type DownloadResult struct {
	File *metadata.File
	Body io.ReadCloser
	Size int64
}

// DownloadFile validates that the chest token authorizes fileID's session,
// then streams the underlying blob.
func (e *Engine) DownloadFile(ctx context.Context, claims *tokens.ChestClaims, fileID string) (*DownloadResult, error) {
	file, err := e.meta.GetFile(ctx, fileID)
	if err != nil {
		return nil, wrapErr(CodeNotFound, ErrFileNotFound.Message, err)
	}
	if file.SessionID != claims.SessionID {
		return nil, ErrTokenMismatch
	}

	key := storage.ObjectKey(file.SessionID, file.ID)
	body, size, err := e.blobs.Get(ctx, key)
	if err != nil {
		return nil, wrapErr(CodeNotFound, "blob missing from store", err)
	}

	return &DownloadResult{File: file, Body: body, Size: size}, nil
}
