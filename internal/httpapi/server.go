// Package httpapi is the chest lifecycle engine's external interface: HTTP
// routing, auth, and the request/response shapes spec.md §6 describes,
// layered thinly over pkg/chest the same way the teacher layers its cache
// protocol handlers over pkg/storage — translation only, no business logic.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/chestsvc/chest/internal/totp"
	"github.com/chestsvc/chest/pkg/chest"
	"github.com/chestsvc/chest/pkg/tokens"
)

// Server holds the dependencies every handler needs. It carries no
// request-scoped state of its own.
type Server struct {
	engine      *chest.Engine
	tokens      *tokens.Service
	totp        *totp.Gate
	requireTOTP bool
	logger      *slog.Logger
}

// New builds the routed, middleware-wrapped handler for the whole API
// surface. Route patterns use Go 1.22's method+path ServeMux syntax — no
// external router dependency needed, the same choice the teacher's storage
// service makes for its own routes.
//
// Middleware stack (outer → inner): CORS → request log → panic recovery →
// mux.
func New(engine *chest.Engine, tok *tokens.Service, totpGate *totp.Gate, requireTOTP bool, logger *slog.Logger) http.Handler {
	s := &Server{
		engine:      engine,
		tokens:      tok,
		totp:        totpGate,
		requireTOTP: requireTOTP,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("POST /api/chest", s.handleCreateChest)
	mux.HandleFunc("POST /api/chest/{sid}/upload", s.handleUploadFiles)
	mux.HandleFunc("POST /api/chest/{sid}/multipart/create", s.handleCreateMultipart)
	mux.HandleFunc("PUT /api/chest/{sid}/multipart/{fid}/part/{n}", s.handleUploadPart)
	mux.HandleFunc("POST /api/chest/{sid}/multipart/{fid}/complete", s.handleCompleteMultipart)
	mux.HandleFunc("POST /api/chest/{sid}/complete", s.handleSealChest)
	mux.HandleFunc("GET /api/retrieve/{code}", s.handleRetrieve)
	mux.HandleFunc("GET /api/download/{fid}", s.handleDownload)

	return cors(requestLog(logger)(recoverPanic(logger)(mux)))
}
