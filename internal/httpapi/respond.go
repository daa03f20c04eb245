package httpapi

import (
	"net/http"

	"github.com/chestsvc/chest/pkg/chest"
	"github.com/go-chi/render"
)

// errorResponse is the one JSON error shape every endpoint returns, the same
// {"message": "..."} envelope the teacher uses for its own protocol errors.
type errorResponse struct {
	Message string `json:"message"`
}

func codeToStatus(code chest.Code) int {
	switch code {
	case chest.CodeBadRequest:
		return http.StatusBadRequest
	case chest.CodeUnauthorized:
		return http.StatusUnauthorized
	case chest.CodeForbidden:
		return http.StatusForbidden
	case chest.CodeNotFound:
		return http.StatusNotFound
	case chest.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError is the single chokepoint translating an engine error into an
// HTTP response, grounded on the teacher's own writeError/writeJSON pair in
// its tuist cache protocol handler.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := chest.AsError(err)
	render.Status(r, codeToStatus(ce.Code))
	render.JSON(w, r, errorResponse{Message: ce.Message})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, chest.NewError(chest.CodeBadRequest, message))
}
