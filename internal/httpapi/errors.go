package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, errorResponse{Error: code, Message: msg})
}

func statusFor(kind gateerr.Kind) int {
	switch kind {
	case gateerr.KindNotFound:
		return http.StatusNotFound
	case gateerr.KindAccessDenied, gateerr.KindBlacklisted:
		return http.StatusForbidden
	case gateerr.KindInvalidState:
		return http.StatusConflict
	case gateerr.KindUnauthorized:
		return http.StatusUnauthorized
	case gateerr.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error onto a status code.  Unclassified
// errors are logged and hidden from the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := gateerr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, status, "internal_error", "unexpected server error")
		return
	}
	writeError(w, r, status, string(kind), gateerr.ReasonOf(err))
}
