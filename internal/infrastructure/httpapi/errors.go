package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/doeshing/preauth-guard/internal/domain"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// statusFor maps an error onto an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrCollaboratorTimeout):
		return http.StatusGatewayTimeout, "collaborator_timeout"
	case errors.Is(err, domain.ErrCollaboratorUnavailable),
		errors.Is(err, domain.ErrCollaboratorMalformed),
		errors.Is(err, domain.ErrPolicyStore):
		return http.StatusBadGateway, "collaborator_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError writes the error body. Internal errors omit the description.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorResponse{Error: code, RequestID: RequestID(r.Context())}
	if status != http.StatusInternalServerError {
		body.Description = h.redactor.Redact(err.Error(), "")
	}
	if h.logger != nil {
		h.logger.Error("request failed", err, map[string]interface{}{
			"request_id": body.RequestID,
			"status":     status,
		})
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
