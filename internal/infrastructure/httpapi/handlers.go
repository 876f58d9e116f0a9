package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/doeshing/preauth-guard/internal/domain"
)

type redactRequest struct {
	Text        string `json:"text"`
	PatientName string `json:"patientName,omitempty"`
}

type redactResponse struct {
	Text string `json:"text"`
}

type verifyRequest struct {
	Code        string   `json:"code,omitempty"`
	Codes       []string `json:"codes,omitempty"`
	NoteText    string   `json:"noteText"`
	PatientName string   `json:"patientName,omitempty"`
}

type verifyAllResponse struct {
	Results []domain.VerificationResult `json:"results"`
}

type clinicalRequest struct {
	Critique  json.RawMessage `json:"critique"`
	Specialty string          `json:"specialty"`
}

type appealRequest struct {
	Critique     json.RawMessage `json:"critique"`
	DenialReason string          `json:"denialReason"`
}

type guardrailResponse struct {
	Audit   domain.AuditData `json:"audit"`
	GateLog domain.GateLog   `json:"gateLog"`
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRedact handles POST /v1/redact.
func (h *Handler) HandleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, redactResponse{Text: h.redactor.Redact(req.Text, req.PatientName)})
}

// HandleVerify handles POST /v1/verify. A single code returns one result;
// a codes list returns {"results": [...]} in request order.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.verifier == nil {
		h.writeError(w, r, errors.New("verification is not configured"))
		return
	}
	note := h.redactor.Redact(req.NoteText, req.PatientName)

	if len(req.Codes) > 0 {
		results, err := h.verifier.VerifyAll(r.Context(), req.Codes, note)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verifyAllResponse{Results: results})
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.Code, note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleClinical handles POST /v1/guardrails/clinical.
func (h *Handler) HandleClinical(w http.ResponseWriter, r *http.Request) {
	var req clinicalRequest
	if !h.decode(w, r, &req) {
		return
	}
	critique, err := parseCritique(req.Critique)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	audit, log := h.engine.ApplyGuardrails(critique, req.Specialty)
	writeJSON(w, http.StatusOK, guardrailResponse{Audit: audit, GateLog: nonNilLog(log)})
}

// HandleAppeal handles POST /v1/guardrails/appeal.
func (h *Handler) HandleAppeal(w http.ResponseWriter, r *http.Request) {
	var req appealRequest
	if !h.decode(w, r, &req) {
		return
	}
	critique, err := parseCritique(req.Critique)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	audit, log := h.engine.ApplyAppealGuardrails(critique, req.DenialReason)
	writeJSON(w, http.StatusOK, guardrailResponse{Audit: audit, GateLog: nonNilLog(log)})
}

// HandleReview handles POST /v1/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req domain.ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.reviewer == nil {
		h.writeError(w, r, errors.New("review is not configured"))
		return
	}
	resp, err := h.reviewer.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed JSON body: %s", domain.ErrInvalidRequest, describeDecodeError(err)))
		return false
	}
	if decoder.More() {
		h.writeError(w, r, fmt.Errorf("%w: body must contain a single JSON object", domain.ErrInvalidRequest))
		return false
	}
	return true
}

// describeDecodeError keeps positional detail but drops echoed input.
func describeDecodeError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("syntax error at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &maxErr):
		return "body too large"
	case errors.Is(err, io.EOF):
		return "empty body"
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return err.Error()
	default:
		return "invalid JSON"
	}
}

// parseCritique applies the lenient critique decoder; only a non-object is rejected.
func parseCritique(raw json.RawMessage) (domain.Critique, error) {
	if len(raw) == 0 {
		return domain.Critique{}, fmt.Errorf("%w: critique is required", domain.ErrInvalidRequest)
	}
	critique, err := domain.ParseCritique(raw)
	if err != nil {
		return domain.Critique{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return critique, nil
}

func nonNilLog(log domain.GateLog) domain.GateLog {
	if log == nil {
		return domain.GateLog{}
	}
	return log
}
