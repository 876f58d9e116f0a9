package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/metrics"
	"github.com/doeshing/preauth-guard/internal/infrastructure/security"
)

type stubVerifier struct {
	note string
	err  error
}

func (s *stubVerifier) Verify(_ context.Context, code, note string) (domain.VerificationResult, error) {
	s.note = note
	if s.err != nil {
		return domain.VerificationResult{}, s.err
	}
	return domain.VerificationResult{Code: code, Status: domain.VerificationApproved, Results: []domain.RuleResult{}, MissingInfo: []string{}}, nil
}

func (s *stubVerifier) VerifyAll(ctx context.Context, codes []string, note string) ([]domain.VerificationResult, error) {
	out := make([]domain.VerificationResult, 0, len(codes))
	for _, code := range codes {
		r, err := s.Verify(ctx, code, note)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type stubReviewer struct {
	err error
}

func (s stubReviewer) Run(_ context.Context, req domain.ReviewRequest) (domain.ReviewResponse, error) {
	if s.err != nil {
		return domain.ReviewResponse{}, s.err
	}
	return domain.ReviewResponse{RunID: "run-1", Mode: domain.ReviewPreauth, GateLog: domain.GateLog{}}, nil
}

func newTestRouter(verifier *stubVerifier, reviewer Reviewer) (http.Handler, *metrics.Metrics) {
	m := metrics.New()
	h := New(Deps{
		Redactor: security.Default(),
		Verifier: verifier,
		Reviewer: reviewer,
		Metrics:  m,
	})
	return h.Router(), m
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRedactEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})
	rec := post(t, router, "/v1/redact", `{"text":"Jane Roe, SSN 123-45-6789","patientName":"Jane Roe"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body redactResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, domain.PlaceholderPatientName+", SSN "+domain.PlaceholderSSN, body.Text)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestVerifyEndpointRedactsNote(t *testing.T) {
	verifier := &stubVerifier{}
	router, _ := newTestRouter(verifier, stubReviewer{})

	rec := post(t, router, "/v1/verify", `{"code":"76872","noteText":"jane@example.com has a mass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, verifier.note, "jane@example.com")

	var result domain.VerificationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "76872", result.Code)
	assert.Equal(t, domain.VerificationApproved, result.Status)
}

func TestVerifyEndpointMultipleCodes(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})
	rec := post(t, router, "/v1/verify", `{"codes":["76872","72148"],"noteText":"note"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body verifyAllResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "72148", body.Results[1].Code)
}

func TestClinicalGuardrailEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})
	rec := post(t, router, "/v1/guardrails/clinical", `{
		"specialty": "orthopedics",
		"critique": {
			"clinicalScore": 80,
			"overallStatus": "ready",
			"clinicalEvidenceAssessment": {"conservativeTherapy": {"present": true, "durationWeeks": 4, "strength": "moderate"}}
		}
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body guardrailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 35, body.Audit.ClinicalScore)
	assert.Equal(t, domain.StatusBlocked, body.Audit.OverallStatus)
	require.NotEmpty(t, body.GateLog)
	assert.Contains(t, body.GateLog[0], "[ORTHO]")
}

func TestAppealGuardrailEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})
	rec := post(t, router, "/v1/guardrails/appeal", `{
		"denialReason": "lack of medical necessity",
		"critique": {"clinicalScore": 90, "appealSummary": {"denialReasonAddressed": true, "appealRecommended": false}}
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body guardrailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Audit.ClinicalScore)
}

func TestGuardrailEndpointToleratesMalformedFields(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})
	rec := post(t, router, "/v1/guardrails/clinical", `{"specialty":"dentistry","critique":{"clinicalScore":"high","checklist":"none"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body guardrailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Audit.ClinicalScore)
	assert.NotEqual(t, domain.StatusReady, body.Audit.OverallStatus)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		verifyErr  error
		reviewErr  error
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "malformed json", path: "/v1/redact", body: `{"text":`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "unknown field", path: "/v1/redact", body: `{"txt":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "critique not object", path: "/v1/guardrails/clinical", body: `{"critique":[1]}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{
			name:       "collaborator timeout",
			verifyErr:  domain.NewCollaboratorError("fact_extractor", "extract_facts", context.DeadlineExceeded),
			path:       "/v1/verify",
			body:       `{"code":"76872","noteText":"n"}`,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "collaborator_timeout",
		},
		{
			name:       "collaborator malformed",
			reviewErr:  domain.NewCollaboratorError("critique_generator", "critique", domain.ErrCollaboratorMalformed),
			path:       "/v1/review",
			body:       `{"draftLetter":"x"}`,
			wantStatus: http.StatusBadGateway,
			wantCode:   "collaborator_error",
		},
		{
			name:       "invalid review",
			reviewErr:  domain.ErrInvalidRequest,
			path:       "/v1/review",
			body:       `{"draftLetter":""}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(&stubVerifier{err: tt.verifyErr}, stubReviewer{err: tt.reviewErr})
			rec := post(t, router, tt.path, tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, rec.Header().Get(HeaderRequestID), body.RequestID)
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-12345678")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-12345678", rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id\nwith newline", rec.Header().Get(HeaderRequestID))
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubVerifier{}, stubReviewer{})
	_ = post(t, router, "/v1/redact", `{"text":"x"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pguard_http_requests_total{code="200",route="/v1/redact"}`)
}

func TestErrorDescriptionIsRedacted(t *testing.T) {
	h := New(Deps{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/redact", bytes.NewReader(nil))
	h.writeError(rec, req, domain.NewCollaboratorError("fact_extractor", "extract_facts",
		&testError{msg: "upstream echoed 123-45-6789"}))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "123-45-6789")
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
