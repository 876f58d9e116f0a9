package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/doeshing/preauth-guard/internal/application/guardrail"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/pkg/logger"
	"github.com/doeshing/preauth-guard/internal/ports"
)

type nameRedactor struct{}

func (nameRedactor) Redact(text, name string) string {
	if name == "" {
		return text
	}
	return strings.ReplaceAll(text, name, domain.PlaceholderPatientName)
}

type stubCritic struct {
	critique domain.Critique
	err      error
	got      ports.CritiqueRequest
	deadline bool
}

func (s *stubCritic) Critique(ctx context.Context, req ports.CritiqueRequest) (domain.Critique, error) {
	s.got = req
	_, s.deadline = ctx.Deadline()
	return s.critique, s.err
}

type stubVerifier struct {
	note   string
	result domain.VerificationResult
	err    error
}

func (s *stubVerifier) Verify(_ context.Context, code, note string) (domain.VerificationResult, error) {
	s.note = note
	s.result.Code = code
	return s.result, s.err
}

func newService(critic *stubCritic) *Service {
	return &Service{
		Redactor: nameRedactor{},
		Critic:   critic,
		Engine:   guardrail.NewEngine(nil),
		Logger:   logger.Nop(),
		Timeout:  time.Second,
	}
}

func TestRunRedactsBeforeCritique(t *testing.T) {
	critic := &stubCritic{critique: domain.Critique{ClinicalScore: domain.Num(90), OverallStatus: "ready"}}
	svc := newService(critic)

	resp, err := svc.Run(context.Background(), domain.ReviewRequest{
		DraftLetter: "Jane Roe requires an MRI.",
		PatientName: "Jane Roe",
		Specialty:   "radiology",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if strings.Contains(critic.got.DraftLetter, "Jane Roe") {
		t.Fatalf("draft sent unredacted: %q", critic.got.DraftLetter)
	}
	if !critic.deadline {
		t.Fatal("critique call should carry a deadline")
	}
	if resp.RunID == "" || resp.Mode != domain.ReviewPreauth {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Audit.ClinicalScore != 90 || resp.Audit.ApprovalLikelihood != 90 {
		t.Fatalf("audit = %+v", resp.Audit)
	}
	if resp.GateLog == nil || resp.Verification != nil {
		t.Fatalf("gateLog = %v verification = %v", resp.GateLog, resp.Verification)
	}
}

func TestRunAppliesClinicalGates(t *testing.T) {
	critic := &stubCritic{critique: domain.Critique{
		ClinicalScore:     domain.Num(95),
		OverallStatus:     "ready",
		PrimaryRiskFactor: &domain.RiskFactor{Type: "clinical_mismatch"},
	}}
	resp, err := newService(critic).Run(context.Background(), domain.ReviewRequest{DraftLetter: "left knee", Specialty: "ortho"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if resp.Audit.ClinicalScore != 0 || resp.Audit.OverallStatus != domain.StatusBlocked {
		t.Fatalf("audit = %+v", resp.Audit)
	}
	if len(resp.GateLog) == 0 || !strings.Contains(resp.GateLog[0], guardrail.GateMismatch) {
		t.Fatalf("gateLog = %v", resp.GateLog)
	}
}

func TestRunAppealMode(t *testing.T) {
	critic := &stubCritic{critique: domain.Critique{
		ClinicalScore: domain.Num(70),
		AppealSummary: &domain.AppealSummary{EvidenceStrength: "strong"},
	}}
	resp, err := newService(critic).Run(context.Background(), domain.ReviewRequest{
		DraftLetter:  "appeal",
		Mode:         "APPEAL",
		DenialReason: "Jane Roe lacks medical necessity",
		PatientName:  "Jane Roe",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if critic.got.Mode != domain.ReviewAppeal || strings.Contains(critic.got.DenialReason, "Jane Roe") {
		t.Fatalf("critique request = %+v", critic.got)
	}
	// denialReasonAddressed is missing, so the unaddressed cap applies
	if resp.Audit.ClinicalScore != 25 {
		t.Fatalf("score = %d", resp.Audit.ClinicalScore)
	}
	if resp.Audit.AppealSummary == nil || !resp.Audit.AppealSummary.AppealRecommended.IsFalse() {
		t.Fatalf("appealSummary = %+v", resp.Audit.AppealSummary)
	}
}

func TestRunVerifiesRedactedNote(t *testing.T) {
	verifier := &stubVerifier{result: domain.VerificationResult{Status: domain.VerificationApproved}}
	svc := newService(&stubCritic{})
	svc.Verifier = verifier

	resp, err := svc.Run(context.Background(), domain.ReviewRequest{
		NoteText:      "Jane Roe has a neck mass.",
		DraftLetter:   "letter",
		PatientName:   "Jane Roe",
		ProcedureCode: "76872",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if strings.Contains(verifier.note, "Jane Roe") {
		t.Fatalf("verifier saw unredacted note: %q", verifier.note)
	}
	if resp.Verification == nil || resp.Verification.Code != "76872" {
		t.Fatalf("verification = %+v", resp.Verification)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		svc     func() *Service
		req     domain.ReviewRequest
		wantErr error
	}{
		{
			name:    "empty draft",
			svc:     func() *Service { return newService(&stubCritic{}) },
			req:     domain.ReviewRequest{},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "bad mode",
			svc:     func() *Service { return newService(&stubCritic{}) },
			req:     domain.ReviewRequest{DraftLetter: "x", Mode: "denial"},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "model override without resolver",
			svc:     func() *Service { return newService(&stubCritic{}) },
			req:     domain.ReviewRequest{DraftLetter: "x", ModelOverride: "gpt-4o"},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "critique timeout",
			svc:     func() *Service { return newService(&stubCritic{err: context.DeadlineExceeded}) },
			req:     domain.ReviewRequest{DraftLetter: "x"},
			wantErr: domain.ErrCollaboratorTimeout,
		},
		{
			name:    "critique unavailable",
			svc:     func() *Service { return newService(&stubCritic{err: errors.New("refused")}) },
			req:     domain.ReviewRequest{DraftLetter: "x"},
			wantErr: domain.ErrCollaboratorUnavailable,
		},
		{
			name: "verification failure",
			svc: func() *Service {
				svc := newService(&stubCritic{})
				svc.Verifier = &stubVerifier{err: domain.NewCollaboratorError("policy_store", "active_policy", domain.ErrPolicyStore)}
				return svc
			},
			req:     domain.ReviewRequest{DraftLetter: "x", ProcedureCode: "76872"},
			wantErr: domain.ErrPolicyStore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc().Run(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunModelOverride(t *testing.T) {
	override := &stubCritic{critique: domain.Critique{ClinicalScore: domain.Num(10)}}
	svc := newService(&stubCritic{})
	svc.Critics = func(model string) (ports.CritiqueGenerator, error) {
		if model != "gpt-4o" {
			return nil, errors.New("unknown model")
		}
		return override, nil
	}
	resp, err := svc.Run(context.Background(), domain.ReviewRequest{DraftLetter: "x", ModelOverride: "gpt-4o"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if resp.Audit.ClinicalScore != 10 || override.got.DraftLetter != "x" {
		t.Fatalf("override critic not used: %+v", resp.Audit)
	}
}
