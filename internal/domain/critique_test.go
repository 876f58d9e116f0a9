package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/doeshing/preauth-guard/internal/domain"
)

func TestParseCritiqueToleratesBadFields(t *testing.T) {
	raw := `{
		"clinicalScore": "72%",
		"approvalLikelihood": "high",
		"overallStatus": 3,
		"primaryRiskFactor": "clinical_mismatch",
		"checklist": [{"label": "Tooth #14", "status": "pass"}],
		"appealSummary": {"denialReasonAddressed": "false", "appealRecommended": null}
	}`
	critique, err := domain.ParseCritique([]byte(raw))
	if err != nil {
		t.Fatalf("ParseCritique() unexpected error: %v", err)
	}

	if v, ok := critique.ClinicalScore.Get(); !ok || v != 72 {
		t.Errorf("clinicalScore = %v (%v), want 72", v, ok)
	}
	if _, ok := critique.ApprovalLikelihood.Get(); ok {
		t.Error("approvalLikelihood should be unset for non-numeric text")
	}
	if critique.OverallStatus != "" {
		t.Errorf("overallStatus = %q, want empty", critique.OverallStatus)
	}
	if critique.PrimaryRiskFactor == nil || critique.PrimaryRiskFactor.Type != "clinical_mismatch" {
		t.Errorf("primaryRiskFactor = %+v, want type clinical_mismatch", critique.PrimaryRiskFactor)
	}
	if len(critique.Checklist) != 1 || !critique.Checklist[0].Passed() {
		t.Errorf("checklist = %+v", critique.Checklist)
	}
	if !critique.AppealSummary.DenialReasonAddressed.IsFalse() {
		t.Error("denialReasonAddressed should be an explicit false")
	}
	if _, ok := critique.AppealSummary.AppealRecommended.Get(); ok {
		t.Error("appealRecommended null should be unset")
	}
}

func TestParseCritiqueRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"", "  ", "[1,2]", "not json", `"text"`} {
		if _, err := domain.ParseCritique([]byte(raw)); err == nil {
			t.Errorf("ParseCritique(%q) expected error", raw)
		}
	}
}

func TestNormalizedScore(t *testing.T) {
	tests := []struct {
		name string
		in   domain.OptionalNumber
		want int
	}{
		{name: "unset", in: domain.OptionalNumber{}, want: 0},
		{name: "negative", in: domain.Num(-5), want: 0},
		{name: "rounds", in: domain.Num(79.6), want: 80},
		{name: "clamps", in: domain.Num(140), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.NormalizedScore(tt.in); got != tt.want {
				t.Errorf("NormalizedScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStricter(t *testing.T) {
	if got := domain.StricterStatus(domain.StatusReady, domain.StatusBlocked); got != domain.StatusBlocked {
		t.Errorf("StricterStatus = %v, want blocked", got)
	}
	if got := domain.StricterStatus(domain.StatusNeedsReview, "bogus"); got != domain.StatusNeedsReview {
		t.Errorf("StricterStatus with unknown = %v, want needs_review", got)
	}
	if got := domain.StricterBand(domain.BandModerate, domain.BandStrong); got != domain.BandModerate {
		t.Errorf("StricterBand = %v, want moderate", got)
	}
}

func TestNewCollaboratorError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: domain.ErrCollaboratorTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: domain.ErrCollaboratorTimeout},
		{name: "malformed kept", err: fmt.Errorf("%w: no json", domain.ErrCollaboratorMalformed), want: domain.ErrCollaboratorMalformed},
		{name: "other", err: errors.New("connection refused"), want: domain.ErrCollaboratorUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.NewCollaboratorError("critique_generator", "critique", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("NewCollaboratorError() = %v, want %v", got, tt.want)
			}
			var collabErr *domain.CollaboratorError
			if !errors.As(got, &collabErr) || collabErr.Collaborator != "critique_generator" {
				t.Errorf("errors.As failed for %v", got)
			}
		})
	}

	inner := domain.NewCollaboratorError("fact_extractor", "extract_facts", errors.New("boom"))
	if outer := domain.NewCollaboratorError("review", "run", inner); outer != inner {
		t.Error("existing CollaboratorError should be returned unchanged")
	}
}
