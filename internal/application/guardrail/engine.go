package guardrail

import (
	"fmt"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// Engine holds the clinical and appeal gate pipelines. It is safe for
// concurrent use; each call works only on its own input.
type Engine struct {
	clinical Pipeline[clinicalInput]
	appeal   Pipeline[appealInput]
}

// NewEngine builds an engine. recorder may be nil.
func NewEngine(recorder ports.GateRecorder) *Engine {
	return &Engine{
		clinical: NewPipeline("clinical", recorder, clinicalGates()...),
		appeal:   NewPipeline("appeal", recorder, appealGates()...),
	}
}

var defaultEngine = NewEngine(nil)

// ApplyGuardrails gates a pre-authorization critique with the default engine.
func ApplyGuardrails(critique domain.Critique, specialty string) (domain.AuditData, domain.GateLog) {
	return defaultEngine.ApplyGuardrails(critique, specialty)
}

// ApplyAppealGuardrails gates an appeal critique with the default engine.
func ApplyAppealGuardrails(critique domain.Critique, denialReason string) (domain.AuditData, domain.GateLog) {
	return defaultEngine.ApplyAppealGuardrails(critique, denialReason)
}

// ApplyGuardrails runs the mismatch kill-switch and the specialty gate for
// specialty. Missing critique fields are treated as zero or empty.
func (e *Engine) ApplyGuardrails(critique domain.Critique, specialty string) (domain.AuditData, domain.GateLog) {
	initial := initialState(critique)
	final, log := e.clinical.Run(clinicalInput{critique: critique, family: familyOf(specialty)}, initial)
	return buildAudit(critique, final), log
}

// ApplyAppealGuardrails runs the appeal caps, then forces appealRecommended to
// false for any score below AppealRecommendationFloor.
func (e *Engine) ApplyAppealGuardrails(critique domain.Critique, denialReason string) (domain.AuditData, domain.GateLog) {
	var summary domain.AppealSummary
	if critique.AppealSummary != nil {
		summary = *critique.AppealSummary
	}

	final, log := e.appeal.Run(appealInput{summary: summary, denialReason: denialReason}, initialState(critique))

	if final.Score < AppealRecommendationFloor && !summary.AppealRecommended.IsFalse() {
		summary.AppealRecommended = domain.Bool(false)
		log = append(log, fmt.Sprintf("[%s] score %d below %d: appeal not recommended",
			GateAppealFloor, final.Score, AppealRecommendationFloor))
	}

	audit := buildAudit(critique, final)
	audit.AppealSummary = &summary
	return audit, log
}

// initialState normalizes the untrusted critique into gate state. Unknown
// statuses become needs_review, and the band is never looser than the one
// derived from the score.
func initialState(c domain.Critique) State {
	score := domain.NormalizedScore(c.ClinicalScore)
	band := bandForScore(score)
	if upstream, ok := domain.NormalizeBand(c.ScoreBand); ok {
		band = domain.StricterBand(band, upstream)
	}
	return State{
		Score:       score,
		Status:      domain.NormalizeStatus(c.OverallStatus),
		Band:        band,
		MissingInfo: c.MissingInfo,
	}
}

func bandForScore(score int) domain.ScoreBand {
	switch {
	case score >= 80:
		return domain.BandStrong
	case score >= 60:
		return domain.BandModerate
	case score >= 40:
		return domain.BandHighRisk
	default:
		return domain.BandLikelyDenial
	}
}

func buildAudit(c domain.Critique, s State) domain.AuditData {
	missing := s.MissingInfo
	if missing == nil {
		missing = []string{}
	}
	checklist := append([]domain.ChecklistItem{}, c.Checklist...)
	factors := append([]domain.RiskFactor{}, c.DenialRiskFactors...)

	var appeal *domain.AppealSummary
	if c.AppealSummary != nil {
		copied := *c.AppealSummary
		appeal = &copied
	}

	return domain.AuditData{
		ClinicalScore:              s.Score,
		ApprovalLikelihood:         s.Score,
		AdminScore:                 domain.NormalizedScore(c.AdminScore),
		OverallStatus:              s.Status,
		ScoreBand:                  s.Band,
		PrimaryRiskFactor:          c.PrimaryRiskFactor,
		ClinicalEvidenceAssessment: c.ClinicalEvidenceAssessment,
		Checklist:                  checklist,
		MissingInfo:                missing,
		DenialRiskFactors:          factors,
		AppealSummary:              appeal,
	}
}
