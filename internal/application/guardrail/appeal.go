package guardrail

import (
	"fmt"
	"strings"

	"github.com/doeshing/preauth-guard/internal/domain"
)

const (
	GateAppealUnaddressed = "APPEAL_UNADDRESSED"
	GateAppealWeakMedNec  = "APPEAL_WEAK_MEDNEC"
	GateAppealIrrelevant  = "APPEAL_IRRELEVANT"
	GateAppealFutile      = "APPEAL_FUTILE"
	GateAppealFloor       = "APPEAL_FLOOR"
)

const (
	unaddressedScoreCap = 25
	weakMedNecScoreCap  = 40
	irrelevantScoreCap  = 30

	// AppealRecommendationFloor is the score below which an appeal is never recommended.
	AppealRecommendationFloor = 30
)

type appealInput struct {
	summary      domain.AppealSummary
	denialReason string
}

func appealGates() []Gate[appealInput] {
	return []Gate[appealInput]{
		{
			Name: GateAppealUnaddressed,
			When: func(in appealInput, _ State) (string, bool) {
				if in.summary.DenialReasonAddressed.IsTrue() {
					return "", false
				}
				return "appeal does not address the denial reason", true
			},
			Effect: Effect{MaxScore: maxScore(unaddressedScoreCap), Band: domain.BandLikelyDenial},
		},
		{
			Name: GateAppealWeakMedNec,
			When: func(in appealInput, _ State) (string, bool) {
				if evidenceStrength(in.summary) != "weak" || !isMedicalNecessity(in) {
					return "", false
				}
				return "weak evidence for a medical-necessity denial", true
			},
			Effect: Effect{MaxScore: maxScore(weakMedNecScoreCap), Band: domain.BandHighRisk},
		},
		{
			Name: GateAppealIrrelevant,
			When: func(in appealInput, _ State) (string, bool) {
				switch strength := evidenceStrength(in.summary); strength {
				case "irrelevant", "none", "not_relevant":
					return fmt.Sprintf("evidence strength %q does not support the appeal", strength), true
				}
				return "", false
			},
			Effect: Effect{MaxScore: maxScore(irrelevantScoreCap), Band: domain.BandLikelyDenial},
		},
		{
			Name: GateAppealFutile,
			When: func(in appealInput, _ State) (string, bool) {
				if !in.summary.AppealRecommended.IsFalse() {
					return "", false
				}
				return "critique does not recommend appealing", true
			},
			Effect: Effect{
				MaxScore: maxScore(0),
				Status:   domain.StatusBlocked,
				Band:     domain.BandLikelyDenial,
				Terminal: true,
			},
		},
	}
}

func evidenceStrength(summary domain.AppealSummary) string {
	return strings.ToLower(strings.TrimSpace(summary.EvidenceStrength))
}

func isMedicalNecessity(in appealInput) bool {
	for _, text := range []string{in.summary.DenialCategory, in.denialReason} {
		normalized := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(text))
		if strings.Contains(normalized, "medical necessity") || strings.Contains(normalized, "medically necessary") {
			return true
		}
	}
	return false
}
