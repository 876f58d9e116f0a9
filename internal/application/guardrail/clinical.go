package guardrail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/doeshing/preauth-guard/internal/domain"
)

// Gate names double as log markers.
const (
	GateMismatch = "MISMATCH"
	GateDental   = "DENTAL"
	GateOrtho    = "ORTHO"
)

const (
	clinicalMismatchType = "clinical_mismatch"

	dentalScoreCap = 50
	orthoScoreCap  = 35

	minConservativeTherapyWeeks = 6

	// ToothNumberMissingInfo is appended when a dental critique has no passing tooth-number check.
	ToothNumberMissingInfo = "Specific tooth number (1-32) is required for dental procedures"
)

type specialtyFamily int

const (
	familyOther specialtyFamily = iota
	familyDental
	familyOrtho
)

// familyOf maps a free-text specialty onto at most one gate family.
func familyOf(specialty string) specialtyFamily {
	s := strings.ToLower(strings.TrimSpace(specialty))
	switch {
	case s == "":
		return familyOther
	case dentalSpecialtyRe.MatchString(s):
		return familyDental
	case orthoSpecialtyRe.MatchString(s):
		return familyOrtho
	default:
		return familyOther
	}
}

type clinicalInput struct {
	critique domain.Critique
	family   specialtyFamily
}

func clinicalGates() []Gate[clinicalInput] {
	return []Gate[clinicalInput]{
		{
			Name: GateMismatch,
			When: func(in clinicalInput, _ State) (string, bool) {
				return detectMismatch(in.critique)
			},
			Effect: Effect{
				MaxScore: maxScore(0),
				Status:   domain.StatusBlocked,
				Band:     domain.BandLikelyDenial,
			},
		},
		{
			Name: GateDental,
			When: func(in clinicalInput, _ State) (string, bool) {
				if in.family != familyDental {
					return "", false
				}
				if hasPassingToothNumber(in.critique.Checklist) {
					return "", false
				}
				return "no passing tooth number check in dental critique", true
			},
			Effect: Effect{
				MaxScore:    maxScore(dentalScoreCap),
				Status:      domain.StatusBlocked,
				Band:        domain.BandHighRisk,
				MissingInfo: []string{ToothNumberMissingInfo},
			},
		},
		{
			Name: GateOrtho,
			When: func(in clinicalInput, _ State) (string, bool) {
				if in.family != familyOrtho {
					return "", false
				}
				return weakConservativeTherapy(in.critique.ClinicalEvidenceAssessment.ConservativeTherapy)
			},
			Effect: Effect{
				MaxScore: maxScore(orthoScoreCap),
				Status:   domain.StatusBlocked,
				Band:     domain.BandLikelyDenial,
			},
		},
	}
}

var (
	mismatchTermRe = regexp.MustCompile(`(?i)\b(?:mis-?match(?:ed|es|ing)?|discrepanc(?:y|ies)|inconsisten(?:t|cy|cies)|wrong\s+(?:side|site|limb|tooth))\b`)
	siteTermRe     = regexp.MustCompile(`(?i)\b(?:lateral(?:ity)?|left|right|bilateral|side|site|body|anatomic(?:al)?|location|limb|extremity|knee|hip|shoulder|spine|joint|tooth|teeth)\b`)
	// A negation only counts when it modifies the mismatch term directly:
	// "no laterality mismatch", "discrepancy was not found".
	negatedMismatchRe = regexp.MustCompile(`(?i)` +
		`\b(?:no|not|without|never|zero|free\s+of|ruled\s+out|absence\s+of)\s+` +
		`(?:(?:any|a|an|the|such|apparent|obvious|evident|significant|documented|clear|clinical|laterality|lateral|side|site|body|anatomic(?:al)?|left|right)[\s-]+){0,3}` +
		`(?:mis-?match|discrepanc|inconsisten|wrong\s+(?:side|site|limb|tooth))\w*` +
		`|(?:mis-?match|discrepanc|inconsisten)\w*\s+(?:(?:was|were|is|are|has\s+been|have\s+been)\s+)?` +
		`(?:not\s+(?:found|present|identified|detected|noted|seen)|ruled\s+out|absent)\b`)
	clauseSplitRe = regexp.MustCompile(`[.;\n]+`)

	// Word prefixes, so "independent" and "accident" stay out of the dental family.
	dentalSpecialtyRe = regexp.MustCompile(`\bdent\w*`)
	orthoSpecialtyRe  = regexp.MustCompile(`\b(?:ortho|pain)\w*`)
)

// detectMismatch reports whether the critique asserts a body-site or laterality
// mismatch, either through the primary risk factor type or in the prose of any
// denial risk factor. Negated phrasings do not count.
func detectMismatch(c domain.Critique) (string, bool) {
	if c.PrimaryRiskFactor != nil && strings.EqualFold(strings.TrimSpace(c.PrimaryRiskFactor.Type), clinicalMismatchType) {
		return "primary risk factor is clinical_mismatch", true
	}
	for _, factor := range c.DenialRiskFactors {
		if strings.EqualFold(strings.TrimSpace(factor.Type), clinicalMismatchType) {
			return "denial risk factor typed clinical_mismatch", true
		}
		for _, clause := range clauseSplitRe.Split(factor.Text(), -1) {
			if assertsMismatch(clause) {
				return fmt.Sprintf("denial risk factor asserts mismatch: %q", strings.TrimSpace(clause)), true
			}
		}
	}
	return "", false
}

func assertsMismatch(clause string) bool {
	if !mismatchTermRe.MatchString(clause) || !siteTermRe.MatchString(clause) {
		return false
	}
	return mismatchTermRe.MatchString(negatedMismatchRe.ReplaceAllString(clause, " "))
}

func hasPassingToothNumber(checklist []domain.ChecklistItem) bool {
	for _, item := range checklist {
		if strings.Contains(strings.ToLower(item.Label), "tooth number") && item.Passed() {
			return true
		}
	}
	return false
}

// weakConservativeTherapy fires when therapy is reported present but is either
// shorter than six weeks (unquantified counts as zero) or not rated strong.
func weakConservativeTherapy(therapy *domain.ConservativeTherapy) (string, bool) {
	if therapy == nil || !therapy.Present.IsTrue() {
		return "", false
	}
	weeks := therapy.DurationWeeks.Or(0)
	strength := strings.ToLower(strings.TrimSpace(therapy.Strength))
	if weeks < minConservativeTherapyWeeks || strength != "strong" {
		return fmt.Sprintf("conservative therapy %g weeks, strength %q is below the %d-week strong threshold",
			weeks, strength, minConservativeTherapyWeeks), true
	}
	return "", false
}
