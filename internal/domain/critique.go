package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OptionalNumber is a numeric field from untrusted JSON. Numbers and numeric
// strings are accepted; anything else leaves the field unset.
type OptionalNumber struct {
	value float64
	valid bool
}

// Num builds a set OptionalNumber.
func Num(v float64) OptionalNumber {
	return OptionalNumber{value: v, valid: true}
}

// Get returns the value and whether it was present and well-formed.
func (n OptionalNumber) Get() (float64, bool) { return n.value, n.valid }

// Or returns the value, or fallback when unset.
func (n OptionalNumber) Or(fallback float64) float64 {
	if !n.valid {
		return fallback
	}
	return n.value
}

func (n OptionalNumber) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

func (n *OptionalNumber) UnmarshalJSON(data []byte) error {
	*n = OptionalNumber{}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch typed := raw.(type) {
	case float64:
		if !math.IsNaN(typed) && !math.IsInf(typed, 0) {
			*n = Num(typed)
		}
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(typed), "%")
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			*n = Num(v)
		}
	}
	return nil
}

// OptionalBool is a boolean field from untrusted JSON. "true"/"false"
// strings are accepted; anything else leaves the field unset.
type OptionalBool struct {
	value bool
	valid bool
}

// Bool builds a set OptionalBool.
func Bool(v bool) OptionalBool {
	return OptionalBool{value: v, valid: true}
}

func (b OptionalBool) Get() (bool, bool) { return b.value, b.valid }

// IsTrue reports whether the field is present and true.
func (b OptionalBool) IsTrue() bool { return b.valid && b.value }

// IsFalse reports whether the field is present and false.
func (b OptionalBool) IsFalse() bool { return b.valid && !b.value }

func (b OptionalBool) MarshalJSON() ([]byte, error) {
	if !b.valid {
		return []byte("null"), nil
	}
	return json.Marshal(b.value)
}

func (b *OptionalBool) UnmarshalJSON(data []byte) error {
	*b = OptionalBool{}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch typed := raw.(type) {
	case bool:
		*b = Bool(typed)
	case string:
		if v, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
			*b = Bool(v)
		}
	}
	return nil
}

// RiskFactor is one denial risk named by the critique.
type RiskFactor struct {
	Type        string `json:"type,omitempty"`
	Factor      string `json:"factor,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
}

// Text joins the human-readable parts of the factor.
func (r RiskFactor) Text() string {
	var parts []string
	for _, part := range []string{r.Factor, r.Description} {
		if s := strings.TrimSpace(part); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// UnmarshalJSON accepts either an object or a bare string.
func (r *RiskFactor) UnmarshalJSON(data []byte) error {
	*r = RiskFactor{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		// bare identifiers such as "clinical_mismatch" are a type, not prose
		if s != "" && !strings.ContainsAny(s, " \t\n") {
			r.Type = s
		} else {
			r.Description = s
		}
		return nil
	}
	type plain RiskFactor
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil
		}
	}
	*r = RiskFactor(decoded)
	return nil
}

// ChecklistItem is one line of the critique's compliance checklist.
type ChecklistItem struct {
	Label  string `json:"label"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Passed reports whether the item status is PASS.
func (c ChecklistItem) Passed() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), "PASS")
}

// ConservativeTherapy describes non-surgical treatment the critique found.
type ConservativeTherapy struct {
	Present       OptionalBool   `json:"present"`
	DurationWeeks OptionalNumber `json:"durationWeeks"`
	Strength      string         `json:"strength,omitempty"`
	Details       string         `json:"details,omitempty"`
}

// EvidenceAssessment is the critique's view of the clinical evidence.
type EvidenceAssessment struct {
	ConservativeTherapy *ConservativeTherapy `json:"conservativeTherapy,omitempty"`
	Imaging             string               `json:"imaging,omitempty"`
	FunctionalImpact    string               `json:"functionalImpact,omitempty"`
	Summary             string               `json:"summary,omitempty"`
}

// AppealSummary is the critique's assessment of an appeal letter.
type AppealSummary struct {
	DenialReasonAddressed OptionalBool `json:"denialReasonAddressed"`
	EvidenceStrength      string       `json:"evidenceStrength,omitempty"`
	AppealRecommended     OptionalBool `json:"appealRecommended"`
	DenialCategory        string       `json:"denialCategory,omitempty"`
}

// Critique is the untrusted assessment produced by the text-generation
// collaborator. Every field may be absent, malformed or wrong.
type Critique struct {
	ClinicalScore              OptionalNumber     `json:"clinicalScore"`
	AdminScore                 OptionalNumber     `json:"adminScore"`
	ApprovalLikelihood         OptionalNumber     `json:"approvalLikelihood"`
	OverallStatus              string             `json:"overallStatus,omitempty"`
	ScoreBand                  string             `json:"scoreBand,omitempty"`
	PrimaryRiskFactor          *RiskFactor        `json:"primaryRiskFactor,omitempty"`
	ClinicalEvidenceAssessment EvidenceAssessment `json:"clinicalEvidenceAssessment"`
	Checklist                  []ChecklistItem    `json:"checklist,omitempty"`
	MissingInfo                []string           `json:"missingInfo,omitempty"`
	DenialRiskFactors          []RiskFactor       `json:"denialRiskFactors,omitempty"`
	AppealSummary              *AppealSummary     `json:"appealSummary,omitempty"`
}

// ParseCritique decodes collaborator output. Fields with the wrong JSON type
// are dropped; only input that is not a JSON object is an error.
func ParseCritique(data []byte) (Critique, error) {
	var critique Critique
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Critique{}, fmt.Errorf("critique is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, &critique); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return Critique{}, fmt.Errorf("decode critique: %w", err)
		}
	}
	return critique, nil
}

// NormalizedScore converts an optional score into the 0..100 integer range.
// Missing values count as 0.
func NormalizedScore(n OptionalNumber) int {
	v, ok := n.Get()
	if !ok || math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 100 {
		return 100
	}
	return int(math.Round(v))
}

// AuditData is the gated assessment. ClinicalScore, ApprovalLikelihood,
// OverallStatus and ScoreBand have passed every gate.
type AuditData struct {
	ClinicalScore              int                `json:"clinicalScore"`
	ApprovalLikelihood         int                `json:"approvalLikelihood"`
	AdminScore                 int                `json:"adminScore"`
	OverallStatus              OverallStatus      `json:"overallStatus"`
	ScoreBand                  ScoreBand          `json:"scoreBand"`
	PrimaryRiskFactor          *RiskFactor        `json:"primaryRiskFactor,omitempty"`
	ClinicalEvidenceAssessment EvidenceAssessment `json:"clinicalEvidenceAssessment"`
	Checklist                  []ChecklistItem    `json:"checklist"`
	MissingInfo                []string           `json:"missingInfo"`
	DenialRiskFactors          []RiskFactor       `json:"denialRiskFactors"`
	AppealSummary              *AppealSummary     `json:"appealSummary,omitempty"`
}

// GateLog lists the gates that fired, in firing order.
type GateLog []string
