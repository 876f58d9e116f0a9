package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// FactValue holds either a number or free text extracted from a note.
type FactValue struct {
	text     string
	number   float64
	isNumber bool
}

// NumberFact builds a numeric FactValue.
func NumberFact(n float64) FactValue {
	return FactValue{number: n, isNumber: true}
}

// TextFact builds a textual FactValue.
func TextFact(s string) FactValue {
	return FactValue{text: s}
}

// IsNumber reports whether the collaborator returned a JSON number.
func (v FactValue) IsNumber() bool { return v.isNumber }

// Raw returns the numeric value when the fact was numeric.
func (v FactValue) Raw() (float64, bool) { return v.number, v.isNumber }

func (v FactValue) String() string {
	if v.isNumber {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

func (v FactValue) MarshalJSON() ([]byte, error) {
	if v.isNumber {
		return json.Marshal(v.number)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts numbers, strings and booleans. Anything else is kept
// as its JSON text so it can still be quoted as evidence.
func (v *FactValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case nil:
		*v = FactValue{}
	case float64:
		*v = NumberFact(typed)
	case string:
		*v = TextFact(typed)
	case bool:
		*v = TextFact(strconv.FormatBool(typed))
	default:
		*v = TextFact(string(data))
	}
	return nil
}

// Fact is the structured value extracted for one requested category.
// When Found is false, Value and Quote carry no meaning.
type Fact struct {
	Category string    `json:"category"`
	Found    bool      `json:"found"`
	Value    FactValue `json:"value"`
	Quote    string    `json:"quote"`
}

// RuleResult is the outcome of evaluating one PolicyRule.
type RuleResult struct {
	RuleID         string `json:"ruleId"`
	Category       string `json:"category"`
	Met            bool   `json:"met"`
	Evidence       string `json:"evidence"`
	FailureMessage string `json:"failureMessage,omitempty"`
}

// VerificationStatus is the aggregate decision for a procedure code.
type VerificationStatus string

const (
	VerificationApproved    VerificationStatus = "APPROVED"
	VerificationDenied      VerificationStatus = "DENIED"
	VerificationMissingInfo VerificationStatus = "MISSING_INFO"
)

// VerificationResult aggregates every RuleResult for one code.
type VerificationResult struct {
	Code        string             `json:"code"`
	Status      VerificationStatus `json:"status"`
	Results     []RuleResult       `json:"results"`
	MissingInfo []string           `json:"missingInfo"`
}

// FailedRules returns the results that were not met.
func (r VerificationResult) FailedRules() []RuleResult {
	var failed []RuleResult
	for _, result := range r.Results {
		if !result.Met {
			failed = append(failed, result)
		}
	}
	return failed
}

// VerificationCacheKey derives the cache key for a verification of note under code.
// The note itself never appears in the key.
func VerificationCacheKey(code, note string) string {
	noteHash := sha256.Sum256([]byte(note))
	sum := sha256.Sum256([]byte(strings.TrimSpace(code) + "\x00" + hex.EncodeToString(noteHash[:])))
	return hex.EncodeToString(sum[:])
}
