// Package verify checks extracted clinical facts against codified payer
// policy rules.
package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/doeshing/preauth-guard/internal/domain"
)

const (
	EvidenceNotMentioned = "Not mentioned in note"
	EvidenceRuleError    = "Error verifying rule"
)

// numberRe accepts thousands separators ("1,200") as part of one number.
var numberRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// Evaluate applies one rule to the fact extracted for its category. It never
// panics: a failure inside the rule yields met=false with EvidenceRuleError.
func Evaluate(rule domain.PolicyRule, fact domain.Fact) (result domain.RuleResult) {
	result = domain.RuleResult{RuleID: rule.ID, Category: rule.Category}

	defer func() {
		if r := recover(); r != nil {
			result.Met = false
			result.Evidence = EvidenceRuleError
		}
		if !result.Met {
			result.FailureMessage = rule.FailureMessage
		}
	}()

	met, evidence, err := evaluate(rule, fact)
	if err != nil {
		result.Evidence = EvidenceRuleError
		return result
	}
	result.Met = met
	result.Evidence = evidence
	return result
}

func evaluate(rule domain.PolicyRule, fact domain.Fact) (bool, string, error) {
	if !rule.Operator.Valid() {
		return false, "", fmt.Errorf("rule %s: invalid operator", rule.ID)
	}

	if !fact.Found {
		return rule.Operator == domain.OperatorNotExists, EvidenceNotMentioned, nil
	}

	switch rule.Operator {
	case domain.OperatorNotExists:
		return false, "Found in note: " + quoteOrValue(fact), nil
	case domain.OperatorExists:
		return true, quoteOrValue(fact), nil
	case domain.OperatorGreaterThan, domain.OperatorLessThan:
		return compareNumeric(rule, fact)
	case domain.OperatorMatchOne, domain.OperatorMatchAll, domain.OperatorContains:
		return matchText(rule, fact)
	default:
		return false, "", fmt.Errorf("rule %s: unhandled operator %s", rule.ID, rule.Operator)
	}
}

func compareNumeric(rule domain.PolicyRule, fact domain.Fact) (bool, string, error) {
	threshold, ok := rule.Value.Number()
	if !ok {
		return false, "", fmt.Errorf("rule %s: non-numeric threshold %q", rule.ID, rule.Value)
	}

	value, ok := factNumber(fact.Value)
	if !ok {
		return false, fmt.Sprintf("Could not read a single number from %q", fact.Value.String()), nil
	}

	var met bool
	var symbol string
	if rule.Operator == domain.OperatorGreaterThan {
		met, symbol = value > threshold, ">"
	} else {
		met, symbol = value < threshold, "<"
	}
	evidence := fmt.Sprintf("%s (%s %s %s)", quoteOrValue(fact), formatNumber(value), symbol, formatNumber(threshold))
	return met, evidence, nil
}

// factNumber reads the numeric portion of a fact. Text holding several
// different numbers ("between 4 and 6 weeks") is ambiguous and does not parse.
func factNumber(v domain.FactValue) (float64, bool) {
	if n, ok := v.Raw(); ok {
		return n, true
	}
	matches := numberRe.FindAllString(v.String(), -1)
	if len(matches) == 0 {
		return 0, false
	}
	first, err := strconv.ParseFloat(strings.ReplaceAll(matches[0], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	for _, m := range matches[1:] {
		n, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil || n != first {
			return 0, false
		}
	}
	return first, true
}

func matchText(rule domain.PolicyRule, fact domain.Fact) (bool, string, error) {
	var needles []string
	for _, needle := range rule.Value.Strings() {
		if trimmed := strings.TrimSpace(needle); trimmed != "" {
			needles = append(needles, strings.ToLower(trimmed))
		}
	}
	if len(needles) == 0 {
		return false, "", fmt.Errorf("rule %s: empty match value", rule.ID)
	}

	haystack := strings.ToLower(fact.Value.String())
	if strings.TrimSpace(haystack) == "" {
		haystack = strings.ToLower(fact.Quote)
	}

	var met bool
	switch rule.Operator {
	case domain.OperatorMatchAll:
		met = true
		for _, needle := range needles {
			if !strings.Contains(haystack, needle) {
				met = false
				break
			}
		}
	default:
		for _, needle := range needles {
			if strings.Contains(haystack, needle) {
				met = true
				break
			}
		}
	}
	return met, quoteOrValue(fact), nil
}

func quoteOrValue(fact domain.Fact) string {
	if q := strings.TrimSpace(fact.Quote); q != "" {
		return strconv.Quote(q)
	}
	return strconv.Quote(fact.Value.String())
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
