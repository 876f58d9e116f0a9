// Package security implements the PHI redaction boundary.
//
// Redaction runs on every piece of text before it is sent to a collaborator,
// logged, or returned from the HTTP API. Rules run in a fixed order and never
// touch text that is already a placeholder token, which keeps Redact idempotent.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/pkg/filesystem"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// Redactor implements ports.Redactor.
type Redactor struct {
	rules []compiledRule
}

type compiledRule struct {
	name        string
	re          *regexp.Regexp
	replacement string
	// keep, when set, vetoes a match (used by the long-ID rule to spare pure words)
	keep func(match string) bool
}

// PatternRule is an extra redaction rule read from the rules file.
type PatternRule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// RulesFile is the YAML schema root.
type RulesFile struct {
	Redaction struct {
		ExtraPatterns []PatternRule `yaml:"extra_patterns"`
	} `yaml:"redaction"`
}

var (
	placeholderRe = regexp.MustCompile(`\[[A-Z_]+\]`)

	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	dateRe   = regexp.MustCompile(`\b(?:\d{1,2}/\d{1,2}/(?:\d{4}|\d{2})|\d{4}-\d{1,2}-\d{1,2}|\d{1,2}-\d{1,2}-\d{4})\b`)
	ssnRe    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	longIDRe = regexp.MustCompile(`[A-Za-z0-9]{8,}`)
	phoneRe  = regexp.MustCompile(`(?:\+?\d{1,2}[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

// builtinRules are applied after the patient-name rule, in this order.
var builtinRules = []compiledRule{
	{name: "email", re: emailRe, replacement: domain.PlaceholderEmail},
	{name: "date", re: dateRe, replacement: domain.PlaceholderDate},
	{name: "ssn", re: ssnRe, replacement: domain.PlaceholderSSN},
	{name: "long_id", re: longIDRe, replacement: domain.PlaceholderID, keep: hasNoDigit},
	{name: "phone", re: phoneRe, replacement: domain.PlaceholderPhone},
}

var defaultRedactor = &Redactor{rules: builtinRules}

// Default returns a redactor with only the built-in rules.
func Default() *Redactor {
	return defaultRedactor
}

// Redact applies the built-in rules. See (*Redactor).Redact.
func Redact(text, knownPatientName string) string {
	return defaultRedactor.Redact(text, knownPatientName)
}

// NewRedactor loads extra rules from path (or ~/.pguard/redaction.yaml when
// empty). A missing file yields the built-in rules only.
func NewRedactor(path string) (*Redactor, error) {
	extra, err := loadRules(path)
	if err != nil {
		return nil, err
	}

	rules := append([]compiledRule(nil), builtinRules...)
	for _, rule := range extra {
		if rule.Replacement == "" || placeholderRe.FindString(rule.Replacement) != rule.Replacement {
			return nil, fmt.Errorf("redaction rule %q: replacement must be a placeholder like [NAME], got %q", rule.Name, rule.Replacement)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction rule %q: %w", rule.Name, err)
		}
		rules = append(rules, compiledRule{name: rule.Name, re: re, replacement: rule.Replacement})
	}

	return &Redactor{rules: rules}, nil
}

// Redact replaces PHI in text with placeholder tokens. The patient-name rule,
// when a name longer than one character is supplied, always runs first so the
// generic ID rule cannot consume part of a name. Empty input is returned as is.
func (r *Redactor) Redact(text, knownPatientName string) string {
	if text == "" {
		return text
	}
	if r == nil {
		r = defaultRedactor
	}

	out := text
	if nameRule, ok := patientNameRule(knownPatientName); ok {
		out = applyOutsidePlaceholders(out, nameRule)
	}
	for _, rule := range r.rules {
		out = applyOutsidePlaceholders(out, rule)
	}
	return out
}

// RuleNames lists the active rules in application order.
func (r *Redactor) RuleNames() []string {
	names := []string{"patient_name"}
	for _, rule := range r.rules {
		names = append(names, rule.name)
	}
	return names
}

func patientNameRule(name string) (compiledRule, bool) {
	parts := strings.Fields(name)
	if len(strings.Join(parts, " ")) <= 1 {
		return compiledRule{}, false
	}

	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = regexp.QuoteMeta(part)
	}
	alternatives := []string{strings.Join(quoted, `\s+`)}
	if len(parts) > 1 {
		first := strings.Join(quoted[:len(quoted)-1], `\s+`)
		last := quoted[len(quoted)-1]
		alternatives = append(alternatives, last+`\s*,\s*`+first, last+`\s*,\s*`+quoted[0])
	}

	re, err := regexp.Compile(`(?i)(?:` + strings.Join(alternatives, "|") + `)`)
	if err != nil {
		return compiledRule{}, false
	}
	return compiledRule{name: "patient_name", re: re, replacement: domain.PlaceholderPatientName}, true
}

// applyOutsidePlaceholders runs rule on every span of text that is not
// already a placeholder token.
func applyOutsidePlaceholders(text string, rule compiledRule) string {
	locs := placeholderRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return applyRule(text, rule)
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, loc := range locs {
		b.WriteString(applyRule(text[prev:loc[0]], rule))
		b.WriteString(text[loc[0]:loc[1]])
		prev = loc[1]
	}
	b.WriteString(applyRule(text[prev:], rule))
	return b.String()
}

func applyRule(segment string, rule compiledRule) string {
	if segment == "" {
		return segment
	}
	if rule.keep == nil {
		return rule.re.ReplaceAllLiteralString(segment, rule.replacement)
	}
	return rule.re.ReplaceAllStringFunc(segment, func(match string) string {
		if rule.keep(match) {
			return match
		}
		return rule.replacement
	})
}

func hasNoDigit(s string) bool {
	return !strings.ContainsAny(s, "0123456789")
}

func loadRules(path string) ([]PatternRule, error) {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse redaction rules: %w", err)
	}
	return rules.Redaction.ExtraPatterns, nil
}

// ResolveRulesPath exposes the rules file location for diagnostics.
func ResolveRulesPath(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return filepath.Join(filesystem.UserHomeDir(), ".pguard", "redaction.yaml")
	}
	return filesystem.ExpandPath(path)
}

var _ ports.Redactor = (*Redactor)(nil)
