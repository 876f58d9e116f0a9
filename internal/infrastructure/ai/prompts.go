package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"text/template"

	"github.com/doeshing/preauth-guard/internal/domain"
)

// ====================================================================================
// Prompt Template Rendering
// ====================================================================================

// promptData is the template context for both collaborators.
//
// Template Variables Available:
//   - {{.Categories}}: JSON array of the requested fact categories
//   - {{.Note}}: redacted clinical note
//   - {{.Draft}}: redacted draft letter
//   - {{.Specialty}}: requesting specialty
//   - {{.DenialReason}}: payer denial reason (appeal mode)
type promptData struct {
	Categories   string
	Note         string
	Draft        string
	Specialty    string
	DenialReason string
}

var (
	factExtractionTemplate = []domain.PromptMessage{
		{
			Role: "system",
			Content: `You extract structured clinical facts from a de-identified clinical note.
Answer with one JSON object and nothing else. For every requested category add a key with
exactly the category name and the value {"found": bool, "value": string or number, "quote": string}.
"quote" is the verbatim sentence from the note that supports the fact.
Use a JSON number for counts and durations. Set "found": false when the note is silent.
Never infer facts that the note does not state.`,
		},
		{
			Role: "user",
			Content: `Categories: {{.Categories}}

Clinical note:
"""
{{.Note}}
"""`,
		},
	}

	preauthCritiqueTemplate = []domain.PromptMessage{
		{
			Role: "system",
			Content: `You review prior-authorization letters the way a payer's utilization reviewer would.
Answer with one JSON object and nothing else, using these keys:
clinicalScore (0-100), adminScore (0-100), approvalLikelihood (0-100),
overallStatus ("ready"|"needs_review"|"blocked"),
scoreBand ("strong"|"moderate"|"high_risk"|"likely_denial"),
primaryRiskFactor {type, factor, severity, description},
clinicalEvidenceAssessment {conservativeTherapy {present, durationWeeks, strength, details}, imaging, functionalImpact, summary},
checklist [{label, status ("PASS"|"FAIL"|"WARN"), detail}],
missingInfo [string], denialRiskFactors [{type, factor, severity, description}].
Use primaryRiskFactor.type "clinical_mismatch" when the body site or laterality of the
request does not match the documentation.`,
		},
		{
			Role: "user",
			Content: `Specialty: {{if .Specialty}}{{.Specialty}}{{else}}unspecified{{end}}

Draft letter:
"""
{{.Draft}}
"""`,
		},
	}

	appealCritiqueTemplate = []domain.PromptMessage{
		{
			Role: "system",
			Content: `You review appeal letters answering a payer denial.
Answer with one JSON object and nothing else, using these keys:
clinicalScore (0-100), approvalLikelihood (0-100),
overallStatus ("ready"|"needs_review"|"blocked"),
scoreBand ("strong"|"moderate"|"high_risk"|"likely_denial"),
missingInfo [string], denialRiskFactors [{type, factor, severity, description}],
appealSummary {denialReasonAddressed (bool), evidenceStrength ("strong"|"moderate"|"weak"|"irrelevant"|"none"),
appealRecommended (bool), denialCategory (e.g. "medical_necessity", "coding", "administrative")}.`,
		},
		{
			Role: "user",
			Content: `Specialty: {{if .Specialty}}{{.Specialty}}{{else}}unspecified{{end}}
Denial reason: {{if .DenialReason}}{{.DenialReason}}{{else}}not provided{{end}}

Appeal letter:
"""
{{.Draft}}
"""`,
		},
	}
)

// renderPromptMessages expands each template message with data.
func renderPromptMessages(messages []domain.PromptMessage, data promptData) ([]domain.PromptMessage, error) {
	rendered := make([]domain.PromptMessage, 0, len(messages))
	for _, msg := range messages {
		content, err := executeTemplate(msg.Content, data)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, domain.PromptMessage{
			Role:    msg.Role,
			Content: strings.TrimSpace(content),
		})
	}
	return rendered, nil
}

func executeTemplate(raw string, data promptData) (string, error) {
	tmpl, err := template.New("prompt").Parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func categoriesJSON(categories []string) string {
	raw, err := json.Marshal(categories)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// ====================================================================================
// Reply decoding
// ====================================================================================

var errNoJSONObject = errors.New("reply contains no JSON object")

// extractJSON returns the first JSON object in a reply: the body of a fenced
// code block when one holds an object, otherwise the outermost braces.
func extractJSON(content string) ([]byte, error) {
	if block := extractCodeBlock(content); strings.HasPrefix(block, "{") {
		return []byte(block), nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return nil, errNoJSONObject
	}
	return []byte(content[start : end+1]), nil
}

// extractCodeBlock finds and extracts the first markdown code block (```...```).
func extractCodeBlock(content string) string {
	start := strings.Index(content, "```")
	if start == -1 {
		return ""
	}
	suffix := content[start+3:]
	end := strings.Index(suffix, "```")
	if end == -1 {
		return ""
	}

	block := suffix[:end]
	// drop a language marker such as "json"
	if newline := strings.IndexByte(block, '\n'); newline != -1 && !strings.Contains(block[:newline], "{") {
		block = block[newline+1:]
	}
	return strings.TrimSpace(block)
}
