package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

const (
	collaboratorFacts    = "fact_extractor"
	collaboratorCritique = "critique_generator"
)

// FactExtractor implements ports.FactExtractor on top of a Provider.
type FactExtractor struct {
	provider ports.Provider
	debug    bool
}

// NewFactExtractor wraps provider.
func NewFactExtractor(provider ports.Provider, debug bool) *FactExtractor {
	return &FactExtractor{provider: provider, debug: debug}
}

// ExtractFacts asks the provider for one fact per category. Categories the
// reply omits, or whose entry cannot be decoded, are left out of the map.
func (e *FactExtractor) ExtractFacts(ctx context.Context, noteText string, categories []string) (map[string]domain.Fact, error) {
	messages, err := renderPromptMessages(factExtractionTemplate, promptData{
		Categories: categoriesJSON(categories),
		Note:       noteText,
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	resp, err := e.provider.Generate(ctx, ports.ProviderRequest{Messages: messages, JSON: true, Debug: e.debug})
	if err != nil {
		return nil, domain.NewCollaboratorError(collaboratorFacts, "extract_facts", err)
	}

	facts, err := decodeFacts(resp.Reply, categories)
	if err != nil {
		return nil, domain.NewCollaboratorError(collaboratorFacts, "extract_facts",
			fmt.Errorf("%w: %w", domain.ErrCollaboratorMalformed, err))
	}
	return facts, nil
}

// decodeFacts accepts either {"<category>": {...}} or {"facts": {"<category>": {...}}}.
// Keys are matched to the requested categories case-insensitively and returned
// under the requested spelling.
func decodeFacts(reply string, categories []string) (map[string]domain.Fact, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	if nested, ok := entries["facts"]; ok && !hasCategory(categories, "facts") {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			entries = inner
		}
	}

	byFold := make(map[string]json.RawMessage, len(entries))
	for key, value := range entries {
		byFold[strings.ToLower(strings.TrimSpace(key))] = value
	}

	facts := make(map[string]domain.Fact, len(categories))
	for _, category := range categories {
		entry, ok := entries[category]
		if !ok {
			entry, ok = byFold[strings.ToLower(strings.TrimSpace(category))]
		}
		if !ok {
			continue
		}
		var fact domain.Fact
		if err := json.Unmarshal(entry, &fact); err != nil {
			continue
		}
		fact.Category = category
		facts[category] = fact
	}
	return facts, nil
}

func hasCategory(categories []string, name string) bool {
	for _, c := range categories {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

var _ ports.FactExtractor = (*FactExtractor)(nil)

// CritiqueGenerator implements ports.CritiqueGenerator on top of a Provider.
type CritiqueGenerator struct {
	provider ports.Provider
	debug    bool
}

// NewCritiqueGenerator wraps provider.
func NewCritiqueGenerator(provider ports.Provider, debug bool) *CritiqueGenerator {
	return &CritiqueGenerator{provider: provider, debug: debug}
}

// Critique renders the preauth or appeal prompt and decodes the reply.
func (g *CritiqueGenerator) Critique(ctx context.Context, req ports.CritiqueRequest) (domain.Critique, error) {
	prompt := preauthCritiqueTemplate
	if req.Mode == domain.ReviewAppeal {
		prompt = appealCritiqueTemplate
	}
	messages, err := renderPromptMessages(prompt, promptData{
		Draft:        req.DraftLetter,
		Specialty:    req.Specialty,
		DenialReason: req.DenialReason,
	})
	if err != nil {
		return domain.Critique{}, fmt.Errorf("render prompt: %w", err)
	}

	resp, err := g.provider.Generate(ctx, ports.ProviderRequest{Messages: messages, JSON: true, Debug: g.debug})
	if err != nil {
		return domain.Critique{}, domain.NewCollaboratorError(collaboratorCritique, "critique", err)
	}

	raw, err := extractJSON(resp.Reply)
	if err == nil {
		var critique domain.Critique
		critique, err = domain.ParseCritique(raw)
		if err == nil {
			return critique, nil
		}
	}
	return domain.Critique{}, domain.NewCollaboratorError(collaboratorCritique, "critique",
		fmt.Errorf("%w: %w", domain.ErrCollaboratorMalformed, err))
}

var _ ports.CritiqueGenerator = (*CritiqueGenerator)(nil)
