package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// policyFile is the YAML layout accepted by `pguard policy import`.
type policyFile struct {
	Policies []policyDocument `yaml:"policies"`
}

// policyDocument defaults active to true when the key is omitted.
type policyDocument struct {
	Code   string              `yaml:"code"`
	Title  string              `yaml:"title"`
	Payer  string              `yaml:"payer"`
	Active *bool               `yaml:"active"`
	Rules  []domain.PolicyRule `yaml:"rules"`
}

func (d policyDocument) policy() domain.Policy {
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return domain.Policy{Code: d.Code, Title: d.Title, Payer: d.Payer, Active: active, Rules: d.Rules}
}

// DecodePolicies parses and validates a policy YAML document. Unknown
// operators and malformed values are rejected here, before they reach a store.
func DecodePolicies(r io.Reader) ([]domain.Policy, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file policyFile
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse policies: %w", err)
	}
	policies := make([]domain.Policy, 0, len(file.Policies))
	for _, doc := range file.Policies {
		policy := doc.policy()
		if err := ValidatePolicy(policy); err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// LoadPolicyFile reads policies from a YAML file on disk.
func LoadPolicyFile(path string) ([]domain.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return DecodePolicies(bytes.NewReader(data))
}

// Import saves every policy through writer and returns how many were written.
func Import(ctx context.Context, writer ports.PolicyWriter, policies []domain.Policy) (int, error) {
	for i, policy := range policies {
		if err := writer.SavePolicy(ctx, policy); err != nil {
			return i, fmt.Errorf("save policy %s: %w", policy.Code, err)
		}
	}
	return len(policies), nil
}

// ValidatePolicy checks the policy code, every rule, and rule-id uniqueness.
func ValidatePolicy(policy domain.Policy) error {
	if strings.TrimSpace(policy.Code) == "" {
		return fmt.Errorf("policy code is required")
	}
	seen := make(map[string]bool, len(policy.Rules))
	for _, rule := range policy.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("policy %s: %w", policy.Code, err)
		}
		if seen[rule.ID] {
			return fmt.Errorf("policy %s: duplicate rule id %s", policy.Code, rule.ID)
		}
		seen[rule.ID] = true
	}
	return nil
}
