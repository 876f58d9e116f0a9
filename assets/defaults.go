package assets

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration.
//
//go:embed defaults/config.yaml
var DefaultConfigYAML []byte

// DefaultPoliciesYAML contains the payer policies seeded into an empty rule store.
//
//go:embed defaults/policies.yaml
var DefaultPoliciesYAML []byte

// DefaultRedactionYAML contains the example extra redaction patterns.
//
//go:embed defaults/redaction.yaml
var DefaultRedactionYAML []byte
