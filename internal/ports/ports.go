// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// The guardrail core depends only on these contracts. Adapters in the
// infrastructure layer implement them against HTTP text-generation endpoints,
// SQLite and the filesystem.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., FactExtractor, PolicyRuleStore)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"

	"github.com/doeshing/preauth-guard/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.pguard/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// Redactor strips PHI from text before it crosses the process boundary.
type Redactor interface {
	Redact(text, knownPatientName string) string
}

// FactExtractor turns a note into one Fact per requested category.
// The returned map is keyed by the exact category strings; absent keys mean not found.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, noteText string, categories []string) (map[string]domain.Fact, error)
}

// CritiqueRequest is the input to the critique collaborator. Text is already redacted.
type CritiqueRequest struct {
	DraftLetter  string
	Specialty    string
	Mode         domain.ReviewMode
	DenialReason string
}

// CritiqueGenerator produces the untrusted critique of a draft letter.
type CritiqueGenerator interface {
	Critique(ctx context.Context, req CritiqueRequest) (domain.Critique, error)
}

// PolicyRuleStore supplies the active policy for a procedure code.
// A missing policy is reported with found=false, not an error.
type PolicyRuleStore interface {
	ActivePolicy(ctx context.Context, code string) (policy domain.Policy, found bool, err error)
}

// PolicyWriter persists policies for the import tooling.
type PolicyWriter interface {
	SavePolicy(ctx context.Context, policy domain.Policy) error
	ListPolicies(ctx context.Context) ([]domain.Policy, error)
}

// VerificationCache memoizes verification results by (code, note hash).
type VerificationCache interface {
	Get(key string) (domain.VerificationResult, bool, error)
	Set(key string, result domain.VerificationResult) error
}

// ProviderFactory builds text-generation providers from model definitions.
type ProviderFactory interface {
	ForModel(domain.ModelDefinition) (Provider, error)
}

// Provider sends one chat-style completion request and returns the raw reply text.
type Provider interface {
	Name() string
	Model() domain.ModelDefinition
	Generate(context.Context, ProviderRequest) (ProviderResponse, error)
}

// ProviderRequest holds the already-rendered prompt messages.
// JSON asks the endpoint for a JSON-only reply where the dialect supports it.
type ProviderRequest struct {
	Messages []domain.PromptMessage
	JSON     bool
	Debug    bool
}

// ProviderResponse contains the raw reply text.
type ProviderResponse struct {
	Reply string
}

// GateRecorder observes which gates fired and how verifications ended.
type GateRecorder interface {
	GateFired(pipeline, gate string)
	VerificationCompleted(status domain.VerificationStatus)
	CollaboratorFailed(collaborator string)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
