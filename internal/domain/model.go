// Package domain defines the core entities of the guardrail system: policy
// rules and facts, the untrusted critique, the gated audit data, and the
// configuration that wires collaborators together.
//
// The domain layer is independent of infrastructure concerns.
package domain

import "strings"

// ModelDefinition describes a text-generation endpoint declared in the config file.
// The same endpoint serves fact extraction and critique generation.
type ModelDefinition struct {
	Name        string    `yaml:"name"`
	Endpoint    string    `yaml:"endpoint"`
	AuthEnvVar  string    `yaml:"auth_env_var"`
	OrgEnvVar   string    `yaml:"org_env_var"`
	ModelID     string    `yaml:"model_id"`
	MaxTokens   int       `yaml:"max_tokens"`
	Temperature float64   `yaml:"temperature"`
	APIFormat   APIFormat `yaml:"api_format,omitempty"`
}

// ProviderKind identifies the wire dialect of an endpoint.
type ProviderKind string

const (
	ProviderKindAnthropic ProviderKind = "anthropic"
	ProviderKindOpenAI    ProviderKind = "openai"
	ProviderKindOllama    ProviderKind = "ollama"
	ProviderKindUnknown   ProviderKind = "unknown"
)

// Kind infers the provider dialect from endpoint and name.
func (m ModelDefinition) Kind() ProviderKind {
	endpoint := strings.ToLower(m.Endpoint)
	switch {
	case strings.Contains(endpoint, "anthropic.com"):
		return ProviderKindAnthropic
	case strings.Contains(endpoint, "openai.com"):
		return ProviderKindOpenAI
	case strings.Contains(strings.ToLower(m.Name), "ollama"), strings.Contains(endpoint, "11434"):
		return ProviderKindOllama
	default:
		return ProviderKindUnknown
	}
}

// APIFormat defines how to construct requests and parse responses for different APIs.
// All fields are optional; zero values select the OpenAI-compatible format.
type APIFormat struct {
	// AuthHeaderName specifies the HTTP header name for authentication.
	AuthHeaderName string `yaml:"auth_header_name,omitempty"`

	// AuthHeaderPrefix is prepended to the API key value. Empty with a custom
	// header name means no prefix (Anthropic's "x-api-key").
	AuthHeaderPrefix string `yaml:"auth_header_prefix,omitempty"`

	// SystemMessageMode is "inline" or "separate" (Anthropic top-level "system").
	SystemMessageMode string `yaml:"system_message_mode,omitempty"`

	// ContentWrapper is "standard" or "anthropic" (content block arrays).
	ContentWrapper string `yaml:"content_wrapper,omitempty"`

	// ResponseJSONPath locates the generated text, e.g. "content[0].text".
	ResponseJSONPath string `yaml:"response_json_path,omitempty"`

	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
}

// PromptMessage follows the role/content pair required by most chat APIs.
type PromptMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

const (
	DefaultAuthHeaderName   = "Authorization"
	DefaultAuthHeaderPrefix = "Bearer "

	SystemMessageModeInline   = "inline"
	SystemMessageModeSeparate = "separate"

	ContentWrapperStandard  = "standard"
	ContentWrapperAnthropic = "anthropic"

	DefaultResponsePath   = "choices[0].message.content"
	AnthropicResponsePath = "content[0].text"
)

// ResolveFormat fills format defaults for the model's provider kind.
func (m ModelDefinition) ResolveFormat() APIFormat {
	format := m.APIFormat
	if m.Kind() == ProviderKindAnthropic {
		if format.AuthHeaderName == "" {
			format.AuthHeaderName = "x-api-key"
		}
		if format.SystemMessageMode == "" {
			format.SystemMessageMode = SystemMessageModeSeparate
		}
		if format.ContentWrapper == "" {
			format.ContentWrapper = ContentWrapperAnthropic
		}
		if format.ResponseJSONPath == "" {
			format.ResponseJSONPath = AnthropicResponsePath
		}
		if _, ok := format.ExtraHeaders["anthropic-version"]; !ok {
			headers := map[string]string{"anthropic-version": "2023-06-01"}
			for k, v := range format.ExtraHeaders {
				headers[k] = v
			}
			format.ExtraHeaders = headers
		}
	}
	return format
}

// GetAuthHeaderName returns the authentication header name with default fallback.
func (f APIFormat) GetAuthHeaderName() string {
	if f.AuthHeaderName == "" {
		return DefaultAuthHeaderName
	}
	return f.AuthHeaderName
}

// GetAuthHeaderPrefix returns the authentication header prefix with default fallback.
func (f APIFormat) GetAuthHeaderPrefix() string {
	if f.AuthHeaderPrefix == "" && f.AuthHeaderName == "" {
		return DefaultAuthHeaderPrefix
	}
	return f.AuthHeaderPrefix
}

// GetResponseJSONPath returns the JSON path for extracting response content with default fallback.
func (f APIFormat) GetResponseJSONPath() string {
	if f.ResponseJSONPath == "" {
		return DefaultResponsePath
	}
	return f.ResponseJSONPath
}

// IsSystemMessageSeparate returns true if system messages should be in a separate field.
func (f APIFormat) IsSystemMessageSeparate() bool {
	return f.SystemMessageMode == SystemMessageModeSeparate
}

// IsContentWrapped returns true if content should be wrapped in Anthropic's array format.
func (f APIFormat) IsContentWrapped() bool {
	return f.ContentWrapper == ContentWrapperAnthropic
}
