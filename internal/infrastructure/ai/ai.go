// Package ai provides the text-generation provider factory and the HTTP-based
// provider behind the fact extractor and critique collaborators.
//
// This package implements a unified, configuration-driven approach to providers:
//   - Factory: Creates provider instances based on model definitions
//   - HTTP Provider: Generic HTTP client supporting any chat API via YAML config
//   - Collaborators: FactExtractor and CritiqueGenerator render prompts, call a
//     provider and decode the first JSON object of the reply
//
// Every outbound message passes through a Redactor before it is serialized, so
// nothing reaches the network unredacted even if a caller forgot to redact.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

const (
	providerName = "http"
	// maxResponseBytes bounds how much of a reply body is read.
	maxResponseBytes = 4 << 20
)

// ====================================================================================
// Factory
// ====================================================================================

// Factory creates provider instances based on model definitions.
// It maintains a single HTTP client shared across all providers.
type Factory struct {
	httpClient *http.Client
	redactor   ports.Redactor
	logger     ports.Logger
}

// NewFactory creates a new provider factory. redactor is mandatory; the
// logger may be nil.
func NewFactory(redactor ports.Redactor, logger ports.Logger) *Factory {
	return &Factory{
		httpClient: &http.Client{Timeout: domain.DefaultHTTPClientTimeout},
		redactor:   redactor,
		logger:     logger,
	}
}

// WithHTTPClient swaps the shared client. Used by tests.
func (f *Factory) WithHTTPClient(client *http.Client) *Factory {
	f.httpClient = client
	return f
}

// ForModel creates a generic HTTP provider for any model definition.
func (f *Factory) ForModel(model domain.ModelDefinition) (ports.Provider, error) {
	if f.redactor == nil {
		return nil, errors.New("provider factory requires a redactor")
	}
	if strings.TrimSpace(model.Endpoint) == "" {
		return nil, fmt.Errorf("model %s has no endpoint", model.Name)
	}
	return &httpProvider{
		model:      model,
		format:     model.ResolveFormat(),
		httpClient: f.httpClient,
		redactor:   f.redactor,
		logger:     f.logger,
	}, nil
}

var _ ports.ProviderFactory = (*Factory)(nil)

// ====================================================================================
// HTTP Provider
// ====================================================================================

// httpProvider is a configuration-driven HTTP-based provider.
// All dialect-specific behavior is controlled through the resolved APIFormat.
type httpProvider struct {
	model      domain.ModelDefinition
	format     domain.APIFormat
	httpClient *http.Client
	redactor   ports.Redactor
	logger     ports.Logger
}

func (p *httpProvider) Name() string {
	return providerName
}

func (p *httpProvider) Model() domain.ModelDefinition {
	return p.model
}

func (p *httpProvider) Generate(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResponse, error) {
	messages := p.redactMessages(req.Messages)
	if !hasUserMessage(messages) {
		return ports.ProviderResponse{}, errors.New("prompt has no user message")
	}

	requestBody, err := p.buildRequestBody(messages, req.JSON)
	if err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.model.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if err := p.setAuthHeaders(httpReq); err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err)
	}
	p.setExtraHeaders(httpReq)

	if req.Debug && p.logger != nil {
		p.logger.Debug("provider request", map[string]interface{}{
			"model":    p.model.Name,
			"messages": len(messages),
			"bytes":    len(requestBody),
		})
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ports.ProviderResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ports.ProviderResponse{}, fmt.Errorf("%w: HTTP %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ports.ProviderResponse{}, classifyTransportError(err)
	}

	content, err := p.parseResponse(body)
	if err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("%w: %w", domain.ErrCollaboratorMalformed, err)
	}

	if req.Debug && p.logger != nil {
		p.logger.Debug("provider response", map[string]interface{}{
			"model": p.model.Name,
			"bytes": len(content),
		})
	}
	return ports.ProviderResponse{Reply: content}, nil
}

func (p *httpProvider) redactMessages(messages []domain.PromptMessage) []domain.PromptMessage {
	redacted := make([]domain.PromptMessage, 0, len(messages))
	for _, msg := range messages {
		redacted = append(redacted, domain.PromptMessage{
			Role:    msg.Role,
			Content: p.redactor.Redact(msg.Content, ""),
		})
	}
	return redacted
}

// classifyTransportError maps client-side timeouts onto ErrCollaboratorTimeout.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrCollaboratorTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err)
}

// buildRequestBody constructs the JSON request body based on the resolved APIFormat.
func (p *httpProvider) buildRequestBody(messages []domain.PromptMessage, jsonMode bool) ([]byte, error) {
	format := p.format

	maxTokens := p.model.MaxTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxTokens
	}
	request := map[string]interface{}{
		"model":       p.model.ModelID,
		"max_tokens":  maxTokens,
		"temperature": p.model.Temperature,
	}

	// Anthropic has no JSON switch; the prompt alone asks for JSON there.
	if jsonMode && p.model.Kind() != domain.ProviderKindAnthropic {
		request["response_format"] = map[string]string{"type": "json_object"}
	}

	if format.IsSystemMessageSeparate() {
		systemPrompt, chatMessages := splitSystemMessages(messages, format)
		if systemPrompt != "" {
			request["system"] = systemPrompt
		}
		request["messages"] = chatMessages
	} else {
		request["messages"] = formatMessagesInline(messages, format)
	}

	return json.Marshal(request)
}

// splitSystemMessages separates system messages from chat messages for providers
// that require system messages in a separate field (e.g., Anthropic).
func splitSystemMessages(messages []domain.PromptMessage, format domain.APIFormat) (string, []map[string]interface{}) {
	var systemLines []string
	var chatMessages []map[string]interface{}

	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "system") {
			systemLines = append(systemLines, msg.Content)
			continue
		}
		chatMessages = append(chatMessages, formatMessage(msg, format))
	}

	return strings.TrimSpace(strings.Join(systemLines, "\n")), chatMessages
}

// formatMessagesInline formats all messages (including system) into the messages array.
func formatMessagesInline(messages []domain.PromptMessage, format domain.APIFormat) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		result = append(result, formatMessage(msg, format))
	}
	return result
}

// formatMessage formats a single message based on the content wrapper configuration.
func formatMessage(msg domain.PromptMessage, format domain.APIFormat) map[string]interface{} {
	message := map[string]interface{}{
		"role": strings.ToLower(msg.Role),
	}

	if format.IsContentWrapped() {
		message["content"] = []map[string]string{
			{"type": "text", "text": msg.Content},
		}
	} else {
		message["content"] = msg.Content
	}

	return message
}

// setAuthHeaders configures authentication headers based on the APIFormat.
// Models without an auth_env_var (local Ollama) send no credentials.
func (p *httpProvider) setAuthHeaders(req *http.Request) error {
	if p.model.AuthEnvVar == "" {
		return nil
	}
	apiKey := os.Getenv(p.model.AuthEnvVar)
	if apiKey == "" {
		return fmt.Errorf("missing API key: set %s environment variable", p.model.AuthEnvVar)
	}

	req.Header.Set(p.format.GetAuthHeaderName(), p.format.GetAuthHeaderPrefix()+apiKey)

	if p.model.OrgEnvVar != "" {
		if orgID := os.Getenv(p.model.OrgEnvVar); orgID != "" {
			req.Header.Set("OpenAI-Organization", orgID)
		}
	}
	return nil
}

// setExtraHeaders adds any additional headers defined in the APIFormat configuration.
func (p *httpProvider) setExtraHeaders(req *http.Request) {
	for key, value := range p.format.ExtraHeaders {
		req.Header.Set(key, value)
	}
}

// parseResponse extracts the generated text from the JSON response using the configured JSON path.
func (p *httpProvider) parseResponse(body []byte) (string, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("unmarshal JSON: %w", err)
	}

	path := p.format.GetResponseJSONPath()
	content, err := extractJSONPath(response, path)
	if err != nil {
		return "", fmt.Errorf("extract from path '%s': %w", path, err)
	}

	return strings.TrimSpace(content), nil
}

// extractJSONPath extracts a string value from a nested JSON structure using a simple path notation.
// Supported paths: "field", "field.nested", "field[0]", "field[0].nested.field"
func extractJSONPath(data map[string]interface{}, path string) (string, error) {
	var current interface{} = data

	for _, part := range parseJSONPath(path) {
		switch part.kind {
		case "field":
			obj, ok := current.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("expected object at '%s'", part.value)
			}
			var found bool
			current, found = obj[part.value]
			if !found {
				return "", fmt.Errorf("field '%s' not found", part.value)
			}

		case "index":
			arr, ok := current.([]interface{})
			if !ok {
				return "", fmt.Errorf("expected array at index %s", part.value)
			}
			idx, err := strconv.Atoi(part.value)
			if err != nil {
				return "", fmt.Errorf("invalid index %q", part.value)
			}
			if idx < 0 || idx >= len(arr) {
				return "", fmt.Errorf("index %d out of bounds (len=%d)", idx, len(arr))
			}
			current = arr[idx]
		}
	}

	if str, ok := current.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("final value is not a string: %T", current)
}

type pathPart struct {
	kind  string // "field" or "index"
	value string
}

// parseJSONPath converts "content[0].text" into structured path parts.
// Examples:
//   - "content[0].text" → [{field, "content"}, {index, "0"}, {field, "text"}]
//   - "choices[0].message.content" → [{field, "choices"}, {index, "0"}, {field, "message"}, {field, "content"}]
func parseJSONPath(path string) []pathPart {
	var parts []pathPart
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, pathPart{kind: "field", value: current.String()})
			current.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			flush()
		case '[':
			flush()
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				parts = append(parts, pathPart{kind: "index", value: path[i+1 : j]})
				i = j
			}
		default:
			current.WriteByte(ch)
		}
	}
	flush()

	return parts
}

func hasUserMessage(messages []domain.PromptMessage) bool {
	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "user") {
			return true
		}
	}
	return false
}
