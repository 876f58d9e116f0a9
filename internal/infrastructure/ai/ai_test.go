package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/security"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// capturingServer replies with an OpenAI-shaped body wrapping reply and keeps
// the last request body it saw.
type capturingServer struct {
	mu      sync.Mutex
	body    map[string]interface{}
	headers http.Header
	reply   string
	status  int
}

func (c *capturingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		if c.status != 0 {
			w.WriteHeader(c.status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"content": c.reply}},
			},
		})
	}
}

func newProvider(t *testing.T, srv *httptest.Server) ports.Provider {
	t.Helper()
	model := domain.ModelDefinition{Name: "local", Endpoint: srv.URL, ModelID: "test-model"}
	provider, err := NewFactory(security.Default(), nil).WithHTTPClient(srv.Client()).ForModel(model)
	if err != nil {
		t.Fatalf("ForModel error: %v", err)
	}
	return provider
}

func TestGenerateRedactsOutboundMessages(t *testing.T) {
	capture := &capturingServer{reply: "{}"}
	srv := httptest.NewServer(capture.handler())
	defer srv.Close()

	provider := newProvider(t, srv)
	_, err := provider.Generate(context.Background(), ports.ProviderRequest{
		Messages: []domain.PromptMessage{{Role: "user", Content: "SSN 123-45-6789, email jane@example.com"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	raw, _ := json.Marshal(capture.body)
	sent := string(raw)
	for _, leaked := range []string{"123-45-6789", "jane@example.com"} {
		if strings.Contains(sent, leaked) {
			t.Fatalf("request body leaked %q: %s", leaked, sent)
		}
	}
	if !strings.Contains(sent, domain.PlaceholderSSN) {
		t.Fatalf("expected SSN placeholder in %s", sent)
	}
	if _, ok := capture.body["response_format"]; !ok {
		t.Fatal("JSON mode should set response_format")
	}
}

func TestGenerateAnthropicFormat(t *testing.T) {
	var got map[string]interface{}
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":" {\"ok\":true} "}]}`))
	}))
	defer srv.Close()

	t.Setenv("PGUARD_TEST_KEY", "secret")
	model := domain.ModelDefinition{
		Name:       "claude",
		Endpoint:   srv.URL + "/api.anthropic.com/v1/messages",
		AuthEnvVar: "PGUARD_TEST_KEY",
		ModelID:    "claude-test",
	}
	provider, err := NewFactory(security.Default(), nil).WithHTTPClient(srv.Client()).ForModel(model)
	if err != nil {
		t.Fatalf("ForModel error: %v", err)
	}
	resp, err := provider.Generate(context.Background(), ports.ProviderRequest{
		Messages: []domain.PromptMessage{{Role: "system", Content: "be terse"}, {Role: "user", Content: "hi"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Reply != `{"ok":true}` {
		t.Fatalf("reply = %q", resp.Reply)
	}
	if got["system"] != "be terse" {
		t.Fatalf("system = %v", got["system"])
	}
	if _, ok := got["response_format"]; ok {
		t.Fatal("anthropic requests carry no response_format")
	}
	if headers.Get("x-api-key") != "secret" || headers.Get("anthropic-version") == "" {
		t.Fatalf("headers = %v", headers)
	}
}

func TestGenerateMissingAPIKey(t *testing.T) {
	t.Setenv("PGUARD_TEST_MISSING", "")
	model := domain.ModelDefinition{Name: "gpt", Endpoint: "http://127.0.0.1:1", AuthEnvVar: "PGUARD_TEST_MISSING"}
	provider, _ := NewFactory(security.Default(), nil).ForModel(model)
	_, err := provider.Generate(context.Background(), ports.ProviderRequest{
		Messages: []domain.PromptMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v, want ErrCollaboratorUnavailable", err)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	capture := &capturingServer{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(capture.handler())
	defer srv.Close()

	_, err := newProvider(t, srv).Generate(context.Background(), ports.ProviderRequest{
		Messages: []domain.PromptMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestForModelRequiresRedactor(t *testing.T) {
	if _, err := NewFactory(nil, nil).ForModel(domain.ModelDefinition{Endpoint: "http://x"}); err == nil {
		t.Fatal("expected error without redactor")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "bare", content: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", content: "Here you go:\n```json\n{\"a\":1}\n```\nthanks", want: `{"a":1}`},
		{name: "prose around braces", content: `Result: {"a":{"b":2}} done`, want: `{"a":{"b":2}}`},
		{name: "fenced non-json falls back", content: "```\nnone\n``` {\"a\":1}", want: `{"a":1}`},
		{name: "none", content: "no json here", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil || string(got) != tt.want {
				t.Fatalf("extractJSON = %s, %v; want %s", got, err, tt.want)
			}
		})
	}
}

func TestParseJSONPath(t *testing.T) {
	data := map[string]interface{}{
		"choices": []interface{}{map[string]interface{}{"message": map[string]interface{}{"content": "x"}}},
	}
	got, err := extractJSONPath(data, "choices[0].message.content")
	if err != nil || got != "x" {
		t.Fatalf("extractJSONPath = %q, %v", got, err)
	}
	if _, err := extractJSONPath(data, "choices[3].message.content"); err == nil {
		t.Fatal("expected out of bounds error")
	}
}

// stubProvider returns a canned reply and records the last request.
type stubProvider struct {
	reply string
	err   error
	last  ports.ProviderRequest
}

func (s *stubProvider) Name() string                  { return "stub" }
func (s *stubProvider) Model() domain.ModelDefinition { return domain.ModelDefinition{Name: "stub"} }
func (s *stubProvider) Generate(_ context.Context, req ports.ProviderRequest) (ports.ProviderResponse, error) {
	s.last = req
	return ports.ProviderResponse{Reply: s.reply}, s.err
}

func TestFactExtractorDecodesReply(t *testing.T) {
	provider := &stubProvider{reply: "```json\n" + `{"facts":{
		"symptoms":{"found":true,"value":"neck mass","quote":"palpable neck mass"},
		"Duration":{"found":true,"value":8,"quote":"8 weeks of therapy"},
		"Extra":{"found":true,"value":"ignored","quote":""}
	}}` + "\n```"}
	extractor := NewFactExtractor(provider, false)

	facts, err := extractor.ExtractFacts(context.Background(), "note", []string{"Symptoms", "Duration", "Screening"})
	if err != nil {
		t.Fatalf("ExtractFacts error: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %+v", facts)
	}
	if facts["Symptoms"].Category != "Symptoms" || !facts["Symptoms"].Found {
		t.Fatalf("Symptoms = %+v", facts["Symptoms"])
	}
	if v, ok := facts["Duration"].Value.Raw(); !ok || v != 8 {
		t.Fatalf("Duration value = %v", facts["Duration"].Value)
	}
	if _, ok := facts["Screening"]; ok {
		t.Fatal("absent category must stay absent")
	}
	if !provider.last.JSON || !strings.Contains(provider.last.Messages[1].Content, `"Screening"`) {
		t.Fatalf("prompt did not list categories: %+v", provider.last)
	}
}

func TestFactExtractorMalformedReply(t *testing.T) {
	extractor := NewFactExtractor(&stubProvider{reply: "I cannot help with that."}, false)
	_, err := extractor.ExtractFacts(context.Background(), "note", []string{"Symptoms"})
	if !errors.Is(err, domain.ErrCollaboratorMalformed) {
		t.Fatalf("err = %v, want ErrCollaboratorMalformed", err)
	}
	var collabErr *domain.CollaboratorError
	if !errors.As(err, &collabErr) || collabErr.Collaborator != collaboratorFacts {
		t.Fatalf("err = %#v", err)
	}
}

func TestFactExtractorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewFactExtractor(newProvider(t, srv), false).ExtractFacts(ctx, "note", []string{"Symptoms"})
	if !errors.Is(err, domain.ErrCollaboratorTimeout) {
		t.Fatalf("err = %v, want ErrCollaboratorTimeout", err)
	}
}

func TestCritiqueGeneratorModes(t *testing.T) {
	provider := &stubProvider{reply: `{"clinicalScore":"82","overallStatus":"ready","appealSummary":{"appealRecommended":false}}`}
	critic := NewCritiqueGenerator(provider, false)

	critique, err := critic.Critique(context.Background(), ports.CritiqueRequest{
		DraftLetter:  "appeal text",
		Mode:         domain.ReviewAppeal,
		DenialReason: "not medically necessary",
	})
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if v, ok := critique.ClinicalScore.Get(); !ok || v != 82 {
		t.Fatalf("clinicalScore = %v", critique.ClinicalScore)
	}
	if critique.AppealSummary == nil || !critique.AppealSummary.AppealRecommended.IsFalse() {
		t.Fatalf("appealSummary = %+v", critique.AppealSummary)
	}
	if !strings.Contains(provider.last.Messages[1].Content, "not medically necessary") {
		t.Fatalf("appeal prompt missing denial reason: %q", provider.last.Messages[1].Content)
	}

	_, _ = critic.Critique(context.Background(), ports.CritiqueRequest{DraftLetter: "letter", Specialty: "orthopedics"})
	if !strings.Contains(provider.last.Messages[0].Content, "clinical_mismatch") {
		t.Fatal("preauth prompt should describe the mismatch risk type")
	}
}

func TestCritiqueGeneratorErrors(t *testing.T) {
	_, err := NewCritiqueGenerator(&stubProvider{reply: "[1,2,3]"}, false).
		Critique(context.Background(), ports.CritiqueRequest{DraftLetter: "x"})
	if !errors.Is(err, domain.ErrCollaboratorMalformed) {
		t.Fatalf("err = %v, want ErrCollaboratorMalformed", err)
	}

	_, err = NewCritiqueGenerator(&stubProvider{err: errors.New("connection refused")}, false).
		Critique(context.Background(), ports.CritiqueRequest{DraftLetter: "x"})
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v, want ErrCollaboratorUnavailable", err)
	}
}
