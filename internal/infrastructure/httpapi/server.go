// Package httpapi exposes the redaction, verification, guardrail and review
// operations as a JSON API on a chi router.
//
// Request and response bodies carry PHI and are never logged. Error
// descriptions pass through the redactor before they are written.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/doeshing/preauth-guard/internal/application/guardrail"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/metrics"
	"github.com/doeshing/preauth-guard/internal/infrastructure/security"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Verifier is the verification surface the API needs.
type Verifier interface {
	Verify(ctx context.Context, code, noteText string) (domain.VerificationResult, error)
	VerifyAll(ctx context.Context, codes []string, noteText string) ([]domain.VerificationResult, error)
}

// Reviewer runs an end-to-end review.
type Reviewer interface {
	Run(ctx context.Context, req domain.ReviewRequest) (domain.ReviewResponse, error)
}

// Deps groups the services behind the API. Metrics is optional; a nil
// Redactor falls back to the built-in rules.
type Deps struct {
	Redactor ports.Redactor
	Verifier Verifier
	Engine   *guardrail.Engine
	Reviewer Reviewer
	Metrics  *metrics.Metrics
	Logger   ports.Logger
}

// Handler serves the API.
type Handler struct {
	redactor ports.Redactor
	verifier Verifier
	engine   *guardrail.Engine
	reviewer Reviewer
	metrics  *metrics.Metrics
	logger   ports.Logger
}

// New constructs a handler with its dependencies.
func New(deps Deps) *Handler {
	engine := deps.Engine
	if engine == nil {
		engine = guardrail.NewEngine(nil)
	}
	var redactor ports.Redactor = security.Default()
	if deps.Redactor != nil {
		redactor = deps.Redactor
	}
	return &Handler{
		redactor: redactor,
		verifier: deps.Verifier,
		engine:   engine,
		reviewer: deps.Reviewer,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Router mounts every endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/healthz", h.HandleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/redact", h.HandleRedact)
		r.Post("/verify", h.HandleVerify)
		r.Post("/guardrails/clinical", h.HandleClinical)
		r.Post("/guardrails/appeal", h.HandleAppeal)
		r.Post("/review", h.HandleReview)
	})
	return r
}

// NewServer builds an HTTP server with sane defaults for this project.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
