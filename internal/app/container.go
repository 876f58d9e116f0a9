package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/doeshing/preauth-guard/assets"
	appconfig "github.com/doeshing/preauth-guard/internal/application/config"
	"github.com/doeshing/preauth-guard/internal/application/doctor"
	"github.com/doeshing/preauth-guard/internal/application/guardrail"
	"github.com/doeshing/preauth-guard/internal/application/review"
	"github.com/doeshing/preauth-guard/internal/application/verify"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/ai"
	"github.com/doeshing/preauth-guard/internal/infrastructure/cache"
	"github.com/doeshing/preauth-guard/internal/infrastructure/config"
	"github.com/doeshing/preauth-guard/internal/infrastructure/httpapi"
	"github.com/doeshing/preauth-guard/internal/infrastructure/metrics"
	"github.com/doeshing/preauth-guard/internal/infrastructure/security"
	"github.com/doeshing/preauth-guard/internal/infrastructure/store"
	"github.com/doeshing/preauth-guard/internal/pkg/logger"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// Options controls how the container is built.
type Options struct {
	ConfigPath string
	Verbose    bool
	// Timeout overrides collaborator.timeout_seconds when positive.
	Timeout time.Duration
	// LogWriter receives log output; defaults to stderr.
	LogWriter io.Writer
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config         domain.Config
	ConfigProvider ports.ConfigProvider
	ConfigLoader   *config.FileLoader
	Logger         ports.Logger
	Redactor       *security.Redactor
	Store          *store.SQLiteStore
	Cache          *cache.FileCache
	Metrics        *metrics.Metrics
	Engine         *guardrail.Engine
	VerifyService  *verify.Service
	ReviewService  *review.Service
	DoctorService  *doctor.Service
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", cfgLoader.Path(), err)
	}

	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	out := opts.LogWriter
	if out == nil {
		out = os.Stderr
	}
	baseLogger := logger.New(level, cfg.Logging.Format, out)

	if err := writeIfMissing(security.ResolveRulesPath(cfg.Redaction.RulesFile), assets.DefaultRedactionYAML); err != nil {
		baseLogger.Warn("could not write default redaction rules", map[string]interface{}{"error": err.Error()})
	}
	redactor, redactionErr := security.NewRedactor(cfg.Redaction.RulesFile)
	if redactionErr != nil {
		baseLogger.Warn("redaction rules file rejected; using built-in rules", map[string]interface{}{"error": redactionErr.Error()})
		redactor = security.Default()
	}
	log := logger.NewRedacting(baseLogger, redactor)

	ruleStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(ctx, ruleStore, log); err != nil {
		_ = ruleStore.Close()
		return nil, err
	}

	recorder := metrics.New()
	engine := guardrail.NewEngine(recorder)

	factory := ai.NewFactory(redactor, log)
	model, err := cfg.PickModel("")
	if err != nil {
		_ = ruleStore.Close()
		return nil, err
	}
	provider, err := factory.ForModel(model)
	if err != nil {
		_ = ruleStore.Close()
		return nil, err
	}

	timeout := cfg.CollaboratorTimeout()
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	verifyService := &verify.Service{
		Store:       ruleStore,
		Extractor:   ai.NewFactExtractor(provider, opts.Verbose),
		Recorder:    recorder,
		Logger:      log,
		Timeout:     timeout,
		Parallelism: cfg.VerificationParallelism(),
	}

	var verificationCache *cache.FileCache
	if cfg.Cache.Enabled {
		verificationCache = cache.NewFileCache(cfg.Cache.Dir, cfg.CacheTTL(), cfg.Cache.MaxEntries)
		verifyService.Cache = verificationCache
	}

	reviewService := &review.Service{
		Redactor: redactor,
		Verifier: verifyService,
		Critic:   ai.NewCritiqueGenerator(provider, opts.Verbose),
		Critics: func(name string) (ports.CritiqueGenerator, error) {
			override, ok := cfg.FindModelByName(name)
			if !ok {
				return nil, fmt.Errorf("model %s not configured", name)
			}
			p, err := factory.ForModel(override)
			if err != nil {
				return nil, err
			}
			return ai.NewCritiqueGenerator(p, opts.Verbose), nil
		},
		Engine:   engine,
		Recorder: recorder,
		Logger:   log,
		Timeout:  timeout,
	}

	doctorService := &doctor.Service{
		ConfigProvider: cfgLoader,
		Store:          ruleStore,
		Redaction:      redactor,
		RedactionErr:   redactionErr,
	}

	return &Container{
		Config:         cfg,
		ConfigProvider: cfgLoader,
		ConfigLoader:   cfgLoader,
		Logger:         log,
		Redactor:       redactor,
		Store:          ruleStore,
		Cache:          verificationCache,
		Metrics:        recorder,
		Engine:         engine,
		VerifyService:  verifyService,
		ReviewService:  reviewService,
		DoctorService:  doctorService,
	}, nil
}

// HTTPHandler builds the API router over the container's services.
func (c *Container) HTTPHandler() *httpapi.Handler {
	return httpapi.New(httpapi.Deps{
		Redactor: c.Redactor,
		Verifier: c.VerifyService,
		Engine:   c.Engine,
		Reviewer: c.ReviewService,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	})
}

// Close releases the rule store.
func (c *Container) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// seedPolicies imports the embedded default policies into an empty store.
func seedPolicies(ctx context.Context, ruleStore *store.SQLiteStore, log ports.Logger) error {
	existing, err := ruleStore.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	policies, err := store.DecodePolicies(bytes.NewReader(assets.DefaultPoliciesYAML))
	if err != nil {
		return fmt.Errorf("decode embedded policies: %w", err)
	}
	count, err := store.Import(ctx, ruleStore, policies)
	if err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}
	log.Info("seeded default policies", map[string]interface{}{"count": count, "path": ruleStore.Path()})
	return nil
}

func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return err
	}
	return os.WriteFile(path, content, domain.SecureFilePermissions)
}
