package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/doeshing/preauth-guard/internal/domain"
)

// Validate ensures config structure is consistent.
func Validate(cfg domain.Config) error {
	if len(cfg.Models) == 0 {
		return errors.New("at least one model must be configured")
	}
	if cfg.Preferences.DefaultModel == "" {
		cfg.Preferences.DefaultModel = cfg.Models[0].Name
	}
	if !cfg.HasModel(cfg.Preferences.DefaultModel) {
		return fmt.Errorf("default model %s not found in models list", cfg.Preferences.DefaultModel)
	}
	for _, model := range cfg.Models {
		if err := validateModel(model); err != nil {
			return err
		}
	}
	if cfg.Collaborator.TimeoutSeconds < 0 {
		return fmt.Errorf("collaborator.timeout_seconds must be >= 0")
	}
	if cfg.Verification.Parallelism < 0 {
		return fmt.Errorf("verification.parallelism must be >= 0")
	}
	if err := validateCache(cfg.Cache); err != nil {
		return err
	}
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	return validateLogging(cfg.Logging)
}

func validateModel(model domain.ModelDefinition) error {
	if strings.TrimSpace(model.Name) == "" {
		return errors.New("model name must be set")
	}
	if strings.TrimSpace(model.Endpoint) == "" {
		return fmt.Errorf("model %s: endpoint must be set", model.Name)
	}
	if model.MaxTokens < 0 {
		return fmt.Errorf("model %s: max_tokens must be >= 0", model.Name)
	}
	if model.Temperature < 0 || model.Temperature > 2 {
		return fmt.Errorf("model %s: temperature must be within 0..2", model.Name)
	}
	return nil
}

func validateCache(cache domain.CacheSettings) error {
	if cache.TTL == "" {
		cache.TTL = "1h"
	}
	ttl, err := time.ParseDuration(cache.TTL)
	if err != nil {
		return fmt.Errorf("cache.ttl invalid: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be >= 0")
	}
	return nil
}

func validateServer(server domain.ServerSettings) error {
	if server.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(server.Addr); err != nil {
		return fmt.Errorf("server.addr invalid: %w", err)
	}
	return nil
}

func validateLogging(logging domain.LoggingSettings) error {
	switch strings.ToLower(logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text|json, got %s", logging.Format)
	}
	switch strings.ToLower(logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug|info|warn|error, got %s", logging.Level)
	}
	return nil
}
