package doctor

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/doeshing/preauth-guard/internal/application/config"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// PolicyStore is what the store check needs from the rule store.
type PolicyStore interface {
	Ping(ctx context.Context) error
	ListPolicies(ctx context.Context) ([]domain.Policy, error)
}

// RuleSet reports the redaction rules in effect.
type RuleSet interface {
	RuleNames() []string
}

// Service runs environment diagnostics. Store and Redaction are optional.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Store          PolicyStore
	Redaction      RuleSet
	RedactionErr   error
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail(domain.CheckConfigFile, fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail(domain.CheckConfigFile, err.Error()))
	} else {
		checks = append(checks, ok(domain.CheckConfigFile, fmt.Sprintf("format v%s, %d model(s)", cfg.ConfigFormatVersion, len(cfg.Models))))
	}

	checks = append(checks, apiCheck(cfg.Models))
	checks = append(checks, s.storeCheck(ctx))
	checks = append(checks, s.redactionCheck())

	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) storeCheck(ctx context.Context) domain.HealthCheck {
	if s.Store == nil {
		return warn(domain.CheckPolicyStore, "not initialized")
	}
	if err := s.Store.Ping(ctx); err != nil {
		return fail(domain.CheckPolicyStore, err.Error())
	}
	policies, err := s.Store.ListPolicies(ctx)
	if err != nil {
		return fail(domain.CheckPolicyStore, err.Error())
	}
	if len(policies) == 0 {
		return warn(domain.CheckPolicyStore, "no policies imported")
	}
	active := 0
	for _, p := range policies {
		if p.Active {
			active++
		}
	}
	return ok(domain.CheckPolicyStore, fmt.Sprintf("%d policies (%d active)", len(policies), active))
}

func (s *Service) redactionCheck() domain.HealthCheck {
	if s.RedactionErr != nil {
		return fail(domain.CheckRedactionRules, s.RedactionErr.Error())
	}
	if s.Redaction == nil {
		return warn(domain.CheckRedactionRules, "redactor not initialized")
	}
	return ok(domain.CheckRedactionRules, fmt.Sprintf("%d rules loaded", len(s.Redaction.RuleNames())))
}

func apiCheck(models []domain.ModelDefinition) domain.HealthCheck {
	for _, model := range models {
		if model.AuthEnvVar == "" {
			continue
		}
		if os.Getenv(model.AuthEnvVar) == "" {
			return warn(domain.CheckAPIKeys, fmt.Sprintf("%s missing for model %s", model.AuthEnvVar, model.Name))
		}
	}
	return ok(domain.CheckAPIKeys, "detected for configured providers")
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
