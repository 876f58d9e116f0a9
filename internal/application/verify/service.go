package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

const (
	collaboratorExtractor = "fact_extractor"
	collaboratorStore     = "policy_store"
)

// Service verifies a note against the active policy for a procedure code.
// Cache, Recorder and Timeout are optional.
type Service struct {
	Store       ports.PolicyRuleStore
	Extractor   ports.FactExtractor
	Cache       ports.VerificationCache
	Recorder    ports.GateRecorder
	Logger      ports.Logger
	Timeout     time.Duration
	Parallelism int
}

// Verify evaluates every active rule for code against facts extracted from
// noteText. A missing policy is MISSING_INFO, not an error; collaborator
// failures are returned as *domain.CollaboratorError.
func (s *Service) Verify(ctx context.Context, code, noteText string) (domain.VerificationResult, error) {
	if s.Store == nil || s.Extractor == nil || s.Logger == nil {
		return domain.VerificationResult{}, errors.New("verify.Service dependencies not satisfied")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.VerificationResult{}, fmt.Errorf("%w: procedure code is required", domain.ErrInvalidRequest)
	}

	runID := uuid.NewString()
	fields := map[string]interface{}{"run_id": runID, "code": code}

	cacheKey := domain.VerificationCacheKey(code, noteText)
	if s.Cache != nil {
		cached, ok, err := s.Cache.Get(cacheKey)
		if err != nil {
			s.Logger.Warn("verification cache read failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
		} else if ok {
			s.Logger.Debug("verification cache hit", fields)
			return cached, nil
		}
	}

	policy, found, err := s.Store.ActivePolicy(ctx, code)
	if err != nil {
		s.recordFailure(collaboratorStore)
		return domain.VerificationResult{}, domain.NewCollaboratorError(collaboratorStore, "active_policy",
			fmt.Errorf("%w: %w", domain.ErrPolicyStore, err))
	}
	if !found || !policy.Active || len(policy.Rules) == 0 {
		s.Logger.Info("no active policy rules", fields)
		result := missingPolicyResult(code)
		s.complete(result)
		return result, nil
	}

	categories := policy.Categories()
	facts, err := s.extract(ctx, noteText, categories)
	if err != nil {
		s.recordFailure(collaboratorExtractor)
		s.Logger.Error("fact extraction failed", err, fields)
		return domain.VerificationResult{}, err
	}

	result := Aggregate(code, policy.Rules, facts)
	s.Logger.Info("verification complete", map[string]interface{}{
		"run_id": runID,
		"code":   code,
		"status": string(result.Status),
		"rules":  len(result.Results),
		"failed": len(result.FailedRules()),
	})
	s.complete(result)

	if s.Cache != nil {
		if err := s.Cache.Set(cacheKey, result); err != nil {
			s.Logger.Warn("verification cache write failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
		}
	}
	return result, nil
}

// VerifyAll checks several codes against the same note concurrently. Results
// keep the order of codes. The first error cancels the remaining work.
func (s *Service) VerifyAll(ctx context.Context, codes []string, noteText string) ([]domain.VerificationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]domain.VerificationResult, len(codes))

	group, groupCtx := errgroup.WithContext(ctx)
	limit := s.Parallelism
	if limit <= 0 {
		limit = domain.DefaultVerificationParallelism
	}
	group.SetLimit(limit)

	for i, code := range codes {
		i, code := i, code
		group.Go(func() error {
			result, err := s.Verify(groupCtx, code, noteText)
			if err != nil {
				return fmt.Errorf("verify %s: %w", code, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Aggregate evaluates rules in order against facts and applies strict AND.
// Facts are matched to rules by exact category; absent categories are not found.
func Aggregate(code string, rules []domain.PolicyRule, facts map[string]domain.Fact) domain.VerificationResult {
	result := domain.VerificationResult{
		Code:        code,
		Status:      domain.VerificationApproved,
		Results:     make([]domain.RuleResult, 0, len(rules)),
		MissingInfo: []string{},
	}
	for _, rule := range rules {
		fact, ok := facts[rule.Category]
		if !ok {
			fact = domain.Fact{Category: rule.Category}
		}
		ruleResult := Evaluate(rule, fact)
		result.Results = append(result.Results, ruleResult)
		if !ruleResult.Met {
			result.Status = domain.VerificationDenied
			result.MissingInfo = append(result.MissingInfo, rule.FailureMessage)
		}
	}
	return result
}

func missingPolicyResult(code string) domain.VerificationResult {
	return domain.VerificationResult{
		Code:        code,
		Status:      domain.VerificationMissingInfo,
		Results:     []domain.RuleResult{},
		MissingInfo: []string{"No active policy rules found for code " + code},
	}
}

func (s *Service) extract(ctx context.Context, noteText string, categories []string) (map[string]domain.Fact, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	facts, err := s.Extractor.ExtractFacts(ctx, noteText, categories)
	if err != nil {
		return nil, domain.NewCollaboratorError(collaboratorExtractor, "extract_facts", err)
	}
	if facts == nil {
		facts = map[string]domain.Fact{}
	}
	return facts, nil
}

func (s *Service) complete(result domain.VerificationResult) {
	if s.Recorder != nil {
		s.Recorder.VerificationCompleted(result.Status)
	}
}

func (s *Service) recordFailure(collaborator string) {
	if s.Recorder != nil {
		s.Recorder.CollaboratorFailed(collaborator)
	}
}
