// Package review runs one end-to-end scoring request: redact, optionally
// verify against policy, critique the draft, then gate the critique.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/preauth-guard/internal/application/guardrail"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

const collaboratorCritique = "critique_generator"

// Verifier is the subset of verify.Service the review flow needs.
type Verifier interface {
	Verify(ctx context.Context, code, noteText string) (domain.VerificationResult, error)
}

// CriticResolver returns the critique collaborator for a named model.
type CriticResolver func(model string) (ports.CritiqueGenerator, error)

// Service orchestrates a review. Verifier, Critics and Recorder are optional.
type Service struct {
	Redactor ports.Redactor
	Verifier Verifier
	Critic   ports.CritiqueGenerator
	Critics  CriticResolver
	Engine   *guardrail.Engine
	Recorder ports.GateRecorder
	Logger   ports.Logger
	Timeout  time.Duration
}

// Run scores req. Every score in the response has passed the guardrails; the
// raw critique is never returned.
func (s *Service) Run(ctx context.Context, req domain.ReviewRequest) (domain.ReviewResponse, error) {
	if s.Redactor == nil || s.Critic == nil || s.Engine == nil || s.Logger == nil {
		return domain.ReviewResponse{}, errors.New("review.Service dependencies not satisfied")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	mode, err := normalizeMode(req.Mode)
	if err != nil {
		return domain.ReviewResponse{}, err
	}
	if strings.TrimSpace(req.DraftLetter) == "" {
		return domain.ReviewResponse{}, fmt.Errorf("%w: draft letter is required", domain.ErrInvalidRequest)
	}

	runID := uuid.NewString()
	fields := map[string]interface{}{"run_id": runID, "mode": string(mode)}

	note := s.Redactor.Redact(req.NoteText, req.PatientName)
	draft := s.Redactor.Redact(req.DraftLetter, req.PatientName)
	denialReason := s.Redactor.Redact(req.DenialReason, req.PatientName)

	response := domain.ReviewResponse{RunID: runID, Mode: mode}

	if code := strings.TrimSpace(req.ProcedureCode); code != "" && s.Verifier != nil {
		result, err := s.Verifier.Verify(ctx, code, note)
		if err != nil {
			s.Logger.Error("review verification failed", err, fields)
			return domain.ReviewResponse{}, fmt.Errorf("verify %s: %w", code, err)
		}
		response.Verification = &result
	}

	critic, err := s.critic(req.ModelOverride)
	if err != nil {
		return domain.ReviewResponse{}, err
	}

	critique, err := s.critique(ctx, critic, ports.CritiqueRequest{
		DraftLetter:  draft,
		Specialty:    req.Specialty,
		Mode:         mode,
		DenialReason: denialReason,
	})
	if err != nil {
		if s.Recorder != nil {
			s.Recorder.CollaboratorFailed(collaboratorCritique)
		}
		s.Logger.Error("critique failed", err, fields)
		return domain.ReviewResponse{}, err
	}

	if mode == domain.ReviewAppeal {
		response.Audit, response.GateLog = s.Engine.ApplyAppealGuardrails(critique, denialReason)
	} else {
		response.Audit, response.GateLog = s.Engine.ApplyGuardrails(critique, req.Specialty)
	}
	if response.GateLog == nil {
		response.GateLog = domain.GateLog{}
	}

	s.Logger.Info("review complete", map[string]interface{}{
		"run_id": runID,
		"mode":   string(mode),
		"score":  response.Audit.ClinicalScore,
		"status": string(response.Audit.OverallStatus),
		"gates":  len(response.GateLog),
	})
	return response, nil
}

func (s *Service) critic(model string) (ports.CritiqueGenerator, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return s.Critic, nil
	}
	if s.Critics == nil {
		return nil, fmt.Errorf("%w: model override not supported", domain.ErrInvalidRequest)
	}
	critic, err := s.Critics(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return critic, nil
}

func (s *Service) critique(ctx context.Context, critic ports.CritiqueGenerator, req ports.CritiqueRequest) (domain.Critique, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	critique, err := critic.Critique(ctx, req)
	if err != nil {
		return domain.Critique{}, domain.NewCollaboratorError(collaboratorCritique, "critique", err)
	}
	return critique, nil
}

func normalizeMode(mode domain.ReviewMode) (domain.ReviewMode, error) {
	switch domain.ReviewMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case "", domain.ReviewPreauth:
		return domain.ReviewPreauth, nil
	case domain.ReviewAppeal:
		return domain.ReviewAppeal, nil
	default:
		return "", fmt.Errorf("%w: unknown review mode %q", domain.ErrInvalidRequest, mode)
	}
}
