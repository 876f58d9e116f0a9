// Package guardrail post-processes the untrusted critique with deterministic
// hard gates.
//
// A gate is a predicate plus a declarative Effect. Gates never write state
// themselves: Pipeline.Run folds every fired Effect through tighten, which can
// only lower the score and move status and band toward the more restrictive
// value. Gate order is the slice order.
package guardrail

import (
	"fmt"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// State is the value the gates act on.
type State struct {
	Score       int
	Status      domain.OverallStatus
	Band        domain.ScoreBand
	MissingInfo []string
	Halted      bool
}

// Effect is what a fired gate asks for. Nil MaxScore leaves the score alone;
// empty Status or Band leave those alone.
type Effect struct {
	MaxScore    *int
	Status      domain.OverallStatus
	Band        domain.ScoreBand
	MissingInfo []string
	// Terminal stops the pipeline after this gate.
	Terminal bool
}

// Gate is one ordered rule over input In.
type Gate[In any] struct {
	Name   string
	When   func(in In, s State) (reason string, fired bool)
	Effect Effect
}

// Pipeline runs gates in order over one input.
type Pipeline[In any] struct {
	name     string
	gates    []Gate[In]
	recorder ports.GateRecorder
}

// NewPipeline builds a named pipeline. recorder may be nil.
func NewPipeline[In any](name string, recorder ports.GateRecorder, gates ...Gate[In]) Pipeline[In] {
	return Pipeline[In]{name: name, gates: gates, recorder: recorder}
}

// Run applies every gate in order and returns the final state and the log of
// gates that fired.
func (p Pipeline[In]) Run(in In, initial State) (State, domain.GateLog) {
	state := initial
	state.MissingInfo = append([]string(nil), initial.MissingInfo...)
	log := domain.GateLog{}

	for _, gate := range p.gates {
		if state.Halted {
			break
		}
		reason, fired := evaluate(gate, in, state)
		if !fired {
			continue
		}
		before := state.Score
		state = tighten(state, gate.Effect)
		log = append(log, fmt.Sprintf("[%s] %s (score %d -> %d)", gate.Name, reason, before, state.Score))
		if p.recorder != nil {
			p.recorder.GateFired(p.name, gate.Name)
		}
	}
	return state, log
}

// evaluate runs the predicate. A predicate that panics counts as fired.
func evaluate[In any](gate Gate[In], in In, s State) (reason string, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			reason = fmt.Sprintf("gate evaluation failed: %v", r)
			fired = true
		}
	}()
	if gate.When == nil {
		return "", false
	}
	return gate.When(in, s)
}

func tighten(s State, e Effect) State {
	if e.MaxScore != nil && *e.MaxScore < s.Score {
		s.Score = *e.MaxScore
	}
	s.Status = domain.StricterStatus(s.Status, e.Status)
	s.Band = domain.StricterBand(s.Band, e.Band)
	for _, item := range e.MissingInfo {
		if !contains(s.MissingInfo, item) {
			s.MissingInfo = append(s.MissingInfo, item)
		}
	}
	s.Halted = s.Halted || e.Terminal
	return s
}

func maxScore(n int) *int {
	return &n
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
