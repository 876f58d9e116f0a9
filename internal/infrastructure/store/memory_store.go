package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// MemoryStore is an in-process policy store for embedders that keep
// policies in memory and for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]domain.Policy
}

// NewMemoryStore creates a store seeded with policies.
func NewMemoryStore(policies ...domain.Policy) *MemoryStore {
	store := &MemoryStore{policies: make(map[string]domain.Policy, len(policies))}
	for _, policy := range policies {
		store.policies[policy.Code] = clonePolicy(policy)
	}
	return store
}

func (m *MemoryStore) ActivePolicy(_ context.Context, code string) (domain.Policy, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.policies[strings.TrimSpace(code)]
	if !ok || !policy.Active {
		return domain.Policy{}, false, nil
	}
	return clonePolicy(policy), true, nil
}

func (m *MemoryStore) SavePolicy(_ context.Context, policy domain.Policy) error {
	if err := ValidatePolicy(policy); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.Code] = clonePolicy(policy)
	return nil
}

func (m *MemoryStore) ListPolicies(context.Context) ([]domain.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Policy, 0, len(m.policies))
	for _, policy := range m.policies {
		out = append(out, clonePolicy(policy))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// clonePolicy copies the rule slice so callers never share it with the store.
func clonePolicy(p domain.Policy) domain.Policy {
	p.Rules = append([]domain.PolicyRule(nil), p.Rules...)
	return p
}

var (
	_ ports.PolicyRuleStore = (*MemoryStore)(nil)
	_ ports.PolicyWriter    = (*MemoryStore)(nil)
)
