package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/preauth-guard/assets"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/ports"
)

func samplePolicy() domain.Policy {
	return domain.Policy{
		Code:   "72148",
		Title:  "MRI lumbar spine",
		Payer:  "acme",
		Active: true,
		Rules: []domain.PolicyRule{
			{ID: "dx", Category: "Diagnosis", Operator: domain.OperatorMatchOne, Value: domain.ListValue("radiculopathy", "stenosis"), FailureMessage: "need dx"},
			{ID: "weeks", Category: "PT weeks", Operator: domain.OperatorGreaterThan, Value: domain.NumberValue(5), FailureMessage: "need 6 weeks"},
			{ID: "screen", Category: "Screening", Operator: domain.OperatorNotExists, FailureMessage: "no screening"},
		},
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "policies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type policyStore interface {
	ports.PolicyRuleStore
	ports.PolicyWriter
}

func TestStoresRoundTripPolicy(t *testing.T) {
	stores := map[string]func(t *testing.T) policyStore{
		"sqlite": func(t *testing.T) policyStore { return newSQLite(t) },
		"memory": func(*testing.T) policyStore { return NewMemoryStore() },
	}
	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			require.NoError(t, s.SavePolicy(ctx, samplePolicy()))

			got, found, err := s.ActivePolicy(ctx, "72148")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, samplePolicy(), got)

			_, found, err = s.ActivePolicy(ctx, "00000")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStoresHideInactivePolicies(t *testing.T) {
	ctx := context.Background()
	for _, s := range []policyStore{newSQLite(t), NewMemoryStore()} {
		inactive := samplePolicy()
		inactive.Active = false
		require.NoError(t, s.SavePolicy(ctx, inactive))

		_, found, err := s.ActivePolicy(ctx, inactive.Code)
		require.NoError(t, err)
		assert.False(t, found)

		listed, err := s.ListPolicies(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.False(t, listed[0].Active)
	}
}

func TestSQLiteSaveReplacesRules(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	require.NoError(t, s.SavePolicy(ctx, samplePolicy()))

	updated := samplePolicy()
	updated.Rules = updated.Rules[:1]
	updated.Title = "MRI lumbar spine (rev 2)"
	require.NoError(t, s.SavePolicy(ctx, updated))

	got, found, err := s.Policy(ctx, "72148")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "MRI lumbar spine (rev 2)", got.Title)
	assert.Len(t, got.Rules, 1)
}

func TestSQLiteListPoliciesOrdered(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	for _, code := range []string{"B2", "A1", "C3"} {
		p := samplePolicy()
		p.Code = code
		require.NoError(t, s.SavePolicy(ctx, p))
	}

	listed, err := s.ListPolicies(ctx)
	require.NoError(t, err)
	codes := make([]string, 0, len(listed))
	for _, p := range listed {
		codes = append(codes, p.Code)
		assert.Len(t, p.Rules, 3)
	}
	assert.Equal(t, []string{"A1", "B2", "C3"}, codes)
}

func TestSQLiteRejectsInvalidPolicy(t *testing.T) {
	s := newSQLite(t)
	bad := samplePolicy()
	bad.Rules = append(bad.Rules, domain.PolicyRule{ID: "dx", Category: "Dup", Operator: domain.OperatorExists})

	err := s.SavePolicy(context.Background(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule id")
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(samplePolicy())

	got, _, err := s.ActivePolicy(ctx, "72148")
	require.NoError(t, err)
	got.Rules[0].FailureMessage = "mutated"

	again, _, err := s.ActivePolicy(ctx, "72148")
	require.NoError(t, err)
	assert.Equal(t, "need dx", again.Rules[0].FailureMessage)
}

func TestDecodePolicies(t *testing.T) {
	doc := `policies:
  - code: "76872"
    rules:
      - id: r1
        category: Screening
        operator: not_exists
        failure_message: screening is excluded
      - id: r2
        category: Weeks
        operator: GREATER_THAN
        value: 6
`
	policies, err := DecodePolicies(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, policies, 1)

	p := policies[0]
	assert.True(t, p.Active, "active defaults to true")
	assert.Equal(t, domain.OperatorNotExists, p.Rules[0].Operator)
	assert.Equal(t, "screening is excluded", p.Rules[0].FailureMessage)
	n, ok := p.Rules[1].Value.Number()
	require.True(t, ok)
	assert.Equal(t, 6.0, n)
}

func TestDecodePoliciesRejectsUnknownOperator(t *testing.T) {
	doc := "policies:\n  - code: X\n    rules:\n      - id: r\n        category: C\n        operator: ROUGHLY\n"
	_, err := DecodePolicies(strings.NewReader(doc))
	require.Error(t, err)
}

func TestDecodePoliciesRejectsNonNumericThreshold(t *testing.T) {
	doc := "policies:\n  - code: X\n    rules:\n      - id: r\n        category: C\n        operator: LESS_THAN\n        value: lots\n"
	_, err := DecodePolicies(strings.NewReader(doc))
	require.Error(t, err)
}

func TestEmbeddedDefaultPoliciesImport(t *testing.T) {
	policies, err := DecodePolicies(bytes.NewReader(assets.DefaultPoliciesYAML))
	require.NoError(t, err)
	require.NotEmpty(t, policies)

	s := NewMemoryStore()
	n, err := Import(context.Background(), s, policies)
	require.NoError(t, err)
	assert.Equal(t, len(policies), n)

	p, found, err := s.ActivePolicy(context.Background(), "76872")
	require.NoError(t, err)
	require.True(t, found)

	var hasScreening bool
	for _, rule := range p.Rules {
		if rule.Category == "Screening" && rule.Operator == domain.OperatorNotExists {
			hasScreening = true
		}
	}
	assert.True(t, hasScreening, "76872 must exclude screening")
}
