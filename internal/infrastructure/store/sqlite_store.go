package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/pkg/filesystem"
	"github.com/doeshing/preauth-guard/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	code TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	payer TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS policy_rules (
	policy_code TEXT NOT NULL REFERENCES policies(code) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	rule_id TEXT NOT NULL,
	category TEXT NOT NULL,
	operator TEXT NOT NULL,
	value TEXT NOT NULL,
	failure_message TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (policy_code, rule_id)
);`

// SQLiteStore keeps payer policies and their rules in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// DefaultPath returns ~/.pguard/policies.db.
func DefaultPath() string {
	return filepath.Join(filesystem.UserHomeDir(), ".pguard", "policies.db")
}

// NewSQLiteStore opens (or creates) the database at path. An empty path uses DefaultPath.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open policy store: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init policy store: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}
	_, err := s.db.Exec(schema)
	return err
}

// ActivePolicy implements ports.PolicyRuleStore. Inactive policies are reported as not found.
func (s *SQLiteStore) ActivePolicy(ctx context.Context, code string) (domain.Policy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, err := s.loadPolicy(ctx, strings.TrimSpace(code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Policy{}, false, nil
	}
	if err != nil {
		return domain.Policy{}, false, err
	}
	if !policy.Active {
		return domain.Policy{}, false, nil
	}
	return policy, true, nil
}

// Policy returns a policy regardless of its active flag.
func (s *SQLiteStore) Policy(ctx context.Context, code string) (domain.Policy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, err := s.loadPolicy(ctx, strings.TrimSpace(code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Policy{}, false, nil
	}
	if err != nil {
		return domain.Policy{}, false, err
	}
	return policy, true, nil
}

func (s *SQLiteStore) loadPolicy(ctx context.Context, code string) (domain.Policy, error) {
	var policy domain.Policy
	var active int
	row := s.db.QueryRowContext(ctx, `SELECT code, title, payer, active FROM policies WHERE code = ?`, code)
	if err := row.Scan(&policy.Code, &policy.Title, &policy.Payer, &active); err != nil {
		return domain.Policy{}, err
	}
	policy.Active = active == 1

	rules, err := s.loadRules(ctx, code)
	if err != nil {
		return domain.Policy{}, err
	}
	policy.Rules = rules
	return policy, nil
}

func (s *SQLiteStore) loadRules(ctx context.Context, code string) ([]domain.PolicyRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, category, operator, value, failure_message
		FROM policy_rules WHERE policy_code = ? ORDER BY position`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.PolicyRule
	for rows.Next() {
		var rule domain.PolicyRule
		var operator, value string
		if err := rows.Scan(&rule.ID, &rule.Category, &operator, &value, &rule.FailureMessage); err != nil {
			return nil, err
		}
		if rule.Operator, err = domain.ParseOperator(operator); err != nil {
			return nil, fmt.Errorf("policy %s rule %s: %w", code, rule.ID, err)
		}
		if err := json.Unmarshal([]byte(value), &rule.Value); err != nil {
			return nil, fmt.Errorf("policy %s rule %s: decode value: %w", code, rule.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SavePolicy implements ports.PolicyWriter. Existing rules for the code are replaced.
func (s *SQLiteStore) SavePolicy(ctx context.Context, policy domain.Policy) error {
	if err := ValidatePolicy(policy); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO policies (code, title, payer, active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET title = excluded.title, payer = excluded.payer,
			active = excluded.active, updated_at = excluded.updated_at`,
		policy.Code, policy.Title, policy.Payer, boolToInt(policy.Active), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert policy %s: %w", policy.Code, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_rules WHERE policy_code = ?`, policy.Code); err != nil {
		return fmt.Errorf("clear rules for %s: %w", policy.Code, err)
	}
	for i, rule := range policy.Rules {
		value, err := json.Marshal(rule.Value)
		if err != nil {
			return fmt.Errorf("encode rule %s value: %w", rule.ID, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO policy_rules
			(policy_code, position, rule_id, category, operator, value, failure_message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			policy.Code, i, rule.ID, rule.Category, rule.Operator.String(), string(value), rule.FailureMessage)
		if err != nil {
			return fmt.Errorf("insert rule %s: %w", rule.ID, err)
		}
	}
	return tx.Commit()
}

// ListPolicies implements ports.PolicyWriter, ordered by code.
func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT code FROM policies ORDER BY code`)
	if err != nil {
		return nil, err
	}
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	policies := make([]domain.Policy, 0, len(codes))
	for _, code := range codes {
		policy, err := s.loadPolicy(ctx, code)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ ports.PolicyRuleStore = (*SQLiteStore)(nil)
	_ ports.PolicyWriter    = (*SQLiteStore)(nil)
)
