package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/preauth-guard/internal/domain"
)

func sampleResult() domain.VerificationResult {
	return domain.VerificationResult{
		Code:   "76872",
		Status: domain.VerificationDenied,
		Results: []domain.RuleResult{
			{RuleID: "r1", Category: "Screening", Met: false, Evidence: `Found in note: "screening"`, FailureMessage: "no screening"},
		},
		MissingInfo: []string{"no screening"},
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	c := NewFileCache(t.TempDir(), time.Hour, 10)
	key := domain.VerificationCacheKey("76872", "note text")

	if _, ok, err := c.Get(key); err != nil || ok {
		t.Fatalf("empty cache Get = ok:%v err:%v", ok, err)
	}
	if err := c.Set(key, sampleResult()); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get = ok:%v err:%v", ok, err)
	}
	if diff := cmp.Diff(sampleResult(), got); diff != "" {
		t.Fatalf("cached result mismatch (-want +got):\n%s", diff)
	}
}

func TestFileCacheNeverStoresNoteText(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, time.Hour, 10)
	note := "Patient Jane Roe SSN 123-45-6789"
	if err := c.Set(domain.VerificationCacheKey("76872", note), sampleResult()); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	files, _ := os.ReadDir(dir)
	for _, f := range files {
		data, _ := os.ReadFile(filepath.Join(dir, f.Name()))
		if strings.Contains(string(data), "Jane Roe") || strings.Contains(string(data), "123-45-6789") {
			t.Fatalf("note text leaked into cache file %s", f.Name())
		}
	}
}

func TestFileCacheExpires(t *testing.T) {
	c := NewFileCache(t.TempDir(), time.Minute, 10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := domain.VerificationCacheKey("1", "n")
	if err := c.Set(key, sampleResult()); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	stats, err := c.Stats()
	if err != nil || stats.Entries != 1 || stats.Expired != 1 {
		t.Fatalf("Stats = %+v err:%v", stats, err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatal("expected expired entry to miss")
	}
	if stats, _ := c.Stats(); stats.Entries != 0 {
		t.Fatalf("expired entry not removed: %+v", stats)
	}
}

func TestFileCacheEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, time.Hour, 2)
	keys := []string{
		domain.VerificationCacheKey("a", "n"),
		domain.VerificationCacheKey("b", "n"),
		domain.VerificationCacheKey("c", "n"),
	}
	base := time.Now().Add(-time.Hour)
	for i, key := range keys {
		if err := c.Set(key, sampleResult()); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		_ = os.Chtimes(filepath.Join(dir, key+".json"), mod, mod)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 2 {
		t.Fatalf("entries = %d, want 2", len(files))
	}
	if _, ok, _ := c.Get(keys[0]); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}

func TestFileCacheRejectsUnsafeKeys(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, time.Hour, 10)
	if err := c.Set("../escape", sampleResult()); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); !os.IsNotExist(err) {
		t.Fatal("unsafe key wrote outside the cache dir")
	}
}

func TestFileCacheClear(t *testing.T) {
	c := NewFileCache(filepath.Join(t.TempDir(), "cache"), time.Hour, 10)
	key := domain.VerificationCacheKey("1", "n")
	_ = c.Set(key, sampleResult())
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatal("entry survived Clear")
	}
}
