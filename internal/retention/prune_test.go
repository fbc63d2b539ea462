package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// makeBatches creates n batch directories with strictly increasing mtimes and
// returns their paths, oldest first.
func makeBatches(t *testing.T, base string, n int) []string {
	t.Helper()
	paths := make([]string, 0, n)
	start := time.Now().Add(-time.Duration(n+1) * time.Hour)
	for i := 0; i < n; i++ {
		p := filepath.Join(base, "batch_2025060"+string(rune('1'+i))+"_000000")
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		mt := start.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestPruneKeepsNewest(t *testing.T) {
	base := t.TempDir()
	paths := makeBatches(t, base, 5)

	removed, err := Prune(base, 2, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	for _, p := range paths[:3] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("old batch %s should be gone", p)
		}
	}
	for _, p := range paths[3:] {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("newest batch %s should survive: %v", p, err)
		}
	}
}

func TestPruneNegativeKeepRemovesNothing(t *testing.T) {
	base := t.TempDir()
	paths := makeBatches(t, base, 3)

	removed, err := Prune(base, -1, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("batch %s must survive keep<0: %v", p, err)
		}
	}
}

func TestPruneIgnoresForeignEntries(t *testing.T) {
	base := t.TempDir()
	makeBatches(t, base, 1)
	foreign := filepath.Join(base, "results")
	if err := os.MkdirAll(foreign, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "batch_19990101_000000"), []byte("a file, not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := Prune(base, 0, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want only the one real batch dir", removed)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("non-batch dir must never be deleted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "batch_19990101_000000")); err != nil {
		t.Fatalf("plain files must never be deleted: %v", err)
	}
}

func TestPruneMissingBase(t *testing.T) {
	removed, err := Prune(filepath.Join(t.TempDir(), "nope"), 3, nil)
	if err != nil || removed != 0 {
		t.Fatalf("missing base should be a no-op, got %d, %v", removed, err)
	}
}

func TestPruneKeepLargerThanCount(t *testing.T) {
	base := t.TempDir()
	makeBatches(t, base, 2)
	removed, err := Prune(base, 10, nil)
	if err != nil || removed != 0 {
		t.Fatalf("keep larger than count removes nothing, got %d, %v", removed, err)
	}
}
