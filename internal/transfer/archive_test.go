package transfer

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "project")
	writeFile(t, filepath.Join(src, "main.py"), "print('hi')\n")
	writeFile(t, filepath.Join(src, "data", "input", "face.png"), "not-really-a-png")
	writeFile(t, filepath.Join(src, ".git", "config"), "[core]")
	writeFile(t, filepath.Join(src, "lib", "__pycache__", "mod.cpython-311.pyc"), "bytecode")
	writeFile(t, filepath.Join(src, "lib", "mod.py"), "x = 1\n")
	writeFile(t, filepath.Join(src, "old.pyo"), "bytecode")

	var buf bytes.Buffer
	if err := Pack(src, &buf, DefaultExclude); err != nil {
		t.Fatalf("pack: %v", err)
	}

	dest := t.TempDir()
	if err := Unpack(bytes.NewReader(buf.Bytes()), dest); err != nil {
		t.Fatalf("unpack: %v", err)
	}

	for _, want := range []struct{ rel, content string }{
		{"project/main.py", "print('hi')\n"},
		{"project/data/input/face.png", "not-really-a-png"},
		{"project/lib/mod.py", "x = 1\n"},
	} {
		got, err := os.ReadFile(filepath.Join(dest, want.rel))
		if err != nil {
			t.Fatalf("missing %s: %v", want.rel, err)
		}
		if string(got) != want.content {
			t.Fatalf("%s content mismatch: %q", want.rel, got)
		}
	}
	for _, absent := range []string{
		"project/.git/config",
		"project/lib/__pycache__/mod.cpython-311.pyc",
		"project/old.pyo",
	} {
		if _, err := os.Stat(filepath.Join(dest, absent)); err == nil {
			t.Fatalf("%s should have been excluded", absent)
		}
	}
}

func TestDefaultExclude(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"project/.git/HEAD", true},
		{"project/.git", true},
		{"project/node_modules/left-pad/index.js", true},
		{"project/a/__pycache__/b.pyc", true},
		{"project/.mypy_cache/x", true},
		{"project/.pytest_cache/x", true},
		{"project/x.pyc", true},
		{"project/x.pyo", true},
		{"project/main.py", false},
		{"project/gitignore.txt", false},
		{"project/data/outputs/img.png", false},
	}
	for _, c := range cases {
		if got := DefaultExclude(c.name); got != c.want {
			t.Fatalf("DefaultExclude(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte("owned")
	if err := tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	err := Unpack(bytes.NewReader(buf.Bytes()), dest)
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("expected escape rejection, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt")); statErr == nil {
		t.Fatalf("escaping file was written")
	}
}
