package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	root := t.TempDir()
	return &Runtime{workspaceRoot: root}
}

func TestToolReadWrite(t *testing.T) {
	r := newTestRuntime(t)

	if _, err := r.toolWrite("notes.md", "hello there"); err != nil {
		t.Fatalf("toolWrite: %v", err)
	}

	got, err := r.toolRead("notes.md")
	if err != nil {
		t.Fatalf("toolRead: %v", err)
	}
	if got != "hello there" {
		t.Errorf("toolRead = %q, want %q", got, "hello there")
	}
}

func TestToolEditReplacesFirstOccurrence(t *testing.T) {
	r := newTestRuntime(t)
	if _, err := r.toolWrite("notes.md", "one two one"); err != nil {
		t.Fatalf("toolWrite: %v", err)
	}

	if _, err := r.toolEdit("notes.md", "one", "ONE"); err != nil {
		t.Fatalf("toolEdit: %v", err)
	}

	got, err := r.toolRead("notes.md")
	if err != nil {
		t.Fatalf("toolRead: %v", err)
	}
	if got != "ONE two one" {
		t.Errorf("toolEdit result = %q, want %q", got, "ONE two one")
	}
}

func TestToolEditMissingOldTextReportsNotFound(t *testing.T) {
	r := newTestRuntime(t)
	if _, err := r.toolWrite("notes.md", "some content"); err != nil {
		t.Fatalf("toolWrite: %v", err)
	}

	out, err := r.toolEdit("notes.md", "absent text", "replacement")
	if err != nil {
		t.Fatalf("toolEdit returned error instead of reporting miss: %v", err)
	}
	if out != "old content not found" {
		t.Errorf("toolEdit = %q, want %q", out, "old content not found")
	}
}

func TestToolListDirNonRecursive(t *testing.T) {
	r := newTestRuntime(t)
	if err := os.MkdirAll(filepath.Join(r.workspaceRoot, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := r.toolWrite("a.txt", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.toolWrite("sub/b.txt", "b"); err != nil {
		t.Fatal(err)
	}

	out, err := r.toolListDir(".", "", false)
	if err != nil {
		t.Fatalf("toolListDir: %v", err)
	}

	if !strings.Contains(out, "a.txt") {
		t.Errorf("expected top-level file listed, got: %q", out)
	}
	if !strings.Contains(out, "sub/") {
		t.Errorf("expected subdirectory listed without descending, got: %q", out)
	}
	if strings.Contains(out, "b.txt") {
		t.Errorf("non-recursive listing should not descend into sub/, got: %q", out)
	}
}

func TestToolListDirRecursive(t *testing.T) {
	r := newTestRuntime(t)
	if err := os.MkdirAll(filepath.Join(r.workspaceRoot, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := r.toolWrite("sub/b.txt", "b"); err != nil {
		t.Fatal(err)
	}

	out, err := r.toolListDir(".", "", true)
	if err != nil {
		t.Fatalf("toolListDir: %v", err)
	}
	if !strings.Contains(out, filepath.Join("sub", "b.txt")) {
		t.Errorf("recursive listing should include nested file, got: %q", out)
	}
}

func TestToolFileSearchFindsMatches(t *testing.T) {
	r := newTestRuntime(t)
	if _, err := r.toolWrite("a.go", "package main\nfunc Foo() {}\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.toolWrite("b.go", "package main\nfunc Bar() {}\n"); err != nil {
		t.Fatal(err)
	}

	out, err := r.toolFileSearch("func Foo", "*.go", true, true, 10)
	if err != nil {
		t.Fatalf("toolFileSearch: %v", err)
	}
	if !strings.Contains(out, "a.go:2:") {
		t.Errorf("expected match in a.go at line 2, got: %q", out)
	}
	if strings.Contains(out, "b.go") {
		t.Errorf("expected no match in b.go, got: %q", out)
	}
}

func TestToolFileSearchRespectsMaxResults(t *testing.T) {
	r := newTestRuntime(t)
	content := strings.Repeat("target\n", 5)
	if _, err := r.toolWrite("a.txt", content); err != nil {
		t.Fatal(err)
	}

	out, err := r.toolFileSearch("target", "", true, true, 2)
	if err != nil {
		t.Fatalf("toolFileSearch: %v", err)
	}
	if got := strings.Count(out, "target"); got != 2 {
		t.Errorf("expected maxResults to cap at 2 matches, got %d in %q", got, out)
	}
}

func TestToolFileSearchInvalidPattern(t *testing.T) {
	r := newTestRuntime(t)
	out, err := r.toolFileSearch("(unclosed", "", true, false, 10)
	if err != nil {
		t.Fatalf("toolFileSearch should report invalid patterns, not error: %v", err)
	}
	if !strings.HasPrefix(out, "invalid pattern:") {
		t.Errorf("expected invalid pattern message, got: %q", out)
	}
}

func TestMatchesGlob(t *testing.T) {
	if !matchesGlob("", "anything") {
		t.Error("empty glob should match everything")
	}
	if !matchesGlob("*.go", "main.go") {
		t.Error("*.go should match main.go")
	}
	if matchesGlob("*.go", "main.py") {
		t.Error("*.go should not match main.py")
	}
}

func TestLooksBinary(t *testing.T) {
	if looksBinary([]byte("plain text content")) {
		t.Error("plain text should not look binary")
	}
	if !looksBinary([]byte("binary\x00content")) {
		t.Error("content with a null byte should look binary")
	}
}

func TestTruncateOutput(t *testing.T) {
	short := "short output"
	if got := truncateOutput(short); got != short {
		t.Errorf("short output should be unchanged, got: %q", got)
	}

	long := strings.Repeat("x", maxToolOutputChars+500)
	got := truncateOutput(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated output should end with '...', got suffix: %q", got[len(got)-10:])
	}
	if len(got) != maxToolOutputChars+len("...") {
		t.Errorf("truncated output length = %d, want %d", len(got), maxToolOutputChars+len("..."))
	}
}
