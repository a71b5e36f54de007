package mcpregistry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDescriptors(t *testing.T) {
	dir := t.TempDir()
	content := "url: https://example.test/mcp\nheaders:\n  Authorization: \"Bearer ${TEST_MCP_TOKEN}\"\ntimeout: 10s\n"
	if err := os.WriteFile(filepath.Join(dir, "github.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	descriptors, err := loadDescriptors(dir)
	if err != nil {
		t.Fatalf("loadDescriptors: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(descriptors))
	}
	d := descriptors[0]
	if d.Name != "github" {
		t.Errorf("name = %q, want github", d.Name)
	}
	if d.URL != "https://example.test/mcp" {
		t.Errorf("url = %q", d.URL)
	}
	if d.timeoutOrDefault() != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", d.timeoutOrDefault())
	}
}

func TestExpandedHeadersSubstitutesEnv(t *testing.T) {
	t.Setenv("TEST_MCP_TOKEN", "secret123")
	d := ServerDescriptor{Headers: map[string]string{"Authorization": "Bearer ${TEST_MCP_TOKEN}"}}
	headers := d.expandedHeaders()
	if headers["Authorization"] != "Bearer secret123" {
		t.Errorf("got %q", headers["Authorization"])
	}
}

func TestTimeoutOrDefaultFallback(t *testing.T) {
	d := ServerDescriptor{Timeout: "not-a-duration"}
	if d.timeoutOrDefault() != 30*time.Second {
		t.Errorf("expected 30s fallback, got %v", d.timeoutOrDefault())
	}
	d2 := ServerDescriptor{}
	if d2.timeoutOrDefault() != 30*time.Second {
		t.Errorf("expected 30s default, got %v", d2.timeoutOrDefault())
	}
}

func TestLoadDescriptorsMissingURL(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("timeout: 5s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadDescriptors(dir); err == nil {
		t.Fatal("expected error for missing url field")
	}
}

func TestLoadDescriptorsMissingDir(t *testing.T) {
	descriptors, err := loadDescriptors(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing directory should not be an error: %v", err)
	}
	if descriptors != nil {
		t.Errorf("expected nil descriptors, got %v", descriptors)
	}
}
