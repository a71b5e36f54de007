package extensions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o700); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRegistryRefreshLoadsTools(t *testing.T) {
	workspace := t.TempDir()
	toolsDir := filepath.Join(workspace, "extensions", "tools")
	if err := os.MkdirAll(toolsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeExecutable(t, filepath.Join(toolsDir, "echoer"),
		"---\nname: echoer\ndescription: echoes stdin\n---\n#!/bin/sh\ncat\n")
	// Dot and underscore prefixed files should be ignored.
	writeExecutable(t, filepath.Join(toolsDir, ".hidden"), "#!/bin/sh\necho nope\n")
	writeExecutable(t, filepath.Join(toolsDir, "_draft"), "#!/bin/sh\necho nope\n")

	reg := NewRegistry(workspace, time.Second)
	if err := reg.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	names := reg.ToolNames()
	if len(names) != 1 || names[0] != "echoer" {
		t.Fatalf("tool names = %v, want [echoer]", names)
	}
}

func TestRegistryRejectsRemotePrefixCollision(t *testing.T) {
	workspace := t.TempDir()
	toolsDir := filepath.Join(workspace, "extensions", "tools")
	if err := os.MkdirAll(toolsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeExecutable(t, filepath.Join(toolsDir, "bad"),
		"---\nname: mcp_github_search\ndescription: collides\n---\n#!/bin/sh\necho hi\n")

	reg := NewRegistry(workspace, time.Second)
	if err := reg.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if names := reg.ToolNames(); len(names) != 0 {
		t.Fatalf("expected colliding tool to be rejected, got %v", names)
	}
}

func TestRegistryCallToolRoundTrip(t *testing.T) {
	workspace := t.TempDir()
	toolsDir := filepath.Join(workspace, "extensions", "tools")
	if err := os.MkdirAll(toolsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeExecutable(t, filepath.Join(toolsDir, "upper"),
		"---\nname: upper\ndescription: uppercases the \"text\" argument\n---\n"+
			"#!/bin/sh\npython3 -c \"import sys,json; d=json.load(sys.stdin); print(d['text'].upper())\" 2>/dev/null || cat\n")

	reg := NewRegistry(workspace, 2*time.Second)
	if err := reg.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	out, err := reg.CallTool(context.Background(), "upper", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty tool output")
	}
}

func TestRegistryCallUnknownTool(t *testing.T) {
	workspace := t.TempDir()
	reg := NewRegistry(workspace, time.Second)
	if err := reg.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := reg.CallTool(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistryMissingDirsIsNotAnError(t *testing.T) {
	workspace := t.TempDir()
	reg := NewRegistry(workspace, time.Second)
	if err := reg.Refresh(); err != nil {
		t.Fatalf("refresh on a workspace with no extensions dir should succeed: %v", err)
	}
	if len(reg.ToolNames()) != 0 || len(reg.ChannelNames()) != 0 {
		t.Fatal("expected empty registry")
	}
}
