// Package paths centralizes path resolution for the pith agent runtime.
// Stdlib-only so every other package can import it without creating cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDir returns the workspace's hidden state directory (<workspace>/.pith).
func StateDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".pith")
}

// LogsDir returns the workspace's event log directory (<workspace>/.pith/logs).
func LogsDir(workspaceRoot string) string {
	return filepath.Join(StateDir(workspaceRoot), "logs")
}

// EventsLogPath returns the append-only events.jsonl path.
func EventsLogPath(workspaceRoot string) string {
	return filepath.Join(LogsDir(workspaceRoot), "events.jsonl")
}

// DatabasePath returns the SQLite database path (<workspace>/memory.db).
func DatabasePath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, "memory.db")
}

// SoulPath returns the SOUL.md path.
func SoulPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, "SOUL.md")
}

// EnvPath returns the .env path, which lives next to (not inside) the workspace.
func EnvPath(workspaceRoot string) string {
	return filepath.Join(filepath.Dir(workspaceRoot), ".env")
}

// ExtensionToolsDir returns <workspace>/extensions/tools.
func ExtensionToolsDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, "extensions", "tools")
}

// ExtensionChannelsDir returns <workspace>/extensions/channels.
func ExtensionChannelsDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, "extensions", "channels")
}

// MCPDir returns <workspace>/mcp, holding one YAML descriptor per remote server.
func MCPDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, "mcp")
}

// EnsureDir creates a directory (and parents) if missing.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if missing.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
