package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/pith-agent/pith/internal/logging"
)

// remoteToolPrefix is reserved for the MCP remote-tool registry; an
// extension tool can't register under it.
const remoteToolPrefix = "mcp"

// registryData holds one refreshed snapshot of loaded extensions, swapped
// atomically so callers never observe a partially-rebuilt registry.
type registryData struct {
	tools    map[string]Tool
	channels map[string]Channel
}

// Registry discovers and serves tool/channel extensions from
// <workspace>/extensions/{tools,channels}.
type Registry struct {
	toolsDir    string
	channelsDir string
	callTimeout time.Duration

	data atomic.Pointer[registryData]
}

// NewRegistry constructs an empty registry rooted at workspaceRoot.
func NewRegistry(workspaceRoot string, callTimeout time.Duration) *Registry {
	r := &Registry{
		toolsDir:    filepath.Join(workspaceRoot, "extensions", "tools"),
		channelsDir: filepath.Join(workspaceRoot, "extensions", "channels"),
		callTimeout: callTimeout,
	}
	r.data.Store(&registryData{
		tools:    make(map[string]Tool),
		channels: make(map[string]Channel),
	})
	return r
}

// Refresh rescans both extension directories and atomically swaps in the
// new snapshot. A single malformed or unreadable file is logged and
// skipped rather than failing the whole refresh.
func (r *Registry) Refresh() error {
	tools := make(map[string]Tool)
	if err := scanDir(r.toolsDir, func(name, path string, fm frontmatter, loadedAt time.Time) {
		if strings.HasPrefix(name, remoteToolPrefix+"_") || name == remoteToolPrefix {
			L_warn("extensions: tool name collides with remote-tool prefix, skipping", "name", name, "path", path)
			return
		}
		tools[name] = Tool{Name: name, Description: fm.Description, Path: path, LoadedAt: loadedAt}
	}); err != nil {
		return fmt.Errorf("extensions: scan tools dir: %w", err)
	}

	channels := make(map[string]Channel)
	if err := scanDir(r.channelsDir, func(name, path string, fm frontmatter, loadedAt time.Time) {
		channels[name] = Channel{Name: name, Description: fm.Description, Path: path, LoadedAt: loadedAt}
	}); err != nil {
		return fmt.Errorf("extensions: scan channels dir: %w", err)
	}

	r.data.Store(&registryData{tools: tools, channels: channels})
	L_info("extensions: registry refreshed", "tools", len(tools), "channels", len(channels))
	return nil
}

// scanDir walks one extension directory in sorted order, skipping
// dot/underscore-prefixed basenames, and calls fn for every file whose
// frontmatter parses cleanly.
func scanDir(dir string, fn func(name, path string, fm frontmatter, loadedAt time.Time)) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, basename := range names {
		if strings.HasPrefix(basename, ".") || strings.HasPrefix(basename, "_") {
			continue
		}
		path := filepath.Join(dir, basename)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			L_warn("extensions: failed to read plugin file, skipping", "path", path, "error", err)
			continue
		}
		fm, err := parseFrontmatter(content)
		if err != nil {
			L_warn("extensions: failed to parse frontmatter, skipping", "path", path, "error", err)
			continue
		}
		name := fm.Name
		if name == "" {
			name = strings.TrimSuffix(basename, filepath.Ext(basename))
		}
		fn(name, path, fm, info.ModTime())
	}
	return nil
}

// ToolNames returns the currently loaded tool extension names, sorted.
func (r *Registry) ToolNames() []string {
	data := r.data.Load()
	names := make([]string, 0, len(data.tools))
	for n := range data.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ChannelNames returns the currently loaded channel extension names, sorted.
func (r *Registry) ChannelNames() []string {
	data := r.data.Load()
	names := make([]string, 0, len(data.channels))
	for n := range data.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tool looks up a loaded tool extension by name.
func (r *Registry) Tool(name string) (Tool, bool) {
	data := r.data.Load()
	t, ok := data.tools[name]
	return t, ok
}

// CallTool invokes a registered tool extension by name.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Tool(name)
	if !ok {
		return "", fmt.Errorf("extensions: unknown tool %q", name)
	}
	return CallTool(ctx, t, args, r.callTimeout)
}

// Channel returns a connectable channel.Channel for a registered channel
// extension, or false if no such extension is loaded.
func (r *Registry) Channel(name string) (*ProcessChannel, bool) {
	data := r.data.Load()
	def, ok := data.channels[name]
	if !ok {
		return nil, false
	}
	return NewProcessChannel(def), true
}

// ToolDescriptions returns name/description pairs for every loaded tool,
// for assembling tool definitions to hand to the model.
func (r *Registry) ToolDescriptions() map[string]string {
	data := r.data.Load()
	out := make(map[string]string, len(data.tools))
	for n, t := range data.tools {
		out[n] = t.Description
	}
	return out
}
