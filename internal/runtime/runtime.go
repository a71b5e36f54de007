// Package runtime is the heart of pith: it owns the chat loop, system
// prompt assembly, built-in tool dispatch, and the session/secret
// operations the HTTP API and channel adapters drive it through.
package runtime

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pith-agent/pith/internal/agentloop"
	"github.com/pith-agent/pith/internal/config"
	"github.com/pith-agent/pith/internal/extensions"
	"github.com/pith-agent/pith/internal/mcpregistry"
	"github.com/pith-agent/pith/internal/paths"
	"github.com/pith-agent/pith/internal/pyscript"
	"github.com/pith-agent/pith/internal/store"
	"github.com/pith-agent/pith/internal/tokens"

	. "github.com/pith-agent/pith/internal/logging"
)

// maxToolOutputChars caps every built-in tool's returned text; longer
// output is truncated with a trailing "..." marker.
const maxToolOutputChars = 8000

// historyWindow is how many of a session's most recent messages are
// loaded into context for a turn.
const historyWindow = 20

// memoryRecallLimit is how many memory entries are retrieved per turn.
const memoryRecallLimit = 8

// Runtime wires the Store, extension/remote-tool registries, and the
// Anthropic client into the chat loop described in spec.md §4.4.
type Runtime struct {
	cfg           *config.Config
	workspaceRoot string
	envPath       string

	store      *store.Store
	extensions *extensions.Registry
	remote     *mcpregistry.Manager
	client     *anthropic.Client

	secretsMu sync.Mutex
	pending   map[string]chan secretDelivery
	bridges   map[string]ChatBridge
}

type secretDelivery struct {
	value string
}

// New constructs a Runtime bound to an already-open Store and
// registries. It does not call Initialize.
func New(cfg *config.Config, st *store.Store, ext *extensions.Registry, remote *mcpregistry.Manager) *Runtime {
	apiKey := envOrEmpty(cfg.LLM.APIKeyEnv)
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Runtime{
		cfg:           cfg,
		workspaceRoot: mustExpand(cfg.Workspace.Root),
		envPath:       paths.EnvPath(mustExpand(cfg.Workspace.Root)),
		store:         st,
		extensions:    ext,
		remote:        remote,
		client:        &client,
		pending:       make(map[string]chan secretDelivery),
		bridges:       make(map[string]ChatBridge),
	}
}

func mustExpand(p string) string {
	expanded, err := paths.ExpandTilde(p)
	if err != nil {
		return p
	}
	return expanded
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Initialize brings the runtime's dependent state up to date: schema,
// extension/remote-tool registries, bootstrap reconciliation, and the
// log directory. It never fails on a remote-tool discovery problem —
// those surface as logged warnings only.
func (r *Runtime) Initialize(ctx context.Context) error {
	if err := paths.EnsureDir(paths.LogsDir(r.workspaceRoot)); err != nil {
		return fmt.Errorf("runtime: ensure log directory: %w", err)
	}

	if err := r.extensions.Refresh(); err != nil {
		L_warn("runtime: extension registry refresh failed", "error", err)
	}

	if r.cfg.RemoteTools.Enabled {
		if err := r.remote.Refresh(ctx); err != nil {
			L_warn("runtime: remote tool registry refresh failed", "error", err)
		}
	}

	complete, err := r.store.GetBootstrapState(ctx)
	if err != nil {
		return fmt.Errorf("runtime: reconcile bootstrap state: %w", err)
	}
	if !complete {
		L_info("runtime: bootstrap incomplete, agent will continue onboarding")
	}

	return nil
}

// contextWindowBudget returns the configured context window and the
// compaction trigger threshold derived from CompactAtPercent.
func (r *Runtime) contextWindowBudget() (window, triggerAt int) {
	window = r.cfg.Session.ContextWindowTokens
	if window <= 0 {
		window = 180000
	}
	pct := r.cfg.Session.CompactAtPercent
	if pct <= 0 {
		pct = 80
	}
	return window, window * pct / 100
}

// estimateHistoryTokens is a rough accounting used only to decide
// whether a session needs auto-compaction after a turn.
func estimateHistoryTokens(messages []agentloop.Message) int {
	total := 0
	for _, m := range messages {
		total += tokens.Estimate(m.Content)
		total += tokens.Estimate(string(m.ToolInput))
		total += tokens.Estimate(m.ToolResult)
	}
	return total
}

func newPythonCallbacks(r *Runtime) pyscript.Callbacks {
	return pyscript.Callbacks{
		Read: func(path string) (string, error) {
			return r.toolRead(path)
		},
		Write: func(path, content string) (string, error) {
			return r.toolWrite(path, content)
		},
		Edit: func(path, oldText, newText string) (string, error) {
			return r.toolEdit(path, oldText, newText)
		},
	}
}

// Close releases everything the runtime owns that needs explicit
// teardown (the remote-tool registry's connections).
func (r *Runtime) Close() error {
	return r.remote.Close()
}
