// Command pith runs the personal agent: the chat loop, its HTTP+SSE API,
// and whichever channel adapters are configured.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/pith-agent/pith/internal/channels"
	"github.com/pith-agent/pith/internal/channels/telegram"
	"github.com/pith-agent/pith/internal/config"
	"github.com/pith-agent/pith/internal/extensions"
	httpapi "github.com/pith-agent/pith/internal/http"
	"github.com/pith-agent/pith/internal/mcpregistry"
	"github.com/pith-agent/pith/internal/paths"
	"github.com/pith-agent/pith/internal/runtime"
	"github.com/pith-agent/pith/internal/store"

	. "github.com/pith-agent/pith/internal/logging"
)

// version is set by goreleaser via ldflags: -X main.version=...
var version = "dev"

// CLI is pith's command surface: running it bare starts the agent in
// the foreground; the remaining commands are one-shot utilities.
type CLI struct {
	Run     RunCmd     `cmd:"" default:"withargs" help:"Run the agent (foreground)"`
	Version VersionCmd `cmd:"" help:"Show version"`
}

type RunCmd struct{}

type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Println("pith", version)
	return nil
}

func (r *RunCmd) Run() error {
	return runAgent()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Name("pith"), kong.Description("A locally-hosted personal agent."))
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func runAgent() error {
	loadResult, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	cfg := loadResult.Config

	Init(&Config{
		Level:      parseLogLevel(cfg.Log.Level),
		TimeFormat: cfg.Log.TimeFormat,
		ShowCaller: cfg.Log.ShowCaller,
	})

	workspaceRoot, err := paths.ExpandTilde(cfg.Workspace.Root)
	if err != nil {
		workspaceRoot = cfg.Workspace.Root
	}
	if err := paths.EnsureDir(workspaceRoot); err != nil {
		return fmt.Errorf("ensure workspace: %w", err)
	}
	loadDotEnv(workspaceRoot)

	st, err := store.Open(workspaceRoot)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	extCallTimeout := parseDurationOr(cfg.Extensions.CallTimeout, 30*time.Second)
	extRegistry := extensions.NewRegistry(workspaceRoot, extCallTimeout)

	mcpDir := cfg.RemoteTools.Dir
	if mcpDir == "" {
		mcpDir = paths.MCPDir(workspaceRoot)
	}
	remoteRegistry := mcpregistry.NewManager(mcpDir)

	rt := runtime.New(cfg, st, extRegistry, remoteRegistry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close()

	extWatcher, err := extensions.NewWatcher(extRegistry,
		[]string{paths.ExtensionToolsDir(workspaceRoot), paths.ExtensionChannelsDir(workspaceRoot)},
		cfg.Extensions.DebounceMs)
	if err != nil {
		L_warn("main: extension watcher disabled", "error", err)
	} else {
		extWatcher.Start()
		defer extWatcher.Stop()
	}

	cronSched := rt.StartMaintenance(ctx)
	if cronSched != nil {
		defer cronSched.Stop()
	}

	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = httpapi.NewServer(cfg.HTTP.Listen, rt)
		server.Start()
		defer server.Stop()
	}

	chanManager := channels.NewManager(rt)

	if cfg.Telegram.Enabled {
		token := os.Getenv(cfg.Telegram.TokenEnv)
		bot, err := telegram.New(token, cfg.Telegram.OwnerID)
		if err != nil {
			L_warn("main: telegram channel disabled", "error", err)
		} else {
			chanManager.Start(ctx, bot)
		}
	}

	L_info("pith: agent running", "workspace", workspaceRoot, "version", version)
	<-ctx.Done()
	L_info("pith: shutting down")
	return nil
}

// loadDotEnv loads the workspace's .env file (if any) into the process
// environment, so secrets stored via store_secret are available to this
// and future runs without re-prompting.
func loadDotEnv(workspaceRoot string) {
	envPath := paths.EnvPath(workspaceRoot)
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		L_warn("main: failed to load .env", "path", envPath, "error", err)
	}
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseLogLevel(s string) int {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
