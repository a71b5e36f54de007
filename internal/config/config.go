// Package config loads and persists pith's single JSON configuration file,
// merging user-supplied values over built-in defaults field by field so a
// partial config never wipes out the defaults for fields it doesn't mention.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dario.cat/mergo"

	"github.com/pith-agent/pith/internal/logging"
	"github.com/pith-agent/pith/internal/paths"
	"github.com/pith-agent/pith/internal/sandbox"
)

// ConfigBackupCount is the number of backup versions kept on each write.
const ConfigBackupCount = 5

// Config is the merged runtime configuration for a pith instance.
type Config struct {
	Workspace   WorkspaceConfig   `json:"workspace"`
	Agent       AgentConfig       `json:"agent"`
	LLM         LLMConfig         `json:"llm"`
	Tools       ToolsConfig       `json:"tools"`
	Extensions  ExtensionsConfig  `json:"extensions"`
	HTTP        HTTPConfig        `json:"http"`
	Telegram    TelegramConfig    `json:"telegram"`
	RemoteTools RemoteToolsConfig `json:"remoteTools"`
	Session     SessionConfig     `json:"session"`
	Log         LogConfig         `json:"log"`
	Cron        CronConfig        `json:"cron"`
}

// WorkspaceConfig locates the workspace root the agent is sandboxed to.
type WorkspaceConfig struct {
	Root string `json:"root"` // default: ~/.pith/workspace
}

// AgentConfig configures the agent's display identity.
type AgentConfig struct {
	Name string `json:"name"` // default: "pith"
}

// LLMConfig configures the Anthropic model used to drive the agent loop.
type LLMConfig struct {
	Model             string `json:"model"`             // default: "claude-sonnet-4-5-20250929"
	SummarizationModel string `json:"summarizationModel"` // default: ""; not read by the runtime
	MaxTokens         int    `json:"maxTokens"`         // default: 8192
	APIKeyEnv         string `json:"apiKeyEnv"`         // default: "ANTHROPIC_API_KEY"
}

// ToolsConfig gates optional built-in tools.
type ToolsConfig struct {
	WebFetchEnabled bool `json:"webFetchEnabled"` // default: false
	RunPythonMaxOps int  `json:"runPythonMaxOps"` // default: 200000, instruction budget for run_python
}

// ExtensionsConfig configures the filesystem-local tool/channel plugin registry.
type ExtensionsConfig struct {
	CallTimeout string `json:"callTimeout"` // default: "30s"
	DebounceMs  int    `json:"debounceMs"`  // default: 500, fsnotify refresh debounce
}

// HTTPConfig configures the local HTTP+SSE API server.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"` // default: true
	Listen  string `json:"listen"`  // default: "127.0.0.1:8420"
}

// TelegramConfig configures the optional Telegram channel adapter.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`  // default: false
	TokenEnv string `json:"tokenEnv"` // default: "PITH_TELEGRAM_TOKEN"
	OwnerID  int64  `json:"ownerId"`  // Telegram user id allowed to talk to the agent
}

// RemoteToolsConfig configures the MCP-style remote tool registry.
type RemoteToolsConfig struct {
	Enabled        bool   `json:"enabled"`        // default: true
	Dir            string `json:"dir"`            // default: <workspace>/mcp
	CallTimeout    string `json:"callTimeout"`    // default: "30s"; not read: each descriptor's own timeout applies
	RefreshOnWatch bool   `json:"refreshOnWatch"` // default: true; not read: remote tools are listed once, at startup
}

// SessionConfig configures auto-compaction thresholds.
type SessionConfig struct {
	ContextWindowTokens int `json:"contextWindowTokens"` // default: 180000
	CompactAtPercent    int `json:"compactAtPercent"`    // default: 80
	KeepRecentMessages  int `json:"keepRecentMessages"`  // default: 20, never compacted away
}

// LogConfig configures charmbracelet/log output.
type LogConfig struct {
	Level      string `json:"level"`      // default: "info"
	TimeFormat string `json:"timeFormat"` // default: "15:04:05"
	ShowCaller bool   `json:"showCaller"` // default: false
}

// CronConfig configures the hourly maintenance job.
type CronConfig struct {
	Enabled  bool   `json:"enabled"`  // default: true
	Schedule string `json:"schedule"` // default: "@hourly"
}

// LoadResult carries the loaded config and where it came from.
type LoadResult struct {
	Config     *Config
	SourcePath string
	Created    bool // true if no config file existed and defaults were written
}

func isMinimalJSON(data []byte) bool {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return true
	}
	return len(m) == 0
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	pithDir := filepath.Join(home, ".pith")

	return &Config{
		Workspace: WorkspaceConfig{
			Root: filepath.Join(pithDir, "workspace"),
		},
		Agent: AgentConfig{
			Name: "pith",
		},
		LLM: LLMConfig{
			Model:              "claude-sonnet-4-5-20250929",
			SummarizationModel: "",
			MaxTokens:          8192,
			APIKeyEnv:          "ANTHROPIC_API_KEY",
		},
		Tools: ToolsConfig{
			WebFetchEnabled: false,
			RunPythonMaxOps: 200000,
		},
		Extensions: ExtensionsConfig{
			CallTimeout: "30s",
			DebounceMs:  500,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8420",
		},
		Telegram: TelegramConfig{
			Enabled:  false,
			TokenEnv: "PITH_TELEGRAM_TOKEN",
		},
		RemoteTools: RemoteToolsConfig{
			Enabled:        true,
			Dir:            filepath.Join(pithDir, "workspace", "mcp"),
			CallTimeout:    "30s",
			RefreshOnWatch: true,
		},
		Session: SessionConfig{
			ContextWindowTokens: 180000,
			CompactAtPercent:    80,
			KeepRecentMessages:  20,
		},
		Log: LogConfig{
			Level:      "info",
			TimeFormat: "15:04:05",
			ShowCaller: false,
		},
		Cron: CronConfig{
			Enabled:  true,
			Schedule: "@hourly",
		},
	}
}

// Load resolves the config file (./pith.json, falling back to
// ~/.pith/pith.json), merges it over the built-in defaults, and writes the
// merged result back out if the file was missing or empty.
func Load() (*LoadResult, error) {
	home, _ := os.UserHomeDir()
	pithDir := filepath.Join(home, ".pith")
	globalPath := filepath.Join(pithDir, "pith.json")
	localPath := "pith.json"

	var path string
	var data []byte
	var exists bool

	if d, err := os.ReadFile(localPath); err == nil {
		abs, _ := filepath.Abs(localPath)
		path, data, exists = abs, d, true
		logging.L_debug("config: using local pith.json", "path", abs)
	} else if d, err := os.ReadFile(globalPath); err == nil {
		path, data, exists = globalPath, d, true
		logging.L_debug("config: using global pith.json", "path", globalPath)
	} else {
		path = globalPath
	}

	cfg := defaults()
	created := !exists || isMinimalJSON(data)

	if exists && !isMinimalJSON(data) {
		if err := mergeJSONConfig(cfg, data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if created {
		if err := paths.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("prepare config dir: %w", err)
		}
		if err := WriteConfigWithBackup(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		logging.L_info("config: wrote defaults", "path", path)
	}

	return &LoadResult{Config: cfg, SourcePath: path, Created: created}, nil
}

// mergeJSONConfig deep-merges JSON data into cfg, field by field, so a
// partial user config never clobbers defaults for fields it omits.
func mergeJSONConfig(dst *Config, jsonData []byte) error {
	var src Config
	if err := json.Unmarshal(jsonData, &src); err != nil {
		return err
	}

	var rawMap map[string]any
	if err := json.Unmarshal(jsonData, &rawMap); err != nil {
		return err
	}

	if _, ok := rawMap["workspace"]; ok {
		if err := mergo.Merge(&dst.Workspace, src.Workspace, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["agent"]; ok {
		if err := mergo.Merge(&dst.Agent, src.Agent, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["llm"]; ok {
		if err := mergo.Merge(&dst.LLM, src.LLM, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["tools"]; ok {
		if err := mergo.Merge(&dst.Tools, src.Tools, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["extensions"]; ok {
		if err := mergo.Merge(&dst.Extensions, src.Extensions, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["http"]; ok {
		if err := mergo.Merge(&dst.HTTP, src.HTTP, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["telegram"]; ok {
		if err := mergo.Merge(&dst.Telegram, src.Telegram, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["remoteTools"]; ok {
		if err := mergo.Merge(&dst.RemoteTools, src.RemoteTools, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["session"]; ok {
		if err := mergo.Merge(&dst.Session, src.Session, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["log"]; ok {
		if err := mergo.Merge(&dst.Log, src.Log, mergo.WithOverride); err != nil {
			return err
		}
	}
	if _, ok := rawMap["cron"]; ok {
		if err := mergo.Merge(&dst.Cron, src.Cron, mergo.WithOverride); err != nil {
			return err
		}
	}

	return nil
}

// rotateBackups keeps up to ConfigBackupCount previous versions:
// .bak.N-1 gets deleted, .bak.k -> .bak.k+1, .bak -> .bak.1.
func rotateBackups(configPath string) {
	if ConfigBackupCount <= 1 {
		return
	}

	backupBase := configPath + ".bak"
	maxIndex := ConfigBackupCount - 1

	oldest := fmt.Sprintf("%s.%d", backupBase, maxIndex)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		logging.L_trace("config: failed to remove oldest backup", "path", oldest, "error", err)
	}

	for i := maxIndex - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", backupBase, i)
		dst := fmt.Sprintf("%s.%d", backupBase, i+1)
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			logging.L_trace("config: failed to rotate backup", "src", src, "dst", dst, "error", err)
		}
	}

	if err := os.Rename(backupBase, backupBase+".1"); err != nil && !os.IsNotExist(err) {
		logging.L_trace("config: failed to rotate .bak to .bak.1", "error", err)
	}
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// WriteConfigWithBackup rotates existing backups, copies the current file to
// .bak, then atomically writes the new config.
func WriteConfigWithBackup(path string, cfg *Config) error {
	rotateBackups(path)

	if _, err := os.Stat(path); err == nil {
		backupPath := path + ".bak"
		if err := copyFile(path, backupPath); err != nil {
			logging.L_warn("config: failed to create backup", "path", backupPath, "error", err)
		} else {
			logging.L_trace("config: created backup", "path", backupPath)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := sandbox.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logging.L_info("config: written", "path", path, "size", len(data))
	return nil
}
