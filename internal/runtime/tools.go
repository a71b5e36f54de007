package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pith-agent/pith/internal/agentloop"
	"github.com/pith-agent/pith/internal/pyscript"
	"github.com/pith-agent/pith/internal/runjq"
	"github.com/pith-agent/pith/internal/sandbox"
	"github.com/pith-agent/pith/internal/secrets"
	"github.com/pith-agent/pith/internal/webfetch"

	. "github.com/pith-agent/pith/internal/logging"
)

// builtinToolDefs returns the tool schemas handed to the model for a
// turn: the fixed built-ins plus tool_call, which is the single front
// door to every extension and remote tool.
func builtinToolDefs(webFetchEnabled bool) []agentloop.ToolDefinition {
	defs := []agentloop.ToolDefinition{
		{
			Name:        "read",
			Description: "Read the contents of a file as UTF-8 text.",
			InputSchema: schema(props{"path": str("Path to the file, relative to the workspace root.")}, "path"),
		},
		{
			Name:        "write",
			Description: "Write content to a file, creating parent directories as needed.",
			InputSchema: schema(props{
				"path":    str("Path to the file, relative to the workspace root."),
				"content": str("The content to write."),
			}, "path", "content"),
		},
		{
			Name:        "edit",
			Description: "Replace the first occurrence of old text with new text in a file.",
			InputSchema: schema(props{
				"path": str("Path to the file, relative to the workspace root."),
				"old":  str("The exact text to find."),
				"new":  str("The text to replace it with."),
			}, "path", "old", "new"),
		},
		{
			Name:        "list_dir",
			Description: "List directory entries, optionally recursively and filtered by a glob.",
			InputSchema: schema(props{
				"path":      str("Directory to list, relative to the workspace root. Defaults to \".\"."),
				"glob":      str("Optional glob filter applied to entry names."),
				"recursive": boolean("List subdirectories recursively. Defaults to false."),
			}),
		},
		{
			Name:        "file_search",
			Description: "Search file contents for a regex or literal pattern, grep-style.",
			InputSchema: schema(props{
				"pattern":     str("The pattern to search for."),
				"glob":        str("File name glob to restrict the search to. Defaults to \"*\"."),
				"recursive":   boolean("Search subdirectories. Defaults to true."),
				"literal":     boolean("Treat pattern as a literal string rather than a regex. Defaults to false."),
				"max_results": integer("Maximum number of matching lines to return. Defaults to 50."),
			}, "pattern"),
		},
		{
			Name:        "run_python",
			Description: "Execute code in a restricted, sandboxed interpreter that can call back into read/write/edit but has no direct filesystem or network access.",
			InputSchema: schema(props{"code": str("The code to execute.")}, "code"),
		},
		{
			Name:        "run_jq",
			Description: "Evaluate a jq filter against an inline JSON document.",
			InputSchema: schema(props{
				"query": str("The jq filter expression."),
				"input": str("The JSON document to filter."),
				"raw":   boolean("Render string results unquoted, like jq -r. Defaults to false."),
			}, "query", "input"),
		},
		{
			Name:        "memory_save",
			Description: "Save a durable or episodic memory entry.",
			InputSchema: schema(props{
				"content": str("The fact or note to remember."),
				"kind":    str("\"durable\" or \"episodic\". Defaults to \"durable\"."),
				"tags":    str("Optional comma-separated tags."),
			}, "content"),
		},
		{
			Name:        "memory_search",
			Description: "Search saved memory entries.",
			InputSchema: schema(props{
				"query": str("The search query."),
				"limit": integer("Maximum entries to return. Defaults to 8."),
			}, "query"),
		},
		{
			Name:        "set_profile",
			Description: "Persist one agent or user profile field.",
			InputSchema: schema(props{
				"profile_type": str("\"agent\" or \"user\"."),
				"key":          str("The field name."),
				"value":        str("The field value."),
			}, "profile_type", "key", "value"),
		},
		{
			Name:        "tool_call",
			Description: "Dispatch a call to an extension tool or a remote MCP tool by its registered name.",
			InputSchema: schema(props{
				"name": str("The registered tool name (extension tool name, or the mcp_<server>_<tool> remote form)."),
				"args": object("Named arguments for the tool."),
			}, "name", "args"),
		},
		{
			Name:        "list_secrets",
			Description: "List the secret key names stored in the .env file. Never reveals values.",
			InputSchema: schema(props{}),
		},
		{
			Name:        "store_secret",
			Description: "Request a secret value for name out of band from the user, then store it in .env and the process environment.",
			InputSchema: schema(props{"name": str("The secret's key name.")}, "name"),
		},
	}

	if webFetchEnabled {
		defs = append(defs, agentloop.ToolDefinition{
			Name:        "web_fetch",
			Description: "Fetch a web page and extract its readable content as markdown.",
			InputSchema: schema(props{
				"url":        str("The URL to fetch."),
				"max_length": integer("Maximum characters to return. Defaults to 10000."),
			}, "url"),
		})
	}

	return defs
}

type props map[string]any

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func object(description string) map[string]any {
	return map[string]any{"type": "object", "description": description}
}

func schema(properties props, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": map[string]any(properties),
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// turnDispatcher is a fresh agentloop.Dispatcher built once per chat
// turn so every tool call sees the session and context in scope for
// that turn only.
type turnDispatcher struct {
	r         *Runtime
	ctx       context.Context
	sessionID string
}

func (r *Runtime) newDispatcher(ctx context.Context, sessionID string) agentloop.Dispatcher {
	return &turnDispatcher{r: r, ctx: ctx, sessionID: sessionID}
}

func (d *turnDispatcher) Dispatch(name string, args json.RawMessage) (string, bool) {
	result, err := d.r.callTool(d.ctx, name, args)
	if err != nil {
		L_warn("runtime: tool call failed", "tool", name, "error", err)
		return err.Error(), false
	}
	return truncateOutput(result), true
}

func truncateOutput(s string) string {
	if len(s) <= maxToolOutputChars {
		return s
	}
	return s[:maxToolOutputChars] + "..."
}

// callTool is the single dispatch point for every built-in tool name.
func (r *Runtime) callTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "read":
		var in struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return r.toolRead(in.Path)

	case "write":
		var in struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return r.toolWrite(in.Path, in.Content)

	case "edit":
		var in struct {
			Path string `json:"path"`
			Old  string `json:"old"`
			New  string `json:"new"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return r.toolEdit(in.Path, in.Old, in.New)

	case "list_dir":
		var in struct {
			Path      string `json:"path"`
			Glob      string `json:"glob"`
			Recursive bool   `json:"recursive"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if in.Path == "" {
			in.Path = "."
		}
		return r.toolListDir(in.Path, in.Glob, in.Recursive)

	case "file_search":
		var in struct {
			Pattern    string `json:"pattern"`
			Glob       string `json:"glob"`
			Recursive  *bool  `json:"recursive"`
			Literal    bool   `json:"literal"`
			MaxResults int    `json:"max_results"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if in.Glob == "" {
			in.Glob = "*"
		}
		if in.MaxResults <= 0 {
			in.MaxResults = 50
		}
		recursive := in.Recursive == nil || *in.Recursive
		return r.toolFileSearch(in.Pattern, in.Glob, recursive, in.Literal, in.MaxResults)

	case "run_python":
		var in struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		maxOps := r.cfg.Tools.RunPythonMaxOps
		out, err := pyscript.Run(in.Code, newPythonCallbacks(r), maxOps)
		if err != nil {
			return fmt.Sprintf("run_python error: %v", err), nil
		}
		return out, nil

	case "run_jq":
		var in struct {
			Query string `json:"query"`
			Input string `json:"input"`
			Raw   bool   `json:"raw"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		out, err := runjq.Run(in.Query, in.Input, in.Raw)
		if err != nil {
			return fmt.Sprintf("run_jq error: %v", err), nil
		}
		return out, nil

	case "memory_save":
		var in struct {
			Content string `json:"content"`
			Kind    string `json:"kind"`
			Tags    string `json:"tags"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		id, err := r.store.MemorySave(ctx, in.Content, in.Kind, in.Tags, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("memory_saved:%d", id), nil

	case "memory_search":
		var in struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return r.toolMemorySearch(ctx, in.Query, in.Limit)

	case "set_profile":
		var in struct {
			ProfileType string `json:"profile_type"`
			Key         string `json:"key"`
			Value       string `json:"value"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if err := r.store.SetProfile(ctx, in.ProfileType, in.Key, in.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("set %s.%s", in.ProfileType, in.Key), nil

	case "tool_call":
		var in struct {
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return r.toolDispatchCall(ctx, in.Name, in.Args)

	case "list_secrets":
		keys, err := secrets.Keys(r.envPath)
		if err != nil {
			return "", err
		}
		if keys == nil {
			keys = []string{}
		}
		out, err := json.Marshal(keys)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "store_secret":
		var in struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return r.toolStoreSecret(ctx, in.Name)

	case "web_fetch":
		if !r.cfg.Tools.WebFetchEnabled {
			return "unknown tool: web_fetch", nil
		}
		var in struct {
			URL       string `json:"url"`
			MaxLength int    `json:"max_length"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return webfetch.Fetch(ctx, in.URL, in.MaxLength)

	default:
		return fmt.Sprintf("unknown tool: %s", name), nil
	}
}

func (r *Runtime) toolRead(path string) (string, error) {
	content, err := sandbox.ReadFile(path, r.workspaceRoot, r.workspaceRoot)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (r *Runtime) toolWrite(path, content string) (string, error) {
	resolved, err := sandbox.ValidateWritePath(path, r.workspaceRoot, r.workspaceRoot)
	if err != nil {
		return "", err
	}
	if err := sandbox.AtomicWriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("written %s", resolved), nil
}

func (r *Runtime) toolEdit(path, oldText, newText string) (string, error) {
	resolved, err := sandbox.ValidateWritePath(path, r.workspaceRoot, r.workspaceRoot)
	if err != nil {
		return "", err
	}
	content, err := sandbox.ReadFile(path, r.workspaceRoot, r.workspaceRoot)
	if err != nil {
		return "", err
	}
	text := string(content)
	idx := strings.Index(text, oldText)
	if idx < 0 {
		return "old content not found", nil
	}
	newContent := text[:idx] + newText + text[idx+len(oldText):]
	if err := sandbox.AtomicWriteFile(resolved, []byte(newContent), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("edited %s", resolved), nil
}

func (r *Runtime) toolListDir(path, glob string, recursive bool) (string, error) {
	resolved, err := sandbox.ValidatePath(path, r.workspaceRoot, r.workspaceRoot)
	if err != nil {
		return "", err
	}

	var lines []string
	err = filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == resolved {
			return nil
		}
		if d.IsDir() && !recursive {
			rel, _ := filepath.Rel(resolved, p)
			if matchesGlob(glob, d.Name()) {
				lines = append(lines, rel+"/")
			}
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(resolved, p)
		name := rel
		if d.IsDir() {
			name += "/"
		}
		if matchesGlob(glob, d.Name()) {
			lines = append(lines, name)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Strings(lines)
	out := strings.Join(lines, "\n")
	return truncateOutput(out), nil
}

func matchesGlob(glob, name string) bool {
	if glob == "" {
		return true
	}
	ok, err := filepath.Match(glob, name)
	return err == nil && ok
}

func (r *Runtime) toolFileSearch(pattern, glob string, recursive, literal bool, maxResults int) (string, error) {
	resolved, err := sandbox.ValidatePath(".", r.workspaceRoot, r.workspaceRoot)
	if err != nil {
		return "", err
	}

	if literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("invalid pattern: %v", err), nil
	}

	var lines []string
	walkErr := filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
		if err != nil || len(lines) >= maxResults {
			return nil
		}
		if d.IsDir() {
			if !recursive && p != resolved {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesGlob(glob, d.Name()) {
			return nil
		}

		data, readErr := os.ReadFile(p)
		if readErr != nil || looksBinary(data) {
			return nil
		}

		rel, _ := filepath.Rel(resolved, p)
		for i, line := range strings.Split(string(data), "\n") {
			if len(lines) >= maxResults {
				break
			}
			if re.MatchString(line) {
				lines = append(lines, fmt.Sprintf("%s:%d: %s", rel, i+1, line))
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}

	return truncateOutput(strings.Join(lines, "\n")), nil
}

func looksBinary(data []byte) bool {
	limit := len(data)
	if limit > 512 {
		limit = 512
	}
	for _, b := range data[:limit] {
		if b == 0 {
			return true
		}
	}
	return false
}

func (r *Runtime) toolMemorySearch(ctx context.Context, query string, limit int) (string, error) {
	entries, err := r.store.MemorySearch(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *Runtime) toolDispatchCall(ctx context.Context, name string, args map[string]any) (string, error) {
	L_info("runtime: tool_call dispatch", "name", name)

	if strings.HasPrefix(name, "mcp_") {
		result, err := r.remote.CallTool(ctx, name, args)
		if err != nil {
			_ = r.store.LogEvent("tool_call_error", "error", map[string]any{"name": name, "error": err.Error()})
			return fmt.Sprintf("%T: %s", err, err.Error()), nil
		}
		return result, nil
	}

	if _, ok := r.extensions.Tool(name); ok {
		result, err := r.extensions.CallTool(ctx, name, args)
		if err != nil {
			_ = r.store.LogEvent("tool_call_error", "error", map[string]any{"name": name, "error": err.Error()})
			return fmt.Sprintf("%T: %s", err, err.Error()), nil
		}
		return result, nil
	}

	return fmt.Sprintf("unknown tool: %s", name), nil
}
