package runtime

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pith-agent/pith/internal/paths"
)

const guidelinesBlock = `## Guidelines

Speak in first person, as yourself, not as a generic assistant.
Favor taking action over asking unnecessary clarifying questions; when the path forward is clear, do it.
You can extend your own capabilities: if a recurring task would be better served by a new tool or channel extension, write one under extensions/tools or extensions/channels.
Secrets flow only through the list_secrets and store_secret tools. Never ask the user to paste a secret into the chat, and never repeat one back.`

const bootstrapPrompt = `You are a new personal agent meeting your user for the first time.

Your job right now is to get to know two things, one at a time, through natural conversation:
1. Your own name and nature (what kind of agent you are, your personality).
2. Your user's name.

Ask about one of these at a time; don't interrogate. As soon as you learn a fact, call set_profile to persist it (profile_type "agent" for your own name/nature, profile_type "user" for the user's name).

Once all three fields are set, use the write tool to create SOUL.md in the workspace root: a short first-person description of who you are, written in your own voice. Then tell the user you're ready to get started.`

// promptInputs bundles everything BuildSystemPrompt needs so the
// runtime can assemble it without reaching back into the store itself.
type promptInputs struct {
	bootstrapComplete bool
	agentProfile      map[string]string
	userProfile       map[string]string
	soul              string
	extensionTools    []string
	remoteTools       map[string]string
	channel           string
	defaultAgentName  string
}

func (r *Runtime) gatherPromptInputs(ctx context.Context) (promptInputs, error) {
	var in promptInputs
	in.defaultAgentName = r.cfg.Agent.Name

	complete, err := r.store.GetBootstrapState(ctx)
	if err != nil {
		return in, fmt.Errorf("runtime: load bootstrap state: %w", err)
	}
	in.bootstrapComplete = complete

	agent, err := r.store.GetProfile(ctx, "agent")
	if err != nil {
		return in, fmt.Errorf("runtime: load agent profile: %w", err)
	}
	in.agentProfile = agent

	user, err := r.store.GetProfile(ctx, "user")
	if err != nil {
		return in, fmt.Errorf("runtime: load user profile: %w", err)
	}
	in.userProfile = user

	if data, err := os.ReadFile(paths.SoulPath(r.workspaceRoot)); err == nil {
		in.soul = strings.TrimSpace(string(data))
	}

	in.extensionTools = r.extensions.ToolNames()
	in.remoteTools = r.remote.ToolDescriptions()

	return in, nil
}

// buildSystemPrompt assembles the per-turn system prompt per spec.md
// §4.4.2: bootstrap mode when the agent doesn't yet know its own or the
// user's identity, otherwise the normal identity+SOUL+guidelines form.
// Both modes append the profile dump, extra-tools list, and an optional
// channel descriptor.
func buildSystemPrompt(in promptInputs, channelName string) string {
	var sections []string

	if !in.bootstrapComplete {
		sections = append(sections, bootstrapPrompt)
	} else {
		agentName := in.agentProfile["name"]
		if agentName == "" {
			agentName = in.defaultAgentName
		}
		if agentName == "" {
			agentName = "your agent"
		}
		userName := in.userProfile["name"]
		if userName == "" {
			userName = "the user"
		}
		sections = append(sections, fmt.Sprintf("You are %s, a personal AI agent. Your user is %s.", agentName, userName))
		if in.soul != "" {
			sections = append(sections, in.soul)
		}
		sections = append(sections, guidelinesBlock)
	}

	sections = append(sections, buildProfileDumpSection(in.agentProfile, in.userProfile))

	if extras := buildExtraToolsSection(in.extensionTools, in.remoteTools); extras != "" {
		sections = append(sections, extras)
	}

	if channelName != "" {
		sections = append(sections, fmt.Sprintf("# Channel\n%s", channelName))
	}

	return strings.Join(sections, "\n\n")
}

func buildProfileDumpSection(agent, user map[string]string) string {
	var lines []string
	lines = append(lines, "## Profile")
	lines = append(lines, "Agent:")
	lines = append(lines, formatProfileLines(agent)...)
	lines = append(lines, "User:")
	lines = append(lines, formatProfileLines(user)...)
	return strings.Join(lines, "\n")
}

func formatProfileLines(fields map[string]string) []string {
	if len(fields) == 0 {
		return []string{"  (none recorded yet)"}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("  %s: %s", k, fields[k]))
	}
	return out
}

func buildExtraToolsSection(extensionTools []string, remoteTools map[string]string) string {
	if len(extensionTools) == 0 && len(remoteTools) == 0 {
		return ""
	}

	var lines []string
	lines = append(lines, "## Extra tools")

	if len(extensionTools) > 0 {
		names := append([]string(nil), extensionTools...)
		sort.Strings(names)
		lines = append(lines, fmt.Sprintf("Extension tools (call via tool_call): %s", strings.Join(names, ", ")))
	}

	if len(remoteTools) > 0 {
		names := make([]string, 0, len(remoteTools))
		for n := range remoteTools {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			lines = append(lines, fmt.Sprintf("- %s (via tool_call): %s", n, remoteTools[n]))
		}
	}

	return strings.Join(lines, "\n")
}
