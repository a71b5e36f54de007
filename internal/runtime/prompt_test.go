package runtime

import "testing"

func TestBuildSystemPromptBootstrap(t *testing.T) {
	in := promptInputs{bootstrapComplete: false}
	out := buildSystemPrompt(in, "")

	if !contains(out, "new personal agent meeting your user") {
		t.Errorf("bootstrap prompt missing from output: %s", out)
	}
	if contains(out, guidelinesBlock) {
		t.Errorf("guidelines block should not appear before bootstrap completes: %s", out)
	}
	if !contains(out, "(none recorded yet)") {
		t.Errorf("expected empty profile dump, got: %s", out)
	}
}

func TestBuildSystemPromptNormal(t *testing.T) {
	in := promptInputs{
		bootstrapComplete: true,
		agentProfile:      map[string]string{"name": "Pip"},
		userProfile:       map[string]string{"name": "Dana"},
		soul:              "I am Pip, a curious little helper.",
	}
	out := buildSystemPrompt(in, "")

	if !contains(out, "You are Pip, a personal AI agent. Your user is Dana.") {
		t.Errorf("identity line missing: %s", out)
	}
	if !contains(out, in.soul) {
		t.Errorf("soul text missing: %s", out)
	}
	if !contains(out, guidelinesBlock) {
		t.Errorf("guidelines block missing after bootstrap: %s", out)
	}
}

func TestBuildSystemPromptFallsBackToConfiguredAgentName(t *testing.T) {
	in := promptInputs{
		bootstrapComplete: true,
		defaultAgentName:  "pith",
	}
	out := buildSystemPrompt(in, "")

	if !contains(out, "You are pith,") {
		t.Errorf("expected configured default agent name, got: %s", out)
	}
}

func TestBuildSystemPromptUnknownIdentityFallback(t *testing.T) {
	in := promptInputs{bootstrapComplete: true}
	out := buildSystemPrompt(in, "")

	if !contains(out, "You are your agent, a personal AI agent. Your user is the user.") {
		t.Errorf("expected generic fallback identity line, got: %s", out)
	}
}

func TestBuildSystemPromptIncludesChannel(t *testing.T) {
	in := promptInputs{bootstrapComplete: true}
	out := buildSystemPrompt(in, "telegram")

	if !contains(out, "# Channel\ntelegram") {
		t.Errorf("expected channel section, got: %s", out)
	}
}

func TestBuildProfileDumpSection(t *testing.T) {
	out := buildProfileDumpSection(
		map[string]string{"name": "Pip", "role": "assistant"},
		map[string]string{"name": "Dana"},
	)

	want := "## Profile\nAgent:\n  name: Pip\n  role: assistant\nUser:\n  name: Dana"
	if out != want {
		t.Errorf("buildProfileDumpSection() =\n%s\nwant:\n%s", out, want)
	}
}

func TestFormatProfileLinesSortsKeys(t *testing.T) {
	lines := formatProfileLines(map[string]string{"z": "last", "a": "first"})
	want := []string{"  a: first", "  z: last"}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Errorf("formatProfileLines() = %v, want %v", lines, want)
	}
}

func TestFormatProfileLinesEmpty(t *testing.T) {
	lines := formatProfileLines(nil)
	if len(lines) != 1 || lines[0] != "  (none recorded yet)" {
		t.Errorf("formatProfileLines(nil) = %v", lines)
	}
}

func TestBuildExtraToolsSectionEmpty(t *testing.T) {
	if out := buildExtraToolsSection(nil, nil); out != "" {
		t.Errorf("expected empty section, got: %q", out)
	}
}

func TestBuildExtraToolsSectionSortsAndFormats(t *testing.T) {
	out := buildExtraToolsSection(
		[]string{"zeta_tool", "alpha_tool"},
		map[string]string{"mcp_search": "search the web"},
	)

	want := "## Extra tools\n" +
		"Extension tools (call via tool_call): alpha_tool, zeta_tool\n" +
		"- mcp_search (via tool_call): search the web"
	if out != want {
		t.Errorf("buildExtraToolsSection() =\n%s\nwant:\n%s", out, want)
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
