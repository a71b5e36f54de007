package mcpregistry

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestJoinTextContentNewlineSeparated(t *testing.T) {
	content := []mcp.Content{
		mcp.TextContent{Text: "first"},
		mcp.TextContent{Text: "second"},
		mcp.TextContent{Text: "third"},
	}
	got := joinTextContent(content)
	want := "first\nsecond\nthird"
	if got != want {
		t.Errorf("joinTextContent() = %q, want %q", got, want)
	}
}

func TestJoinTextContentSingleBlock(t *testing.T) {
	got := joinTextContent([]mcp.Content{mcp.TextContent{Text: "only"}})
	if got != "only" {
		t.Errorf("joinTextContent() = %q, want %q", got, "only")
	}
}

func TestJoinTextContentEmpty(t *testing.T) {
	if got := joinTextContent(nil); got != "" {
		t.Errorf("joinTextContent(nil) = %q, want empty", got)
	}
}

func TestManagerResolveSplitsServerAndTool(t *testing.T) {
	m := NewManager(t.TempDir())
	m.servers["github"] = &connectedServer{}
	m.servers["linear_api"] = &connectedServer{}

	server, tool, ok := m.resolve("mcp_github_create_issue")
	if !ok || server != "github" || tool != "create_issue" {
		t.Errorf("resolve(mcp_github_create_issue) = (%q, %q, %v)", server, tool, ok)
	}

	server, tool, ok = m.resolve("mcp_linear_api_list_tickets")
	if !ok || server != "linear_api" || tool != "list_tickets" {
		t.Errorf("resolve(mcp_linear_api_list_tickets) = (%q, %q, %v), want (linear_api, list_tickets, true)", server, tool, ok)
	}
}

func TestManagerResolveRejectsUnprefixedName(t *testing.T) {
	m := NewManager(t.TempDir())
	m.servers["github"] = &connectedServer{}

	if _, _, ok := m.resolve("read"); ok {
		t.Error("resolve should reject a name with no mcp_ prefix")
	}
}

func TestManagerResolveUnknownServer(t *testing.T) {
	m := NewManager(t.TempDir())
	m.servers["github"] = &connectedServer{}

	if _, _, ok := m.resolve("mcp_notreal_tool"); ok {
		t.Error("resolve should reject a server name it has no connection for")
	}
}

func TestManagerToolNamesAndDescriptions(t *testing.T) {
	m := NewManager(t.TempDir())
	m.servers["github"] = &connectedServer{
		tools: map[string]mcp.Tool{
			"create_issue": {Name: "create_issue", Description: "opens a new issue"},
		},
	}

	names := m.ToolNames()
	if len(names) != 1 || names[0] != "mcp_github_create_issue" {
		t.Errorf("ToolNames() = %v, want [mcp_github_create_issue]", names)
	}

	descriptions := m.ToolDescriptions()
	if descriptions["mcp_github_create_issue"] != "opens a new issue" {
		t.Errorf("ToolDescriptions() = %v", descriptions)
	}
}

func TestManagerServerNamesEmptyByDefault(t *testing.T) {
	m := NewManager(t.TempDir())
	if names := m.ServerNames(); len(names) != 0 {
		t.Errorf("ServerNames() = %v, want empty", names)
	}
}
