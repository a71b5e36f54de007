package mcpregistry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	. "github.com/pith-agent/pith/internal/logging"
)

// namePrefix is reserved by every tool this registry exposes, keeping
// remote tool names from ever colliding with local or extension tools.
const namePrefix = "mcp"

// connectedServer is one successfully connected remote MCP server.
type connectedServer struct {
	descriptor ServerDescriptor
	client     *client.Client
	tools      map[string]mcp.Tool // original (un-prefixed) tool name -> descriptor
}

// Manager owns connections to every configured remote MCP server. A
// single server failing to connect or list tools never prevents the
// others from loading; the failure is logged and that server is simply
// absent from the tool set.
type Manager struct {
	dir string

	mu      sync.RWMutex
	servers map[string]*connectedServer
}

// NewManager builds a registry rooted at the descriptor directory mcpDir.
func NewManager(mcpDir string) *Manager {
	return &Manager{
		dir:     mcpDir,
		servers: make(map[string]*connectedServer),
	}
}

// Refresh (re)connects to every descriptor under the mcp directory and
// replaces the previous connection set. Already-connected servers whose
// descriptor is unchanged are reconnected fresh rather than reused, to
// keep the implementation simple and the tool lists always current.
func (m *Manager) Refresh(ctx context.Context) error {
	descriptors, err := loadDescriptors(m.dir)
	if err != nil {
		return err
	}

	next := make(map[string]*connectedServer, len(descriptors))
	for _, d := range descriptors {
		server, err := m.connect(ctx, d)
		if err != nil {
			L_warn("mcpregistry: server unavailable, skipping", "server", d.Name, "error", err)
			continue
		}
		next[d.Name] = server
	}

	m.mu.Lock()
	old := m.servers
	m.servers = next
	m.mu.Unlock()

	for name, server := range old {
		if _, stillPresent := next[name]; !stillPresent {
			server.client.Close()
		}
	}

	L_info("mcpregistry: refreshed", "servers", len(next))
	return nil
}

// connect dials one server, lists its tools, and wraps both in a
// connectedServer. Any failure here is non-fatal to the overall refresh.
func (m *Manager) connect(ctx context.Context, d ServerDescriptor) (*connectedServer, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeoutOrDefault())
	defer cancel()

	var opts []transport.StreamableHTTPCOption
	if headers := d.expandedHeaders(); len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}

	c, err := client.NewStreamableHttpClient(d.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if err := c.Start(cctx); err != nil {
		return nil, fmt.Errorf("start transport: %w", err)
	}

	if _, err := c.Initialize(cctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "pith",
				Version: "1.0.0",
			},
		},
	}); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	listResp, err := c.ListTools(cctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make(map[string]mcp.Tool, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools[t.Name] = t
	}

	L_info("mcpregistry: server connected", "server", d.Name, "tool_count", len(tools))
	return &connectedServer{descriptor: d, client: c, tools: tools}, nil
}

// prefixedName builds the "mcp_<server>_<tool>" name a tool is exposed
// under to the rest of the agent loop.
func prefixedName(server, tool string) string {
	return fmt.Sprintf("%s_%s_%s", namePrefix, server, tool)
}

// ToolNames lists every remote tool's prefixed name, across all servers.
func (m *Manager) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for serverName, server := range m.servers {
		for toolName := range server.tools {
			names = append(names, prefixedName(serverName, toolName))
		}
	}
	return names
}

// ToolDescriptions returns prefixed-name -> description pairs, for
// assembling tool definitions to hand to the model.
func (m *Manager) ToolDescriptions() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	for serverName, server := range m.servers {
		for toolName, tool := range server.tools {
			out[prefixedName(serverName, toolName)] = tool.Description
		}
	}
	return out
}

// CallTool dispatches a prefixed tool name ("mcp_<server>_<tool>") to its
// owning server.
func (m *Manager) CallTool(ctx context.Context, prefixedToolName string, args map[string]any) (string, error) {
	serverName, toolName, ok := m.resolve(prefixedToolName)
	if !ok {
		return "", fmt.Errorf("mcpregistry: unknown tool %q", prefixedToolName)
	}

	m.mu.RLock()
	server, ok := m.servers[serverName]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("mcpregistry: server %q not connected", serverName)
	}

	cctx, cancel := context.WithTimeout(ctx, server.descriptor.timeoutOrDefault())
	defer cancel()

	resp, err := server.client.CallTool(cctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("mcpregistry: call %s: %w", prefixedToolName, err)
	}

	result := joinTextContent(resp.Content)
	if resp.IsError {
		return "", fmt.Errorf("mcpregistry: tool %s returned an error: %s", prefixedToolName, result)
	}
	return result, nil
}

// joinTextContent concatenates every mcp.TextContent block's text with
// newlines, per spec.md §4.4.3's wire contract for tool-call results.
// Non-text content blocks (images, embedded resources) are skipped.
func joinTextContent(content []mcp.Content) string {
	var texts []string
	for _, c := range content {
		if text, ok := c.(mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// resolve splits a "mcp_<server>_<tool>" name back into server and tool,
// searching the loaded server names since either half may itself contain
// underscores.
func (m *Manager) resolve(prefixedToolName string) (server, tool string, ok bool) {
	rest := strings.TrimPrefix(prefixedToolName, namePrefix+"_")
	if rest == prefixedToolName {
		return "", "", false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for serverName := range m.servers {
		prefix := serverName + "_"
		if strings.HasPrefix(rest, prefix) {
			return serverName, strings.TrimPrefix(rest, prefix), true
		}
	}
	return "", "", false
}

// ServerNames lists the currently connected server names.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}

// Close disconnects every connected server.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, server := range m.servers {
		server.client.Close()
	}
	m.servers = make(map[string]*connectedServer)
	return nil
}
