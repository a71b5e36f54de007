// Package mcpregistry connects to remote MCP servers described by one YAML
// descriptor per file under <workspace>/mcp, lists their tools, and exposes
// them to the agent loop under a reserved "mcp_<server>_<tool>" namespace.
package mcpregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerDescriptor is one <workspace>/mcp/<name>.yaml file: a remote
// MCP server reachable over streamable HTTP.
type ServerDescriptor struct {
	Name    string            `yaml:"-"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout string            `yaml:"timeout"` // e.g. "30s", default 30s
}

// timeoutOrDefault parses Timeout, defaulting to 30s on empty or invalid input.
func (d ServerDescriptor) timeoutOrDefault() time.Duration {
	if d.Timeout == "" {
		return 30 * time.Second
	}
	dur, err := time.ParseDuration(d.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return dur
}

// expandedHeaders resolves ${VAR}-style environment references in header
// values, e.g. "Authorization: Bearer ${GITHUB_TOKEN}".
func (d ServerDescriptor) expandedHeaders() map[string]string {
	out := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		out[k] = os.Expand(v, func(name string) string {
			return os.Getenv(name)
		})
	}
	return out
}

// loadDescriptors reads every *.yaml/*.yml file in dir as a ServerDescriptor,
// naming each after its basename. A missing directory yields no servers.
func loadDescriptors(dir string) ([]ServerDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: read %s: %w", dir, err)
	}

	var descriptors []ServerDescriptor
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("mcpregistry: read %s: %w", path, err)
		}

		var d ServerDescriptor
		if err := yaml.Unmarshal(content, &d); err != nil {
			return nil, fmt.Errorf("mcpregistry: parse %s: %w", path, err)
		}
		d.Name = strings.TrimSuffix(name, ext)
		if d.URL == "" {
			return nil, fmt.Errorf("mcpregistry: %s missing required field url", path)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}
