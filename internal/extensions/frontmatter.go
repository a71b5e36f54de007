package extensions

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseFrontmatter extracts the `---\n...\n---\n` YAML header from a
// plugin file's leading bytes. A plugin with no frontmatter still loads,
// with name/description left for the caller to default.
func parseFrontmatter(content []byte) (frontmatter, error) {
	var fm frontmatter
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\n"), []byte("---")) {
		return fm, nil
	}

	trimmed := bytes.TrimLeft(content, "\n")
	rest := trimmed[3:]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return fm, fmt.Errorf("frontmatter opened but never closed")
	}
	header := rest[:idx]

	if err := yaml.Unmarshal(header, &fm); err != nil {
		return parseSimpleFrontmatter(header)
	}
	return fm, nil
}

// parseSimpleFrontmatter manually parses `key: value` lines, a fallback
// for headers YAML chokes on (e.g. an unquoted colon in a description).
func parseSimpleFrontmatter(header []byte) (frontmatter, error) {
	var fm frontmatter
	for _, line := range strings.Split(string(header), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		idx := strings.Index(trimmed, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		switch key {
		case "name":
			fm.Name = value
		case "description":
			fm.Description = value
		}
	}
	return fm, nil
}
