// Package extensions discovers and runs filesystem-local tool and
// channel plugins: executable scripts with a small YAML frontmatter
// header, one file per plugin under <workspace>/extensions/{tools,channels}.
package extensions

import "time"

// Tool is a registered tool extension: a standalone executable script
// invoked once per call with JSON-encoded named arguments on stdin.
type Tool struct {
	Name        string
	Description string
	Path        string
	LoadedAt    time.Time
}

// Channel is a registered channel extension: a long-running executable
// speaking a line-delimited JSON protocol over stdin/stdout.
type Channel struct {
	Name        string
	Description string
	Path        string
	LoadedAt    time.Time
}

// frontmatter is the subset of plugin metadata we parse out of the
// YAML header preceding a plugin's executable body.
type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}
