// Package runjq backs the run_jq built-in tool: it evaluates a jq
// filter against a JSON document and renders the results as text.
// Adapted from the teacher's internal/tools/jq tool, trimmed to the
// single "query an inline JSON value" input source — the file/exec
// input sources the teacher supports are already covered by this
// module's own read and tool_call built-ins, so duplicating them here
// would just be two paths to the same sandboxed effect.
package runjq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// Run evaluates query against the JSON document in input and returns
// one result per line, JSON-encoded unless raw is set (in which case
// plain strings are emitted unquoted, mirroring jq -r).
func Run(query, input string, raw bool) (string, error) {
	var data any
	if err := json.Unmarshal([]byte(input), &data); err != nil {
		return "", fmt.Errorf("invalid JSON input: %w", err)
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", fmt.Errorf("invalid jq query: %w", err)
	}

	var lines []string
	iter := parsed.Run(data)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return "", fmt.Errorf("jq error: %w", err)
		}

		if raw {
			if s, ok := v.(string); ok {
				lines = append(lines, s)
				continue
			}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		lines = append(lines, string(b))
	}

	return strings.Join(lines, "\n"), nil
}
