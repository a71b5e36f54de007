// Package secrets reads and updates the .env file that lives next to
// (not inside) the workspace, per spec.md's persisted-state layout: the
// store_secret and list_secrets tools never see or log values beyond
// the owning key name.
package secrets

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Keys returns the key names present in path, in file order. It never
// returns values.
func Keys(path string) ([]string, error) {
	vals, err := godotenv.Read(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}

	// godotenv.Read discards ordering; re-derive it from the file itself
	// so Keys reflects the order a human editing the file would see.
	f, openErr := os.Open(path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("secrets: open %s: %w", path, openErr)
	}
	defer f.Close()

	var ordered []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, ok := keyOf(scanner.Text())
		if !ok || seen[key] {
			continue
		}
		if _, present := vals[key]; present {
			ordered = append(ordered, key)
			seen[key] = true
		}
	}
	return ordered, scanner.Err()
}

var lineKeyPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=`)

func keyOf(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	m := lineKeyPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Set replaces the line defining key in path with key=value, or appends
// a new line if key is absent. The file is created if it doesn't exist
// yet. Quoting, comments, and the order of every other line are left
// untouched.
func Set(path, key, value string) error {
	quoted := quoteIfNeeded(value)
	newLine := fmt.Sprintf("%s=%s", key, quoted)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("secrets: read %s: %w", path, err)
	}

	var lines []string
	replaced := false
	if len(data) > 0 {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		for i, line := range lines {
			if k, ok := keyOf(line); ok && k == key {
				lines[i] = newLine
				replaced = true
				break
			}
		}
	}
	if !replaced {
		lines = append(lines, newLine)
	}

	out := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(out), 0o600)
}

func quoteIfNeeded(value string) string {
	if value == "" {
		return value
	}
	if strings.ContainsAny(value, " #\"'\n") {
		escaped := strings.ReplaceAll(value, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return value
}
