package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeysMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	keys, err := Keys(path)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if keys != nil {
		t.Errorf("Keys on missing file = %v, want nil", keys)
	}
}

func TestKeysPreservesFileOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "ZETA=1\n# a comment\nALPHA=2\nMID=3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	keys, err := Keys(path)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []string{"ZETA", "ALPHA", "MID"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestSetAppendsNewKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := Set(path, "API_KEY", "sk-abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if string(data) != "API_KEY=sk-abc\n" {
		t.Errorf("env file content = %q", string(data))
	}
}

func TestSetReplacesExistingKeyInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("FIRST=1\nAPI_KEY=old\nLAST=3\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := Set(path, "API_KEY", "new"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	want := "FIRST=1\nAPI_KEY=new\nLAST=3\n"
	if string(data) != want {
		t.Errorf("env file content = %q, want %q", string(data), want)
	}
}

func TestSetQuotesValuesWithSpaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := Set(path, "NOTE", "hello world"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if string(data) != `NOTE="hello world"`+"\n" {
		t.Errorf("env file content = %q", string(data))
	}
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		line   string
		key    string
		wantOK bool
	}{
		{"FOO=bar", "FOO", true},
		{"  SPACED = value", "SPACED", true},
		{"# comment", "", false},
		{"", "", false},
		{"not a valid line", "", false},
	}

	for _, tt := range tests {
		key, ok := keyOf(tt.line)
		if ok != tt.wantOK || key != tt.key {
			t.Errorf("keyOf(%q) = (%q, %v), want (%q, %v)", tt.line, key, ok, tt.key, tt.wantOK)
		}
	}
}
