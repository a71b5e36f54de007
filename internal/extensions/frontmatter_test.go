package extensions

import "testing"

func TestParseFrontmatterYAML(t *testing.T) {
	content := []byte("---\nname: web_fetch\ndescription: fetch a URL\n---\n#!/bin/sh\necho hi\n")
	fm, err := parseFrontmatter(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fm.Name != "web_fetch" {
		t.Errorf("name = %q, want web_fetch", fm.Name)
	}
	if fm.Description != "fetch a URL" {
		t.Errorf("description = %q, want %q", fm.Description, "fetch a URL")
	}
}

func TestParseFrontmatterSimpleFallback(t *testing.T) {
	// A description containing an unquoted colon trips YAML's mapping
	// parser, so this should fall back to the line-based parser.
	content := []byte("---\nname: weird\ndescription: a: b: c\n---\nbody\n")
	fm, err := parseFrontmatter(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fm.Name != "weird" {
		t.Errorf("name = %q, want weird", fm.Name)
	}
	if fm.Description != "a: b: c" {
		t.Errorf("description = %q, want %q", fm.Description, "a: b: c")
	}
}

func TestParseFrontmatterMissing(t *testing.T) {
	fm, err := parseFrontmatter([]byte("#!/bin/sh\necho hi\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fm.Name != "" || fm.Description != "" {
		t.Errorf("expected zero-value frontmatter, got %+v", fm)
	}
}

func TestParseFrontmatterUnclosed(t *testing.T) {
	_, err := parseFrontmatter([]byte("---\nname: x\nbody with no closing fence"))
	if err == nil {
		t.Fatal("expected error for unclosed frontmatter")
	}
}
