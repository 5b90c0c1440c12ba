package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"traceview/internal/parse"
)

var fixtures = filepath.Join("..", "..", "testdata", "sessions")

func TestValidFilter(t *testing.T) {
	for _, f := range []string{"", "user", "assistant", "tool", "error"} {
		if !validFilter(f) {
			t.Fatalf("validFilter(%q) = false", f)
		}
	}
	if validFilter("thinking") {
		t.Fatal("unknown filter accepted")
	}
}

func TestResolveSessionPath(t *testing.T) {
	direct := filepath.Join(fixtures, "claude.jsonl")
	if got, err := resolveSessionPath(direct, ""); err != nil || got != direct {
		t.Fatalf("direct path = %q, %v", got, err)
	}

	if got, err := resolveSessionPath("claude.jsonl", fixtures); err != nil || got != direct {
		t.Fatalf("root-relative path = %q, %v", got, err)
	}

	got, err := resolveSessionPath("sess-2", fixtures)
	if err != nil {
		t.Fatalf("id lookup: %v", err)
	}
	if filepath.Base(got) != "claude_tools.jsonl" {
		t.Fatalf("id lookup path = %q", got)
	}

	if _, err := resolveSessionPath("no-such-session", fixtures); err == nil {
		t.Fatal("missing id did not error")
	}
}

func TestWriteStatic(t *testing.T) {
	tr, err := parse.File(filepath.Join(fixtures, "claude_tools.jsonl"), parse.Options{})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeStatic(&buf, tr, "", false, false, false); err != nil {
		t.Fatal(err)
	}
	output := buf.String()

	if !strings.Contains(output, "● user") || !strings.Contains(output, "● assistant") {
		t.Fatalf("banners missing:\n%s", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Fatalf("colorless output contains ANSI:\n%s", output)
	}
	if strings.Contains(output, "[bold]") {
		t.Fatalf("markup leaked into output:\n%s", output)
	}

	buf.Reset()
	if err := writeStatic(&buf, tr, "", false, false, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("colored output lacks ANSI:\n%s", buf.String())
	}
}

func TestWriteStaticFilter(t *testing.T) {
	tr, err := parse.File(filepath.Join(fixtures, "claude_tools.jsonl"), parse.Options{})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeStatic(&buf, tr, "user", false, false, false); err != nil {
		t.Fatal(err)
	}
	output := buf.String()
	if strings.Contains(output, "● assistant") {
		t.Fatalf("assistant leaked through user filter:\n%s", output)
	}
	if !strings.Contains(output, "also run the tests") {
		t.Fatalf("user turn missing:\n%s", output)
	}
}
