package parse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"traceview/internal/model"
)

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "sessions", name)
}

func TestDetect(t *testing.T) {
	cases := []struct {
		file string
		want Format
	}{
		{"claude.jsonl", FormatClaude},
		{"claude_tools.jsonl", FormatClaude},
		{"codex.jsonl", FormatCodex},
		{"evalrun.jsonl", FormatEvalRun},
		{"outcome_tasks.json", FormatEvalDoc},
		{"outcome_array.json", FormatEvalDoc},
	}
	for _, tc := range cases {
		got, err := Detect(fixturePath(tc.file))
		if err != nil {
			t.Fatalf("Detect(%s) error: %v", tc.file, err)
		}
		if got != tc.want {
			t.Fatalf("Detect(%s) = %v, want %v", tc.file, got, tc.want)
		}
	}
}

func TestClaude_BasicSession(t *testing.T) {
	session, err := Claude(fixturePath("claude.jsonl"), Options{})
	if err != nil {
		t.Fatalf("Claude returned error: %v", err)
	}

	if len(session.Events) != 3 {
		t.Fatalf("event count = %d, want 3", len(session.Events))
	}
	if len(session.Turns) != 2 {
		t.Fatalf("turn count = %d, want 2", len(session.Turns))
	}
	if session.ID != "sess-1" || session.Branch != "main" {
		t.Fatalf("unexpected meta: id=%s branch=%s", session.ID, session.Branch)
	}
	if session.Turns[0].Kind != model.TurnUser || session.Turns[0].Text != "hi" {
		t.Fatalf("unexpected first turn: %+v", session.Turns[0])
	}
	if session.Turns[1].Kind != model.TurnAssistant || session.Turns[1].Text != "hello" {
		t.Fatalf("unexpected second turn: %+v", session.Turns[1])
	}
	if session.EndedAt.Before(session.StartedAt) {
		t.Fatal("end time before start time")
	}
}

func TestClaude_ToolTurns(t *testing.T) {
	session, err := Claude(fixturePath("claude_tools.jsonl"), Options{})
	if err != nil {
		t.Fatalf("Claude returned error: %v", err)
	}

	var kinds []model.TurnKind
	for _, turn := range session.Turns {
		kinds = append(kinds, turn.Kind)
	}
	want := []model.TurnKind{
		model.TurnUser,
		model.TurnThinking,
		model.TurnToolUse,
		model.TurnToolResult,
		model.TurnAssistant,
		model.TurnUser,
	}
	if len(kinds) != len(want) {
		t.Fatalf("turn kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("turn %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	use := session.Turns[2]
	if use.ToolName != "Bash" || use.ToolID != "call-1" {
		t.Fatalf("unexpected tool_use: %+v", use)
	}
	if use.ToolInput["command"] != "ls -la" {
		t.Fatalf("tool input not decoded: %v", use.ToolInput)
	}

	result := session.Turns[3]
	if result.ToolOutput != "total 8\nmain.go\ngo.mod" || result.ToolError {
		t.Fatalf("unexpected tool_result: %+v", result)
	}

	if !session.Turns[5].Queued {
		t.Fatal("queued user message lost its flag")
	}
}

func TestClaude_MalformedLineSkipped(t *testing.T) {
	session, err := Claude(fixturePath("claude_malformed.jsonl"), Options{})
	if err != nil {
		t.Fatalf("Claude returned error: %v", err)
	}
	if len(session.Turns) != 1 {
		t.Fatalf("turn count = %d, want 1", len(session.Turns))
	}
	if len(session.Events) != 1 {
		t.Fatalf("event count = %d, want 1", len(session.Events))
	}
}

func TestClaude_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jsonl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Claude(path, Options{}); err != ErrNoEvents {
		t.Fatalf("expected ErrNoEvents, got %v", err)
	}
}

func TestClaude_Tail(t *testing.T) {
	session, err := Claude(fixturePath("claude_tools.jsonl"), Options{Tail: 2})
	if err != nil {
		t.Fatalf("Claude returned error: %v", err)
	}
	if len(session.Turns) != 2 {
		t.Fatalf("tail turn count = %d, want 2", len(session.Turns))
	}
	if session.Turns[0].Kind != model.TurnAssistant || session.Turns[1].Kind != model.TurnUser {
		t.Fatalf("tail kept wrong turns: %+v", session.Turns)
	}

	// Tail larger than the session keeps everything.
	all, err := Claude(fixturePath("claude.jsonl"), Options{Tail: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Turns) != 2 {
		t.Fatalf("oversized tail trimmed turns: %d", len(all.Turns))
	}
}

func TestCodex_Session(t *testing.T) {
	session, err := Codex(fixturePath("codex.jsonl"), Options{})
	if err != nil {
		t.Fatalf("Codex returned error: %v", err)
	}
	if session.Dialect != model.DialectCodex {
		t.Fatalf("dialect = %s", session.Dialect)
	}
	if session.ID != "cdx-1" || session.Branch != "main" || session.CWD != "/srv/app" {
		t.Fatalf("unexpected meta: %+v", session)
	}
	if len(session.Events) != 7 {
		t.Fatalf("event count = %d, want 7", len(session.Events))
	}
	if len(session.Turns) != 5 {
		t.Fatalf("turn count = %d, want 5", len(session.Turns))
	}
	if got := session.Turns[0].Timestamp; !got.Equal(time.UnixMilli(1767261605000).UTC()) {
		t.Fatalf("unix-ms timestamp mismatch: %v", got)
	}
	if session.Turns[2].ToolName != "shell" || session.Turns[2].ToolInput["command"] != "git diff --stat" {
		t.Fatalf("tool_call not mapped: %+v", session.Turns[2])
	}
}

func TestEvalRun_Suite(t *testing.T) {
	suite, err := EvalRun(fixturePath("evalrun.jsonl"), Options{})
	if err != nil {
		t.Fatalf("EvalRun returned error: %v", err)
	}
	if suite.Name != "smoke" || suite.ExpectedCases != 2 {
		t.Fatalf("unexpected suite header: %+v", suite)
	}
	if len(suite.Cases) != 2 {
		t.Fatalf("case count = %d, want 2", len(suite.Cases))
	}

	first := suite.Cases[0]
	if first.Status != model.CasePassed {
		t.Fatalf("first case status = %s", first.Status)
	}
	if first.Message != "Hello, world" {
		t.Fatalf("streamed message = %q", first.Message)
	}
	if len(first.Tools) != 1 || first.Tools[0].Duration != 42*time.Millisecond {
		t.Fatalf("tool call not folded: %+v", first.Tools)
	}
	if len(first.Assertions) != 1 || first.Assertions[0] != "greeting present" {
		t.Fatalf("assertions = %v", first.Assertions)
	}

	second := suite.Cases[1]
	if second.Status != model.CaseFailed || second.Err != "timed out" {
		t.Fatalf("second case = %+v", second)
	}
}

func TestEvalDoc_TasksShape(t *testing.T) {
	outcome, err := EvalDoc(fixturePath("outcome_tasks.json"), Options{})
	if err != nil {
		t.Fatalf("EvalDoc returned error: %v", err)
	}
	if outcome.TaskName != "refactor check" || outcome.Model != "medium-v3" {
		t.Fatalf("unexpected outcome header: %+v", outcome)
	}
	if outcome.Duration != 93*time.Second {
		t.Fatalf("duration = %v", outcome.Duration)
	}
	if len(outcome.Validations) != 2 || outcome.Validations[1].Passed {
		t.Fatalf("validations = %+v", outcome.Validations)
	}

	// Message parity: first message user, tool ignored, next assistant.
	kinds := []string{}
	for _, item := range outcome.Transcript {
		kinds = append(kinds, item.Kind)
	}
	if kinds[0] != "user" || kinds[1] != "tool" || kinds[2] != "assistant" {
		t.Fatalf("transcript kinds = %v", kinds)
	}
}

func TestEvalDoc_ArrayAndFlatShapes(t *testing.T) {
	arr, err := EvalDoc(fixturePath("outcome_array.json"), Options{})
	if err != nil {
		t.Fatalf("array shape error: %v", err)
	}
	if len(arr.Transcript) != 3 {
		t.Fatalf("array transcript length = %d", len(arr.Transcript))
	}
	if arr.Transcript[2].Kind != "user" {
		// three messages alternate user/assistant/user
		t.Fatalf("parity classification = %+v", arr.Transcript)
	}

	flat, err := EvalDoc(fixturePath("outcome_flat.json"), Options{})
	if err != nil {
		t.Fatalf("flat shape error: %v", err)
	}
	if flat.Model != "small-v2" || len(flat.Transcript) != 2 {
		t.Fatalf("flat outcome = %+v", flat)
	}
}

func TestFile_Dispatch(t *testing.T) {
	transcript, err := File(fixturePath("codex.jsonl"), Options{})
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	if _, ok := transcript.(*model.Session); !ok {
		t.Fatalf("expected *model.Session, got %T", transcript)
	}

	transcript, err = File(fixturePath("outcome_tasks.json"), Options{})
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	if _, ok := transcript.(*model.EvalOutcome); !ok {
		t.Fatalf("expected *model.EvalOutcome, got %T", transcript)
	}
}

func TestAppendSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.jsonl")
	seed := `{"type":"user","timestamp":"2026-03-04T08:00:00Z","sessionId":"live-1","message":{"role":"user","content":"start"}}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	session, err := Claude(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(session.Events) != 1 {
		t.Fatalf("seed event count = %d", len(session.Events))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	appendLines := `{"type":"assistant","timestamp":"2026-03-04T08:00:05Z","sessionId":"live-1","message":{"role":"assistant","content":"ok"}}` + "\n" +
		`{ broken` + "\n" +
		`{"type":"user","timestamp":"2026-03-04T08:00:09Z","sessionId":"live-1","message":{"role":"user","content":"more"}}` + "\n"
	if _, err := f.WriteString(appendLines); err != nil {
		t.Fatal(err)
	}
	f.Close()

	n, err := AppendSession(session, path)
	if err != nil {
		t.Fatalf("AppendSession error: %v", err)
	}
	if n != 2 {
		t.Fatalf("appended events = %d, want 2 (malformed line skipped)", n)
	}
	if len(session.Events) != 3 {
		t.Fatalf("total events = %d, want 3", len(session.Events))
	}
	if len(session.Turns) != 3 {
		t.Fatalf("total turns = %d, want 3", len(session.Turns))
	}

	// No new bytes: nothing changes.
	n, err = AppendSession(session, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("idle append = %d, want 0", n)
	}
}

func TestAppendSession_PartialLineDeferred(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.jsonl")
	seed := `{"ts":1767261600000,"kind":"message","role":"user","text":"a"}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	session, err := Codex(path, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Append a line with no trailing newline: it must not be consumed.
	partial := `{"ts":1767261601000,"kind":"message","role":"assistant","text":"b"}`
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString(partial)
	f.Close()

	n, err := AppendSession(session, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("partial line consumed early: %d events", n)
	}

	// Completing the line makes it visible on the next call.
	f, _ = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("\n")
	f.Close()

	n, err = AppendSession(session, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("completed line not consumed: %d events", n)
	}
	if session.Turns[len(session.Turns)-1].Text != "b" {
		t.Fatalf("unexpected final turn: %+v", session.Turns[len(session.Turns)-1])
	}
}
