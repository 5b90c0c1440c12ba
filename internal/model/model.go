// Package model defines the canonical in-memory representation that all
// transcript parsers converge on: sessions of ordered turns, evaluation
// suites, and evaluation outcome documents.
package model

import "time"

// Dialect identifies the source log format of a session.
type Dialect string

const (
	// DialectClaude is the primary session-log dialect: ISO-8601
	// timestamps with the role nested under a message object.
	DialectClaude Dialect = "claude"
	// DialectCodex is the alternate session-log dialect: flat role
	// fields and unix-millisecond timestamps.
	DialectCodex Dialect = "codex"
)

// TurnKind discriminates the renderable turn variants.
type TurnKind string

const (
	TurnUser       TurnKind = "user"
	TurnAssistant  TurnKind = "assistant"
	TurnThinking   TurnKind = "thinking"
	TurnToolUse    TurnKind = "tool_use"
	TurnToolResult TurnKind = "tool_result"
)

// Event is one parsed record from a source file. Events are immutable
// once parsed; transport records that never become turns are still
// retained here for metadata extraction.
type Event struct {
	Kind      string
	Timestamp time.Time
	Raw       string
}

// Turn is the canonical unit the renderer consumes.
type Turn struct {
	Kind      TurnKind
	Timestamp time.Time

	// Message fields.
	Text   string
	Queued bool

	// Tool fields.
	ToolName   string
	ToolID     string
	ToolInput  map[string]any
	ToolOutput string
	ToolError  bool
}

// Session aggregates the events and turns of one session log. Turns are
// derived from events during parsing; during live tail both lists grow
// append-only and nothing already present is rewritten.
type Session struct {
	Dialect Dialect
	ID      string
	Branch  string
	Version string
	CWD     string
	Path    string

	StartedAt time.Time
	EndedAt   time.Time

	Events []Event
	Turns  []Turn

	// Offset is the count of file bytes already consumed, used by the
	// live-tail path to read only appended data.
	Offset int64
}

// Duration returns the wall-clock span of the session, or zero when
// either endpoint is missing.
func (s *Session) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() || s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// CaseStatus is the tri-state of an evaluation case.
type CaseStatus string

const (
	CasePending CaseStatus = "pending"
	CasePassed  CaseStatus = "passed"
	CaseFailed  CaseStatus = "failed"
)

// ToolCall records one tool invocation inside an evaluation case.
type ToolCall struct {
	Name     string
	CallID   string
	Duration time.Duration
}

// EvalCase accumulates the streamed state of one evaluation case.
type EvalCase struct {
	Name       string
	Prompt     string
	Message    string // streamed message buffer
	Tools      []ToolCall
	Assertions []string
	Status     CaseStatus
	Err        string
}

// EvalSuite is the canonical model for an evaluation-run log.
type EvalSuite struct {
	Name          string
	Description   string
	ExpectedCases int
	Cases         []EvalCase
	Err           string
}

// Validation is one named check in an evaluation outcome.
type Validation struct {
	Name     string
	Score    float64
	Passed   bool
	Feedback string
}

// OutcomeItem is one transcript entry in an evaluation outcome document.
type OutcomeItem struct {
	Kind string // user, assistant, tool, or the source's raw type
	Text string
}

// EvalOutcome is the canonical model for a finished evaluation run read
// from a single JSON document.
type EvalOutcome struct {
	TaskName    string
	TaskID      string
	Model       string
	Duration    time.Duration
	Turns       int
	ToolCalls   int
	Tokens      int
	Validations []Validation
	Transcript  []OutcomeItem
}

// Transcript is the closed sum over everything a parser can produce.
// Renderer and pager type-switch over the three variants exhaustively.
type Transcript interface {
	transcript()
}

func (*Session) transcript()     {}
func (*EvalSuite) transcript()   {}
func (*EvalOutcome) transcript() {}
