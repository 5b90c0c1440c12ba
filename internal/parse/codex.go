package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"traceview/internal/model"
)

// codexRecord is the flat line shape of the alternate dialect: unix
// millisecond timestamps and content carried as plain strings.
type codexRecord struct {
	TS      int64           `json:"ts"`
	Kind    string          `json:"kind"`
	Role    string          `json:"role"`
	Text    string          `json:"text"`
	Queued  bool            `json:"queued"`
	ID      string          `json:"id"`
	Branch  string          `json:"branch"`
	Version string          `json:"version"`
	CWD     string          `json:"cwd"`
	Name    string          `json:"name"`
	CallID  string          `json:"call_id"`
	Args    json.RawMessage `json:"args"`
	Output  string          `json:"output"`
	Error   bool            `json:"error"`
}

// Codex parses an alternate-dialect session log.
func Codex(path string, opts Options) (*model.Session, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	session := &model.Session{Dialect: model.DialectCodex, Path: path}

	scanner := newScanner(file)
	for scanner.Scan() {
		appendCodexLine(session, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if info, err := file.Stat(); err == nil {
		session.Offset = info.Size()
	}

	if len(session.Events) == 0 {
		return nil, ErrNoEvents
	}
	session.Turns = tailTurns(session.Turns, opts.Tail)
	return session, nil
}

// appendCodexLine decodes one line into the session. Returns false for
// undecodable input.
func appendCodexLine(s *model.Session, raw []byte) bool {
	var rec codexRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false
	}

	var ts time.Time
	if rec.TS > 0 {
		ts = time.UnixMilli(rec.TS).UTC()
	}

	kind := rec.Kind
	if kind == "" {
		kind = "unknown"
	}
	s.Events = append(s.Events, model.Event{Kind: kind, Timestamp: ts, Raw: string(raw)})

	if !ts.IsZero() {
		if s.StartedAt.IsZero() || ts.Before(s.StartedAt) {
			s.StartedAt = ts
		}
		if ts.After(s.EndedAt) {
			s.EndedAt = ts
		}
	}

	switch rec.Kind {
	case "session":
		if s.ID == "" {
			s.ID = rec.ID
			s.Branch = rec.Branch
			s.Version = rec.Version
			s.CWD = rec.CWD
		}
	case "message":
		if rec.Text == "" {
			break
		}
		kind := model.TurnUser
		if rec.Role == "assistant" {
			kind = model.TurnAssistant
		}
		s.Turns = append(s.Turns, model.Turn{Kind: kind, Timestamp: ts, Text: rec.Text, Queued: rec.Queued})
	case "thinking":
		if rec.Text != "" {
			s.Turns = append(s.Turns, model.Turn{Kind: model.TurnThinking, Timestamp: ts, Text: rec.Text})
		}
	case "tool_call":
		s.Turns = append(s.Turns, model.Turn{
			Kind:      model.TurnToolUse,
			Timestamp: ts,
			ToolName:  rec.Name,
			ToolID:    rec.CallID,
			ToolInput: decodeToolInput(rec.Args),
		})
	case "tool_output":
		s.Turns = append(s.Turns, model.Turn{
			Kind:       model.TurnToolResult,
			Timestamp:  ts,
			ToolID:     rec.CallID,
			ToolOutput: rec.Output,
			ToolError:  rec.Error,
		})
	}
	return true
}
