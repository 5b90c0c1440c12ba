package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"traceview/internal/model"
)

// claudeEntry is the top-level line shape of the primary dialect.
type claudeEntry struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	GitBranch string          `json:"gitBranch"`
	Version   string          `json:"version"`
	CWD       string          `json:"cwd"`
	Queued    bool            `json:"queued"`
	Message   json.RawMessage `json:"message"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// Claude parses a primary-dialect session log. Lines that fail to
// decode are skipped without aborting.
func Claude(path string, opts Options) (*model.Session, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	session := &model.Session{Dialect: model.DialectClaude, Path: path}

	scanner := newScanner(file)
	for scanner.Scan() {
		appendClaudeLine(session, scanner.Bytes())
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

// appendClaudeLine decodes one line into the session, appending the
// event and any turns it yields. Returns false for undecodable input.
func appendClaudeLine(s *model.Session, raw []byte) bool {
	var entry claudeEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false
	}

	var ts time.Time
	if entry.Timestamp != "" {
		parsed, err := parseClaudeTimestamp(entry.Timestamp)
		if err != nil {
			return false
		}
		ts = parsed
	}

	kind := entry.Type
	if kind == "" {
		kind = "unknown"
	}
	s.Events = append(s.Events, model.Event{Kind: kind, Timestamp: ts, Raw: string(raw)})

	if s.ID == "" && entry.SessionID != "" {
		s.ID = entry.SessionID
		s.Branch = entry.GitBranch
		s.Version = entry.Version
		s.CWD = entry.CWD
	}
	if !ts.IsZero() {
		if s.StartedAt.IsZero() || ts.Before(s.StartedAt) {
			s.StartedAt = ts
		}
		if ts.After(s.EndedAt) {
			s.EndedAt = ts
		}
	}

	switch entry.Type {
	case "user", "assistant":
		s.Turns = append(s.Turns, claudeTurns(entry, ts)...)
	}
	return true
}

// claudeTurns expands one message entry into canonical turns. A user
// entry may carry tool_result blocks alongside text; an assistant entry
// may interleave text, thinking and tool_use blocks.
func claudeTurns(entry claudeEntry, ts time.Time) []model.Turn {
	if len(entry.Message) == 0 {
		return nil
	}
	var msg claudeMessage
	if err := json.Unmarshal(entry.Message, &msg); err != nil {
		return nil
	}

	kind := model.TurnUser
	if entry.Type == "assistant" {
		kind = model.TurnAssistant
	}

	// Content as a plain string.
	var asString string
	if err := json.Unmarshal(msg.Content, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			return nil
		}
		return []model.Turn{{Kind: kind, Timestamp: ts, Text: asString, Queued: entry.Queued}}
	}

	var blocks []claudeBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}

	var turns []model.Turn
	var texts []string
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "thinking":
			if block.Thinking != "" {
				turns = append(turns, model.Turn{Kind: model.TurnThinking, Timestamp: ts, Text: block.Thinking})
			}
		case "tool_use":
			turns = append(turns, model.Turn{
				Kind:      model.TurnToolUse,
				Timestamp: ts,
				ToolName:  block.Name,
				ToolID:    block.ID,
				ToolInput: decodeToolInput(block.Input),
			})
		case "tool_result":
			turns = append(turns, model.Turn{
				Kind:       model.TurnToolResult,
				Timestamp:  ts,
				ToolID:     block.ToolUseID,
				ToolOutput: decodeResultText(block.Content),
				ToolError:  block.IsError,
			})
		}
	}
	if len(texts) > 0 {
		turns = append([]model.Turn{{
			Kind:      kind,
			Timestamp: ts,
			Text:      strings.Join(texts, "\n\n"),
			Queued:    entry.Queued,
		}}, turns...)
	}
	return turns
}

func decodeToolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil
	}
	return input
}

// decodeResultText flattens tool_result content, which may be a plain
// string or a nested array of typed blocks.
func decodeResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, block := range blocks {
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func parseClaudeTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
