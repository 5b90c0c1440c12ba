// Package render converts canonical transcripts into styled line
// sequences carrying the layout markup mini-language. The pager and the
// session-browser preview both consume these lines.
package render

import (
	"fmt"
	"strings"
	"time"

	"traceview/internal/layout"
	"traceview/internal/markdown"
	"traceview/internal/model"
)

// Filters is the fixed cycle order of coarse role filters.
var Filters = []string{"", "user", "assistant", "tool", "error"}

// Placeholder is rendered when filtering leaves nothing to show.
const Placeholder = "[dim](no matching events)[/]"

// argValueWidth bounds flattened tool argument values unless Full.
const argValueWidth = 120

// Options configures one render pass.
type Options struct {
	// Filter is a coarse role: user, assistant, tool, error, or empty
	// for no filtering.
	Filter string
	// ExpandTools expands tool arguments and results, and reveals
	// thinking turns.
	ExpandTools bool
	// Full disables value truncation in expanded tool views.
	Full bool
	// Width is the terminal width used for separators. Zero means 80.
	Width int
}

// Lines renders a transcript into styled lines. Output always ends with
// exactly one trailing blank line; when filtering removes everything a
// single placeholder line is rendered instead of nothing.
func Lines(t model.Transcript, opts Options) []string {
	if opts.Width <= 0 {
		opts.Width = 80
	}

	var lines []string
	switch v := t.(type) {
	case *model.Session:
		lines = sessionLines(v, opts)
	case *model.EvalSuite:
		lines = suiteLines(v, opts)
	case *model.EvalOutcome:
		lines = outcomeLines(v, opts)
	}

	if len(lines) == 0 {
		lines = []string{Placeholder}
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return append(lines, "")
}

func separator(width int) string {
	return "[dim]" + strings.Repeat("─", width) + "[/]"
}

// sessionLines renders session turns with per-block separators and,
// for the primary dialect, an elapsed-time left margin.
func sessionLines(s *model.Session, opts Options) []string {
	withMargin := s.Dialect == model.DialectClaude

	var lines []string
	for _, turn := range s.Turns {
		if !matchesFilter(turn, opts.Filter) {
			continue
		}
		if turn.Kind == model.TurnThinking && !opts.ExpandTools {
			continue
		}

		margin, indent := "", ""
		if withMargin {
			margin = elapsedMargin(turn.Timestamp, s.StartedAt)
			indent = strings.Repeat(" ", layout.Width(margin))
		}

		lines = append(lines, separator(opts.Width))
		lines = append(lines, turnLines(turn, margin, indent, opts)...)
	}
	return lines
}

// matchesFilter reports whether a turn passes the coarse role filter.
func matchesFilter(turn model.Turn, filter string) bool {
	switch filter {
	case "":
		return true
	case "user":
		return turn.Kind == model.TurnUser
	case "assistant":
		return turn.Kind == model.TurnAssistant || turn.Kind == model.TurnThinking
	case "tool":
		return turn.Kind == model.TurnToolUse || turn.Kind == model.TurnToolResult
	case "error":
		return turn.Kind == model.TurnToolResult && turn.ToolError
	default:
		return true
	}
}

// elapsedMargin formats time since session start as a fixed-width
// margin, blank when either timestamp is missing.
func elapsedMargin(ts, start time.Time) string {
	if ts.IsZero() || start.IsZero() || ts.Before(start) {
		return "        "
	}
	d := ts.Sub(start)
	if d >= time.Hour {
		return fmt.Sprintf("[dim]%d:%02d:%02d[/] ", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("[dim]  %02d:%02d[/] ", int(d.Minutes()), int(d.Seconds())%60)
}

func turnLines(turn model.Turn, margin, indent string, opts Options) []string {
	switch turn.Kind {
	case model.TurnUser:
		label := "[yellow][bold]● user[/][/]"
		if turn.Queued {
			label += " [dim](queued)[/]"
		}
		lines := []string{margin + label}
		for _, line := range strings.Split(turn.Text, "\n") {
			lines = append(lines, indent+layout.Escape(line))
		}
		return lines

	case model.TurnAssistant:
		lines := []string{margin + "[cyan][bold]● assistant[/][/]"}
		for _, line := range markdown.Render(turn.Text, markdown.Options{}) {
			lines = append(lines, indent+line)
		}
		return lines

	case model.TurnThinking:
		lines := []string{margin + "[dim]● thinking[/]"}
		for _, line := range strings.Split(turn.Text, "\n") {
			lines = append(lines, indent+"[dim][italic]"+layout.Escape(line)+"[/][/]")
		}
		return lines

	case model.TurnToolUse:
		return toolUseLines(turn, margin, indent, opts)

	case model.TurnToolResult:
		return toolResultLines(turn, margin, indent, opts)
	}
	return nil
}

func toolUseLines(turn model.Turn, margin, indent string, opts Options) []string {
	label := margin + "[magenta][bold]● tool[/][/] [bold]" + layout.Escape(turn.ToolName) + "[/]"
	if ctx := toolContext(turn.ToolInput); ctx != "" {
		label += " [dim](" + layout.Escape(ctx) + ")[/]"
	}
	lines := []string{label}

	if opts.ExpandTools {
		for _, key := range sortedKeys(turn.ToolInput) {
			value := flattenValue(turn.ToolInput[key])
			line := indent + "  [dim]" + layout.Escape(key) + ":[/] " + layout.Escape(value)
			if !opts.Full {
				line = layout.TruncateMarkup(line, layout.Width(indent)+2+argValueWidth)
			}
			lines = append(lines, line)
		}
	}
	return lines
}

// toolContext derives a best-effort context string from the known
// argument shapes used by common tools.
func toolContext(input map[string]any) string {
	if input == nil {
		return ""
	}
	if desc, ok := input["description"].(string); ok && desc != "" {
		return desc
	}
	if cmd, ok := input["command"].(string); ok && cmd != "" {
		return cmd
	}
	if path, ok := input["file_path"].(string); ok && path != "" {
		return path
	}
	if path, ok := input["path"].(string); ok && path != "" {
		return path
	}
	if pat, ok := input["pattern"].(string); ok && pat != "" {
		return pat
	}
	if q, ok := input["query"].(string); ok && q != "" {
		return q
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func flattenValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.ReplaceAll(t, "\n", "\\n")
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// cancelPhrases distinguish operator rejection from genuine failures.
var cancelPhrases = []string{
	"request interrupted",
	"doesn't want",
	"canceled",
	"cancelled",
	"rejected",
}

func isRejected(output string) bool {
	lower := strings.ToLower(output)
	for _, phrase := range cancelPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func toolResultLines(turn model.Turn, margin, indent string, opts Options) []string {
	status := "[green]→ ok[/]"
	if turn.ToolError {
		if isRejected(turn.ToolOutput) {
			status = "[yellow]✗ rejected[/]"
		} else {
			status = "[red]✗ error[/]"
		}
	}
	summary := fmt.Sprintf("%s%s [dim](%d chars)[/]", margin, status, len(turn.ToolOutput))
	lines := []string{summary}

	if opts.ExpandTools && turn.ToolOutput != "" {
		if hasControlBytes(turn.ToolOutput) {
			lines = append(lines, indent+fmt.Sprintf("[dim](binary: %d bytes)[/]", len(turn.ToolOutput)))
			return lines
		}
		for _, line := range strings.Split(turn.ToolOutput, "\n") {
			lines = append(lines, indent+"  "+layout.Escape(line))
		}
	}
	return lines
}

// hasControlBytes reports whether s contains non-printable control
// bytes other than ordinary whitespace.
func hasControlBytes(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b < 0x20 && b != '\n' && b != '\t' && b != '\r' {
			return true
		}
	}
	return false
}

// statusGlyph maps an evaluation case status to its marker.
func statusGlyph(status model.CaseStatus) string {
	switch status {
	case model.CasePassed:
		return "[green]✓[/]"
	case model.CaseFailed:
		return "[red]✗[/]"
	default:
		return "[dim]◌[/]"
	}
}

func suiteLines(suite *model.EvalSuite, opts Options) []string {
	lines := []string{separator(opts.Width)}
	header := "[bold]" + layout.Escape(suite.Name) + "[/]"
	if suite.Description != "" {
		header += " [dim]" + layout.Escape(suite.Description) + "[/]"
	}
	lines = append(lines, header)
	lines = append(lines, fmt.Sprintf("[dim]cases: %d of %d[/]", len(suite.Cases), suite.ExpectedCases))
	if suite.Err != "" {
		lines = append(lines, "[red]run error: "+layout.Escape(suite.Err)+"[/]")
	}

	for _, c := range suite.Cases {
		if opts.Filter == "error" && c.Status != model.CaseFailed && c.Err == "" {
			continue
		}
		lines = append(lines, separator(opts.Width))
		lines = append(lines, statusGlyph(c.Status)+" [bold]"+layout.Escape(c.Name)+"[/]")
		if c.Prompt != "" {
			lines = append(lines, "  [dim]prompt:[/] "+layout.Escape(c.Prompt))
		}
		if c.Message != "" {
			for _, line := range strings.Split(c.Message, "\n") {
				lines = append(lines, "  "+layout.Escape(line))
			}
		}
		for _, tool := range c.Tools {
			lines = append(lines, fmt.Sprintf("  [magenta]tool[/] %s [dim](%s)[/]", layout.Escape(tool.Name), tool.Duration))
		}
		for _, assertion := range c.Assertions {
			lines = append(lines, "  [dim]assert:[/] "+layout.Escape(assertion))
		}
		if c.Err != "" {
			lines = append(lines, "  [red]error: "+layout.Escape(c.Err)+"[/]")
		}
	}
	return lines
}

func outcomeLines(outcome *model.EvalOutcome, opts Options) []string {
	lines := []string{separator(opts.Width)}
	name := outcome.TaskName
	if name == "" {
		name = outcome.TaskID
	}
	lines = append(lines, "[bold]"+layout.Escape(name)+"[/]")
	lines = append(lines, fmt.Sprintf("[dim]model %s · %s · %d turns · %d tools · %d tokens[/]",
		layout.Escape(outcome.Model), outcome.Duration, outcome.Turns, outcome.ToolCalls, outcome.Tokens))

	if len(outcome.Validations) > 0 {
		lines = append(lines, separator(opts.Width))
		for _, v := range outcome.Validations {
			glyph := "[green]✓[/]"
			if !v.Passed {
				glyph = "[red]✗[/]"
			}
			line := fmt.Sprintf("%s [bold]%s[/] [dim]%.2f[/]", glyph, layout.Escape(v.Name), v.Score)
			if v.Feedback != "" {
				line += " " + layout.Escape(v.Feedback)
			}
			lines = append(lines, line)
		}
	}

	for _, item := range outcome.Transcript {
		if !itemMatchesFilter(item, opts.Filter) {
			continue
		}
		lines = append(lines, separator(opts.Width))
		switch item.Kind {
		case "user":
			lines = append(lines, "[yellow][bold]● user[/][/]")
		case "assistant":
			lines = append(lines, "[cyan][bold]● assistant[/][/]")
		case "tool":
			lines = append(lines, "[magenta][bold]● tool[/][/]")
		default:
			lines = append(lines, "[dim]● "+layout.Escape(item.Kind)+"[/]")
		}
		for _, line := range strings.Split(item.Text, "\n") {
			lines = append(lines, layout.Escape(line))
		}
	}
	return lines
}

func itemMatchesFilter(item model.OutcomeItem, filter string) bool {
	switch filter {
	case "", "error":
		return true
	default:
		return item.Kind == filter
	}
}
