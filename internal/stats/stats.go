// Package stats aggregates a transcript into the report shown by the
// stats command.
package stats

import (
	"sort"
	"time"

	"traceview/internal/model"
	"traceview/internal/parse"
)

// ToolCount is one row of the tool usage histogram.
type ToolCount struct {
	Name  string
	Count int
}

// Report summarizes one transcript file.
type Report struct {
	Path     string
	Kind     string
	Duration time.Duration

	UserTurns      int
	AssistantTurns int
	ThinkingTurns  int
	ToolCalls      int
	Errors         int

	// Tools is the usage histogram, most used first.
	Tools []ToolCount

	// Eval-only counters.
	CasesPassed int
	CasesFailed int
}

// Collect parses path and folds it into a report.
func Collect(path string) (Report, error) {
	tr, err := parse.File(path, parse.Options{})
	if err != nil {
		return Report{}, err
	}

	report := Report{Path: path}
	tools := map[string]int{}

	switch v := tr.(type) {
	case *model.Session:
		report.Kind = string(v.Dialect)
		report.Duration = v.Duration()
		for _, turn := range v.Turns {
			switch turn.Kind {
			case model.TurnUser:
				report.UserTurns++
			case model.TurnAssistant:
				report.AssistantTurns++
			case model.TurnThinking:
				report.ThinkingTurns++
			case model.TurnToolUse:
				report.ToolCalls++
				tools[turn.ToolName]++
			case model.TurnToolResult:
				if turn.ToolError {
					report.Errors++
				}
			}
		}

	case *model.EvalSuite:
		report.Kind = "evalrun"
		for _, c := range v.Cases {
			switch c.Status {
			case model.CasePassed:
				report.CasesPassed++
			case model.CaseFailed:
				report.CasesFailed++
			}
			if c.Err != "" {
				report.Errors++
			}
			for _, tool := range c.Tools {
				report.ToolCalls++
				tools[tool.Name]++
			}
		}

	case *model.EvalOutcome:
		report.Kind = "evaldoc"
		report.Duration = v.Duration
		report.ToolCalls = v.ToolCalls
		for _, item := range v.Transcript {
			switch item.Kind {
			case "user":
				report.UserTurns++
			case "assistant":
				report.AssistantTurns++
			}
		}
		for _, check := range v.Validations {
			if !check.Passed {
				report.Errors++
			}
		}
	}

	report.Tools = make([]ToolCount, 0, len(tools))
	for name, count := range tools {
		report.Tools = append(report.Tools, ToolCount{Name: name, Count: count})
	}
	sort.Slice(report.Tools, func(i, j int) bool {
		if report.Tools[i].Count != report.Tools[j].Count {
			return report.Tools[i].Count > report.Tools[j].Count
		}
		return report.Tools[i].Name < report.Tools[j].Name
	})
	return report, nil
}
