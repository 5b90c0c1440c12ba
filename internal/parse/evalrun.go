package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"traceview/internal/model"
)

// evalEvent is one seq-numbered record of an evaluation-run log.
type evalEvent struct {
	Seq         *int    `json:"seq"`
	Event       string  `json:"event"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Cases       int     `json:"cases"`
	Case        string  `json:"case"`
	Prompt      string  `json:"prompt"`
	Delta       string  `json:"delta"`
	Tool        string  `json:"tool"`
	CallID      string  `json:"call_id"`
	DurationMS  int64   `json:"duration_ms"`
	Feedback    string  `json:"feedback"`
	Passed      *bool   `json:"passed"`
	Error       string  `json:"error"`
}

// EvalRun parses an evaluation-run log into a suite. The stream is a
// fold with one piece of carried state: the index of the currently open
// case. Only one case is open at a time.
func EvalRun(path string, opts Options) (*model.EvalSuite, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	suite := &model.EvalSuite{}
	current := -1 // index of the open case, or -1
	decoded := 0

	scanner := newScanner(file)
	for scanner.Scan() {
		var ev evalEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Seq == nil {
			continue
		}
		decoded++
		current = foldEvalEvent(suite, current, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan run log: %w", err)
	}

	if decoded == 0 {
		return nil, ErrNoEvents
	}
	if opts.Tail > 0 && len(suite.Cases) > opts.Tail {
		suite.Cases = suite.Cases[len(suite.Cases)-opts.Tail:]
	}
	return suite, nil
}

// foldEvalEvent applies one event to the suite and returns the updated
// open-case index.
func foldEvalEvent(suite *model.EvalSuite, current int, ev evalEvent) int {
	switch ev.Event {
	case "run_start":
		suite.Name = ev.Name
		suite.Description = ev.Description
		suite.ExpectedCases = ev.Cases
		return -1

	case "case_start":
		suite.Cases = append(suite.Cases, model.EvalCase{
			Name:   ev.Case,
			Prompt: ev.Prompt,
			Status: model.CasePending,
		})
		return len(suite.Cases) - 1

	case "message":
		if current >= 0 {
			suite.Cases[current].Message += ev.Delta
		}
		return current

	case "tool_start":
		if current >= 0 {
			suite.Cases[current].Tools = append(suite.Cases[current].Tools, model.ToolCall{
				Name:   ev.Tool,
				CallID: ev.CallID,
			})
		}
		return current

	case "tool_end":
		if current >= 0 {
			tools := suite.Cases[current].Tools
			for i := len(tools) - 1; i >= 0; i-- {
				if tools[i].CallID == ev.CallID {
					tools[i].Duration = time.Duration(ev.DurationMS) * time.Millisecond
					break
				}
			}
		}
		return current

	case "assertion":
		if current >= 0 && ev.Feedback != "" {
			suite.Cases[current].Assertions = append(suite.Cases[current].Assertions, ev.Feedback)
		}
		return current

	case "case_end":
		if current >= 0 {
			status := model.CaseFailed
			if ev.Passed != nil && *ev.Passed {
				status = model.CasePassed
			}
			suite.Cases[current].Status = status
			if ev.Error != "" {
				suite.Cases[current].Err = ev.Error
			}
		}
		return -1

	case "run_error":
		if current >= 0 {
			suite.Cases[current].Err = ev.Error
			suite.Cases[current].Status = model.CaseFailed
		} else {
			suite.Err = ev.Error
		}
		return -1
	}
	return current
}
