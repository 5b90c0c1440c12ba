package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"traceview/internal/model"
)

// outcomeRun mirrors one finished evaluation run inside an outcome
// document.
type outcomeRun struct {
	Task *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"task"`
	Model       string        `json:"model"`
	DurationMS  int64         `json:"duration_ms"`
	Turns       int           `json:"turns"`
	ToolCalls   int           `json:"tool_calls"`
	Tokens      int           `json:"tokens"`
	Validations []outcomeCheck `json:"validations"`
	Transcript  []outcomeItem  `json:"transcript"`
}

type outcomeCheck struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Passed   bool    `json:"passed"`
	Feedback string  `json:"feedback"`
}

type outcomeItem struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type outcomeTaskDoc struct {
	Tasks []struct {
		Runs []outcomeRun `json:"runs"`
	} `json:"tasks"`
}

// EvalDoc parses a whole-document evaluation outcome. Three legacy
// shapes are accepted: a bare transcript array, an object with a tasks
// array (first populated run under the first task wins), and an object
// with a flat transcript.
func EvalDoc(path string, opts Options) (*model.EvalOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read outcome document: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoEvents
	}

	run, ok := pickRun(data)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if len(run.Transcript) == 0 && len(run.Validations) == 0 {
		return nil, ErrNoEvents
	}

	outcome := &model.EvalOutcome{
		Model:     run.Model,
		Duration:  time.Duration(run.DurationMS) * time.Millisecond,
		Turns:     run.Turns,
		ToolCalls: run.ToolCalls,
		Tokens:    run.Tokens,
	}
	if run.Task != nil {
		outcome.TaskID = run.Task.ID
		outcome.TaskName = run.Task.Name
	}
	for _, check := range run.Validations {
		outcome.Validations = append(outcome.Validations, model.Validation(check))
	}
	outcome.Transcript = classifyItems(run.Transcript)

	if opts.Tail > 0 && len(outcome.Transcript) > opts.Tail {
		outcome.Transcript = outcome.Transcript[len(outcome.Transcript)-opts.Tail:]
	}
	return outcome, nil
}

// pickRun locates the run object inside any of the legacy shapes.
func pickRun(data []byte) (outcomeRun, bool) {
	// Bare transcript array.
	if data[0] == '[' {
		var items []outcomeItem
		if err := json.Unmarshal(data, &items); err != nil {
			return outcomeRun{}, false
		}
		return outcomeRun{Transcript: items}, true
	}

	// Nested tasks shape: the first populated run under the first task.
	var taskDoc outcomeTaskDoc
	if err := json.Unmarshal(data, &taskDoc); err == nil && len(taskDoc.Tasks) > 0 {
		runs := taskDoc.Tasks[0].Runs
		for _, run := range runs {
			if len(run.Transcript) > 0 || len(run.Validations) > 0 {
				return run, true
			}
		}
		if len(runs) > 0 {
			return runs[0], true
		}
	}

	// Flat shape with a transcript array at the top level.
	var run outcomeRun
	if err := json.Unmarshal(data, &run); err == nil && (len(run.Transcript) > 0 || len(run.Validations) > 0) {
		return run, true
	}
	return outcomeRun{}, false
}

// classifyItems maps raw transcript items to canonical ones. Items of
// the generic type "message" alternate user/assistant by parity of a
// running counter over message items only. This mirrors the source
// format's convention and misclassifies when non-dialogue items are
// interleaved mid-dialogue; the counter deliberately ignores them.
func classifyItems(items []outcomeItem) []model.OutcomeItem {
	var out []model.OutcomeItem
	messages := 0
	for _, item := range items {
		kind := item.Type
		switch item.Type {
		case "message":
			if messages%2 == 0 {
				kind = "user"
			} else {
				kind = "assistant"
			}
			messages++
		case "tool":
			kind = "tool"
		}
		text := item.Content
		if item.Type == "tool" && item.Name != "" {
			text = item.Name + ": " + item.Content
		}
		out = append(out, model.OutcomeItem{Kind: kind, Text: text})
	}
	return out
}
