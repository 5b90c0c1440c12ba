package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies which parser handles a file.
type Format int

const (
	FormatUnknown Format = iota
	FormatClaude
	FormatCodex
	FormatEvalRun
	FormatEvalDoc
)

// sniffLines is how many non-blank lines detection inspects.
const sniffLines = 10

// Detect inspects a file's extension and leading lines to choose a
// parser. Files whose extension or first non-blank line indicates a
// whole JSON document map to the evaluation-outcome parser; line
// oriented files are sniffed for the dialect-discriminating shapes.
func Detect(path string) (Format, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatEvalDoc, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	var lines []json.RawMessage
	scanner := newScanner(file)
	for scanner.Scan() && len(lines) < sniffLines {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(lines) == 0 && !strings.HasPrefix(line, "{") && !strings.HasPrefix(line, "[") {
			return FormatUnknown, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
		}
		if len(lines) == 0 && !json.Valid([]byte(line)) {
			// A first line that is not self-contained JSON means the
			// document spans lines: treat as a whole-document file.
			return FormatEvalDoc, nil
		}
		lines = append(lines, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return FormatUnknown, fmt.Errorf("scan transcript: %w", err)
	}
	if len(lines) == 0 {
		return FormatUnknown, ErrNoEvents
	}

	// An evaluation log opens with a sequence-numbered run_start.
	var runProbe struct {
		Seq   *int   `json:"seq"`
		Event string `json:"event"`
	}
	if err := json.Unmarshal(lines[0], &runProbe); err == nil {
		if runProbe.Seq != nil && runProbe.Event == "run_start" {
			return FormatEvalRun, nil
		}
	}

	// A role nested under a message object marks the claude dialect.
	for _, line := range lines {
		var probe struct {
			Message *struct {
				Role string `json:"role"`
			} `json:"message"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if probe.Message != nil && probe.Message.Role != "" {
			return FormatClaude, nil
		}
	}

	return FormatCodex, nil
}
