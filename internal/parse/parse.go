// Package parse turns transcript files of any supported dialect into
// the canonical model. Malformed lines are skipped, never fatal; a file
// with zero decodable events yields ErrNoEvents.
package parse

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"traceview/internal/model"
)

// ErrNoEvents is returned when a file decodes to zero events. Callers
// render a placeholder instead of treating this as a hard failure.
var ErrNoEvents = errors.New("no events found")

// ErrUnknownFormat is returned when no parser recognizes the file shape.
var ErrUnknownFormat = errors.New("unrecognized transcript format")

// Options configures parsing.
type Options struct {
	// Tail keeps only the last N turns (or evaluation transcript
	// items) after the full parse. Zero keeps everything.
	Tail int
}

// File detects the format of path and parses it into a canonical
// transcript.
func File(path string, opts Options) (model.Transcript, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatClaude:
		return Claude(path, opts)
	case FormatCodex:
		return Codex(path, opts)
	case FormatEvalRun:
		return EvalRun(path, opts)
	case FormatEvalDoc:
		return EvalDoc(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// newScanner builds a line scanner sized for large payload lines such
// as embedded file contents.
func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 8 * 1024 * 1024
	buf := make([]byte, 1024)
	scanner.Buffer(buf, maxCapacity)
	return scanner
}

// tailTurns keeps the last n turns in original order.
func tailTurns(turns []model.Turn, n int) []model.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
