package parse

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"traceview/internal/model"
)

// AppendSession reads bytes appended to the session's file since the
// last parse and folds complete new lines into the session in place.
// It returns the number of events appended. Only whole lines are
// consumed: a final line still being written stays unconsumed until the
// next call, so a mid-write race never yields a garbage event.
// Malformed appended lines are skipped exactly as during initial parse.
func AppendSession(s *model.Session, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat session file: %w", err)
	}
	if info.Size() < s.Offset {
		// Truncated underneath us; resynchronize without rewriting
		// anything already parsed.
		s.Offset = info.Size()
		return 0, nil
	}
	if info.Size() == s.Offset {
		return 0, nil
	}

	if _, err := file.Seek(s.Offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek session file: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return 0, fmt.Errorf("read session tail: %w", err)
	}

	cut := bytes.LastIndexByte(data, '\n')
	if cut < 0 {
		return 0, nil
	}
	complete := data[:cut+1]
	s.Offset += int64(len(complete))

	appended := 0
	before := len(s.Events)
	for _, line := range bytes.Split(complete, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch s.Dialect {
		case model.DialectClaude:
			appendClaudeLine(s, line)
		case model.DialectCodex:
			appendCodexLine(s, line)
		}
	}
	appended = len(s.Events) - before
	return appended, nil
}
