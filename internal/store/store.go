// Package store enumerates session logs on disk for the list command
// and the session browser.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"traceview/internal/layout"
	"traceview/internal/model"
	"traceview/internal/parse"
	"traceview/internal/render"
)

var errStop = errors.New("stop iteration")

// Summary is the lightweight listing entry for one session file.
type Summary struct {
	ID        string
	Path      string
	CWD       string
	Branch    string
	Dialect   model.Dialect
	StartedAt time.Time
	Duration  time.Duration
	Turns     int
	// Excerpt is the first user message, trimmed for display.
	Excerpt string
}

// ListOptions controls how sessions are enumerated.
type ListOptions struct {
	Root     string
	CWD      string
	ExactCWD bool
	After    *time.Time
	Before   *time.Time
	Limit    int
	// MaxExcerpt caps the excerpt in runes; zero means no cap.
	MaxExcerpt int
}

// ListResult holds summaries plus the non-fatal problems hit on the way.
type ListResult struct {
	Summaries []Summary
	Warnings  []error
}

// ListSessions walks Root for .jsonl session logs, newest first.
// Evaluation-run logs and undecodable files are skipped; the latter are
// reported as warnings.
func ListSessions(opts ListOptions) (ListResult, error) {
	if opts.Root == "" {
		return ListResult{}, errors.New("root directory is required")
	}

	var result ListResult
	err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("walk %s: %w", path, walkErr))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}

		tr, err := parse.File(path, parse.Options{})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("parse %s: %w", path, err))
			return nil
		}
		s, ok := tr.(*model.Session)
		if !ok {
			return nil
		}

		if opts.CWD != "" {
			if opts.ExactCWD {
				if s.CWD != opts.CWD {
					return nil
				}
			} else if !strings.HasPrefix(s.CWD, opts.CWD) {
				return nil
			}
		}
		if opts.After != nil && s.StartedAt.Before(*opts.After) {
			return nil
		}
		if opts.Before != nil && s.StartedAt.After(*opts.Before) {
			return nil
		}

		result.Summaries = append(result.Summaries, Summary{
			ID:        s.ID,
			Path:      path,
			CWD:       s.CWD,
			Branch:    s.Branch,
			Dialect:   s.Dialect,
			StartedAt: s.StartedAt,
			Duration:  s.Duration(),
			Turns:     len(s.Turns),
			Excerpt:   excerpt(s, opts.MaxExcerpt),
		})
		return nil
	})
	if err != nil {
		return result, err
	}

	sort.Slice(result.Summaries, func(i, j int) bool {
		return result.Summaries[i].StartedAt.After(result.Summaries[j].StartedAt)
	})
	if opts.Limit > 0 && len(result.Summaries) > opts.Limit {
		result.Summaries = result.Summaries[:opts.Limit]
	}
	return result, nil
}

// excerpt returns the first line of the first user turn, capped in
// runes.
func excerpt(s *model.Session, max int) string {
	for _, turn := range s.Turns {
		if turn.Kind != model.TurnUser {
			continue
		}
		text, _, _ := strings.Cut(turn.Text, "\n")
		if max > 0 {
			runes := []rune(text)
			if len(runes) > max {
				text = string(runes[:max]) + layout.Ellipsis
			}
		}
		return text
	}
	return ""
}

// FindSessionPath locates the session file whose id matches exactly.
func FindSessionPath(root, id string) (string, error) {
	if root == "" {
		return "", errors.New("root directory is required")
	}
	if id == "" {
		return "", errors.New("session id is required")
	}

	var matched string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		tr, err := parse.File(path, parse.Options{})
		if err != nil {
			return nil
		}
		if s, ok := tr.(*model.Session); ok && s.ID == id {
			matched = path
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", err
	}
	if matched == "" {
		return "", fmt.Errorf("session id %s not found under %s", id, root)
	}
	return matched, nil
}

// Preview renders the last n turns of a transcript as plain preview
// lines for the browser pane.
func Preview(path string, n int) ([]string, error) {
	tr, err := parse.File(path, parse.Options{Tail: n})
	if err != nil {
		return nil, err
	}
	styled := render.Lines(tr, render.Options{Width: 80})
	lines := make([]string, len(styled))
	for i, line := range styled {
		lines[i] = layout.Strip(line)
	}
	return lines, nil
}
