package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"traceview/internal/layout"
	"traceview/internal/model"
	"traceview/internal/pager"
	"traceview/internal/parse"
	"traceview/internal/render"
	"traceview/internal/stats"
	"traceview/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "traceview",
	Short: "Browse agent session transcripts and evaluation runs",
}

func init() {
	rootCmd.AddCommand(newViewCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newStatsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "traceview: %v\n", err)
		os.Exit(1)
	}
}

func newViewCmd() *cobra.Command {
	var (
		tail         int
		expandTools  bool
		filter       string
		full         bool
		noFollow     bool
		forceColor   bool
		forceNoColor bool
		sessionsDir  string
	)

	cmd := &cobra.Command{
		Use:   "view <session-id-or-path>",
		Short: "View a transcript in the interactive pager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}
			if !validFilter(filter) {
				return fmt.Errorf("unknown filter %q (one of: user, assistant, tool, error)", filter)
			}

			path, err := resolveSessionPath(args[0], sessionsDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tr, err := parse.File(path, parse.Options{Tail: tail})
			if errors.Is(err, parse.ErrNoEvents) {
				fmt.Fprintln(out, "(no matching events)")
				return nil
			}
			if err != nil {
				return err
			}

			useColor := resolveColorChoice(out, forceColor, forceNoColor)
			outFile, outIsFile := out.(*os.File)
			if !outIsFile || !isatty.IsTerminal(outFile.Fd()) {
				return writeStatic(out, tr, filter, expandTools, full, useColor)
			}

			p := pager.New(pager.Config{
				Transcript:  tr,
				Path:        path,
				Color:       useColor,
				Follow:      !noFollow,
				Filter:      filter,
				ExpandTools: expandTools,
				Full:        full,
			})
			action, err := p.Run()
			if err != nil {
				return err
			}
			switch action {
			case pager.ActionBrowse:
				fmt.Fprintln(out, "browse")
			case pager.ActionResume:
				fmt.Fprintf(out, "resume %s\n", path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&tail, "tail", 0, "parse only the last N turns (0 means all)")
	flags.BoolVar(&expandTools, "expand-tools", false, "start with tool arguments and results expanded")
	flags.StringVar(&filter, "filter", "", "initial role filter: user, assistant, tool, or error")
	flags.BoolVar(&full, "full", false, "never truncate expanded tool values")
	flags.BoolVar(&noFollow, "no-follow", false, "disable live tail of growing session logs")
	flags.BoolVar(&forceColor, "color", false, "force-enable ANSI colors even when stdout is not a TTY")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable ANSI colors regardless of terminal detection")
	flags.StringVar(&sessionsDir, "sessions-dir", defaultSessionsDir(), "override the sessions directory")

	return cmd
}

// writeStatic renders the transcript once for pipes and redirects.
func writeStatic(out io.Writer, tr model.Transcript, filter string, expand, full, useColor bool) error {
	width := terminalWidth(out)
	lines := render.Lines(tr, render.Options{
		Filter:      filter,
		ExpandTools: expand,
		Full:        full,
		Width:       width,
	})
	for _, line := range lines {
		text, err := layout.ToANSI(line, useColor)
		if err != nil {
			text = layout.Strip(line)
		}
		if _, err := fmt.Fprintln(out, text); err != nil {
			return err
		}
	}
	return nil
}

func newListCmd() *cobra.Command {
	var (
		cwd          string
		all          bool
		afterStr     string
		beforeStr    string
		limit        int
		excerptWidth int
		sessionsDir  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions in reverse chronological order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && cwd != "" {
				return errors.New("--cwd cannot be used with --all")
			}

			var after, before *time.Time
			if afterStr != "" {
				t, err := time.Parse(time.RFC3339, afterStr)
				if err != nil {
					return fmt.Errorf("invalid --after value: %w", err)
				}
				after = &t
			}
			if beforeStr != "" {
				t, err := time.Parse(time.RFC3339, beforeStr)
				if err != nil {
					return fmt.Errorf("invalid --before value: %w", err)
				}
				before = &t
			}

			opts := store.ListOptions{
				Root:       sessionsDir,
				After:      after,
				Before:     before,
				Limit:      limit,
				MaxExcerpt: excerptWidth,
			}
			if !all {
				if cwd != "" {
					opts.CWD = cwd
				} else {
					wd, err := os.Getwd()
					if err != nil {
						return fmt.Errorf("determine current directory: %w", err)
					}
					opts.CWD = wd
				}
				opts.ExactCWD = true
			} else if cwd != "" {
				opts.CWD = cwd
			}

			result, err := store.ListSessions(opts)
			if err != nil {
				return err
			}
			for _, warn := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", warn)
			}

			w := table.NewWriter()
			w.SetOutputMirror(cmd.OutOrStdout())
			w.SetStyle(table.StyleLight)
			w.AppendHeader(table.Row{"ID", "STARTED", "DURATION", "TURNS", "BRANCH", "SUMMARY"})
			for _, s := range result.Summaries {
				started := "-"
				if !s.StartedAt.IsZero() {
					started = s.StartedAt.Format("2006-01-02 15:04")
				}
				w.AppendRow(table.Row{s.ID, started, s.Duration.String(), s.Turns, s.Branch, s.Excerpt})
			}
			w.Render()
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cwd, "cwd", "", "filter sessions whose cwd equals the provided path")
	flags.BoolVar(&all, "all", false, "include sessions from all directories")
	flags.StringVar(&afterStr, "after", "", "include sessions starting on/after the given RFC3339 timestamp")
	flags.StringVar(&beforeStr, "before", "", "include sessions starting on/before the given RFC3339 timestamp")
	flags.IntVar(&limit, "limit", 0, "limit number of sessions returned (0 means no limit)")
	flags.IntVar(&excerptWidth, "summary-width", 80, "maximum characters in the summary column")
	flags.StringVar(&sessionsDir, "sessions-dir", defaultSessionsDir(), "override the sessions directory")

	return cmd
}

type infoPayload struct {
	SessionID string `json:"session_id"`
	Dialect   string `json:"dialect"`
	Path      string `json:"path"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration"`
	Branch    string `json:"branch"`
	Version   string `json:"version"`
	CWD       string `json:"cwd"`
	Events    int    `json:"events"`
	Turns     int    `json:"turns"`
}

func newInfoCmd() *cobra.Command {
	var (
		formatFlag  string
		sessionsDir string
	)

	cmd := &cobra.Command{
		Use:   "info <session-id-or-path>",
		Short: "Show session metadata and file details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSessionPath(args[0], sessionsDir)
			if err != nil {
				return err
			}
			tr, err := parse.File(path, parse.Options{})
			if err != nil {
				return err
			}
			s, ok := tr.(*model.Session)
			if !ok {
				return fmt.Errorf("%s is not a session log", path)
			}

			payload := infoPayload{
				SessionID: s.ID,
				Dialect:   string(s.Dialect),
				Path:      path,
				StartedAt: s.StartedAt.Format(time.RFC3339),
				Duration:  s.Duration().String(),
				Branch:    s.Branch,
				Version:   s.Version,
				CWD:       s.CWD,
				Events:    len(s.Events),
				Turns:     len(s.Turns),
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(formatFlag) {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			case "text":
				const labelWidth = 10
				writeKV(out, labelWidth, "Session", payload.SessionID)
				writeKV(out, labelWidth, "Dialect", payload.Dialect)
				writeKV(out, labelWidth, "Started", payload.StartedAt)
				writeKV(out, labelWidth, "Duration", payload.Duration)
				writeKV(out, labelWidth, "Branch", payload.Branch)
				writeKV(out, labelWidth, "Version", payload.Version)
				writeKV(out, labelWidth, "CWD", payload.CWD)
				writeKV(out, labelWidth, "Events", strconv.Itoa(payload.Events))
				writeKV(out, labelWidth, "Turns", strconv.Itoa(payload.Turns))
				writeKV(out, labelWidth, "Path", payload.Path)
				return nil
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "text", "output format: text or json")
	flags.StringVar(&sessionsDir, "sessions-dir", defaultSessionsDir(), "override the sessions directory")

	return cmd
}

func newStatsCmd() *cobra.Command {
	var sessionsDir string

	cmd := &cobra.Command{
		Use:   "stats <session-id-or-path>",
		Short: "Show aggregate statistics for a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSessionPath(args[0], sessionsDir)
			if err != nil {
				return err
			}
			report, err := stats.Collect(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := table.NewWriter()
			w.SetOutputMirror(out)
			w.SetStyle(table.StyleLight)
			w.AppendRow(table.Row{"kind", report.Kind})
			if report.Duration > 0 {
				w.AppendRow(table.Row{"duration", report.Duration.String()})
			}
			w.AppendRow(table.Row{"user turns", report.UserTurns})
			w.AppendRow(table.Row{"assistant turns", report.AssistantTurns})
			if report.ThinkingTurns > 0 {
				w.AppendRow(table.Row{"thinking turns", report.ThinkingTurns})
			}
			w.AppendRow(table.Row{"tool calls", report.ToolCalls})
			w.AppendRow(table.Row{"errors", report.Errors})
			if report.CasesPassed+report.CasesFailed > 0 {
				w.AppendRow(table.Row{"cases passed", report.CasesPassed})
				w.AppendRow(table.Row{"cases failed", report.CasesFailed})
			}
			w.Render()

			if len(report.Tools) > 0 {
				tw := table.NewWriter()
				tw.SetOutputMirror(out)
				tw.SetStyle(table.StyleLight)
				tw.AppendHeader(table.Row{"TOOL", "CALLS"})
				for _, tool := range report.Tools {
					tw.AppendRow(table.Row{tool.Name, tool.Count})
				}
				tw.Render()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionsDir, "sessions-dir", defaultSessionsDir(), "override the sessions directory")
	return cmd
}

func validFilter(filter string) bool {
	for _, f := range render.Filters {
		if f == filter {
			return true
		}
	}
	return false
}

func resolveSessionPath(arg, root string) (string, error) {
	if arg == "" {
		return "", errors.New("session identifier is empty")
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}
	candidate := filepath.Join(root, arg)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}
	return store.FindSessionPath(root, arg)
}

func defaultSessionsDir() string {
	if dir := os.Getenv("TRACEVIEW_SESSIONS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".traceview", "sessions")
}

func writeKV(out io.Writer, width int, label, value string) {
	fmt.Fprintf(out, "%-*s: %s\n", width, label, value)
}

func terminalWidth(out io.Writer) int {
	if file, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func resolveColorChoice(out io.Writer, forceColor, forceNoColor bool) bool {
	if forceColor {
		return true
	}
	if forceNoColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
