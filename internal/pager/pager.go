// Package pager implements the interactive transcript viewer: a
// poll-loop pager over styled lines with filtering, search, horizontal
// panning and live tail of growing session logs.
package pager

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"traceview/internal/layout"
	"traceview/internal/markdown"
	"traceview/internal/model"
	"traceview/internal/render"
)

// Action is what the pager asks its caller to do after it exits.
type Action int

const (
	ActionQuit Action = iota
	ActionBrowse
	ActionResume
)

// Config sets up one pager run.
type Config struct {
	Transcript model.Transcript
	// Path is the source file, required for live tail.
	Path   string
	Color  bool
	Follow bool
	Filter string
	// ExpandTools starts the pager with tool expansion on.
	ExpandTools bool
	// Full disables value truncation in expanded tool views.
	Full bool
}

type mode int

const (
	modeNormal mode = iota
	modeSearch
	modeInfo
)

// Pager holds the viewer state. Rendering state is rebuilt from the
// transcript whenever width, filter or expansion change.
type Pager struct {
	cfg  Config
	mode mode

	lines []string // styled markup lines
	plain []string // stripped copies, for search and anchors

	row int // first visible line
	col int // horizontal pan offset

	filterIdx int
	expand    bool

	width  int
	height int

	search   string
	entry    []rune
	matches  []int
	matchIdx int

	follow   bool
	newBelow bool

	pending int32 // set by the watcher goroutine, cleared by the loop
}

// New builds a pager over an already-parsed transcript.
func New(cfg Config) *Pager {
	p := &Pager{
		cfg:      cfg,
		expand:   cfg.ExpandTools,
		follow:   cfg.Follow,
		width:    80,
		height:   24,
		matchIdx: -1,
	}
	for i, f := range render.Filters {
		if f == cfg.Filter {
			p.filterIdx = i
		}
	}
	p.renderLines()
	return p
}

// renderLines re-renders the transcript with the current options and
// refreshes the derived plain lines and search matches.
func (p *Pager) renderLines() {
	opts := render.Options{
		Filter:      render.Filters[p.filterIdx],
		ExpandTools: p.expand,
		Full:        p.cfg.Full,
		Width:       p.width,
	}
	p.lines = render.Lines(p.cfg.Transcript, opts)
	p.plain = make([]string, len(p.lines))
	for i, line := range p.lines {
		p.plain[i] = layout.Strip(line)
	}
	if p.search != "" {
		p.findMatches()
	}
}

func (p *Pager) contentRows() int {
	rows := p.height - 1
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (p *Pager) maxRow() int {
	max := len(p.lines) - p.contentRows()
	if max < 0 {
		max = 0
	}
	return max
}

func (p *Pager) clamp() {
	if p.row > p.maxRow() {
		p.row = p.maxRow()
	}
	if p.row < 0 {
		p.row = 0
	}
	if p.row >= p.maxRow() {
		p.newBelow = false
	}
}

func (p *Pager) scroll(delta int) {
	p.row += delta
	p.clamp()
}

func (p *Pager) pan(delta int) {
	p.col += delta
	if p.col < 0 {
		p.col = 0
	}
}

func (p *Pager) resize(width, height int) {
	p.width, p.height = width, height
	p.rebuild()
}

// trivialLine reports whether a plain line carries no anchorable text:
// blanks, separator rules and bare markdown margins.
func trivialLine(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return true
	}
	if strings.Trim(t, "─ ") == "" {
		return true
	}
	return t == strings.TrimSpace(markdown.DefaultPrefix)
}

// anchorText returns the plain text of the first non-trivial line at or
// after the current scroll row.
func (p *Pager) anchorText() string {
	for i := p.row; i < len(p.plain); i++ {
		if trivialLine(p.plain[i]) {
			continue
		}
		return p.plain[i]
	}
	return ""
}

// rebuild re-renders and restores the scroll position: by anchor text
// when it survives the rebuild, else by scaling the old offset.
func (p *Pager) rebuild() {
	anchor := p.anchorText()
	oldRow, oldLen := p.row, len(p.lines)

	p.renderLines()

	if anchor != "" {
		for i, line := range p.plain {
			if line == anchor {
				p.row = i
				p.clamp()
				return
			}
		}
	}
	if oldLen > 0 {
		p.row = oldRow * len(p.lines) / oldLen
	}
	p.clamp()
}

func (p *Pager) cycleFilter() {
	p.filterIdx = (p.filterIdx + 1) % len(render.Filters)
	p.rebuild()
}

func (p *Pager) toggleExpand() {
	p.expand = !p.expand
	p.rebuild()
}

// commitSearch sets a new pattern and jumps to the first match at or
// after the current row.
func (p *Pager) commitSearch(pattern string) {
	p.search = pattern
	p.matchIdx = -1
	p.findMatches()
	if len(p.matches) > 0 {
		p.jumpMatch(1)
	}
}

// findMatches scans the plain lines for case-insensitive substring
// matches.
func (p *Pager) findMatches() {
	p.matches = p.matches[:0]
	if p.search == "" {
		return
	}
	needle := strings.ToLower(p.search)
	for i, line := range p.plain {
		if strings.Contains(strings.ToLower(line), needle) {
			p.matches = append(p.matches, i)
		}
	}
	if p.matchIdx >= len(p.matches) {
		p.matchIdx = -1
	}
}

// jumpMatch moves to the next or previous match with wraparound and
// positions it a third of a viewport below the top.
func (p *Pager) jumpMatch(dir int) {
	if len(p.matches) == 0 {
		return
	}
	if p.matchIdx < 0 {
		p.matchIdx = p.seedMatch(dir)
	} else {
		p.matchIdx = (p.matchIdx + dir + len(p.matches)) % len(p.matches)
	}
	p.row = p.matches[p.matchIdx] - p.contentRows()/3
	p.clamp()
}

// seedMatch picks the starting match relative to the current row: the
// first match at or after it going forward, the last one before it
// going backward.
func (p *Pager) seedMatch(dir int) int {
	if dir > 0 {
		for i, m := range p.matches {
			if m >= p.row {
				return i
			}
		}
		return 0
	}
	for i := len(p.matches) - 1; i >= 0; i-- {
		if p.matches[i] < p.row {
			return i
		}
	}
	return len(p.matches) - 1
}

// frameRow renders one terminal row: pan, fit to width, then serialize
// the markup. A styling failure degrades to stripped plain text.
func (p *Pager) frameRow(i int) string {
	idx := p.row + i
	if idx >= len(p.lines) {
		return ""
	}
	line := layout.TruncateMarkup(layout.Skip(p.lines[idx], p.col), p.width)
	out, err := layout.ToANSI(line, p.cfg.Color)
	if err != nil {
		return layout.Truncate(layout.Skip(p.plain[idx], p.col), p.width)
	}
	return out
}

// statusText composes the status bar content for the current mode.
func (p *Pager) statusText() string {
	if p.mode == modeSearch {
		return "/" + string(p.entry)
	}

	top := p.row + 1
	bottom := p.row + p.contentRows()
	if bottom > len(p.lines) {
		bottom = len(p.lines)
	}
	parts := []string{fmt.Sprintf("%d-%d/%d", top, bottom, len(p.lines))}

	if f := render.Filters[p.filterIdx]; f != "" {
		parts = append(parts, "filter:"+f)
	}
	if p.search != "" {
		pos := "-"
		if p.matchIdx >= 0 && len(p.matches) > 0 {
			pos = fmt.Sprintf("%d/%d", p.matchIdx+1, len(p.matches))
		}
		parts = append(parts, "/"+p.search+" "+pos)
	}
	if p.expand {
		parts = append(parts, "expand")
	}
	if p.follow {
		parts = append(parts, "follow")
	}
	if p.newBelow {
		parts = append(parts, "new content below")
	}
	parts = append(parts, "q:quit /:search F:filter t:expand i:info")
	return strings.Join(parts, "  ")
}

// infoLines renders the metadata overlay card for the loaded transcript.
func (p *Pager) infoLines() []string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)

	switch v := p.cfg.Transcript.(type) {
	case *model.Session:
		w.AppendRow(table.Row{"dialect", string(v.Dialect)})
		w.AppendRow(table.Row{"session", v.ID})
		if v.Branch != "" {
			w.AppendRow(table.Row{"branch", v.Branch})
		}
		if v.Version != "" {
			w.AppendRow(table.Row{"version", v.Version})
		}
		if v.CWD != "" {
			w.AppendRow(table.Row{"cwd", v.CWD})
		}
		if !v.StartedAt.IsZero() {
			w.AppendRow(table.Row{"started", v.StartedAt.Format("2006-01-02 15:04:05")})
		}
		if d := v.Duration(); d > 0 {
			w.AppendRow(table.Row{"duration", d.Round(0).String()})
		}
		w.AppendRow(table.Row{"events", len(v.Events)})
		w.AppendRow(table.Row{"turns", len(v.Turns)})

	case *model.EvalSuite:
		w.AppendRow(table.Row{"suite", v.Name})
		if v.Description != "" {
			w.AppendRow(table.Row{"description", v.Description})
		}
		w.AppendRow(table.Row{"cases", fmt.Sprintf("%d of %d", len(v.Cases), v.ExpectedCases)})
		if v.Err != "" {
			w.AppendRow(table.Row{"error", v.Err})
		}

	case *model.EvalOutcome:
		name := v.TaskName
		if name == "" {
			name = v.TaskID
		}
		w.AppendRow(table.Row{"task", name})
		w.AppendRow(table.Row{"model", v.Model})
		w.AppendRow(table.Row{"duration", v.Duration.String()})
		w.AppendRow(table.Row{"turns", v.Turns})
		w.AppendRow(table.Row{"tools", v.ToolCalls})
		w.AppendRow(table.Row{"tokens", v.Tokens})
	}

	if p.cfg.Path != "" {
		w.AppendRow(table.Row{"path", p.cfg.Path})
	}
	return strings.Split(w.Render(), "\n")
}
