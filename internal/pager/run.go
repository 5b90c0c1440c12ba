package pager

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/term"

	"traceview/internal/layout"
	"traceview/internal/model"
	"traceview/internal/parse"
)

// pollInterval paces the idle loop: resize checks and tail flushes.
const pollInterval = 50 * time.Millisecond

// tailDebounce bounds how often pending file changes are consumed.
const tailDebounce = 100 * time.Millisecond

type keyKind int

const (
	keyRune keyKind = iota
	keyUp
	keyDown
	keyLeft
	keyRight
	keyEnter
	keyEsc
	keyBackspace
)

type key struct {
	kind keyKind
	r    rune
}

// Run takes over the terminal until the user quits or requests a
// follow-up action. It never launches external processes itself.
func (p *Pager) Run() (Action, error) {
	in, out := os.Stdin, os.Stdout

	oldState, err := term.MakeRaw(int(in.Fd()))
	if err != nil {
		return ActionQuit, fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(int(in.Fd()), oldState)

	fmt.Fprint(out, "\x1b[?1049h\x1b[?25l\x1b[2J")
	defer fmt.Fprint(out, "\x1b[?1049l\x1b[?25h")

	if w, h, err := term.GetSize(int(out.Fd())); err == nil {
		p.resize(w, h)
	}

	keys := make(chan byte, 64)
	go readKeys(in, keys)

	if watcher := p.startWatcher(); watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastTail := time.Now()

	p.draw(out)
	for {
		select {
		case b, ok := <-keys:
			if !ok {
				return ActionQuit, nil
			}
			if action, done := p.handleKey(decodeKey(b, keys)); done {
				return action, nil
			}
			p.draw(out)

		case <-ticker.C:
			changed := false
			if w, h, err := term.GetSize(int(out.Fd())); err == nil && (w != p.width || h != p.height) {
				p.resize(w, h)
				changed = true
			}
			if time.Since(lastTail) >= tailDebounce && atomic.SwapInt32(&p.pending, 0) == 1 {
				lastTail = time.Now()
				if p.appendTail() {
					changed = true
				}
			}
			if changed {
				p.draw(out)
			}
		}
	}
}

func readKeys(in io.Reader, keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			keys <- buf[0]
		}
		if err != nil {
			close(keys)
			return
		}
	}
}

// decodeKey folds CSI arrow sequences into key values. A lone escape
// that is not followed by a sequence within a short window stands for
// itself.
func decodeKey(b byte, keys <-chan byte) key {
	switch b {
	case '\r', '\n':
		return key{kind: keyEnter}
	case 0x7f, 0x08:
		return key{kind: keyBackspace}
	case 0x1b:
		select {
		case next, ok := <-keys:
			if !ok || next != '[' {
				return key{kind: keyEsc}
			}
		case <-time.After(10 * time.Millisecond):
			return key{kind: keyEsc}
		}
		select {
		case code, ok := <-keys:
			if !ok {
				return key{kind: keyEsc}
			}
			switch code {
			case 'A':
				return key{kind: keyUp}
			case 'B':
				return key{kind: keyDown}
			case 'C':
				return key{kind: keyRight}
			case 'D':
				return key{kind: keyLeft}
			}
			return key{kind: keyEsc}
		case <-time.After(10 * time.Millisecond):
			return key{kind: keyEsc}
		}
	}
	return key{kind: keyRune, r: rune(b)}
}

// handleKey applies one key in the current mode and reports whether the
// pager should exit, and with which action.
func (p *Pager) handleKey(k key) (Action, bool) {
	switch p.mode {
	case modeInfo:
		p.mode = modeNormal
		return 0, false

	case modeSearch:
		switch k.kind {
		case keyEnter:
			p.mode = modeNormal
			p.commitSearch(string(p.entry))
		case keyEsc:
			p.mode = modeNormal
			p.entry = p.entry[:0]
		case keyBackspace:
			if len(p.entry) > 0 {
				p.entry = p.entry[:len(p.entry)-1]
			}
		case keyRune:
			if k.r >= ' ' {
				p.entry = append(p.entry, k.r)
			}
		}
		return 0, false
	}

	switch {
	case k.kind == keyDown || k.r == 'j':
		p.scroll(1)
	case k.kind == keyUp || k.r == 'k':
		p.scroll(-1)
	case k.r == ' ' || k.r == 'f':
		p.scroll(p.contentRows() - 1)
	case k.r == 'b':
		p.scroll(-(p.contentRows() - 1))
	case k.r == 'g':
		p.row = 0
	case k.r == 'G':
		p.row = p.maxRow()
		p.newBelow = false
	case k.kind == keyRight || k.r == 'l':
		p.pan(8)
	case k.kind == keyLeft || k.r == 'h':
		p.pan(-8)
	case k.r == '0':
		p.col = 0
	case k.r == 'F':
		p.cycleFilter()
	case k.r == 't':
		p.toggleExpand()
	case k.r == '/':
		p.mode = modeSearch
		p.entry = p.entry[:0]
	case k.r == 'n':
		p.jumpMatch(1)
	case k.r == 'N':
		p.jumpMatch(-1)
	case k.r == 'i':
		p.mode = modeInfo
	case k.r == 'q', k.r == 0x03:
		return ActionQuit, true
	case k.r == 's':
		return ActionBrowse, true
	case k.r == 'r':
		return ActionResume, true
	}
	return 0, false
}

// startWatcher begins watching the source file for appended content.
// Live tail only applies to the primary session dialect; anything else
// renders once and stays static.
func (p *Pager) startWatcher() *fsnotify.Watcher {
	if !p.follow || p.cfg.Path == "" {
		return nil
	}
	s, ok := p.cfg.Transcript.(*model.Session)
	if !ok || s.Dialect != model.DialectClaude {
		p.follow = false
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.follow = false
		return nil
	}
	if err := watcher.Add(p.cfg.Path); err != nil {
		watcher.Close()
		p.follow = false
		return nil
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					atomic.StoreInt32(&p.pending, 1)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return watcher
}

// appendTail consumes appended file content and reports whether new
// lines were rendered. The view stays pinned to the bottom only if it
// already was.
func (p *Pager) appendTail() bool {
	s, ok := p.cfg.Transcript.(*model.Session)
	if !ok {
		return false
	}
	n, err := parse.AppendSession(s, p.cfg.Path)
	if err != nil || n == 0 {
		return false
	}

	pinned := p.row >= p.maxRow()
	p.renderLines()
	if pinned {
		p.row = p.maxRow()
	} else {
		p.newBelow = true
	}
	return true
}

// draw repaints the full frame: content rows, status bar, and the info
// overlay when active.
func (p *Pager) draw(out io.Writer) {
	var b strings.Builder
	b.WriteString("\x1b[H")

	rows := p.contentRows()
	for i := 0; i < rows; i++ {
		b.WriteString(p.frameRow(i))
		b.WriteString("\x1b[K\r\n")
	}
	b.WriteString(p.renderStatus())
	b.WriteString("\x1b[K")

	if p.mode == modeInfo {
		for i, line := range p.infoLines() {
			fmt.Fprintf(&b, "\x1b[%d;3H%s", i+2, line)
		}
	}
	io.WriteString(out, b.String())
}

func (p *Pager) renderStatus() string {
	text := layout.Pad(layout.Truncate(p.statusText(), p.width), p.width)
	if p.cfg.Color {
		return "\x1b[7m" + text + "\x1b[0m"
	}
	return text
}
