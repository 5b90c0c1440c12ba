// Package layout measures and manipulates strings carrying the inline
// bracket styling markup used throughout the renderer. Tags look like
// [bold] or [cyan], a single [/] closes the most recently opened tag,
// and doubled brackets escape literals. All width math is in terminal
// cells, not bytes or runes.
package layout

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Ellipsis is the single-cell truncation marker.
const Ellipsis = "…"

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOpen
	tokenClose
)

type token struct {
	kind tokenKind
	// text holds the literal content for tokenText (already unescaped)
	// or the tag name for tokenOpen.
	text string
	// width is the cell width of a text token.
	width int
	// end is the byte offset just past this token in the source.
	end int
}

// nextToken decodes one token starting at byte offset i. Text tokens
// carry exactly one rune (or one unescaped bracket).
func nextToken(s string, i int) token {
	if s[i] == '[' {
		if i+1 < len(s) && s[i+1] == '[' {
			return token{kind: tokenText, text: "[", width: 1, end: i + 2}
		}
		if strings.HasPrefix(s[i:], "[/]") {
			return token{kind: tokenClose, end: i + 3}
		}
		if name, end, ok := scanTagName(s, i); ok {
			return token{kind: tokenOpen, text: name, end: end}
		}
		return token{kind: tokenText, text: "[", width: 1, end: i + 1}
	}
	if s[i] == ']' {
		if i+1 < len(s) && s[i+1] == ']' {
			return token{kind: tokenText, text: "]", width: 1, end: i + 2}
		}
		return token{kind: tokenText, text: "]", width: 1, end: i + 1}
	}

	r, size := utf8.DecodeRuneInString(s[i:])
	if r == utf8.RuneError && size == 1 {
		// Malformed byte: copy through verbatim as a width-1 cell.
		return token{kind: tokenText, text: s[i : i+1], width: 1, end: i + 1}
	}
	return token{kind: tokenText, text: s[i : i+size], width: cellWidth(r), end: i + size}
}

func scanTagName(s string, i int) (name string, end int, ok bool) {
	j := i + 1
	if j >= len(s) || s[j] < 'a' || s[j] > 'z' {
		return "", 0, false
	}
	for j < len(s) && (s[j] >= 'a' && s[j] <= 'z' || s[j] >= '0' && s[j] <= '9') {
		j++
	}
	if j >= len(s) || s[j] != ']' {
		return "", 0, false
	}
	return s[i+1 : j], j + 1, true
}

// cellWidth reports the display width of a single rune. Combining marks
// and variation selectors occupy no cells; emoji occupy two.
func cellWidth(r rune) int {
	switch {
	case r == 0xFE0E || r == 0xFE0F || r == 0x200D:
		return 0
	case unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Me, r):
		return 0
	case r >= 0x1F000 && r <= 0x1FAFF:
		return 2
	case isEmojiPresentation(r):
		return 2
	default:
		return runewidth.RuneWidth(r)
	}
}

// emojiRanges lists the basic-plane symbols with default emoji
// presentation, which terminals draw double-width.
var emojiRanges = [][2]rune{
	{0x231A, 0x231B}, {0x23E9, 0x23EC}, {0x23F0, 0x23F0}, {0x23F3, 0x23F3},
	{0x25FD, 0x25FE}, {0x2614, 0x2615}, {0x2648, 0x2653}, {0x267F, 0x267F},
	{0x2693, 0x2693}, {0x26A1, 0x26A1}, {0x26AA, 0x26AB}, {0x26BD, 0x26BE},
	{0x26C4, 0x26C5}, {0x26CE, 0x26CE}, {0x26D4, 0x26D4}, {0x26EA, 0x26EA},
	{0x26F2, 0x26F3}, {0x26F5, 0x26F5}, {0x26FA, 0x26FA}, {0x26FD, 0x26FD},
	{0x2705, 0x2705}, {0x270A, 0x270B}, {0x2728, 0x2728}, {0x274C, 0x274C},
	{0x274E, 0x274E}, {0x2753, 0x2755}, {0x2757, 0x2757}, {0x2795, 0x2797},
	{0x27B0, 0x27B0}, {0x27BF, 0x27BF}, {0x2B1B, 0x2B1C}, {0x2B50, 0x2B50},
	{0x2B55, 0x2B55},
}

func isEmojiPresentation(r rune) bool {
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

// Width returns the visible cell width of s. Markup contributes zero.
func Width(s string) int {
	total := 0
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		if tok.kind == tokenText {
			total += tok.width
		}
		i = tok.end
	}
	return total
}

// Strip removes all styling tags and restores escaped brackets.
func Strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		if tok.kind == tokenText {
			b.WriteString(tok.text)
		}
		i = tok.end
	}
	return b.String()
}

// Escape doubles brackets so arbitrary text survives as plain content.
func Escape(s string) string {
	if !strings.ContainsAny(s, "[]") {
		return s
	}
	s = strings.ReplaceAll(s, "[", "[[")
	return strings.ReplaceAll(s, "]", "]]")
}

// Truncate returns the longest prefix of plain text s whose visible
// width does not exceed max. Multi-byte runes are never split.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	width := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		w := 1
		if r != utf8.RuneError || size != 1 {
			w = cellWidth(r)
		}
		if width+w > max {
			return s[:i]
		}
		width += w
		i += size
	}
	return s
}

// TruncateMarkup is the tag-aware counterpart of Truncate: content stops
// at max cells with an ellipsis placed inside the currently open styling
// context, and every tag still open is closed. The result is always
// well-formed markup.
func TruncateMarkup(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if Width(s) <= max {
		return closeOpenTags(s)
	}

	var b strings.Builder
	var open []string
	width := 0
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		switch tok.kind {
		case tokenOpen:
			open = append(open, tok.text)
			b.WriteString("[" + tok.text + "]")
		case tokenClose:
			if len(open) > 0 {
				open = open[:len(open)-1]
				b.WriteString("[/]")
			}
		case tokenText:
			if width+tok.width > max-1 {
				b.WriteString(Ellipsis)
				for range open {
					b.WriteString("[/]")
				}
				return b.String()
			}
			width += tok.width
			b.WriteString(Escape(tok.text))
		}
		i = tok.end
	}
	// Unreachable under the Width guard above, but keep the output
	// balanced regardless.
	for range open {
		b.WriteString("[/]")
	}
	return b.String()
}

// closeOpenTags appends a close marker for every tag left open in s and
// drops closes that have no matching open.
func closeOpenTags(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		switch tok.kind {
		case tokenOpen:
			depth++
			b.WriteString(s[i:tok.end])
		case tokenClose:
			if depth > 0 {
				depth--
				b.WriteString(s[i:tok.end])
			}
		case tokenText:
			b.WriteString(s[i:tok.end])
		}
		i = tok.end
	}
	for ; depth > 0; depth-- {
		b.WriteString("[/]")
	}
	return b.String()
}

// Skip advances past the first cols visible columns of s, preserving
// tags open at the skip point by re-opening them ahead of the
// remainder. A double-width rune straddling the boundary is skipped
// entirely.
func Skip(s string, cols int) string {
	if cols <= 0 {
		return s
	}
	var open []string
	skipped := 0
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		switch tok.kind {
		case tokenOpen:
			open = append(open, tok.text)
		case tokenClose:
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		case tokenText:
			if skipped >= cols {
				var b strings.Builder
				for _, name := range open {
					b.WriteString("[" + name + "]")
				}
				b.WriteString(s[i:])
				return b.String()
			}
			skipped += tok.width
		}
		i = tok.end
	}
	return ""
}

// Pad right-pads s with spaces to the requested visible width.
func Pad(s string, width int) string {
	gap := width - Width(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

const ansiReset = "\x1b[0m"

// ansiCodes maps tag names to SGR parameters.
var ansiCodes = map[string]string{
	"bold":      "1",
	"dim":       "2",
	"italic":    "3",
	"underline": "4",
	"reverse":   "7",
	"red":       "31",
	"green":     "32",
	"yellow":    "33",
	"blue":      "34",
	"magenta":   "35",
	"cyan":      "36",
	"white":     "37",
	"gray":      "90",
}

// ErrBadMarkup reports markup that cannot be serialized, such as an
// unknown tag name or a close with no matching open.
var ErrBadMarkup = errors.New("bad markup")

// ToANSI serializes markup to a terminal escape string. With color off
// the tags are validated and stripped. Callers degrade to Strip when an
// error is returned.
func ToANSI(s string, color bool) (string, error) {
	var b strings.Builder
	var open []string
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		switch tok.kind {
		case tokenOpen:
			code, ok := ansiCodes[tok.text]
			if !ok {
				return "", fmt.Errorf("%w: unknown tag %q", ErrBadMarkup, tok.text)
			}
			open = append(open, tok.text)
			if color {
				b.WriteString("\x1b[" + code + "m")
			}
		case tokenClose:
			if len(open) == 0 {
				return "", fmt.Errorf("%w: close without open", ErrBadMarkup)
			}
			open = open[:len(open)-1]
			if color {
				// SGR attributes do not nest, so reset and replay
				// the styles that remain open.
				b.WriteString(ansiReset)
				for _, name := range open {
					b.WriteString("\x1b[" + ansiCodes[name] + "m")
				}
			}
		case tokenText:
			b.WriteString(tok.text)
		}
		i = tok.end
	}
	if color && len(open) > 0 {
		b.WriteString(ansiReset)
	}
	return b.String(), nil
}
