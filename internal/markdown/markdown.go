// Package markdown renders markdown text into styled terminal lines
// carrying the layout markup mini-language. It parses with goldmark and
// renders the AST directly, because the output target is markup spans
// rather than ANSI.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	gtext "github.com/yuin/goldmark/text"

	"traceview/internal/layout"
)

// DefaultPrefix is the left-margin glyph prepended to every line.
const DefaultPrefix = "│ "

// quotePrefix is the additional glyph for block-quoted content.
const quotePrefix = "▌ "

// Options configures rendering.
type Options struct {
	// Prefix is the left margin for every emitted line. Empty means
	// DefaultPrefix.
	Prefix string
}

var parser = goldmark.New(goldmark.WithExtensions(extension.Table))

// Render parses source as markdown and returns styled lines. Block
// types without a dedicated renderer fall back to their verbatim source
// lines; rendering never fails.
func Render(source string, opts Options) []string {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	src := []byte(source)
	doc := parser.Parser().Parse(gtext.NewReader(src))

	var lines []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, renderBlock(node, src)...)
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimRight(prefix+line, " "))
	}
	return collapseBlankRuns(out, strings.TrimRight(prefix, " "))
}

// collapseBlankRuns reduces consecutive bare-prefix separator lines to
// a single one.
func collapseBlankRuns(lines []string, bare string) []string {
	out := lines[:0]
	prevBlank := false
	for _, line := range lines {
		blank := line == bare
		if blank && prevBlank {
			continue
		}
		out = append(out, line)
		prevBlank = blank
	}
	return out
}

func renderBlock(node ast.Node, src []byte) []string {
	switch n := node.(type) {
	case *ast.Heading:
		marker := strings.Repeat("#", n.Level)
		text := renderInline(n, src)
		return []string{
			"[cyan][bold]" + marker + " " + text + "[/][/]",
			"",
		}

	case *ast.Paragraph, *ast.TextBlock:
		return strings.Split(renderInline(node, src), "\n")

	case *ast.FencedCodeBlock:
		lang := string(n.Language(src))
		lines := []string{"[dim]```" + layout.Escape(lang) + "[/]"}
		lines = append(lines, codeLines(n, src)...)
		return append(lines, "[dim]```[/]")

	case *ast.CodeBlock:
		return codeLines(n, src)

	case *ast.List:
		return renderList(n, src, 0)

	case *ast.Blockquote:
		var lines []string
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			if len(lines) > 0 {
				lines = append(lines, quotePrefix)
			}
			for _, line := range renderBlock(child, src) {
				lines = append(lines, strings.TrimRight(quotePrefix+line, " "))
			}
		}
		return lines

	case *ast.ThematicBreak:
		return []string{"[dim]" + strings.Repeat("─", 30) + "[/]"}

	case *extast.Table:
		return renderTable(n, src)

	default:
		return verbatimLines(node, src)
	}
}

// codeLines renders the literal body of a code block, dimmed, one
// source line per output line.
func codeLines(node ast.Node, src []byte) []string {
	var lines []string
	segments := node.Lines()
	for i := 0; i < segments.Len(); i++ {
		seg := segments.At(i)
		text := strings.TrimRight(string(seg.Value(src)), "\n")
		lines = append(lines, "[dim]"+layout.Escape(text)+"[/]")
	}
	return lines
}

// verbatimLines is the fallback for unhandled block kinds.
func verbatimLines(node ast.Node, src []byte) []string {
	var lines []string
	segments := node.Lines()
	for i := 0; i < segments.Len(); i++ {
		seg := segments.At(i)
		lines = append(lines, layout.Escape(strings.TrimRight(string(seg.Value(src)), "\n")))
	}
	return lines
}

// renderList renders a list recursively. Continuation lines align under
// the marker width; nested lists indent further.
func renderList(list *ast.List, src []byte, depth int) []string {
	indent := strings.Repeat("  ", depth)
	var lines []string

	number := list.Start
	if number == 0 {
		number = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", number)
			number++
		}
		hang := strings.Repeat(" ", layout.Width(marker))

		first := true
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if nested, ok := child.(*ast.List); ok {
				lines = append(lines, renderList(nested, src, depth+1)...)
				continue
			}
			for _, line := range renderBlock(child, src) {
				switch {
				case first:
					lines = append(lines, indent+marker+line)
					first = false
				default:
					lines = append(lines, strings.TrimRight(indent+hang+line, " "))
				}
			}
		}
		if first {
			lines = append(lines, indent+marker)
		}
	}
	return lines
}

// renderTable renders a table with column widths measured in visible
// cells and a synthesized header separator row.
func renderTable(table *extast.Table, src []byte) []string {
	var rows [][]string
	headerRows := 0
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, renderInline(cell, src))
		}
		if _, ok := row.(*extast.TableHeader); ok {
			headerRows = len(rows) + 1
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil
	}

	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := layout.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var lines []string
	for r, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(layout.Pad(cell, widths[i]))
		}
		line := strings.TrimRight(b.String(), " ")
		if r < headerRows {
			line = "[bold]" + line + "[/]"
		}
		lines = append(lines, line)
		if r == headerRows-1 {
			var sep []string
			for _, w := range widths {
				sep = append(sep, strings.Repeat("─", w))
			}
			lines = append(lines, "[dim]"+strings.Join(sep, "  ")+"[/]")
		}
	}
	return lines
}

// renderInline renders a node's inline children into one styled string.
// Hard breaks become newlines; soft breaks become spaces.
func renderInline(node ast.Node, src []byte) string {
	var b strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		writeInline(&b, child, src)
	}
	return b.String()
}

func writeInline(b *strings.Builder, node ast.Node, src []byte) {
	switch n := node.(type) {
	case *ast.Text:
		b.WriteString(layout.Escape(string(n.Segment.Value(src))))
		if n.HardLineBreak() {
			b.WriteString("\n")
		} else if n.SoftLineBreak() {
			b.WriteString(" ")
		}

	case *ast.Emphasis:
		tag := "[italic]"
		if n.Level >= 2 {
			tag = "[bold]"
		}
		b.WriteString(tag)
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			writeInline(b, child, src)
		}
		b.WriteString("[/]")

	case *ast.CodeSpan:
		b.WriteString("[yellow]")
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			writeInline(b, child, src)
		}
		b.WriteString("[/]")

	case *ast.Link:
		b.WriteString("[underline]")
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			writeInline(b, child, src)
		}
		b.WriteString("[/]")
		if url := string(n.Destination); url != "" {
			b.WriteString(" [dim](" + layout.Escape(url) + ")[/]")
		}

	case *ast.AutoLink:
		b.WriteString("[underline]" + layout.Escape(string(n.URL(src))) + "[/]")

	case *ast.Image:
		b.WriteString("[dim][image: ")
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			writeInline(b, child, src)
		}
		b.WriteString("][/]")

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.WriteString(layout.Escape(string(seg.Value(src))))
		}

	case *ast.String:
		b.WriteString(layout.Escape(string(n.Value)))

	default:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			writeInline(b, child, src)
		}
	}
}
