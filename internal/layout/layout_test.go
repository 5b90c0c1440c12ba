package layout

import (
	"strings"
	"testing"
)

func TestWidth_PlainAndWide(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"A世B", 4},
		{"日本語", 6},
		{"👍", 2},
		{"⏰", 2},
		{"é", 1}, // combining acute
		{"a️b", 2},
	}
	for _, tc := range cases {
		if got := Width(tc.in); got != tc.want {
			t.Fatalf("Width(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestWidth_MarkupIsZeroWidth(t *testing.T) {
	if got := Width("[bold][red]hi[/][/]"); got != 2 {
		t.Fatalf("markup width = %d, want 2", got)
	}
	if got := Width("[[escaped]]"); got != 9 {
		t.Fatalf("escaped width = %d, want 9", got)
	}
}

func TestStrip(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"[bold]hi[/]", "hi"},
		{"[[literal]]", "[literal]"},
		{"plain", "plain"},
		{"[cyan]a[/] [dim]b[/]", "a b"},
		{"[ not a tag", "[ not a tag"},
	}
	for _, tc := range cases {
		if got := Strip(tc.in); got != tc.want {
			t.Fatalf("Strip(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWidthMatchesStrippedWidth(t *testing.T) {
	samples := []string{
		"[bold]A世B[/]",
		"[red][dim]nested 👍[/][/]",
		"[[x]] plain ]]",
		"tool: [cyan]Bash[/] (ls -la)",
	}
	for _, s := range samples {
		if Width(s) != Width(Strip(s)) {
			t.Fatalf("Width(%q)=%d differs from stripped width %d", s, Width(s), Width(Strip(s)))
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("short string should be a no-op, got %q", got)
	}
	if got := Truncate("hello", 3); got != "hel" {
		t.Fatalf("Truncate = %q, want hel", got)
	}
	// Never split the double-width rune.
	if got := Truncate("a世b", 2); got != "a" {
		t.Fatalf("Truncate wide = %q, want a", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("zero width should be empty, got %q", got)
	}
}

func TestTruncateWidthInvariant(t *testing.T) {
	samples := []string{"hello world", "日本語テキスト", "a👍b👍c", "x"}
	for _, s := range samples {
		for w := 0; w <= 12; w++ {
			if got := Width(Truncate(s, w)); got > w {
				t.Fatalf("Width(Truncate(%q, %d)) = %d exceeds limit", s, w, got)
			}
		}
	}
}

func TestTruncateMarkup_Balanced(t *testing.T) {
	samples := []string{
		"[bold]hello world this is long[/]",
		"[red][dim]nested content here[/][/]",
		"[cyan]unclosed tag content",
		"plain text with no tags at all",
		"[bold]日本語の長いテキスト[/]",
	}
	for _, s := range samples {
		for w := 1; w <= 15; w++ {
			out := TruncateMarkup(s, w)
			if got := Width(out); got > w {
				t.Fatalf("TruncateMarkup(%q, %d) width = %d", s, w, got)
			}
			if opens, closes := countTags(out); opens != closes {
				t.Fatalf("TruncateMarkup(%q, %d) = %q unbalanced (%d opens, %d closes)", s, w, out, opens, closes)
			}
		}
	}
}

func TestTruncateMarkup_EllipsisInsideContext(t *testing.T) {
	out := TruncateMarkup("[red]abcdefgh[/]", 4)
	if out != "[red]abc…[/]" {
		t.Fatalf("unexpected truncation: %q", out)
	}
}

func TestTruncateMarkup_ShortIsVerbatim(t *testing.T) {
	out := TruncateMarkup("[bold]ok[/]", 10)
	if out != "[bold]ok[/]" {
		t.Fatalf("short markup changed: %q", out)
	}
}

func TestSkip(t *testing.T) {
	if got := Skip("abcdef", 2); got != "cdef" {
		t.Fatalf("Skip plain = %q", got)
	}
	if got := Skip("abc", 10); got != "" {
		t.Fatalf("Skip past end = %q", got)
	}
	if got := Skip("abc", 0); got != "abc" {
		t.Fatalf("Skip zero = %q", got)
	}
}

func TestSkip_ReopensTags(t *testing.T) {
	out := Skip("[red]abcdef[/]", 2)
	if out != "[red]cdef[/]" {
		t.Fatalf("Skip should re-open tags, got %q", out)
	}
	if Strip(out) != "cdef" {
		t.Fatalf("stripped remainder = %q", Strip(out))
	}
}

func TestSkip_NeverUnbalancedClose(t *testing.T) {
	samples := []string{"[red]ab[/]cd[bold]ef[/]", "[dim][red]xyzzy[/][/]"}
	for _, s := range samples {
		for c := 0; c <= 8; c++ {
			opens, closes := countTags(Skip(s, c))
			if closes > opens {
				t.Fatalf("Skip(%q, %d) has %d closes for %d opens", s, c, closes, opens)
			}
		}
	}
}

func TestSkip_WideRuneStraddle(t *testing.T) {
	// Skipping one column through a double-width rune consumes it whole.
	if got := Skip("世x", 1); got != "x" {
		t.Fatalf("straddle skip = %q", got)
	}
}

func TestPad(t *testing.T) {
	if got := Pad("ab", 5); got != "ab   " {
		t.Fatalf("Pad = %q", got)
	}
	if got := Pad("[bold]ab[/]", 4); got != "[bold]ab[/]  " {
		t.Fatalf("Pad markup = %q", got)
	}
	if got := Pad("toolong", 3); got != "toolong" {
		t.Fatalf("Pad should not shrink, got %q", got)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	in := "a [b] c ]["
	if got := Strip(Escape(in)); got != in {
		t.Fatalf("Strip(Escape(%q)) = %q", in, got)
	}
}

func TestToANSI(t *testing.T) {
	out, err := ToANSI("[bold]hi[/]", true)
	if err != nil {
		t.Fatalf("ToANSI error: %v", err)
	}
	if out != "\x1b[1mhi\x1b[0m" {
		t.Fatalf("ToANSI = %q", out)
	}

	plain, err := ToANSI("[red]x[/]", false)
	if err != nil {
		t.Fatalf("ToANSI nocolor error: %v", err)
	}
	if plain != "x" {
		t.Fatalf("ToANSI nocolor = %q", plain)
	}
}

func TestToANSI_NestedReplaysOuter(t *testing.T) {
	out, err := ToANSI("[red]a[bold]b[/]c[/]", true)
	if err != nil {
		t.Fatalf("ToANSI error: %v", err)
	}
	// Closing bold resets and replays red before c.
	if !strings.Contains(out, "\x1b[0m\x1b[31mc") {
		t.Fatalf("outer style not replayed: %q", out)
	}
}

func TestToANSI_Errors(t *testing.T) {
	if _, err := ToANSI("[bogus]x[/]", true); err == nil {
		t.Fatal("unknown tag should error")
	}
	if _, err := ToANSI("x[/]", true); err == nil {
		t.Fatal("unmatched close should error")
	}
}

func TestMalformedBytesDegrade(t *testing.T) {
	bad := "a\xffb"
	if got := Width(bad); got != 3 {
		t.Fatalf("malformed byte width = %d, want 3", got)
	}
	if got := Strip(bad); got != bad {
		t.Fatalf("malformed bytes not copied verbatim: %q", got)
	}
}

// countTags counts open and close markers in well-formed-or-not markup.
func countTags(s string) (opens, closes int) {
	for i := 0; i < len(s); {
		tok := nextToken(s, i)
		switch tok.kind {
		case tokenOpen:
			opens++
		case tokenClose:
			closes++
		}
		i = tok.end
	}
	return opens, closes
}
