package excerpt

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRender_StripsTags(t *testing.T) {
	got := Render("<p>Hello <strong>world</strong></p>", 100)
	if got != "Hello world" {
		t.Errorf("Render = %q, want %q", got, "Hello world")
	}
}

func TestRender_DropsLeadingLink(t *testing.T) {
	cooked := `<a href="https://example.com/t/123">Quoted topic</a><p>The actual reply body</p>`
	got := Render(cooked, 100)
	if got != "The actual reply body" {
		t.Errorf("Render = %q, want leading anchor dropped", got)
	}
}

func TestRender_KeepsNonLeadingLinks(t *testing.T) {
	cooked := `<p>See <a href="https://example.com">this page</a> for details</p>`
	got := Render(cooked, 100)
	if got != "See this page for details" {
		t.Errorf("Render = %q, want inline link text kept", got)
	}
}

func TestRender_UnescapesEntities(t *testing.T) {
	got := Render("<p>fish &amp; chips &lt;3</p>", 100)
	if got != "fish & chips <3" {
		t.Errorf("Render = %q, want entities unescaped", got)
	}
}

func TestRender_CollapsesWhitespace(t *testing.T) {
	got := Render("<p>one</p>\n\n<p>two</p>\t<p>three</p>", 100)
	if got != "one two three" {
		t.Errorf("Render = %q, want single spaces", got)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := strings.Repeat("é", 50)
	got := Truncate(s, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("Truncate produced invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("é", 10)+"…" {
		t.Errorf("Truncate = %q, want 10 runes plus ellipsis", got)
	}
}

func TestTruncate_ShortStringUntouched(t *testing.T) {
	if got := Truncate("short", 200); got != "short" {
		t.Errorf("Truncate = %q, want unchanged", got)
	}
}

func TestTruncate_NoLimit(t *testing.T) {
	long := strings.Repeat("x", 500)
	if got := Truncate(long, 0); got != long {
		t.Errorf("Truncate with maxLen 0 must not cut")
	}
}

func TestRender_EmptyBody(t *testing.T) {
	if got := Render("", 100); got != "" {
		t.Errorf("Render(\"\") = %q, want empty", got)
	}
}
