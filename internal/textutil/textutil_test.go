package textutil

import "testing"

func TestParseColorMode(t *testing.T) {
	cases := []struct {
		in   string
		want ColorMode
		ok   bool
	}{
		{"auto", ColorAuto, true},
		{"", ColorAuto, true},
		{"always", ColorAlways, true},
		{"never", ColorNever, true},
		{"bogus", ColorAuto, false},
	}
	for _, c := range cases {
		got, ok := ParseColorMode(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseColorMode(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestColorizeRespectsEnabled(t *testing.T) {
	if got := Colorize(false, FgRed, "x"); got != "x" {
		t.Errorf("Colorize(false, ...) = %q, want unmodified", got)
	}
	if got := Colorize(true, FgRed, "x"); got != FgRed+"x"+Reset {
		t.Errorf("Colorize(true, ...) = %q, want wrapped in SGR", got)
	}
	if got := Colorize(true, "", "x"); got != "x" {
		t.Errorf("Colorize with empty code = %q, want unmodified", got)
	}
}

func TestSanitizeStripsControlBytesAndKeepsWhitespace(t *testing.T) {
	in := "hello\x1b[31mworld\x07\tend\n"
	got := Sanitize(in)
	want := "hello" + string(replacementGlyph) + "[31mworld" + string(replacementGlyph) + " end "
	if got != want {
		t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
	}
}

func TestTruncateShortensAndEllipsizes(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate short string = %q, want unchanged", got)
	}
	if got := Truncate("hello world", 8); got != "hello w…" {
		t.Errorf("Truncate long string = %q, want ellipsized", got)
	}
	if got := Truncate("hello", 1); got != "…" {
		t.Errorf("Truncate to width 1 = %q, want ellipsis only", got)
	}
	if got := Truncate("hello", 0); got != "" {
		t.Errorf("Truncate to width 0 = %q, want empty", got)
	}
}

func TestPadRightPadsToWidth(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight(%q, 5) = %q", "ab", got)
	}
	if got := PadRight("abcde", 3); got != "abcde" {
		t.Errorf("PadRight with s already past width = %q, want unchanged", got)
	}
}

func TestCenterBoxClampsToNonNegative(t *testing.T) {
	row, col := CenterBox(80, 24, 20, 10)
	if row != 7 || col != 30 {
		t.Errorf("CenterBox(80,24,20,10) = (%d,%d), want (7,30)", row, col)
	}
	row, col = CenterBox(10, 10, 40, 40)
	if row != 0 || col != 0 {
		t.Errorf("CenterBox with box larger than terminal = (%d,%d), want (0,0)", row, col)
	}
}
