package input

import "testing"

func TestDecodeSingleByteKeys(t *testing.T) {
	cases := []struct {
		in   []byte
		want Key
		n    int
	}{
		{[]byte("\r"), KeyEnter, 1},
		{[]byte("\n"), KeyEnter, 1},
		{[]byte("\t"), KeyTab, 1},
		{[]byte("q"), Key{Rune: 'q'}, 1},
	}
	for _, c := range cases {
		got, n := Decode(c.in, false)
		if got != c.want || n != c.n {
			t.Errorf("Decode(%q) = %v,%d want %v,%d", c.in, got, n, c.want, c.n)
		}
	}
}

func TestDecodeArrowKeys(t *testing.T) {
	cases := []struct {
		in   string
		want Key
	}{
		{"\x1b[A", KeyUp},
		{"\x1b[B", KeyDown},
		{"\x1b[C", KeyRight},
		{"\x1b[D", KeyLeft},
		{"\x1b[H", KeyHome},
		{"\x1b[F", KeyEnd},
	}
	for _, c := range cases {
		got, n := Decode([]byte(c.in), false)
		if got != c.want || n != len(c.in) {
			t.Errorf("Decode(%q) = %v,%d want %v,%d", c.in, got, n, c.want, len(c.in))
		}
	}
}

func TestDecodeNumericCSISequences(t *testing.T) {
	cases := []struct {
		in   string
		want Key
	}{
		{"\x1b[5~", KeyPgUp},
		{"\x1b[6~", KeyPgDn},
		{"\x1b[1~", KeyHome},
		{"\x1b[4~", KeyEnd},
	}
	for _, c := range cases {
		got, n := Decode([]byte(c.in), false)
		if got != c.want || n != len(c.in) {
			t.Errorf("Decode(%q) = %v,%d want %v,%d", c.in, got, n, c.want, len(c.in))
		}
	}
}

func TestDecodeIncompleteSequenceWaitsForMore(t *testing.T) {
	got, n := Decode([]byte("\x1b"), true)
	if n != 0 || got != (Key{}) {
		t.Fatalf("Decode(ESC, moreComing=true) = %v,%d want zero,0", got, n)
	}
	got, n = Decode([]byte("\x1b[5"), true)
	if n != 0 || got != (Key{}) {
		t.Fatalf("Decode(partial CSI) = %v,%d want zero,0", got, n)
	}
}

func TestDecodeBareEscWhenNoMoreComing(t *testing.T) {
	got, n := Decode([]byte("\x1b"), false)
	if got != KeyEsc || n != 1 {
		t.Fatalf("Decode(ESC, moreComing=false) = %v,%d want Esc,1", got, n)
	}
}

func TestDispatchGlobalKeysOverrideMode(t *testing.T) {
	for _, m := range []Mode{ModeHostNav, ModeLogScroll, ModeFullScreen, ModeMenu} {
		if got := Dispatch(m, Key{Rune: 'q'}); got.Action != ActionQuit {
			t.Errorf("mode %v: Dispatch(q) = %v, want quit", m, got.Action)
		}
		if got := Dispatch(m, Key{Rune: 'h'}); got.Action != ActionToggleHelp {
			t.Errorf("mode %v: Dispatch(h) = %v, want toggle help", m, got.Action)
		}
	}
}

func TestDispatchHostNavTable(t *testing.T) {
	cases := []struct {
		key  Key
		want Action
	}{
		{KeyUp, ActionHostPrevVisible},
		{KeyDown, ActionHostNextVisible},
		{KeyLeft, ActionHostPrevAny},
		{KeyRight, ActionHostNextAny},
		{KeyEnter, ActionEnterFullScreen},
		{KeyTab, ActionOpenMenu},
		{Key{Rune: 'm'}, ActionToggleMinimized},
	}
	for _, c := range cases {
		if got := Dispatch(ModeHostNav, c.key); got.Action != c.want {
			t.Errorf("Dispatch(HostNav, %v) = %v, want %v", c.key, got.Action, c.want)
		}
	}
}

func TestDispatchMenuJumpToEntry(t *testing.T) {
	got := Dispatch(ModeMenu, Key{Rune: '3'})
	if got.Action != ActionMenuJumpToEntry || got.Arg != 3 {
		t.Fatalf("Dispatch(Menu, '3') = %+v, want jump to 3", got)
	}
}

func TestDispatchFullScreenEnterAndEscBothExit(t *testing.T) {
	for _, k := range []Key{KeyEnter, KeyEsc} {
		if got := Dispatch(ModeFullScreen, k); got.Action != ActionExitFullScreen {
			t.Errorf("Dispatch(FullScreen, %v) = %v, want exit", k, got.Action)
		}
	}
}

func TestDispatchLogScrollEscLeaves(t *testing.T) {
	got := Dispatch(ModeLogScroll, KeyEsc)
	if got.Action != ActionLeaveLogScroll {
		t.Fatalf("Dispatch(LogScroll, Esc) = %v, want leave", got.Action)
	}
}

func TestDispatchUnmappedKeyIsNone(t *testing.T) {
	got := Dispatch(ModeFullScreen, KeyTab)
	if got.Action != ActionNone {
		t.Fatalf("Dispatch(FullScreen, Tab) = %v, want none", got.Action)
	}
}
