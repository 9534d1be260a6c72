package layout

import "testing"

func TestGridFitsAllWithinMinimums(t *testing.T) {
	res := Compute(ModeGrid, 160, 48, []string{"a", "b", "c", "d"}, "", nil)
	if len(res.Tiles) != 4 {
		t.Fatalf("Tiles = %v, want 4 entries", res.Tiles)
	}
	for h, r := range res.Tiles {
		if r.Width < MinTileWidth || r.Height < MinTileHeight {
			t.Fatalf("tile %s = %+v violates minimums", h, r)
		}
	}
	if len(res.Hidden) != 0 {
		t.Fatalf("Hidden = %v, want none", res.Hidden)
	}
}

func TestGridHidesOverflowWhenTerminalTooSmall(t *testing.T) {
	res := Compute(ModeGrid, 40, 6, []string{"a", "b", "c", "d"}, "", nil)
	if len(res.Tiles)+len(res.Hidden) != 4 {
		t.Fatalf("tiles+hidden = %d, want 4", len(res.Tiles)+len(res.Hidden))
	}
	// A single 40x6 tile is exactly the minimum; at least one host must
	// be visible and any overflow hidden, never panicking or dropping
	// hosts from tracking entirely.
	if len(res.Tiles) == 0 && len(res.Hidden) == 0 {
		t.Fatalf("expected some hosts accounted for")
	}
}

func TestFullScreenUsesHeaderFooterMargins(t *testing.T) {
	res := Compute(ModeFullScreen, 100, 40, nil, "u@a", nil)
	r, ok := res.Tiles["u@a"]
	if !ok {
		t.Fatalf("expected a tile for the focused host")
	}
	if r.Row != headerRows {
		t.Fatalf("Row = %d, want %d", r.Row, headerRows)
	}
	if r.Height != 40-headerRows-footerRows {
		t.Fatalf("Height = %d, want %d", r.Height, 40-headerRows-footerRows)
	}
}

func TestMenuBoxIsCenteredFraction(t *testing.T) {
	res := Compute(ModeMenu, 100, 50, nil, "", nil)
	if res.MenuBox.Width != 80 || res.MenuBox.Height != 40 {
		t.Fatalf("MenuBox = %+v, want 80x40", res.MenuBox)
	}
}

func TestMinimizedHostsExcludedFromGrid(t *testing.T) {
	res := Compute(ModeGrid, 160, 48, []string{"a", "b", "c"}, "", []string{"c"})
	if _, ok := res.Tiles["c"]; ok {
		t.Fatalf("minimized host should not appear in grid tiles")
	}
	if len(res.Minimized) != 1 || res.Minimized[0] != "c" {
		t.Fatalf("Minimized = %v, want [c]", res.Minimized)
	}
}
