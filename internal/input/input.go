// Package input decodes raw terminal byte sequences into symbolic key
// events and dispatches them to actions based on the current navigation
// mode (spec.md §4.8).
//
// The teacher has no interactive input surface (distri is a batch build
// tool); this package is grounded on the ecosystem's conventional
// CSI-sequence decoding (as used by the terminal libraries referenced in
// the retrieval pack's other_examples, e.g. termbox/tcell-style readers)
// rather than on any teacher file. This package only decodes bytes; raw
// mode is set up with golang.org/x/term in cmd/redland-forge, and the
// golang.org/x/sys ioctl terminal-size probe lives in internal/config.
package input

// Key is a decoded keystroke: either a symbolic special key (Name set,
// Rune zero) or a literal character (Rune set, Name empty).
type Key struct {
	Name string
	Rune rune
}

var (
	KeyUp    = Key{Name: "Up"}
	KeyDown  = Key{Name: "Down"}
	KeyLeft  = Key{Name: "Left"}
	KeyRight = Key{Name: "Right"}
	KeyPgUp  = Key{Name: "PgUp"}
	KeyPgDn  = Key{Name: "PgDn"}
	KeyHome  = Key{Name: "Home"}
	KeyEnd   = Key{Name: "End"}
	KeyEnter = Key{Name: "Enter"}
	KeyTab   = Key{Name: "Tab"}
	KeyEsc   = Key{Name: "Esc"}
)

// Decode consumes the leading bytes of buf and returns the decoded key
// and the number of bytes consumed. If buf begins a CSI escape sequence
// that is not yet complete, and moreComing is true (more input may still
// arrive this tick), Decode returns the zero Key and 0 consumed so the
// caller can wait for more bytes before deciding. If moreComing is false,
// a lone ESC is treated as KeyEsc.
func Decode(buf []byte, moreComing bool) (Key, int) {
	if len(buf) == 0 {
		return Key{}, 0
	}

	switch buf[0] {
	case '\r', '\n':
		return KeyEnter, 1
	case '\t':
		return KeyTab, 1
	case 0x1b: // ESC
		if len(buf) == 1 {
			if moreComing {
				return Key{}, 0
			}
			return KeyEsc, 1
		}
		if buf[1] != '[' {
			return KeyEsc, 1
		}
		return decodeCSI(buf)
	default:
		r := rune(buf[0])
		return Key{Rune: r}, 1
	}
}

// decodeCSI decodes an "ESC [ ..." sequence. buf[0], buf[1] are ESC, '['.
func decodeCSI(buf []byte) (Key, int) {
	if len(buf) < 3 {
		return Key{}, 0
	}
	switch buf[2] {
	case 'A':
		return KeyUp, 3
	case 'B':
		return KeyDown, 3
	case 'C':
		return KeyRight, 3
	case 'D':
		return KeyLeft, 3
	case 'H':
		return KeyHome, 3
	case 'F':
		return KeyEnd, 3
	}
	// Numeric CSI sequences of the form "ESC [ <digits> ~".
	if buf[2] >= '0' && buf[2] <= '9' {
		end := 2
		for end < len(buf) && buf[end] >= '0' && buf[end] <= '9' {
			end++
		}
		if end >= len(buf) {
			return Key{}, 0 // incomplete, need the trailing '~'
		}
		if buf[end] != '~' {
			return KeyEsc, 1 // unrecognized, resync by one byte
		}
		switch string(buf[2:end]) {
		case "1", "7":
			return KeyHome, end + 1
		case "4", "8":
			return KeyEnd, end + 1
		case "5":
			return KeyPgUp, end + 1
		case "6":
			return KeyPgDn, end + 1
		}
		return Key{}, end + 1 // unrecognized numeric code, consume and ignore
	}
	return KeyEsc, 1
}

// Mode is the active input-dispatch mode (spec.md §4.8).
type Mode int

const (
	ModeHostNav Mode = iota
	ModeLogScroll
	ModeFullScreen
	ModeMenu
)

// Action identifies what a keystroke should cause the controller to do.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionToggleHelp
	ActionHostPrevVisible
	ActionHostNextVisible
	ActionHostPrevAny
	ActionHostNextAny
	ActionEnterFullScreen
	ActionExitFullScreen
	ActionOpenMenu
	ActionCloseMenu
	ActionToggleMinimized
	ActionScrollUp
	ActionScrollDown
	ActionScrollPageUp
	ActionScrollPageDown
	ActionScrollTop
	ActionScrollBottom
	ActionLeaveLogScroll
	ActionMenuPrevEntry
	ActionMenuNextEntry
	ActionMenuSelectEntry
	ActionMenuJumpToEntry
)

// Result is the outcome of dispatching one keystroke. Arg carries the
// 1-based entry number for ActionMenuJumpToEntry; it is unused otherwise.
type Result struct {
	Action Action
	Arg    int
}

// Dispatch maps (mode, key) to an action per the table in spec.md §4.8.
// The global keys q and h apply in every mode and are checked first.
func Dispatch(mode Mode, key Key) Result {
	if key.Rune == 'q' {
		return Result{Action: ActionQuit}
	}
	if key.Rune == 'h' {
		return Result{Action: ActionToggleHelp}
	}

	switch mode {
	case ModeHostNav:
		switch key {
		case KeyUp:
			return Result{Action: ActionHostPrevVisible}
		case KeyDown:
			return Result{Action: ActionHostNextVisible}
		case KeyLeft:
			return Result{Action: ActionHostPrevAny}
		case KeyRight:
			return Result{Action: ActionHostNextAny}
		case KeyEnter:
			return Result{Action: ActionEnterFullScreen}
		case KeyTab:
			return Result{Action: ActionOpenMenu}
		}
		if key.Rune == 'm' {
			return Result{Action: ActionToggleMinimized}
		}

	case ModeLogScroll:
		switch key {
		case KeyUp:
			return Result{Action: ActionScrollUp}
		case KeyDown:
			return Result{Action: ActionScrollDown}
		case KeyPgUp:
			return Result{Action: ActionScrollPageUp}
		case KeyPgDn:
			return Result{Action: ActionScrollPageDown}
		case KeyHome:
			return Result{Action: ActionScrollTop}
		case KeyEnd:
			return Result{Action: ActionScrollBottom}
		case KeyEsc:
			return Result{Action: ActionLeaveLogScroll}
		}

	case ModeFullScreen:
		switch key {
		case KeyPgUp:
			return Result{Action: ActionScrollPageUp}
		case KeyPgDn:
			return Result{Action: ActionScrollPageDown}
		case KeyHome:
			return Result{Action: ActionScrollTop}
		case KeyEnd:
			return Result{Action: ActionScrollBottom}
		case KeyEnter, KeyEsc:
			return Result{Action: ActionExitFullScreen}
		}

	case ModeMenu:
		switch key {
		case KeyUp:
			return Result{Action: ActionMenuPrevEntry}
		case KeyDown:
			return Result{Action: ActionMenuNextEntry}
		case KeyEnter:
			return Result{Action: ActionMenuSelectEntry}
		case KeyEsc:
			return Result{Action: ActionCloseMenu}
		}
		if key.Rune >= '1' && key.Rune <= '9' {
			return Result{Action: ActionMenuJumpToEntry, Arg: int(key.Rune - '0')}
		}
	}

	return Result{Action: ActionNone}
}
