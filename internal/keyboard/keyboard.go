// Package keyboard implements the deterministic key-event-to-terminal-byte
// translation (component I, spec §4.I). No repo in the retrieval pack
// implements a terminal keyboard translator (the pack's terminal-adjacent
// code is all filesystem/FUSE bridges), so Translate is original to this
// translation, built strictly from the rule table spec §4.I gives as
// "final authority" rather than from any example's ANSI table.
package keyboard

import "unicode"

// Key names an abstract key, independent of the rune it may carry.
type Key uint8

const (
	// KeyChar carries a printable rune in Event.Rune.
	KeyChar Key = iota
	KeyEnter
	KeyBackspace
	KeyTab
	KeyEscape
	KeyDelete
	KeyInsert
	KeyArrowUp
	KeyArrowDown
	KeyArrowRight
	KeyArrowLeft
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Event is the abstract key event Translate consumes, matching spec
// §4.I's "{key, ctrl, alt, shift, meta}".
type Event struct {
	Key   Key
	Rune  rune // valid when Key == KeyChar
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
}

// namedSequences holds the fixed byte sequences for keys whose mapping
// does not depend on a modifier, per spec §4.I.
var namedSequences = map[Key]string{
	KeyEnter:      "\x0D",
	KeyBackspace:  "\x7F",
	KeyTab:        "\x09",
	KeyEscape:     "\x1B",
	KeyDelete:     "\x1B[3~",
	KeyInsert:     "\x1B[2~",
	KeyArrowUp:    "\x1B[A",
	KeyArrowDown:  "\x1B[B",
	KeyArrowRight: "\x1B[C",
	KeyArrowLeft:  "\x1B[D",
	KeyHome:       "\x1B[H",
	KeyEnd:        "\x1B[F",
	KeyPageUp:     "\x1B[5~",
	KeyPageDown:   "\x1B[6~",
	KeyF1:         "\x1BOP",
	KeyF2:         "\x1BOQ",
	KeyF3:         "\x1BOR",
	KeyF4:         "\x1BOS",
	KeyF5:         "\x1B[15~",
	KeyF6:         "\x1B[17~",
	KeyF7:         "\x1B[18~",
	KeyF8:         "\x1B[19~",
	KeyF9:         "\x1B[20~",
	KeyF10:        "\x1B[21~",
	KeyF11:        "\x1B[23~",
	KeyF12:        "\x1B[24~",
}

// Translate maps e to the terminal byte sequence the source rule table in
// spec §4.I defines, or nil if no rule matches ("Otherwise ⇒ nothing").
// It is a pure function: the same Event always yields the same bytes
// (spec §8 "Keyboard determinism").
func Translate(e Event) []byte {
	if e.Meta {
		return nil
	}
	if e.Ctrl && e.Key == KeyChar {
		return ctrlChar(e.Rune)
	}
	if e.Key == KeyTab && e.Shift {
		return []byte("\x1B[Z")
	}
	if seq, ok := namedSequences[e.Key]; ok {
		return []byte(seq)
	}
	if e.Key == KeyChar {
		return charBytes(e)
	}
	return nil
}

// ctrlChar implements the Ctrl+letter and Ctrl+{[,\,]} rules. Any other
// Ctrl+char combination has no rule and yields nothing.
func ctrlChar(r rune) []byte {
	switch r {
	case '[':
		return []byte{0x1B}
	case '\\':
		return []byte{0x1C}
	case ']':
		return []byte{0x1D}
	}
	u := unicode.ToUpper(r)
	if u >= 'A' && u <= 'Z' {
		return []byte{byte(u - 0x40)}
	}
	return nil
}

// charBytes implements "Alt + single char ⇒ ESC followed by the UTF-8 of
// the char" and "single printable char without Ctrl ⇒ its UTF-8 bytes".
func charBytes(e Event) []byte {
	if e.Rune == 0 {
		return nil
	}
	runeBytes := []byte(string(e.Rune))
	if e.Alt {
		return append([]byte{0x1B}, runeBytes...)
	}
	return runeBytes
}
