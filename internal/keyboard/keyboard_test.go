package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/keyboard"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   keyboard.Event
		want string
	}{
		{"meta suppresses everything", keyboard.Event{Key: keyboard.KeyEnter, Meta: true}, ""},
		{"ctrl+c", keyboard.Event{Key: keyboard.KeyChar, Rune: 'c', Ctrl: true}, "\x03"},
		{"ctrl+C uppercase input", keyboard.Event{Key: keyboard.KeyChar, Rune: 'C', Ctrl: true}, "\x03"},
		{"ctrl+[", keyboard.Event{Key: keyboard.KeyChar, Rune: '[', Ctrl: true}, "\x1B"},
		{"ctrl+backslash", keyboard.Event{Key: keyboard.KeyChar, Rune: '\\', Ctrl: true}, "\x1C"},
		{"ctrl+]", keyboard.Event{Key: keyboard.KeyChar, Rune: ']', Ctrl: true}, "\x1D"},
		{"ctrl+digit has no rule", keyboard.Event{Key: keyboard.KeyChar, Rune: '1', Ctrl: true}, ""},
		{"enter", keyboard.Event{Key: keyboard.KeyEnter}, "\x0D"},
		{"backspace", keyboard.Event{Key: keyboard.KeyBackspace}, "\x7F"},
		{"tab", keyboard.Event{Key: keyboard.KeyTab}, "\x09"},
		{"shift+tab", keyboard.Event{Key: keyboard.KeyTab, Shift: true}, "\x1B[Z"},
		{"escape", keyboard.Event{Key: keyboard.KeyEscape}, "\x1B"},
		{"delete", keyboard.Event{Key: keyboard.KeyDelete}, "\x1B[3~"},
		{"insert", keyboard.Event{Key: keyboard.KeyInsert}, "\x1B[2~"},
		{"arrow up", keyboard.Event{Key: keyboard.KeyArrowUp}, "\x1B[A"},
		{"arrow down", keyboard.Event{Key: keyboard.KeyArrowDown}, "\x1B[B"},
		{"arrow right", keyboard.Event{Key: keyboard.KeyArrowRight}, "\x1B[C"},
		{"arrow left", keyboard.Event{Key: keyboard.KeyArrowLeft}, "\x1B[D"},
		{"home", keyboard.Event{Key: keyboard.KeyHome}, "\x1B[H"},
		{"end", keyboard.Event{Key: keyboard.KeyEnd}, "\x1B[F"},
		{"page up", keyboard.Event{Key: keyboard.KeyPageUp}, "\x1B[5~"},
		{"page down", keyboard.Event{Key: keyboard.KeyPageDown}, "\x1B[6~"},
		{"f1", keyboard.Event{Key: keyboard.KeyF1}, "\x1BOP"},
		{"f4", keyboard.Event{Key: keyboard.KeyF4}, "\x1BOS"},
		{"f5", keyboard.Event{Key: keyboard.KeyF5}, "\x1B[15~"},
		{"f12", keyboard.Event{Key: keyboard.KeyF12}, "\x1B[24~"},
		{"alt+a", keyboard.Event{Key: keyboard.KeyChar, Rune: 'a', Alt: true}, "\x1Ba"},
		{"plain printable", keyboard.Event{Key: keyboard.KeyChar, Rune: 'z'}, "z"},
		{"plain unicode", keyboard.Event{Key: keyboard.KeyChar, Rune: '€'}, "€"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := keyboard.Translate(tc.in)
			require.Equal(t, tc.want, string(got))
		})
	}
}

func TestTranslate_Deterministic(t *testing.T) {
	e := keyboard.Event{Key: keyboard.KeyChar, Rune: 'q', Ctrl: true}
	first := keyboard.Translate(e)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, keyboard.Translate(e))
	}
}
