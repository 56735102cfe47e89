package tui

import (
	"strings"
	"testing"
)

func TestEditRune(t *testing.T) {
	tests := []struct {
		name  string
		start string
		key   string
		want  string
	}{
		{"first letter of an email", "", "a", "a"},
		{"at sign", "ann", "@", "ann@"},
		{"code digit", "12", "3", "123"},
		{"space key name", "buy", "space", "buy "},
		{"literal space", "buy", " ", "buy "},
		{"tag letter", "wor", "k", "work"},
		{"backspace", "milk", "backspace", "mil"},
		{"backspace on empty", "", "backspace", ""},
		{"backspace removes a whole rune", "café", "backspace", "caf"},
		{"backspace removes an emoji", "done\U0001f600", "backspace", "done"},
		{"enter ignored", "milk", "enter", "milk"},
		{"arrow ignored", "milk", "left", "milk"},
		{"ctrl chord ignored", "milk", "ctrl+s", "milk"},
		{"function key ignored", "milk", "f1", "milk"},
		{"tab ignored", "milk", "shift+tab", "milk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := editRune(tt.start, tt.key); got != tt.want {
				t.Errorf("editRune(%q, %q) = %q, want %q", tt.start, tt.key, got, tt.want)
			}
		})
	}
}

func TestEditRuneStopsAtMaxInputLen(t *testing.T) {
	full := strings.Repeat("a", maxInputLen)
	fullWide := strings.Repeat("你", maxInputLen)

	if got := editRune(full, "b"); got != full {
		t.Errorf("editRune on a full field grew to %d runes", len([]rune(got)))
	}
	if got := editRune(full, "space"); got != full {
		t.Errorf("space on a full field grew to %d runes", len([]rune(got)))
	}
	if got := editRune(fullWide, "好"); got != fullWide {
		t.Errorf("wide rune on a full field grew to %d runes", len([]rune(got)))
	}
	if got := editRune(full, "backspace"); len(got) != maxInputLen-1 {
		t.Errorf("backspace on a full field left %d runes, want %d", len(got), maxInputLen-1)
	}
	if got := editRune(full[1:], "b"); len(got) != maxInputLen {
		t.Errorf("last allowed rune rejected, len = %d", len(got))
	}
}

func TestTruncStr(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"Groceries", 20, "Groceries"},
		{"Groceries", 9, "Groceries"},
		{"Groceries for the week", 6, "Groce…"},
		{"", 4, ""},
		{"ab", 1, "…"},
		{"crème brûlée", 5, "crèm…"},
		{"买菜买菜", 3, "买菜…"},
	}
	for _, tt := range tests {
		if got := truncStr(tt.s, tt.max); got != tt.want {
			t.Errorf("truncStr(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestTruncateToHeight(t *testing.T) {
	five := "a\nb\nc\nd\ne\n"
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"cut", five, 3, "a\nb\nc\n"},
		{"exact", "a\nb\nc\n", 3, "a\nb\nc\n"},
		{"fits", "a\nb\n", 10, "a\nb\n"},
		{"zero keeps all", five, 0, five},
		{"negative keeps all", five, -1, five},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateToHeight(tt.in, tt.max); got != tt.want {
				t.Errorf("truncateToHeight(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestRenderInputMask(t *testing.T) {
	got := renderInput("code", "1234", "", true, true, 0)
	if strings.Contains(got, "1234") {
		t.Errorf("masked input leaked its value: %q", got)
	}
	if strings.Count(got, "•") != 4 {
		t.Errorf("masked input = %q, want 4 bullets", got)
	}
}

func TestRenderInputPlaceholder(t *testing.T) {
	got := renderInput("email", "", "you@example.com", false, false, 0)
	if !strings.Contains(got, "you@example.com") {
		t.Errorf("empty input should show placeholder, got %q", got)
	}
	got = renderInput("email", "ann@example.com", "you@example.com", false, false, 0)
	if strings.Contains(got, "you@example.com") {
		t.Errorf("filled input should hide placeholder, got %q", got)
	}
}

func TestOneLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"two\nlines", "two lines"},
		{"  lots   of\t\tspace \n", "lots of space"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := oneLine(tt.in); got != tt.want {
			t.Errorf("oneLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
