package tui

import "unicode/utf8"

// maxInputLen is the maximum number of runes allowed in form inputs.
const maxInputLen = 2000

// editRune processes a keystroke for inline text editing.
// Handles backspace (rune-aware) and single printable characters.
// Returns the text unchanged for non-printable keys (enter, esc, etc.).
// Input is clamped to maxInputLen runes.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	case " ", "space":
		if utf8.RuneCountInString(text) >= maxInputLen {
			return text
		}
		return text + " "
	default:
		if utf8.RuneCountInString(key) == 1 {
			if utf8.RuneCountInString(text) >= maxInputLen {
				return text
			}
			return text + key
		}
		return text
	}
}

// truncateToHeight limits output to maxLines newline-delimited lines.
// Returns the original string if it fits or maxLines is <= 0.
func truncateToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
			if n >= maxLines {
				return s[:i+1]
			}
		}
	}
	return s
}

// renderInput renders a single-line text input with a blinking cursor and a
// placeholder when empty. mask hides the value (one-time codes).
func renderInput(label, value, placeholder string, focused, mask bool, frame int) string {
	prompt := "  "
	labelStyle := metaStyle
	if focused {
		prompt = inputPromptStyle.Render("> ")
		labelStyle = selectedStyle
	}
	shown := value
	if mask {
		shown = ""
		for range utf8.RuneCountInString(value) {
			shown += "•"
		}
	}
	line := prompt + labelStyle.Render(label) + " "
	switch {
	case shown == "" && !focused:
		line += inputPlaceholderStyle.Render(placeholder)
	case shown == "":
		line += cursorBlock(frame) + inputPlaceholderStyle.Render(placeholder)
	case focused:
		line += normalStyle.Render(shown) + cursorBlock(frame)
	default:
		line += dimStyle.Render(shown)
	}
	return line
}

func cursorBlock(frame int) string {
	if (frame/4)%2 == 0 {
		return accentStyle.Render("█")
	}
	return " "
}
