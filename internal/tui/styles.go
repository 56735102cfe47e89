package tui

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Shimmer animation for the QUICKNOTES logo.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

const logoText = "QUICKNOTES"

// renderShimmerLogo renders the logo as a wave of light moving left to right.
// Deep amber (#3a2a10) -> bright gold (#f5c542).
func renderShimmerLogo(frame int) string {
	n := len(logoText)
	t := float64(frame)

	var out strings.Builder
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)

		phase := t*0.1 - x*3.0
		phase += math.Sin(t*0.023) * 2.0

		b := math.Sin(phase)*0.5 + 0.5
		b = math.Pow(b, 1.3)

		tide := math.Sin(t*0.035) * 0.12
		b = b*0.75 + tide + 0.18
		if b > 1.0 {
			b = 1.0
		} else if b < 0.05 {
			b = 0.05
		}

		r := clampByte(58 + b*(245-58))
		g := clampByte(42 + b*(197-42))
		bl := clampByte(16 + b*(66-16))
		color := fmt.Sprintf("#%02X%02X%02X", r, g, bl)

		out.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(string(logoText[i])))
		if i < n-1 {
			out.WriteString(" ")
		}
	}
	return out.String()
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f5c542"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ade80"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e06060"))

	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f5c542")).
			Bold(true)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#f5c542")).
				Bold(true)

	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#343c4a"))

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#606878"))

	// Palette for free-form tags; a tag always maps to the same color.
	tagPalette = []lipgloss.Color{
		lipgloss.Color("#e06060"),
		lipgloss.Color("#b080d0"),
		lipgloss.Color("#f0944a"),
		lipgloss.Color("#d4a844"),
		lipgloss.Color("#60a0e0"),
		lipgloss.Color("#3ecce4"),
		lipgloss.Color("#c084e0"),
		lipgloss.Color("#4ade80"),
	}
)

const (
	cardColor    = "#606878"
	newCardColor = "#f5c542"
)

// TagStyle returns a bold style colored for the given tag.
func TagStyle(tag string) lipgloss.Style {
	if tag == "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#606878")).Bold(true)
	}
	h := fnv.New32a()
	h.Write([]byte(tag)) //nolint:errcheck // hash writes never fail
	return lipgloss.NewStyle().Foreground(tagPalette[h.Sum32()%uint32(len(tagPalette))]).Bold(true)
}

// renderTags renders "#a #b" with each tag in its color.
func renderTags(tags []string) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = TagStyle(t).Render("#" + t)
	}
	return strings.Join(parts, " ")
}

// cardBorder renders the top or bottom border of a note card.
// pos: "top" or "bottom". label: optional header text (top only).
// frame: 0=static, 1-20=animating.
func cardBorder(pos, label, baseColor string, frame, width int) string {
	w := width - 4
	if w < 10 {
		w = 10
	}

	if pos == "bottom" {
		border := " └" + strings.Repeat("─", w)
		if frame > 0 && frame <= 20 {
			return animBorderLine(border, baseColor, frame, w)
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color(baseColor)).Render(border)
	}

	if label == "" {
		header := " ┌" + strings.Repeat("─", w)
		if frame > 0 && frame <= 20 {
			return animBorderLine(header, baseColor, frame, w)
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color(baseColor)).Render(header)
	}

	prefix := " ┌ " + label + " "
	remaining := w - lipgloss.Width(prefix) + 2
	if remaining < 1 {
		remaining = 1
	}
	if frame > 0 && frame <= 20 {
		return prefix + animBorderDashes(remaining, baseColor, frame)
	}
	return prefix + lipgloss.NewStyle().Foreground(lipgloss.Color(baseColor)).Render(strings.Repeat("─", remaining))
}

// animBorderLine renders a full border line with sine-wave brightness.
func animBorderLine(line, baseColor string, frame, width int) string {
	var out strings.Builder
	i := 0
	for _, ch := range line {
		out.WriteString(wavePixel(baseColor, frame, i, width).Render(string(ch)))
		i++
	}
	return out.String()
}

// animBorderDashes renders n dashes with sine-wave brightness.
func animBorderDashes(n int, baseColor string, frame int) string {
	var out strings.Builder
	for i := 0; i < n; i++ {
		out.WriteString(wavePixel(baseColor, frame, i, n).Render("─"))
	}
	return out.String()
}

func wavePixel(baseColor string, frame, i, width int) lipgloss.Style {
	r0, g0, b0 := hexToRGB(baseColor)
	rD, gD, bD := int(float64(r0)*0.4), int(float64(g0)*0.4), int(float64(b0)*0.4)

	x := float64(i) / float64(max(width, 1))
	phase := float64(frame)*0.3 - x*4.0
	b := math.Pow(math.Sin(phase)*0.5+0.5, 1.5)
	r := clampByte(float64(rD) + b*float64(r0-rD))
	g := clampByte(float64(gD) + b*float64(g0-gD))
	bl := clampByte(float64(bD) + b*float64(b0-bD))
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, bl)))
}

// hexToRGB parses a hex color string (#RRGGBB) into r,g,b ints.
func hexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 128, 128, 128
	}
	var r, g, b int
	_, _ = fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b) //nolint:errcheck
	return r, g, b
}

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// helpBar joins entries into a help line.
func helpBar(entries ...string) string {
	return " " + strings.Join(entries, "  ")
}

// helpView renders the help overlay.
func helpView() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#f5c542")).
		Bold(true).
		Render("Q U I C K N O T E S")

	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)

	keys := []struct{ key, desc string }{
		{"j / k", "move through notes"},
		{"enter", "show or hide the note body"},
		{"p", "pin or unpin"},
		{"d", "delete (asks first)"},
		{"c", "copy the note body"},
		{"t", "filter by tag"},
		{"n", "new note"},
		{"r", "reload"},
		{"L", "sign out"},
	}
	commands := []struct{ cmd, desc string }{
		{"quicknotes", "Open your notes (interactive TUI)"},
		{"quicknotes login", "Sign in with an emailed code"},
		{"quicknotes notes list", "Print your notes"},
		{"quicknotes logout", "End your session"},
		{"quicknotes version", "Show version"},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n", title)
	fmt.Fprintf(&b, "  %s\n", sectionStyle.Render("Keys"))
	for _, k := range keys {
		fmt.Fprintf(&b, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-8s", k.key)), descStyle.Render(k.desc))
	}
	fmt.Fprintf(&b, "\n  %s\n", sectionStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(&b, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-22s", c.cmd)), descStyle.Render(c.desc))
	}
	return b.String()
}
