package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/quicknotes/internal/notestore"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

type notesLoadedMsg struct{ err error }

type pinToggledMsg struct {
	id  string
	err error
}

type noteDeletedMsg struct {
	id    string
	title string
	err   error
}

type copyResultMsg struct{ err error }

// notesModel is the dashboard. It renders straight from the store so
// optimistic pins show up on the next frame.
type notesModel struct {
	store *notestore.Store

	selected  string // note id under the cursor
	expanded  bool
	confirm   string // id awaiting delete confirmation
	filter    string // tag filter, "" for all
	status    string
	statusErr bool

	fresh      string // id of a just-created note
	freshFrame int
	width      int
	height     int
}

func newNotesModel(store *notestore.Store) notesModel {
	return notesModel{store: store}
}

func (m notesModel) load() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		return notesLoadedMsg{err: store.Load(context.Background())}
	}
}

// visible returns the display order with the tag filter applied.
func (m notesModel) visible() []domain.Note {
	if m.store == nil {
		return nil
	}
	notes := m.store.Sorted()
	if m.filter == "" {
		return notes
	}
	return slices.DeleteFunc(notes, func(n domain.Note) bool { return !n.HasTag(m.filter) })
}

// cursor returns the index of the selected note, falling back to the first.
func (m notesModel) cursor(notes []domain.Note) int {
	for i, n := range notes {
		if n.ID == m.selected {
			return i
		}
	}
	return 0
}

// tags lists the distinct tags in the collection in display order.
func (m notesModel) tags() []string {
	var out []string
	if m.store == nil {
		return out
	}
	for _, n := range m.store.Sorted() {
		for _, t := range n.Tags {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

func (m notesModel) Update(msg tea.Msg) (notesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case shimmerTickMsg:
		if m.fresh != "" {
			m.freshFrame++
			if m.freshFrame > 20 {
				m.fresh = ""
				m.freshFrame = 0
			}
		}
		return m, nil

	case notesLoadedMsg:
		if msg.err != nil && !notestore.IsDiscarded(msg.err) {
			m.setErr("load", msg.err)
		}
		return m, nil

	case pinToggledMsg:
		if msg.err != nil && !notestore.IsDiscarded(msg.err) {
			m.setErr("pin", msg.err)
		}
		return m, nil

	case noteDeletedMsg:
		switch {
		case msg.err == nil:
			m.setStatus(fmt.Sprintf("deleted %q", truncStr(msg.title, 40)))
		case !notestore.IsDiscarded(msg.err):
			m.setErr("delete", msg.err)
		}
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
			m.statusErr = true
		} else {
			m.setStatus("copied to clipboard")
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m notesModel) updateKeys(msg tea.KeyMsg) (notesModel, tea.Cmd) {
	key := msg.String()

	if m.confirm != "" {
		id := m.confirm
		m.confirm = ""
		if key != "y" && key != "Y" {
			m.setStatus("delete cancelled")
			return m, nil
		}
		n, ok := m.store.Get(id)
		if !ok {
			return m, nil
		}
		store := m.store
		return m, func() tea.Msg {
			return noteDeletedMsg{id: id, title: n.Title, err: store.Delete(context.Background(), id)}
		}
	}

	notes := m.visible()
	idx := m.cursor(notes)
	m.status = ""

	switch key {
	case "j", "down":
		if idx < len(notes)-1 {
			m.selected = notes[idx+1].ID
			m.expanded = false
		}
	case "k", "up":
		if idx > 0 {
			m.selected = notes[idx-1].ID
			m.expanded = false
		}
	case "g", "home":
		if len(notes) > 0 {
			m.selected = notes[0].ID
		}
	case "G", "end":
		if len(notes) > 0 {
			m.selected = notes[len(notes)-1].ID
		}
	case "enter":
		m.expanded = !m.expanded
	case "p":
		if len(notes) == 0 {
			return m, nil
		}
		id := notes[idx].ID
		m.selected = id
		store := m.store
		return m, func() tea.Msg {
			return pinToggledMsg{id: id, err: store.TogglePin(context.Background(), id)}
		}
	case "d":
		if len(notes) == 0 {
			return m, nil
		}
		m.selected = notes[idx].ID
		m.confirm = notes[idx].ID
	case "c":
		if len(notes) == 0 {
			return m, nil
		}
		content := notes[idx].Content
		return m, func() tea.Msg {
			return copyResultMsg{err: clipboard.WriteAll(content)}
		}
	case "t":
		tags := m.tags()
		switch i := slices.Index(tags, m.filter); {
		case len(tags) == 0:
			m.filter = ""
		case m.filter == "":
			m.filter = tags[0]
		case i < 0 || i == len(tags)-1:
			m.filter = ""
		default:
			m.filter = tags[i+1]
		}
		m.selected = ""
	case "r":
		m.setStatus("refreshing...")
		return m, m.load()
	}
	return m, nil
}

// created moves the cursor to a new note and starts its border animation.
func (m notesModel) created(n domain.Note) notesModel {
	m.selected = n.ID
	m.filter = ""
	m.fresh = n.ID
	m.freshFrame = 1
	m.setStatus(fmt.Sprintf("created %q", truncStr(n.Title, 40)))
	return m
}

func (m *notesModel) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *notesModel) setErr(action string, err error) {
	m.status = errText(action, err)
	m.statusErr = true
}

func (m notesModel) helpKeys() string {
	if m.confirm != "" {
		return helpBar(helpEntry("y", "delete"), helpEntry("any", "cancel"))
	}
	return helpBar(
		helpEntry("j/k", "nav"), helpEntry("p", "pin"), helpEntry("d", "delete"),
		helpEntry("c", "copy"), helpEntry("t", "tag"), helpEntry("n", "new"),
		helpEntry("r", "reload"), helpEntry("L", "logout"), helpEntry("h", "help"), helpEntry("q", "quit"),
	)
}

func (m notesModel) View() string {
	var b strings.Builder

	notes := m.visible()
	header := "  NOTES"
	if m.filter != "" {
		header += "  " + TagStyle(m.filter).Render("#"+m.filter)
	}
	if m.store != nil && m.store.Loading() {
		header += "  " + dimStyle.Render("loading...")
	}
	b.WriteString(sectionHeaderStyle.Render(header) + "\n\n")

	if len(notes) == 0 {
		switch {
		case m.store != nil && m.store.Loading():
		case m.filter != "":
			b.WriteString(dimStyle.Render("  no notes tagged #"+m.filter) + "\n")
		default:
			b.WriteString(dimStyle.Render("  no notes yet, press n to write one") + "\n")
		}
	}

	idx := m.cursor(notes)
	width := max(m.width, 40)
	for i, n := range notes {
		if i == idx && (m.expanded || n.ID == m.fresh) {
			b.WriteString(m.card(n, width))
			continue
		}
		b.WriteString(m.row(n, i == idx, width) + "\n")
	}

	if m.confirm != "" {
		if n, ok := m.store.Get(m.confirm); ok {
			b.WriteString("\n  " + errorStyle.Render(fmt.Sprintf("delete %q? y/n", truncStr(n.Title, 40))))
		}
	} else if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errorStyle
		}
		b.WriteString("\n  " + style.Render(m.status))
	}
	return b.String()
}

func (m notesModel) row(n domain.Note, selected bool, width int) string {
	cursor := " "
	title := normalStyle.Render(truncStr(n.Title, 40))
	if selected {
		cursor = accentStyle.Render("▸")
		title = selectedStyle.Render(truncStr(n.Title, 40))
	}
	pin := " "
	if n.IsPinned {
		pin = pinStyle.Render("*")
	}

	line := fmt.Sprintf(" %s %s %s", cursor, pin, title)
	if kind, busy := m.store.Mutating(n.ID); busy {
		line += " " + dimStyle.Render(kind.String()+"...")
	}
	if len(n.Tags) > 0 {
		line += "  " + renderTags(n.Tags)
	}
	if body := oneLine(n.Content); body != "" {
		room := width - 60
		if room > 10 {
			line += "  " + dimStyle.Render(truncStr(body, room))
		}
	}
	return line + "  " + metaStyle.Render(formatTime(n.CreatedAt))
}

func (m notesModel) card(n domain.Note, width int) string {
	color, frame := cardColor, 0
	if n.ID == m.fresh {
		color, frame = newCardColor, m.freshFrame
	}
	label := selectedStyle.Render(truncStr(n.Title, width-12))
	if n.IsPinned {
		label = pinStyle.Render("*") + " " + label
	}

	var b strings.Builder
	b.WriteString(cardBorder("top", label, color, frame, width) + "\n")
	for _, line := range strings.Split(n.Content, "\n") {
		b.WriteString(" │ " + normalStyle.Render(truncStr(line, width-5)) + "\n")
	}
	meta := formatTime(n.CreatedAt)
	if len(n.Tags) > 0 {
		meta = renderTags(n.Tags) + "  " + metaStyle.Render(meta)
	} else {
		meta = metaStyle.Render(meta)
	}
	b.WriteString(" │ " + meta + "\n")
	b.WriteString(cardBorder("bottom", "", color, frame, width) + "\n")
	return b.String()
}
