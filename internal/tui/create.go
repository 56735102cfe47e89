package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/quicknotes/internal/notestore"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

type createField int

const (
	fieldTitle createField = iota
	fieldContent
	fieldTags
	fieldPinned
	numFields
)

// createModel edits the store's draft. The draft outlives the form, so
// leaving with esc and coming back keeps what was typed.
type createModel struct {
	store     *notestore.Store
	focus     createField
	tagInput  string
	statusMsg string
	statusErr bool
	frame     int
}

type noteCreatedMsg struct {
	note domain.Note
	err  error
}

func newCreateModel(store *notestore.Store) createModel {
	return createModel{store: store}
}

func (m createModel) draft() domain.Draft {
	if m.store == nil {
		return domain.Draft{}
	}
	return m.store.Draft()
}

func (m createModel) Update(msg tea.Msg) (createModel, tea.Cmd) {
	switch msg := msg.(type) {
	case noteCreatedMsg:
		if msg.err != nil {
			if !notestore.IsDiscarded(msg.err) {
				m.statusMsg = errText("create", msg.err)
				m.statusErr = true
			}
			return m, nil
		}
		m.focus = fieldTitle
		m.tagInput = ""
		m.statusMsg = ""
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m createModel) updateKeys(msg tea.KeyMsg) (createModel, tea.Cmd) {
	if m.store == nil {
		return m, nil
	}
	m.statusMsg = ""
	m.statusErr = false

	d := m.store.Draft()
	key := msg.String()
	switch key {
	case "ctrl+s":
		return m.submit()
	case "tab", "down":
		m.focus = (m.focus + 1) % numFields
		return m, nil
	case "shift+tab", "up":
		m.focus = (m.focus - 1 + numFields) % numFields
		return m, nil
	}

	switch m.focus {
	case fieldTitle:
		if key == "enter" {
			m.focus = fieldContent
			return m, nil
		}
		m.store.SetTitle(editRune(d.Title, key))
	case fieldContent:
		if key == "enter" {
			m.store.SetContent(d.Content + "\n")
			return m, nil
		}
		m.store.SetContent(editRune(d.Content, key))
	case fieldTags:
		switch {
		case key == "enter" || key == ",":
			tag := strings.TrimSpace(m.tagInput)
			if tag == "" {
				return m, nil
			}
			if !m.store.AddTag(tag) {
				m.statusMsg = fmt.Sprintf("#%s is already on this note", tag)
				m.statusErr = true
			}
			m.tagInput = ""
		case key == "backspace" && m.tagInput == "" && len(d.Tags) > 0:
			m.store.RemoveTag(d.Tags[len(d.Tags)-1])
		case key == " ":
		default:
			m.tagInput = editRune(m.tagInput, key)
		}
	case fieldPinned:
		if key == " " || key == "enter" || key == "x" {
			m.store.SetPinned(!d.IsPinned)
		}
	}
	return m, nil
}

func (m createModel) submit() (createModel, tea.Cmd) {
	if pending := strings.TrimSpace(m.tagInput); pending != "" {
		m.store.AddTag(pending)
		m.tagInput = ""
	}
	if _, err := m.store.Draft().NewNote().Validate(); err != nil {
		m.statusMsg = errText("create", err)
		m.statusErr = true
		return m, nil
	}
	m.statusMsg = "saving..."
	store := m.store
	return m, func() tea.Msg {
		n, err := store.CreateDraft(context.Background())
		return noteCreatedMsg{note: n, err: err}
	}
}

func (m createModel) helpKeys() string {
	return helpBar(helpEntry("tab", "next"), helpEntry("enter", "add tag"), helpEntry("space", "pin"), helpEntry("ctrl+s", "save"), helpEntry("esc", "back"))
}

func (m createModel) View() string {
	var b strings.Builder
	d := m.draft()

	b.WriteString(sectionHeaderStyle.Render("  NEW NOTE") + "\n\n")
	b.WriteString(renderInput("title  ", d.Title, "what is it about", m.focus == fieldTitle, false, m.frame) + "\n")

	lines := strings.Split(d.Content, "\n")
	b.WriteString(renderInput("content", lines[0], "write something", m.focus == fieldContent && len(lines) == 1, false, m.frame) + "\n")
	for i, line := range lines[1:] {
		last := i == len(lines)-2
		b.WriteString(renderInput("       ", line, "", m.focus == fieldContent && last, false, m.frame) + "\n")
	}

	b.WriteString(renderInput("tags   ", m.tagInput, "type a tag, enter to add", m.focus == fieldTags, false, m.frame) + "\n")
	if len(d.Tags) > 0 {
		b.WriteString("          " + renderTags(d.Tags) + "\n")
	}

	box := "[ ]"
	if d.IsPinned {
		box = pinStyle.Render("[*]")
	}
	prompt := "  "
	label := metaStyle.Render("pin this note")
	if m.focus == fieldPinned {
		prompt = inputPromptStyle.Render("> ")
		label = selectedStyle.Render("pin this note")
	}
	b.WriteString(prompt + box + " " + label + "\n")

	b.WriteString("\n")
	switch {
	case m.store != nil && m.store.Creating():
		b.WriteString("  " + dimStyle.Render("saving..."))
	case m.statusErr:
		b.WriteString("  " + errorStyle.Render(m.statusMsg))
	case m.statusMsg != "":
		b.WriteString("  " + dimStyle.Render(m.statusMsg))
	}
	return b.String()
}
