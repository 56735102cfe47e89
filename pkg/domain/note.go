package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Note is a short text note owned by the authenticated user.
type Note struct {
	ID        string    `json:"_id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Tags      []string  `json:"tags" yaml:"tags"`
	IsPinned  bool      `json:"isPinned" yaml:"pinned"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// UnmarshalJSON accepts "id" when the server does not send "_id".
func (n *Note) UnmarshalJSON(data []byte) error {
	type plain Note
	var raw struct {
		plain
		PlainID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Note(raw.plain)
	if n.ID == "" {
		n.ID = raw.PlainID
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return nil
}

// NewNote is the payload for creating a note.
type NewNote struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	IsPinned bool     `json:"isPinned"`
}

// Validate trims title and content and rejects empty values.
// A nil tag list is replaced by an empty one so the wire form is always [].
func (n NewNote) Validate() (NewNote, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Content = strings.TrimSpace(n.Content)
	if n.Title == "" {
		return n, &ValidationError{Field: "title", Reason: "is required"}
	}
	if n.Content == "" {
		return n, &ValidationError{Field: "content", Reason: "is required"}
	}
	tags := make([]string, 0, len(n.Tags))
	for _, t := range n.Tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	n.Tags = tags
	return n, nil
}

// HasTag reports whether the note carries tag (case-sensitive).
func (n Note) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// SortForDisplay orders notes pinned first, then newest first.
// Equal timestamps fall back to ID so the order is deterministic.
func SortForDisplay(notes []Note) {
	slices.SortStableFunc(notes, func(a, b Note) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
