package domain

import (
	"slices"
	"strings"
)

// Draft holds the fields of a note that has not been submitted yet.
type Draft struct {
	Title    string
	Content  string
	Tags     []string
	IsPinned bool
}

// AddTag appends a trimmed tag. Empty or already present tags are ignored.
// It reports whether the tag list changed.
func (d *Draft) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || slices.Contains(d.Tags, tag) {
		return false
	}
	d.Tags = append(d.Tags, tag)
	return true
}

// RemoveTag drops tag if present and reports whether it was.
func (d *Draft) RemoveTag(tag string) bool {
	i := slices.Index(d.Tags, tag)
	if i < 0 {
		return false
	}
	d.Tags = slices.Delete(d.Tags, i, i+1)
	return true
}

// NewNote converts the draft into a create payload.
func (d Draft) NewNote() NewNote {
	return NewNote{
		Title:    d.Title,
		Content:  d.Content,
		Tags:     slices.Clone(d.Tags),
		IsPinned: d.IsPinned,
	}
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	d.Tags = slices.Clone(d.Tags)
	return d
}

// IsEmpty reports whether nothing has been typed.
func (d Draft) IsEmpty() bool {
	return d.Title == "" && d.Content == "" && len(d.Tags) == 0 && !d.IsPinned
}
