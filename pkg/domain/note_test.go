package domain

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestSortForDisplay(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	notes := []Note{
		{ID: "A", IsPinned: true, CreatedAt: t1},
		{ID: "B", IsPinned: false, CreatedAt: t2},
		{ID: "C", IsPinned: true, CreatedAt: t3},
	}
	SortForDisplay(notes)

	var got []string
	for _, n := range notes {
		got = append(got, n.ID)
	}
	want := []string{"C", "A", "B"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortForDisplayTieBreaksOnID(t *testing.T) {
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	notes := []Note{
		{ID: "z", CreatedAt: ts},
		{ID: "a", CreatedAt: ts},
		{ID: "m", CreatedAt: ts, IsPinned: true},
		{ID: "b", CreatedAt: ts.Add(-time.Minute)},
	}
	SortForDisplay(notes)

	var got []string
	for _, n := range notes {
		got = append(got, n.ID)
	}
	want := []string{"m", "a", "z", "b"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestNewNoteValidate(t *testing.T) {
	tests := []struct {
		name      string
		in        NewNote
		wantField string
	}{
		{"empty title", NewNote{Title: "", Content: "x"}, "title"},
		{"whitespace title", NewNote{Title: "  \t", Content: "x"}, "title"},
		{"empty content", NewNote{Title: "x", Content: ""}, "content"},
		{"whitespace content", NewNote{Title: "x", Content: "\n "}, "content"},
		{"valid", NewNote{Title: " x ", Content: "y"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			vErr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestNewNoteValidateNormalizesTags(t *testing.T) {
	n, err := NewNote{Title: " t ", Content: " c ", Tags: []string{" go", "", "go", "Go"}}.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if n.Title != "t" || n.Content != "c" {
		t.Errorf("title/content = %q/%q, want trimmed", n.Title, n.Content)
	}
	if want := []string{"go", "Go"}; !slices.Equal(n.Tags, want) {
		t.Errorf("Tags = %v, want %v", n.Tags, want)
	}

	n, err = NewNote{Title: "t", Content: "c"}.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if n.Tags == nil {
		t.Error("Tags = nil, want empty slice")
	}
}

func TestNoteUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantID string
	}{
		{"mongo id", `{"_id":"abc","title":"t","content":"c","isPinned":true,"createdAt":"2025-03-01T12:00:00Z"}`, "abc"},
		{"plain id", `{"id":"def","title":"t","content":"c","createdAt":"2025-03-01T12:00:00Z"}`, "def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Note
			if err := json.Unmarshal([]byte(tt.body), &n); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if n.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", n.ID, tt.wantID)
			}
			if n.Tags == nil {
				t.Error("Tags = nil, want empty slice")
			}
			if n.CreatedAt.IsZero() {
				t.Error("CreatedAt is zero")
			}
		})
	}
}
