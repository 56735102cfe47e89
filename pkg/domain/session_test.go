package domain

import (
	"encoding/json"
	"testing"
)

func TestSessionValid(t *testing.T) {
	u := User{ID: "u1", Email: "a@example.com"}
	tests := []struct {
		name  string
		s     Session
		valid bool
	}{
		{"anonymous", Anonymous(), true},
		{"pending", Pending("a@example.com", PurposeLogin), true},
		{"authenticated", Authenticated(u), true},
		{"anonymous with user", Session{Status: StatusAnonymous, User: &u}, false},
		{"pending without email", Session{Status: StatusOtpPending}, false},
		{"authenticated without user", Session{Status: StatusAuthenticated}, false},
		{"authenticated with pending email", Session{Status: StatusAuthenticated, User: &u, PendingEmail: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a@example.com", "a@example.com", false},
		{"  a@example.com ", "a@example.com", false},
		{"", "", true},
		{"not-an-email", "", true},
		{"Alice <a@example.com>", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				if !IsValidation(err) {
					t.Errorf("NormalizeEmail(%q) error = %v, want validation error", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeEmail(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUserUnmarshalMongoID(t *testing.T) {
	var u User
	if err := json.Unmarshal([]byte(`{"_id":"m1","email":"a@example.com","name":"Ann"}`), &u); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if u.ID != "m1" {
		t.Errorf("ID = %q, want %q", u.ID, "m1")
	}
	if u.DisplayName() != "Ann" {
		t.Errorf("DisplayName() = %q, want %q", u.DisplayName(), "Ann")
	}
}
