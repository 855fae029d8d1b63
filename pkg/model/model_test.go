package model

import (
	"testing"
	"time"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid upper case", "Bob", nil},
		{"valid digits only", "42", nil},
		{"valid unicode letter", "ñoño", nil},
		{"empty", "", ErrInvalidUsername},
		{"bang", "bob!", ErrInvalidUsername},
		{"contains space", "has space", ErrInvalidUsername},
		{"contains underscore", "my_user", ErrInvalidUsername},
		{"contains hyphen", "my-user", ErrInvalidUsername},
		{"contains dot", "user.name", ErrInvalidUsername},
		{"emoji", "user😀", ErrInvalidUsername},
		{"tab character", "user\tname", ErrInvalidUsername},
		{"newline", "user\nname", ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 999_000_000, time.UTC)
	m := NewMessage("alice", "hello", at)

	if m.Timestamp != at.Unix() {
		t.Errorf("Timestamp = %d, want %d", m.Timestamp, at.Unix())
	}
	if m.Sender != "alice" || m.Content != "hello" {
		t.Errorf("NewMessage = %+v", m)
	}
	if !m.Time().Equal(at.Truncate(time.Second)) {
		t.Errorf("Time() = %v, want %v", m.Time(), at.Truncate(time.Second))
	}
}

func TestErrorReasons(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidUsername, "Illegal username. Only alphanumeric chars are allowed."},
		{ErrUsernameTaken, "Username is already taken."},
		{ErrAlreadyLoggedIn, "Already logged in."},
		{ErrNotLoggedIn, "You must be logged in to access this function"},
		{ErrIllegalRequest, "Illegal request."},
		{ErrMalformedMessage, "Malformed message"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("reason = %q, want %q", got, tt.want)
			}
		})
	}
}
