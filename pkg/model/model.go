// Package model defines the core domain types for ChitChat.
package model

import (
	"errors"
	"time"
	"unicode"
)

// Domain errors. The text of each one is the reason sent to clients in an
// error response, so it must not change.
//
//nolint:staticcheck // ST1005: reasons are part of the wire protocol
var (
	ErrInvalidUsername  = errors.New("Illegal username. Only alphanumeric chars are allowed.")
	ErrUsernameTaken    = errors.New("Username is already taken.")
	ErrAlreadyLoggedIn  = errors.New("Already logged in.")
	ErrNotLoggedIn      = errors.New("You must be logged in to access this function")
	ErrIllegalRequest   = errors.New("Illegal request.")
	ErrMalformedMessage = errors.New("Malformed message")
)

// Message is one delivered chat message. It is immutable once created.
type Message struct {
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	Sender    string `json:"sender" yaml:"sender"`
	Content   string `json:"content" yaml:"content"`
}

// NewMessage stamps a message with the given time, truncated to epoch seconds.
func NewMessage(sender, content string, at time.Time) Message {
	return Message{
		Timestamp: at.Unix(),
		Sender:    sender,
		Content:   content,
	}
}

// Time returns the message timestamp as a UTC time.
func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0).UTC()
}

// ValidateUsername checks that a username is non-empty and made only of
// letters and digits. Case is preserved; "Alice" and "alice" are distinct.
func ValidateUsername(name string) error {
	if name == "" {
		return ErrInvalidUsername
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsNumber(r) {
			return ErrInvalidUsername
		}
	}
	return nil
}
