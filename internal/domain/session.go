package domain

import (
	"errors"
	"time"
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionExpired = errors.New("session expired")
	ErrInvalidToken   = errors.New("invalid token")
)

// SessionState tracks the lifecycle of the tab-local session.
type SessionState string

const (
	SessionAbsent  SessionState = "absent"
	SessionValid   SessionState = "valid"
	SessionExpired SessionState = "expired"
)

// Claims are the fields the client reads out of the bearer token.
type Claims struct {
	SubjectID string    `json:"sub"`
	ExpiresAt time.Time `json:"exp"`
}

// Session is the authenticated identity for the current tab.
// Token and Claims are zeroed whenever State leaves SessionValid.
type Session struct {
	Token  string       `json:"token,omitempty"`
	Claims *Claims      `json:"claims,omitempty"`
	State  SessionState `json:"state"`
}

// Valid reports whether the session can gate authenticated calls.
func (s *Session) Valid() bool {
	return s != nil && s.State == SessionValid && s.Token != ""
}
