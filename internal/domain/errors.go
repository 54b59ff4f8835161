package domain

import (
	"errors"
	"net/http"
)

// Failure taxonomy for collaborator calls. Components classify locally:
// auth failures force the session to expired, not-found reads collapse to
// empty state, network failures leave the caller's state untouched.
var (
	ErrNetwork    = errors.New("network failure")
	ErrAuth       = errors.New("authentication rejected")
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("malformed payload")
)

// ClassifyStatus maps an HTTP status to the failure taxonomy.
// 2xx maps to nil.
func ClassifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 400 && status < 500:
		return ErrValidation
	default:
		return ErrNetwork
	}
}
