package domain

import (
	"errors"
	"strings"
)

var (
	// ErrUnauthenticated is returned when a request carries no usable credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the record exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Path     string `json:"path"`
	Msg      string `json:"msg"`
	Location string `json:"location"`
}

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Path + ": " + f.Msg
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

type fieldErrors []FieldError

func (f *fieldErrors) add(path, msg string) {
	*f = append(*f, FieldError{Path: path, Msg: msg, Location: "body"})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
