package session

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrCorruptRecord is returned by DecodeRecord for empty, non-JSON, or
	// email-less records.
	ErrCorruptRecord = errors.New("corrupt session record")
	// ErrInvalidSession is returned when a session without an email is offered
	// for adoption.
	ErrInvalidSession = errors.New("invalid session: email required")
	// ErrStoreClosed is returned by Login after Close.
	ErrStoreClosed = errors.New("session store closed")
	// ErrNoStore is the panic value of MustFromContext when no store was bound.
	ErrNoStore = errors.New("session store missing from context")
)

// EncodeRecord serializes s into its persisted JSON form.
func EncodeRecord(s Session) (string, error) {
	if !s.Valid() {
		return "", ErrInvalidSession
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeRecord parses a persisted record. Every malformed shape maps to
// ErrCorruptRecord.
func DecodeRecord(raw string) (Session, error) {
	if strings.TrimSpace(raw) == "" {
		return Session{}, ErrCorruptRecord
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, ErrCorruptRecord
	}
	if !s.Valid() {
		return Session{}, ErrCorruptRecord
	}
	return s, nil
}
