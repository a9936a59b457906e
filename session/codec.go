package session

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrIDMismatch is returned by DecodeValues when the record belongs to a
// different session than the one asked for.
var ErrIDMismatch = errors.New("session record ID mismatch")

type record struct {
	SessionID SessionID      `json:"session_id"`
	Values    map[string]any `json:"values"`
}

// EncodeValues serializes a session map for stores that keep bytes.
//
// Values go through JSON, so after a round trip numbers come back as
// float64 and structs as map[string]any.
func EncodeValues(id SessionID, values map[string]any) ([]byte, error) {
	if values == nil {
		values = map[string]any{}
	}
	b, err := json.Marshal(record{id, values})
	if err != nil {
		return nil, fmt.Errorf("session: encoding values: %w", err)
	}
	return b, nil
}

// DecodeValues is the inverse of EncodeValues. The embedded ID must match
// id; handing one user another user's session is worse than losing it.
func DecodeValues(id SessionID, data []byte) (map[string]any, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("session: decoding values: %w", err)
	}
	if r.SessionID == NoSessionID {
		return nil, errors.New("session: record has no session ID")
	}
	if r.SessionID != id {
		return nil, ErrIDMismatch
	}
	if r.Values == nil {
		r.Values = map[string]any{}
	}
	return r.Values, nil
}
