package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor is the resume position of a range scan: the index value and row ID
// of the last record returned. The encoded form is opaque to callers.
type Cursor struct {
	Key string `json:"k"`
	ID  string `json:"id"`
}

// Encode serializes the cursor into its opaque wire form.
func (c Cursor) Encode() string {
	raw, err := json.Marshal(c)
	if err != nil {
		// Cursor has only string fields; Marshal cannot fail on it.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor. An empty string means "start of
// range" and decodes to the zero cursor.
func DecodeCursor(encoded string) (Cursor, error) {
	if encoded == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c, nil
}

// After reports whether a row at (key, id) sorts strictly after the cursor
// position. The zero cursor admits every row.
func (c Cursor) After(key, id string) bool {
	if c.Key == "" && c.ID == "" {
		return true
	}
	if key != c.Key {
		return key > c.Key
	}
	return id > c.ID
}
