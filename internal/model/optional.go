package model

import (
	"bytes"
	"encoding/json"
)

// OptString distinguishes "field absent" from "field explicitly null" in a
// partial update. Absent means "no change"; null is a deliberate clear
// (e.g. campaignId: null evicts a character from its campaign).
//
// It is used as a value field with the omitzero tag, never as a pointer:
// encoding/json short-circuits a JSON null on a pointer field without
// calling the Unmarshaler, which would make null indistinguishable from
// absence. As a value field the zero value (Set=false) means absent, and
// UnmarshalJSON runs for both null and a string.
type OptString struct {
	Set   bool
	Valid bool
	Value string
}

// IsZero reports absence, for the omitzero marshal tag.
func (o OptString) IsZero() bool { return !o.Set }

func (o *OptString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		o.Value = ""
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

func (o OptString) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
