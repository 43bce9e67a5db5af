package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrValidation is returned when a create request lacks nombre or valor.
var ErrValidation = errors.New("nombre and valor are required")

// Record is one row of the datos table. A nil Nombre is a null column.
type Record struct {
	ID        int64           `json:"id"`
	Nombre    *string         `json:"nombre"`
	Valor     json.RawMessage `json:"valor"`
	CreatedAt *Timestamp      `json:"created_at,omitempty"`
	UpdatedAt *Timestamp      `json:"updated_at"`
}

// NewRecord is the payload of an insert. Fields keep the caller's raw JSON so
// that valor can be any scalar and presence can be told apart from null.
type NewRecord struct {
	Nombre json.RawMessage `json:"nombre,omitempty"`
	Valor  json.RawMessage `json:"valor,omitempty"`
}

// Validate reports ErrValidation when nombre is missing or falsy, or when
// valor is missing. A valor of 0, "", false or null is accepted.
func (n NewRecord) Validate() error {
	if isFalsy(n.Nombre) || len(n.Valor) == 0 {
		return ErrValidation
	}
	return nil
}

// RecordPatch is the payload of an update. Absent keys stay absent on the
// wire; an explicit null is forwarded as null.
type RecordPatch struct {
	Nombre    json.RawMessage `json:"nombre,omitempty"`
	Valor     json.RawMessage `json:"valor,omitempty"`
	UpdatedAt Timestamp       `json:"updated_at"`
}

// isFalsy follows JSON-client truthiness: missing, null, false, "" and any
// numeric zero are falsy.
func isFalsy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return true
	}
	switch string(v) {
	case "null", "false", `""`:
		return true
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil && f == 0 {
		return true
	}
	return false
}

// Text returns a pointer to s, for building a Record's Nombre.
func Text(s string) *string {
	return &s
}
