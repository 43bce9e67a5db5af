// Package store defines the contract between the gateway and the table that
// holds datos records.
package store

import (
	"context"
	"errors"
	"fmt"

	"datosgw/internal/model"
)

// ErrNotFound is returned by Update when no row matched the id.
var ErrNotFound = errors.New("record not found")

// Store is the remote tabular store. Implementations must be safe for
// concurrent use; a single value is shared by every request.
type Store interface {
	// List returns every record ordered ascending by id.
	List(ctx context.Context) ([]model.Record, error)
	// Insert creates a record and returns it as stored.
	Insert(ctx context.Context, rec model.NewRecord) (model.Record, error)
	// Update applies patch to the record with the given id and returns the
	// result. It returns ErrNotFound when no row matched.
	Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error)
	// Delete removes the record with the given id. Deleting a missing id is
	// not an error.
	Delete(ctx context.Context, id string) error
}

// Error is a failure reported by the store itself, shaped after the
// PostgREST error document.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Error returns the store's message text unchanged so it can be handed to
// callers verbatim.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store error %s", e.Code)
	}
	return e.Message
}
