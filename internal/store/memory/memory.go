// Package memory is an in-process stand-in for the remote datos table. It
// keeps the remote's observable behaviour: store-assigned ids, ascending
// listing, silent deletes, scalar-to-text conversion of nombre and type
// errors for malformed ids.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"datosgw/internal/model"
	"datosgw/internal/store"
)

// Store is a thread-safe in-memory table.
type Store struct {
	mu     sync.RWMutex
	rows   map[int64]model.Record
	nextID int64
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty table whose first id is 1.
func New(opts ...Option) *Store {
	s := &Store{
		rows: make(map[int64]model.Record),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) List(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Insert(ctx context.Context, rec model.NewRecord) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row := model.Record{
		ID:        s.nextID,
		Nombre:    decodeText(rec.Nombre),
		Valor:     cloneRaw(rec.Valor),
		CreatedAt: model.NewTimestamp(s.now().UTC()),
	}
	s.rows[row.ID] = row
	return cloneRecord(row), nil
}

func (s *Store) Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	key, err := parseID(id)
	if err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok {
		return model.Record{}, store.ErrNotFound
	}
	if len(patch.Nombre) > 0 {
		row.Nombre = decodeText(patch.Nombre)
	}
	if len(patch.Valor) > 0 {
		row.Valor = cloneRaw(patch.Valor)
	}
	row.UpdatedAt = model.NewTimestamp(patch.UpdatedAt.Time)
	s.rows[key] = row
	return cloneRecord(row), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := parseID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key)
	return nil
}

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, &store.Error{
			Status:  http.StatusBadRequest,
			Code:    "22P02",
			Message: fmt.Sprintf("invalid input syntax for type bigint: %q", id),
		}
	}
	return n, nil
}

// decodeText converts a JSON value into a text column value. Absent and null
// give a null column, strings are unquoted, and any other value is stored as
// its compact JSON text.
func decodeText(raw json.RawMessage) *string {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return &s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return model.Text(string(v))
	}
	return model.Text(buf.String())
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return bytes.Clone(raw)
}

func cloneRecord(r model.Record) model.Record {
	r.Valor = cloneRaw(r.Valor)
	if r.Nombre != nil {
		r.Nombre = model.Text(*r.Nombre)
	}
	if r.CreatedAt != nil {
		r.CreatedAt = model.NewTimestamp(r.CreatedAt.Time)
	}
	if r.UpdatedAt != nil {
		r.UpdatedAt = model.NewTimestamp(r.UpdatedAt.Time)
	}
	return r
}
