package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"datosgw/internal/model"
	"datosgw/internal/store"
)

// Response messages that form part of the HTTP contract.
const (
	HealthMessage    = "API running with Supabase"
	MsgMissingFields = "Name and value are required"
	MsgNotFound      = "Record not found"
)

// recordBody is the JSON body accepted by create and update.
type recordBody struct {
	Nombre json.RawMessage `json:"nombre"`
	Valor  json.RawMessage `json:"valor"`
}

// Gateway serves the datos operations on top of a Store. Each request makes
// at most one store call and keeps nothing once it returns.
type Gateway struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

var _ ServerInterface = (*Gateway)(nil)

// NewGateway returns a Gateway backed by s. A nil logger uses slog.Default
// and a nil clock uses time.Now.
func NewGateway(s store.Store, logger *slog.Logger, now func() time.Time) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Gateway{store: s, logger: logger, now: now}
}

func (g *Gateway) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: HealthMessage})
}

func (g *Gateway) ListDatos(w http.ResponseWriter, r *http.Request) {
	recs, err := g.store.List(r.Context())
	if err != nil {
		g.storeFailure(w, r, "failed to list records", err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (g *Gateway) CreateDato(w http.ResponseWriter, r *http.Request) {
	var body recordBody
	if status, err := decodeBody(w, r, &body); err != nil {
		writeError(w, status, err.Error())
		return
	}

	in := model.NewRecord{Nombre: body.Nombre, Valor: body.Valor}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, MsgMissingFields)
		return
	}

	rec, err := g.store.Insert(r.Context(), in)
	if err != nil {
		g.storeFailure(w, r, "failed to create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateDato forwards nombre and valor without checking them, unlike
// CreateDato. Keys missing from the body are left out of the patch.
func (g *Gateway) UpdateDato(w http.ResponseWriter, r *http.Request, id string) {
	var body recordBody
	if status, err := decodeBody(w, r, &body); err != nil {
		writeError(w, status, err.Error())
		return
	}

	patch := model.RecordPatch{
		Nombre:    body.Nombre,
		Valor:     body.Valor,
		UpdatedAt: model.Timestamp{Time: g.now().UTC()},
	}
	rec, err := g.store.Update(r.Context(), id, patch)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, MsgNotFound)
		return
	}
	if err != nil {
		g.storeFailure(w, r, "failed to update record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteDato answers 204 whether or not a row matched; the store's filtered
// delete does not say.
func (g *Gateway) DeleteDato(w http.ResponseWriter, r *http.Request, id string) {
	if err := g.store.Delete(r.Context(), id); err != nil {
		g.storeFailure(w, r, "failed to delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// storeFailure logs err and answers 500 with its message verbatim.
func (g *Gateway) storeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	attrs := []any{"error", err, "request_id", middleware.GetReqID(r.Context())}
	var serr *store.Error
	if errors.As(err, &serr) {
		attrs = append(attrs, "code", serr.Code, "remote_status", serr.Status)
	}
	g.logger.ErrorContext(r.Context(), msg, attrs...)
	writeError(w, http.StatusInternalServerError, err.Error())
}
