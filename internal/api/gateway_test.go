package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datosgw/internal/config"
	"datosgw/internal/metrics"
	"datosgw/internal/model"
	"datosgw/internal/store"
	"datosgw/internal/store/memory"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// tickingClock advances one second per call.
func tickingClock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return epoch.Add(time.Duration(n) * time.Second)
	}
}

type harness struct {
	handler http.Handler
	store   *memory.Store
	logs    *bytes.Buffer
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	mem := memory.New(memory.WithClock(func() time.Time { return epoch }))
	logs := &bytes.Buffer{}
	o := Options{
		Store:          mem,
		Logger:         slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		AllowedOrigins: config.DefaultAllowedOrigins,
		Now:            tickingClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &harness{handler: NewServer(o), store: mem, logs: logs}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) model.Record {
	t.Helper()
	var out model.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []model.Record {
	t.Helper()
	var out []model.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"API running with Supabase"}`, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRecordLifecycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/datos", `{"nombre":"temp","valor":21.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeRecord(t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.Text("temp"), created.Nombre)
	assert.Equal(t, json.RawMessage(`21.5`), created.Valor)
	assert.Nil(t, created.UpdatedAt)

	path := "/api/datos/" + strconv.FormatInt(created.ID, 10)
	rec = h.do(t, http.MethodPut, path, `{"nombre":"temp","valor":22.0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeRecord(t, rec)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, json.RawMessage(`22.0`), updated.Valor)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.After(epoch))

	rec = h.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())

	rec = h.do(t, http.MethodGet, "/api/datos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, r := range decodeList(t, rec) {
		assert.NotEqual(t, created.ID, r.ID)
	}
}

func TestListOrderedAscending(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/datos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for i := 0; i < 5; i++ {
		rec := h.do(t, http.MethodPost, "/api/datos", `{"nombre":"n`+strconv.Itoa(i)+`","valor":`+strconv.Itoa(i)+`}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/datos/2", "").Code)
	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/datos/4", "").Code)

	rec = h.do(t, http.MethodGet, "/api/datos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ids []int64
	for _, r := range decodeList(t, rec) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 3, 5}, ids)
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"valor zero accepted", `{"nombre":"a","valor":0}`, http.StatusCreated},
		{"valor empty string accepted", `{"nombre":"a","valor":""}`, http.StatusCreated},
		{"valor null accepted", `{"nombre":"a","valor":null}`, http.StatusCreated},
		{"nombre missing", `{"valor":1}`, http.StatusBadRequest},
		{"nombre empty", `{"nombre":"","valor":1}`, http.StatusBadRequest},
		{"nombre null", `{"nombre":null,"valor":1}`, http.StatusBadRequest},
		{"valor missing", `{"nombre":"a"}`, http.StatusBadRequest},
		{"empty object", `{}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, http.MethodPost, "/api/datos", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status == http.StatusBadRequest {
				assert.Equal(t, MsgMissingFields, errorBody(t, rec))
				assert.Zero(t, h.store.Len(), "rejected create must not reach the store")
			} else {
				assert.Equal(t, 1, h.store.Len())
			}
		})
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a","valor":1}`).Code)

	rec := h.do(t, http.MethodPut, "/api/datos/99", `{"nombre":"b","valor":2}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgNotFound, errorBody(t, rec))

	list := decodeList(t, h.do(t, http.MethodGet, "/api/datos", ""))
	require.Len(t, list, 1)
	assert.Equal(t, model.Text("a"), list[0].Nombre)
	assert.Nil(t, list[0].UpdatedAt)
}

// Update performs no presence checks: an empty body only refreshes
// updated_at, and an explicit null is written through.
func TestUpdateSkipsBodyValidation(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a","valor":1}`).Code)

	rec := h.do(t, http.MethodPut, "/api/datos/1", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeRecord(t, rec)
	assert.Equal(t, model.Text("a"), got.Nombre)
	assert.Equal(t, json.RawMessage(`1`), got.Valor)
	require.NotNil(t, got.UpdatedAt)

	rec = h.do(t, http.MethodPut, "/api/datos/1", `{"nombre":null,"valor":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nombre":null`)
	got = decodeRecord(t, rec)
	assert.Nil(t, got.Nombre)
	assert.Equal(t, json.RawMessage(`null`), got.Valor)

	list := decodeList(t, h.do(t, http.MethodGet, "/api/datos", ""))
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Nombre)
}

func TestUpdatedAtNeverGoesBackwards(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a","valor":1}`).Code)

	var prev time.Time
	for i := 0; i < 3; i++ {
		rec := h.do(t, http.MethodPut, "/api/datos/1", `{"valor":`+strconv.Itoa(i)+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeRecord(t, rec)
		require.NotNil(t, got.UpdatedAt)
		assert.False(t, got.UpdatedAt.Before(prev))
		prev = got.UpdatedAt.Time
	}
}

func TestDeleteIsAlwaysNoContent(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a","valor":1}`).Code)

	for _, path := range []string{"/api/datos/1", "/api/datos/1", "/api/datos/12345"} {
		rec := h.do(t, http.MethodDelete, path, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Zero(t, rec.Body.Len(), path)
	}
	assert.JSONEq(t, `[]`, h.do(t, http.MethodGet, "/api/datos", "").Body.String())
}

func TestNonIntegerIDIsStoreError(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/api/datos/abc", `{"valor":1}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorBody(t, rec), "invalid input syntax for type bigint")
	assert.Contains(t, h.logs.String(), "failed to update record")
	assert.Contains(t, h.logs.String(), "code=22P02")
}

type failingStore struct {
	err error
}

func (f failingStore) List(context.Context) ([]model.Record, error) { return nil, f.err }

func (f failingStore) Insert(context.Context, model.NewRecord) (model.Record, error) {
	return model.Record{}, f.err
}

func (f failingStore) Update(context.Context, string, model.RecordPatch) (model.Record, error) {
	return model.Record{}, f.err
}

func (f failingStore) Delete(context.Context, string) error { return f.err }

func TestStoreFailuresAreServerErrors(t *testing.T) {
	remote := &store.Error{Status: http.StatusServiceUnavailable, Code: "PGRST000", Message: "Could not connect with the database"}
	h := newHarness(t, func(o *Options) { o.Store = failingStore{err: remote} })

	cases := []struct {
		method, path, body, logPrefix string
	}{
		{http.MethodGet, "/api/datos", "", "failed to list records"},
		{http.MethodPost, "/api/datos", `{"nombre":"a","valor":1}`, "failed to create record"},
		{http.MethodPut, "/api/datos/1", `{"valor":1}`, "failed to update record"},
		{http.MethodDelete, "/api/datos/1", "", "failed to delete record"},
	}
	for _, tc := range cases {
		rec := h.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.method)
		assert.Equal(t, "Could not connect with the database", errorBody(t, rec), tc.method)
		assert.Contains(t, h.logs.String(), tc.logPrefix)
	}
	assert.Contains(t, h.logs.String(), "code=PGRST000")
}

func TestValidationPrecedesStoreFailure(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Store = failingStore{err: &store.Error{Message: "down"}} })
	rec := h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestBodyHandling(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datos", strings.NewReader(`{"nombre":"a","valor":1}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-JSON bodies are ignored")
	assert.Equal(t, MsgMissingFields, errorBody(t, rec))

	req = httptest.NewRequest(http.MethodPost, "/api/datos", strings.NewReader(`{"nombre":"a","valor":1}`))
	req.Header.Set("Content-Type", "application/merge-patch+json")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/datos", `{"nombre":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, errorBody(t, rec))

	rec = h.do(t, http.MethodPut, "/api/datos/1", `[{"nombre":"b"}]`)
	require.Equal(t, http.StatusOK, rec.Code, "array bodies carry no fields")
	got := decodeRecord(t, rec)
	assert.Equal(t, model.Text("a"), got.Nombre)
	assert.NotNil(t, got.UpdatedAt)

	rec = h.do(t, http.MethodPost, "/api/datos", `[{"nombre":"a","valor":1}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgMissingFields, errorBody(t, rec))

	rec = h.do(t, http.MethodPut, "/api/datos/1", `[1,`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/datos/1", `"nombre"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errBodyNotObject.Error(), errorBody(t, rec))

	big := `{"nombre":"a","valor":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec = h.do(t, http.MethodPost, "/api/datos", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, errBodyTooLarge.Error(), errorBody(t, rec))

	assert.Equal(t, 1, h.store.Len())
}

func TestNombreScalarIsStoredAsText(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/datos", `{"nombre":7,"valor":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.Text("7"), decodeRecord(t, rec).Nombre)
}

func TestValorKeepsItsJSONType(t *testing.T) {
	h := newHarness(t)
	for _, v := range []string{`"texto"`, `true`, `-3`, `1e3`} {
		rec := h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a","valor":`+v+`}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, json.RawMessage(v), decodeRecord(t, rec).Valor)
	}
}

func TestRoutingFallbacks(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/otros", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cannot GET /api/otros", errorBody(t, rec))

	rec = h.do(t, http.MethodPatch, "/api/datos/1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/datos/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPermitsEveryOrigin(t *testing.T) {
	h := newHarness(t)

	for _, origin := range []string{"http://localhost:5173", "https://somewhere.example"} {
		req := httptest.NewRequest(http.MethodGet, "/api/datos", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	}
	assert.Contains(t, h.logs.String(), "cors origin not in allow-list")

	rec := h.do(t, http.MethodGet, "/api/datos", "")
	assert.Equal(t, http.StatusOK, rec.Code, "requests without Origin are served")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/datos/1", nil)
	req.Header.Set("Origin", "https://egarpxmaster.github.io")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.True(t, rec.Code >= 200 && rec.Code < 300, "preflight status %d", rec.Code)
	assert.Equal(t, "https://egarpxmaster.github.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := newHarness(t, func(o *Options) { o.Metrics = m })

	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/datos", `{"nombre":"a","valor":1}`).Code)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodPut, "/api/datos/9", `{"valor":1}`).Code)

	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `datos_http_requests_total{code="201",method="POST",route="/api/datos"} 1`)
	assert.Contains(t, body, `datos_http_requests_total{code="404",method="PUT",route="/api/datos/{id}"} 1`)
	assert.Contains(t, body, `datos_store_call_duration_seconds_count{op="insert",outcome="ok"} 1`)
	assert.Contains(t, body, `datos_store_call_duration_seconds_count{op="update",outcome="not_found"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/metrics", "").Code)
}
