package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 100 << 10

var (
	errBodyTooLarge  = errors.New("request entity too large")
	errBodyNotObject = errors.New("request body must be a JSON object or array")
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"failed to encode response"}`+"\n")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody fills dst from a JSON request body. Requests that are not JSON,
// carry no body or carry an array leave dst untouched. On failure it returns
// the status code to answer with.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	if r.Body == nil || !isJSON(r.Header.Get("Content-Type")) {
		return 0, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return http.StatusBadRequest, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, nil
	}
	switch data[0] {
	case '{':
	case '[':
		if !json.Valid(data) {
			return http.StatusBadRequest, errors.New("invalid JSON array in request body")
		}
		return 0, nil
	default:
		return http.StatusBadRequest, errBodyNotObject
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return http.StatusBadRequest, err
	}
	return 0, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
