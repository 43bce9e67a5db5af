package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"datosgw/internal/model"
)

// APIError surfaces non-2xx responses from the server.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

//nolint:errorlint
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

var ErrNotFound = errors.New("not found")

// Client speaks the gateway's HTTP contract.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Health returns the acknowledgement message.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, http.StatusOK, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// List returns every record.
func (c *Client) List(ctx context.Context) ([]model.Record, error) {
	var out []model.Record
	if err := c.do(ctx, http.MethodGet, "/api/datos", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts body, typically a map with nombre and valor.
func (c *Client) Create(ctx context.Context, body any) (model.Record, error) {
	var out model.Record
	if err := c.do(ctx, http.MethodPost, "/api/datos", body, http.StatusCreated, &out); err != nil {
		return model.Record{}, err
	}
	return out, nil
}

// Update puts body on the record; returns ErrNotFound on 404.
func (c *Client) Update(ctx context.Context, id any, body any) (model.Record, error) {
	path, err := recordPath(id)
	if err != nil {
		return model.Record{}, err
	}
	var out model.Record
	if err := c.do(ctx, http.MethodPut, path, body, http.StatusOK, &out); err != nil {
		return model.Record{}, err
	}
	return out, nil
}

// Delete removes the record; succeeds whether or not it existed.
func (c *Client) Delete(ctx context.Context, id any) error {
	path, err := recordPath(id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, http.StatusNoContent, nil)
}

func recordPath(id any) (string, error) {
	param, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", err
	}
	return "/api/datos/" + param, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != want {
		return newAPIError(resp.StatusCode, data)
	}
	if want == http.StatusNoContent && len(data) != 0 {
		return fmt.Errorf("expected empty body for 204, got %q", data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func newAPIError(status int, body []byte) error {
	e := &APIError{StatusCode: status, Body: string(body)}
	var decoded struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &decoded) == nil {
		e.Message = decoded.Error
	}
	return e
}
