// Package postgrest is a client for the Supabase REST endpoint of a single
// table. It issues exactly one HTTP request per operation and never retries.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"datosgw/internal/model"
	"datosgw/internal/store"
)

const (
	clientInfo     = "datosgw"
	mediaJSON      = "application/json"
	mediaSingleRow = "application/vnd.pgrst.object+json"
	preferReturn   = "return=representation"
)

// Config describes how to reach the table.
type Config struct {
	// URL is the project URL, e.g. https://abc.supabase.co.
	URL string
	// Key is sent as both apikey and bearer token.
	Key string
	// Table defaults to "datos".
	Table string
	// Schema selects a non-default schema through the profile headers.
	Schema string
	// HTTPClient defaults to a pooled cleanhttp client.
	HTTPClient *http.Client
}

// Client talks to one table. It holds only immutable configuration and a
// pooled HTTP client, so a single value can serve concurrent requests.
type Client struct {
	endpoint string
	key      string
	schema   string
	http     *http.Client
}

var _ store.Store = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgrest: url is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("postgrest: key is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgrest: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("postgrest: unsupported url scheme %q", u.Scheme)
	}
	table := cfg.Table
	if table == "" {
		table = "datos"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/rest/v1/" + url.PathEscape(table),
		key:      cfg.Key,
		schema:   cfg.Schema,
		http:     hc,
	}, nil
}

func (c *Client) List(ctx context.Context) ([]model.Record, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "id.asc")

	recs := []model.Record{}
	if err := c.do(ctx, request{op: "list records", method: http.MethodGet, query: q}, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) Insert(ctx context.Context, rec model.NewRecord) (model.Record, error) {
	q := url.Values{}
	q.Set("select", "*")

	var out model.Record
	err := c.do(ctx, request{
		op:      "insert record",
		method:  http.MethodPost,
		query:   q,
		payload: []model.NewRecord{rec},
		prefer:  preferReturn,
		accept:  mediaSingleRow,
	}, &out)
	if err != nil {
		return model.Record{}, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("select", "*")

	var rows []model.Record
	err := c.do(ctx, request{
		op:      "update record",
		method:  http.MethodPatch,
		query:   q,
		payload: patch,
		prefer:  preferReturn,
	}, &rows)
	if err != nil {
		return model.Record{}, err
	}
	if len(rows) == 0 {
		return model.Record{}, store.ErrNotFound
	}
	return rows[0], nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	return c.do(ctx, request{op: "delete record", method: http.MethodDelete, query: q}, nil)
}

type request struct {
	op      string
	method  string
	query   url.Values
	payload any
	prefer  string
	accept  string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.payload != nil {
		b, err := json.Marshal(r.payload)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.endpoint
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.op, err)
	}
	c.setHeaders(req, r)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", r.op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, r request) {
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("X-Client-Info", clientInfo)
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	} else {
		req.Header.Set("Accept", mediaJSON)
	}
	if r.payload != nil {
		req.Header.Set("Content-Type", mediaJSON)
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}
	if c.schema != "" {
		if r.method == http.MethodGet || r.method == http.MethodHead {
			req.Header.Set("Accept-Profile", c.schema)
		} else {
			req.Header.Set("Content-Profile", c.schema)
		}
	}
}

// decodeError turns a non-2xx response into a *store.Error, falling back to
// the raw body or the status text when the body is not a PostgREST error.
func decodeError(status int, data []byte) error {
	var e store.Error
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		e.Status = status
		return &e
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &store.Error{Status: status, Message: msg}
}
