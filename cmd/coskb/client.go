package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperjump/coskb/internal/health"
	"github.com/hyperjump/coskb/internal/models"
)

const defaultServerURL = "http://localhost:8000"

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Message string
	Kind    models.ErrorKind
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// client talks to a running coskb server. Using it avoids opening the Bleve and
// SQLite files a second time while the server holds them.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

// get fetches path and decodes the body when the status is one of accept, or 200
// when accept is empty.
func (c *client) get(ctx context.Context, path string, params url.Values, out any, accept ...int) error {
	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out, accept...)
}

func (c *client) post(ctx context.Context, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out, http.StatusOK)
}

// do sends req and decodes the body into out when the status is one of accept.
func (c *client) do(req *http.Request, out any, accept ...int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range accept {
		if resp.StatusCode == s {
			ok = true
		}
	}
	if !ok {
		b, _ := io.ReadAll(resp.Body)
		e := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		var body struct {
			Error string           `json:"error"`
			Kind  models.ErrorKind `json:"kind"`
		}
		if json.Unmarshal(b, &body) == nil && body.Error != "" {
			e.Message, e.Kind = body.Error, body.Kind
		}
		return e
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	params := url.Values{"q": {q.Query}}
	if q.TopK > 0 {
		params.Set("top_k", strconv.Itoa(q.TopK))
	}
	if q.Mode != "" {
		params.Set("mode", string(q.Mode))
	}
	var out models.SearchResponse
	if err := c.get(ctx, "/search", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Similar(ctx context.Context, id int64) (*models.SimilarResponse, error) {
	var out models.SimilarResponse
	if err := c.get(ctx, "/similar", url.Values{"page_id": {strconv.FormatInt(id, 10)}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Duplicates(ctx context.Context, threshold float64) (*models.DuplicatesResponse, error) {
	params := url.Values{}
	if threshold > 0 {
		params.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
	}
	var out models.DuplicatesResponse
	if err := c.get(ctx, "/duplicates", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Reindex(ctx context.Context, docs []models.SourceDocument) (*models.ReindexResult, error) {
	var body any
	if docs != nil {
		body = map[string]any{"documents": docs}
	}
	var out models.ReindexResult
	if err := c.post(ctx, "/index", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Stats(ctx context.Context) (*models.Stats, error) {
	var out models.Stats
	if err := c.get(ctx, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Health(ctx context.Context) (*health.Report, error) {
	var out health.Report
	// A degraded report comes with 503.
	if err := c.get(ctx, "/health", nil, &out, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &out, nil
}
