package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/existflow/collabtask/internal/model"
)

// headerConnectionID labels a request with the caller's live connection
const headerConnectionID = "X-Connection-ID"

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// NotFound reports a 404
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// API talks to the REST endpoints
type API struct {
	baseURL    string
	httpClient *http.Client

	// ConnectionID, when set, ties writes to this client's live
	// connection in the server logs
	ConnectionID string
}

// NewAPI creates a REST client for serverURL
func NewAPI(serverURL string) *API {
	return &API{
		baseURL:    strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.ConnectionID != "" {
		req.Header.Set(headerConnectionID, a.ConnectionID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		respBody, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// List fetches every task, newest first
func (a *API) List(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	if err := a.do(ctx, http.MethodGet, "/api/tasks", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get fetches one task
func (a *API) Get(ctx context.Context, id int64) (model.Item, error) {
	var item model.Item
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil, &item)
	return item, err
}

// Create stores a new task and returns the server's record
func (a *API) Create(ctx context.Context, f model.Fields) (model.Item, error) {
	var item model.Item
	err := a.do(ctx, http.MethodPost, "/api/tasks", f, &item)
	return item, err
}

// Update overwrites a task and returns the server's record
func (a *API) Update(ctx context.Context, id int64, f model.Fields) (model.Item, error) {
	var item model.Item
	err := a.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d", id), f, &item)
	return item, err
}

// Delete removes a task; unknown ids succeed
func (a *API) Delete(ctx context.Context, id int64) error {
	return a.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), nil, nil)
}

// Users fetches the presence list
func (a *API) Users(ctx context.Context) ([]model.PresenceEntry, error) {
	var users []model.PresenceEntry
	if err := a.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}
