package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is an error answer of the server.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Client calls the users and data services of a server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session *Session
	// Admin sends the X-Admin header with every request.
	Admin bool
}

// New creates a Client. A nil session keeps the login in memory only.
func New(baseURL string, httpClient *http.Client, session *Session) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if session == nil {
		session = &Session{}
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
		Session: session,
	}
}

// Register creates an account and keeps the returned session.
func (c *Client) Register(ctx context.Context, body map[string]any) (map[string]any, error) {
	return c.authenticate(ctx, "/users/register", body)
}

// Login opens a session for existing credentials.
func (c *Client) Login(ctx context.Context, body map[string]any) (map[string]any, error) {
	return c.authenticate(ctx, "/users/login", body)
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	var user map[string]any
	if err := c.do(ctx, http.MethodPost, path, body, &user); err != nil {
		return nil, err
	}
	if err := c.Session.Store(user); err != nil {
		return user, fmt.Errorf("save session: %w", err)
	}
	return user, nil
}

// Logout closes the current session on the server and locally.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/users/logout", nil, nil); err != nil {
		return err
	}
	return c.Session.Clear()
}

// Me returns the logged in user.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var user map[string]any
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &user)
	return user, err
}

// Get reads a collection or a single record. query is a raw query string
// such as `where=_ownerId%3D"1"&pageSize=5`.
func (c *Client) Get(ctx context.Context, collection, id, query string) (any, error) {
	path := dataPath(collection, id)
	if query != "" {
		path += "?" + strings.TrimPrefix(query, "?")
	}
	var out any
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Create adds a record to a collection.
func (c *Client) Create(ctx context.Context, collection string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, dataPath(collection, ""), body, &out)
	return out, err
}

// Replace overwrites a record.
func (c *Client) Replace(ctx context.Context, collection, id string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPut, dataPath(collection, id), body, &out)
	return out, err
}

// Patch merges fields into a record.
func (c *Client) Patch(ctx context.Context, collection, id string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPatch, dataPath(collection, id), body, &out)
	return out, err
}

// Delete removes a record and returns it.
func (c *Client) Delete(ctx context.Context, collection, id string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodDelete, dataPath(collection, id), nil, &out)
	return out, err
}

func dataPath(collection, id string) string {
	path := "/data/" + url.PathEscape(collection)
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Session.Token(); token != "" {
		req.Header.Set("X-Authorization", token)
	}
	if c.Admin {
		req.Header.Set("X-Admin", "true")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Code: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
