// Package sheets is a thin retrying client for the record-table remote API:
// named tables holding named ranges of rows. Every operation goes through a
// uniform retry-with-credential-refresh policy; callers never re-implement
// retry.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenSource supplies a valid bearer token, refreshing when forced.
type TokenSource interface {
	Token(ctx context.Context, force bool) (string, error)
}

// Table describes a remote record table.
type Table struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Ranges []string `json:"ranges"`
}

// ValueRange pairs a named range with its rows, for batch operations.
type ValueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Tokens      TokenSource
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

// Client talks to the record-table API.
type Client struct {
	baseURL     string
	tokens      TokenSource
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewClient creates a record store client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		tokens:      opts.Tokens,
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// CreateTable creates a new remote table.
func (c *Client) CreateTable(ctx context.Context, name string) (*Table, error) {
	var table Table
	err := c.withRetry(ctx, func(ctx context.Context, token string) error {
		return c.do(ctx, token, http.MethodPost, "/v1/tables", map[string]string{"name": name}, &table)
	})
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// GetTable fetches a table by id, including its range names.
func (c *Client) GetTable(ctx context.Context, id string) (*Table, error) {
	var table Table
	err := c.withRetry(ctx, func(ctx context.Context, token string) error {
		return c.do(ctx, token, http.MethodGet, "/v1/tables/"+url.PathEscape(id), nil, &table)
	})
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// FindTableByName returns tables matching name exactly, most recent first.
func (c *Client) FindTableByName(ctx context.Context, name string) ([]Table, error) {
	var result struct {
		Tables []Table `json:"tables"`
	}
	err := c.withRetry(ctx, func(ctx context.Context, token string) error {
		path := "/v1/tables:find?name=" + url.QueryEscape(name)
		return c.do(ctx, token, http.MethodGet, path, nil, &result)
	})
	if err != nil {
		return nil, err
	}
	return result.Tables, nil
}

// AddRange adds a named range to a table.
func (c *Client) AddRange(ctx context.Context, tableID, rangeName string) error {
	return c.withRetry(ctx, func(ctx context.Context, token string) error {
		path := "/v1/tables/" + url.PathEscape(tableID) + "/ranges"
		return c.do(ctx, token, http.MethodPost, path, map[string]string{"name": rangeName}, nil)
	})
}

// GetValues returns all rows of a named range.
func (c *Client) GetValues(ctx context.Context, tableID, rangeName string) ([][]string, error) {
	var result struct {
		Values [][]string `json:"values"`
	}
	err := c.withRetry(ctx, func(ctx context.Context, token string) error {
		return c.do(ctx, token, http.MethodGet, c.valuesPath(tableID, rangeName), nil, &result)
	})
	if err != nil {
		return nil, err
	}
	return result.Values, nil
}

// SetValues replaces the rows of a named range.
func (c *Client) SetValues(ctx context.Context, tableID, rangeName string, rows [][]string) error {
	return c.withRetry(ctx, func(ctx context.Context, token string) error {
		body := map[string]any{"values": rows}
		return c.do(ctx, token, http.MethodPut, c.valuesPath(tableID, rangeName), body, nil)
	})
}

// AppendValues appends rows after the existing content of a named range.
func (c *Client) AppendValues(ctx context.Context, tableID, rangeName string, rows [][]string) error {
	return c.withRetry(ctx, func(ctx context.Context, token string) error {
		body := map[string]any{"values": rows}
		return c.do(ctx, token, http.MethodPost, c.valuesPath(tableID, rangeName)+":append", body, nil)
	})
}

// ClearValues removes all rows from a named range.
func (c *Client) ClearValues(ctx context.Context, tableID, rangeName string) error {
	return c.withRetry(ctx, func(ctx context.Context, token string) error {
		return c.do(ctx, token, http.MethodPost, c.valuesPath(tableID, rangeName)+":clear", nil, nil)
	})
}

// BatchGet fetches several named ranges in one call.
func (c *Client) BatchGet(ctx context.Context, tableID string, rangeNames []string) ([]ValueRange, error) {
	var result struct {
		ValueRanges []ValueRange `json:"valueRanges"`
	}
	err := c.withRetry(ctx, func(ctx context.Context, token string) error {
		path := "/v1/tables/" + url.PathEscape(tableID) + "/values:batchGet"
		return c.do(ctx, token, http.MethodPost, path, map[string]any{"ranges": rangeNames}, &result)
	})
	if err != nil {
		return nil, err
	}
	return result.ValueRanges, nil
}

// BatchSet replaces several named ranges in one call.
func (c *Client) BatchSet(ctx context.Context, tableID string, data []ValueRange) error {
	return c.withRetry(ctx, func(ctx context.Context, token string) error {
		path := "/v1/tables/" + url.PathEscape(tableID) + "/values:batchUpdate"
		return c.do(ctx, token, http.MethodPost, path, map[string]any{"data": data}, nil)
	})
}

func (c *Client) valuesPath(tableID, rangeName string) string {
	return "/v1/tables/" + url.PathEscape(tableID) + "/values/" + url.PathEscape(rangeName)
}

// do performs one HTTP exchange and classifies any failure.
func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportErr(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(respBody)),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindTransient, Message: fmt.Sprintf("malformed response: %v", err)}
		}
	}
	return nil
}
