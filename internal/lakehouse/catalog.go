// Package lakehouse wraps the remote lakehouse SQL engine behind a small
// interface. The engine owns authentication, retries, and query execution;
// this package only ships statements to it.
package lakehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Catalog is the set of remote operations the orchestrator depends on.
// Implementations must make CreateTable idempotent (the shipped DDL carries
// IF NOT EXISTS).
type Catalog interface {
	// EnsureSchema creates the target schema if it does not exist.
	EnsureSchema(ctx context.Context, catalog, schemaName string) error

	// CreateTable executes a CREATE TABLE IF NOT EXISTS statement.
	CreateTable(ctx context.Context, createDDL string) error

	// RefreshTable asks the engine to pick up newly uploaded files.
	RefreshTable(ctx context.Context, catalog, schemaName, table string) error

	// RowCount returns the current row count of the table, or a negative
	// value if the implementation cannot count (verification is skipped).
	RowCount(ctx context.Context, catalog, schemaName, table string) (int64, error)
}

// Client talks to the watsonx.data SQL statement endpoint over HTTP.
type Client struct {
	baseURL  string
	engineID string
	apiKey   string
	http     *http.Client
}

// NewClient builds a Client for the given host and engine.
func NewClient(host string, port int, engineID, apiKey string) *Client {
	return &Client{
		baseURL:  fmt.Sprintf("https://%s:%d", host, port),
		engineID: engineID,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

type statementRequest struct {
	EngineID string `json:"engine_id"`
	SQL      string `json:"sql"`
}

type statementResponse struct {
	Rows [][]json.Number `json:"rows"`
}

// execute ships one SQL statement and decodes the response.
func (c *Client) execute(ctx context.Context, sql string) (*statementResponse, error) {
	body, err := json.Marshal(statementRequest{EngineID: c.engineID, SQL: sql})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/statements", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out statementResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}
	return &out, nil
}

func (c *Client) EnsureSchema(ctx context.Context, catalog, schemaName string) error {
	_, err := c.execute(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s.%s", catalog, schemaName))
	return err
}

func (c *Client) CreateTable(ctx context.Context, createDDL string) error {
	_, err := c.execute(ctx, createDDL)
	return err
}

func (c *Client) RefreshTable(ctx context.Context, catalog, schemaName, table string) error {
	_, err := c.execute(ctx, fmt.Sprintf(
		"CALL system.sync_partition_metadata('%s', '%s', '%s')", catalog, schemaName, table))
	return err
}

func (c *Client) RowCount(ctx context.Context, catalog, schemaName, table string) (int64, error) {
	resp, err := c.execute(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s.%s.%s", catalog, schemaName, table))
	if err != nil {
		return 0, err
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0]) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	return resp.Rows[0][0].Int64()
}

// Noop is a Catalog that accepts every call without talking to anything.
// Used by dry runs. RowCount reports verification unavailable.
type Noop struct{}

func (Noop) EnsureSchema(context.Context, string, string) error        { return nil }
func (Noop) CreateTable(context.Context, string) error                 { return nil }
func (Noop) RefreshTable(context.Context, string, string, string) error { return nil }
func (Noop) RowCount(context.Context, string, string, string) (int64, error) {
	return -1, nil
}

var _ Catalog = (*Client)(nil)
var _ Catalog = Noop{}
