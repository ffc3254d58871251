package syncapi

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
	"time"

	"github.com/avast/retry-go/v4"

	"nextup/models"
)

// ErrUnauthorized is returned when the bearer credential is missing, expired
// or rejected by the sync server.
var ErrUnauthorized = errors.New("sync server rejected credentials")

// Client talks to another nextup instance's sync API, using it as the remote
// authoritative tier. Every request carries the bearer session token issued
// at sign-in.
type Client struct {
	baseURL string
	httpc   *http.Client

	tokenFn func() string
}

// NewClient creates a sync API client. tokenFn is called per request so a
// re-issued session token is picked up without rebuilding the client.
func NewClient(baseURL string, tokenFn func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		tokenFn: tokenFn,
	}
}

// FetchRows returns all compact rows the server holds for the user.
func (c *Client) FetchRows(ctx context.Context, userKey string) ([]models.SyncSummary, error) {
	var rows []models.SyncSummary
	if err := c.do(ctx, http.MethodGet, c.rowsURL(userKey), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertRows replaces-or-inserts one row per summary.
func (c *Client) UpsertRows(ctx context.Context, userKey string, rows []models.SyncSummary) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	return c.do(ctx, http.MethodPut, c.rowsURL(userKey), body, nil)
}

// DeleteRow removes a single row from the server.
func (c *Client) DeleteRow(ctx context.Context, userKey, showID string) error {
	return c.do(ctx, http.MethodDelete, c.rowsURL(userKey)+"/"+url.PathEscape(showID), nil, nil)
}

func (c *Client) rowsURL(userKey string) string {
	return c.baseURL + "/api/sync/" + url.PathEscape(userKey) + "/shows"
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, v any) error {
	return retry.Do(
		func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, u, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if token := c.tokenFn(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return retry.Unrecoverable(ErrUnauthorized)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return fmt.Errorf("sync %s %s failed: %s: %s", method, u, resp.Status, strings.TrimSpace(string(msg)))
			case resp.StatusCode >= 300:
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return retry.Unrecoverable(fmt.Errorf("sync %s %s failed: %s: %s", method, u, resp.Status, strings.TrimSpace(string(msg))))
			}

			if v == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
