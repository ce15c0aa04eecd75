package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) AccountSnapshot(ctx context.Context, accountID int64) (AccountSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/accounts/%d/snapshot", accountID))
	if err != nil {
		return AccountSnapshot{}, err
	}
	var snap AccountSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return AccountSnapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

func (c *Client) RevokeDelegation(ctx context.Context, accountID int64) error {
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/accounts/%d/delegate", accountID))
	return err
}
