package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the HTTP implementation of Service. It speaks plain JSON REST:
//
//	GET    {base}/{collection}?field=value
//	GET    {base}/{collection}/{id}
//	POST   {base}/{collection}
//	PATCH  {base}/{collection}/{id}
//	DELETE {base}/{collection}/{id}
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a remote HTTP client. The timeout applies per request and
// is the implicit timeout every replayed action inherits.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// List implements Service.
func (c *Client) List(ctx context.Context, collection string, filter map[string]string) ([]json.RawMessage, error) {
	endpoint := c.base + "/" + collection
	if len(filter) > 0 {
		q := url.Values{}
		for k, v := range filter {
			q.Set(k, v)
		}
		endpoint += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, Unavailable(fmt.Errorf("malformed list response: %w", err))
	}
	return docs, nil
}

// Get implements Service.
func (c *Client) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.base+"/"+collection+"/"+url.PathEscape(id), nil)
}

// Create implements Service.
func (c *Client) Create(ctx context.Context, collection string, body json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.base+"/"+collection, body)
}

// Update implements Service.
func (c *Client) Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, c.base+"/"+collection+"/"+url.PathEscape(id), patch)
}

// Delete implements Service.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.base+"/"+collection+"/"+url.PathEscape(id), nil)
	return err
}

// do performs one request and classifies the outcome.
func (c *Client) do(ctx context.Context, method, endpoint string, body json.RawMessage) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, Unavailable(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures and timeouts are connectivity-class.
		return nil, Unavailable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, Unavailable(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		// Retryable server-side conditions count as unavailability.
		return nil, Unavailable(fmt.Errorf("remote returned %d", resp.StatusCode))
	default:
		return nil, Rejection(resp.StatusCode, rejectionMessage(data))
	}
}

// rejectionMessage pulls a human-readable message out of an error response.
func rejectionMessage(data []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	if len(data) > 0 && len(data) < 200 {
		return string(data)
	}
	return "request rejected"
}
