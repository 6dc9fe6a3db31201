package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/payload"
	"github.com/ggonzalez94/defi-agent/internal/version"
)

// Client performs a single JSON request per call. Failed calls are surfaced
// immediately; the caller decides whether to ask the user to retry.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  version.UserAgent(),
	}
}

// DoJSON executes req, checks the body against shape and decodes it into out.
// Transport and status failures map to API error codes, shape mismatches and
// undecodable bodies map to CodeDataFormat.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, shape payload.Shape, out any) (http.Header, error) {
	buf, header, err := c.do(ctx, req)
	if err != nil {
		return header, err
	}
	if out == nil {
		return header, nil
	}
	if err := shape.Validate(buf); err != nil {
		return header, clierr.Wrap(clierr.CodeDataFormat, "unexpected provider payload", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return header, clierr.Wrap(clierr.CodeDataFormat, "decode provider JSON", err)
	}
	return header, nil
}

// GetJSON is the common GET form of DoJSON.
func (c *Client) GetJSON(ctx context.Context, url string, shape payload.Shape, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	_, err = c.DoJSON(ctx, req, shape, out)
	return err
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, mapNetError(ctx, err)
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.Header, clierr.Wrap(clierr.CodeUnavailable, "read provider response", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.Header, clierr.New(clierr.CodeRateLimited, "provider rate limited request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.Header, clierr.New(clierr.CodeAuth, "provider authentication failed")
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.Header, clierr.New(clierr.CodeNotFound, "provider has no record for request")
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, resp.Header, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("provider unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, resp.Header, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("provider returned unexpected status %d", resp.StatusCode))
	}
	return buf, resp.Header, nil
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, shape payload.Shape, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, shape, out)
}

func mapNetError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return clierr.Wrap(clierr.CodeTimeout, "provider timeout", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeTimeout, "provider timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "provider request failed", err)
}
