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

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/version"
)

// Client posts JSON bodies and decodes JSON replies. Requests are attempted
// exactly once; a failed call fails the invocation.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  version.UserAgent(),
	}
}

// PostJSON marshals body, posts it to url and decodes the reply into out.
// Non-2xx replies are still decoded when they carry a JSON body, since
// JSON-RPC servers report method errors with 4xx/5xx status codes.
func (c *Client) PostJSON(ctx context.Context, url string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapNetError(err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return clierr.Wrap(clierr.CodeRPC, "read node response", readErr)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return clierr.New(clierr.CodeRPC, fmt.Sprintf("node returned status %d", resp.StatusCode))
		}
		return clierr.New(clierr.CodeRPC, "node returned empty response")
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return clierr.New(clierr.CodeRPC, fmt.Sprintf("node returned status %d", resp.StatusCode))
		}
		return clierr.Wrap(clierr.CodeRPC, "decode node JSON", err)
	}
	return nil
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeRPC, "node request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return clierr.Wrap(clierr.CodeRPC, "node request timed out", err)
	}
	return clierr.Wrap(clierr.CodeRPC, "node request failed", err)
}
