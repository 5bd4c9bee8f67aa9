package target

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"multipush/internal/model"
	"multipush/internal/push"
)

// HTTPTarget uploads content to an HTTP content-hosting API. Each instance
// authenticates with one account's bearer token via an oauth2 static token
// source, so per-credential rate limits apply per instance.
type HTTPTarget struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTarget creates an HTTPTarget for the given API base URL and token.
func NewHTTPTarget(baseURL, token string) *HTTPTarget {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = 2 * time.Minute

	return &HTTPTarget{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// PutContent PUTs the payload at baseURL/path. The remote applies idempotent
// overwrite semantics, so re-uploading the same path is safe.
func (t *HTTPTarget) PutContent(ctx context.Context, path string, r io.Reader, size int64) (*push.PutResult, error) {
	url := t.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		// Transport-level failure; the worker treats unclassified errors
		// as transient.
		return nil, fmt.Errorf("uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	rl := parseRateLimit(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &push.PutResult{StatusCode: resp.StatusCode, RateLimit: rl}, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &push.UploadError{
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		RateLimit:  rl,
	}
}

// ValidateSetup verifies the API is reachable and the token is accepted.
func (t *HTTPTarget) ValidateSetup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("target not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("target rejected credentials (status %d)", resp.StatusCode)
	}
	return nil
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) model.ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return model.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrAuth
	case http.StatusConflict, http.StatusPreconditionFailed:
		return model.ErrConflict
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return model.ErrPermanentContent
	default:
		// 408, 425, and the 5xx family are all worth retrying.
		return model.ErrTransientNetwork
	}
}

// parseRateLimit extracts rate-limit telemetry from a response.
// It reads the X-RateLimit-Remaining / X-RateLimit-Reset pair first and
// falls back to Retry-After (seconds or HTTP date) for the reset time.
// Returns nil when the response carries no telemetry.
func parseRateLimit(resp *http.Response) *model.RateLimit {
	if resp == nil {
		return nil
	}

	var rl model.RateLimit
	found := false

	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rl.Remaining = n
			found = true
		}
	}

	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		// Unix epoch seconds.
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			rl.ResetAt = time.Unix(sec, 0)
			found = true
		}
	} else if v := resp.Header.Get("Retry-After"); v != "" {
		// Try seconds
		if seconds, err := strconv.Atoi(v); err == nil {
			rl.ResetAt = time.Now().Add(time.Duration(seconds) * time.Second)
			found = true
		} else if t, err := http.ParseTime(v); err == nil {
			// Try HTTP date
			rl.ResetAt = t
			found = true
		}
	}

	if !found {
		return nil
	}
	return &rl
}

// Compile-time check that HTTPTarget implements push.Target
var _ push.Target = (*HTTPTarget)(nil)
