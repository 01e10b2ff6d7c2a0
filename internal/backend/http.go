package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TokenSource supplies the current access token for outgoing requests.
// An empty token means the request goes out with only the anon key.
type TokenSource interface {
	AccessToken() string
}

// errorBody is the error envelope the row API returns on failure.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// uniqueViolation is the SQL state the backend reports for
// unique-constraint conflicts.
const uniqueViolation = "23505"

// httpAPI is a thin HTTP client for the backend's row API. It handles
// bearer-token authentication, JSON marshaling, and automatic retry
// with exponential backoff on HTTP 429.
type httpAPI struct {
	baseURL    string
	anonKey    string
	tokens     TokenSource
	httpClient *http.Client
	maxRetries int
}

func newHTTPAPI(baseURL, anonKey string, tokens TokenSource) *httpAPI {
	return &httpAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// getRows performs a GET against a table path and unmarshals the JSON
// array response.
func (c *httpAPI) getRows(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, result)
}

// insert performs a POST with a JSON body. When result is non-nil the
// request asks for the inserted representation back.
func (c *httpAPI) insert(ctx context.Context, path string, body, result interface{}) error {
	headers := map[string]string{"Prefer": "return=minimal"}
	if result != nil {
		headers["Prefer"] = "return=representation"
	}
	return c.do(ctx, http.MethodPost, path, headers, body, result)
}

// upsert performs a POST that merges on conflict instead of failing.
func (c *httpAPI) upsert(ctx context.Context, path string, body interface{}) error {
	headers := map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	}
	return c.do(ctx, http.MethodPost, path, headers, body, nil)
}

// patch performs a PATCH against a filtered table path.
func (c *httpAPI) patch(ctx context.Context, path string, body interface{}) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, nil)
}

// delete performs a DELETE against a filtered table path.
func (c *httpAPI) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// count performs a count-only query: no rows are transferred, the total
// comes back in the Content-Range header.
func (c *httpAPI) count(ctx context.Context, path string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodHead, path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing count %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return 0, &AuthError{Message: "access token rejected"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d on count %s", resp.StatusCode, path)
	}

	// Content-Range looks like "0-24/57" or "*/57".
	cr := resp.Header.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q for %s", cr, path)
	}
	total, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("parsing count from Content-Range %q: %w", cr, err)
	}
	return total, nil
}

func (c *httpAPI) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	token := c.anonKey
	if c.tokens != nil {
		if t := c.tokens.AccessToken(); t != "" {
			token = t
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *httpAPI) do(
	ctx context.Context,
	method string,
	path string,
	headers map[string]string,
	body interface{},
	result interface{},
) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := c.newRequest(ctx, method, path, bodyReader)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &AuthError{Message: fmt.Sprintf("401 on %s %s", method, path)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr errorBody
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
				if apiErr.Code == uniqueViolation || resp.StatusCode == http.StatusConflict {
					return &DuplicateError{Table: tableFromPath(path), Message: apiErr.Message}
				}
				return fmt.Errorf(
					"backend error (%d) on %s %s: %s",
					resp.StatusCode, method, path, apiErr.Message,
				)
			}
			if resp.StatusCode == http.StatusConflict {
				return &DuplicateError{Table: tableFromPath(path), Message: string(respBody)}
			}
			return fmt.Errorf(
				"unexpected status %d on %s %s: %s",
				resp.StatusCode, method, path, string(respBody),
			)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("giving up after %d retries: %w", c.maxRetries, lastErr)
}

// retryAfterDuration returns how long to wait before retrying a
// rate-limited request, honoring the Retry-After header when present.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<attempt) * time.Second
}

// tableFromPath extracts the table name from a row API path such as
// "/rest/v1/profiles?id=eq.123".
func tableFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, restPrefix+"/")
	if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
