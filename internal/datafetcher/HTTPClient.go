package datafetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	MAX_RETRIES     = 3
	TIMEOUT_SECONDS = 30
)

var (
	ErrUpstreamNotFound = errors.New("upstream resource not found")
	ErrAPIConfiguration = errors.New("API configuration error")
)

// RetryBackoff is the base delay between attempts; attempt n waits n*RetryBackoff.
var RetryBackoff = time.Second

// StatusError is a non-2xx upstream answer.
type StatusError struct {
	API    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.API, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamNotFound && e.Status == http.StatusNotFound
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: TIMEOUT_SECONDS * time.Second}
}

// apiRequest describes one upstream JSON call.
type apiRequest struct {
	api     string
	method  string
	url     string
	headers map[string]string
	body    interface{}
}

// doJSON performs req and decodes the response into out. Transport errors and 5xx
// answers are retried with a linear backoff; other statuses fail at once.
func doJSON(ctx context.Context, client *http.Client, log zerolog.Logger, req apiRequest, out interface{}) error {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return fmt.Errorf("encode %s request: %w", req.api, err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		retry, err := doOnce(ctx, client, req, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == MAX_RETRIES {
			break
		}

		log.Warn().
			Err(err).
			Str("api", req.api).
			Int("attempt", attempt).
			Int("maxRetries", MAX_RETRIES).
			Msg("Upstream request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * RetryBackoff):
		}
	}
	return lastErr
}

func doOnce(ctx context.Context, client *http.Client, req apiRequest, payload []byte, out interface{}) (retry bool, err error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return false, fmt.Errorf("build %s request: %w", req.api, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("%s request failed: %w", req.api, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return true, fmt.Errorf("read %s response: %w", req.api, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return resp.StatusCode >= 500, &StatusError{API: req.api, Status: resp.StatusCode, Body: snippet}
	}
	if len(raw) == 0 {
		return true, fmt.Errorf("empty %s response body", req.api)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("parse %s response: %w", req.api, err)
	}
	return false, nil
}
