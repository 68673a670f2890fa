package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout = 30 * time.Second
	errorBodyLimit = 512
)

// statusError carries a non-2xx response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.status, e.body)
}

func (e *statusError) Unwrap() error { return ErrHTTPStatus }

// jsonTransport posts JSON bodies over fasthttp. It performs exactly one
// attempt per call.
type jsonTransport struct {
	http    *fasthttp.Client
	timeout time.Duration
}

func newJSONTransport(client *fasthttp.Client, timeout time.Duration) *jsonTransport {
	if client == nil {
		client = &fasthttp.Client{
			ReadTimeout:     defaultTimeout,
			WriteTimeout:    defaultTimeout,
			MaxConnsPerHost: 32,
		}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &jsonTransport{http: client, timeout: timeout}
}

func (t *jsonTransport) postJSON(ctx context.Context, url string, headers map[string]string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	for k, v := range headers {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.http.DoDeadline(req, resp, t.deadline(ctx)); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return &statusError{status: status, body: truncate(string(resp.Body()), errorBodyLimit)}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (t *jsonTransport) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(t.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
