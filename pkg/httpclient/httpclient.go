package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var errServerStatus = errors.New("server returned 5xx status")

// HttpRequest is a struct to hold request parameters
type HttpRequest struct {
	URL     string
	Method  string
	Body    []byte
	Headers map[string]string
}

// Client sends requests to collaborator services. Transport errors and 5xx
// responses count as breaker failures; 4xx responses are returned to the
// caller untouched since they carry business rejections.
type Client struct {
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
}

func CreateClient(timeout time.Duration, cb *gobreaker.CircuitBreaker[[]byte]) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: cb,
	}
}

// SendRequest sends an HTTP request based on the given HttpRequest struct
func (c *Client) SendRequest(ctx context.Context, req HttpRequest) (int, []byte, error) {
	var statusCode int

	body, err := c.cb.Execute(func() ([]byte, error) {
		code, body, err := c.do(ctx, req)
		statusCode = code
		if err != nil {
			return nil, err
		}
		if code >= http.StatusInternalServerError {
			return body, errServerStatus
		}
		return body, nil
	})
	if errors.Is(err, errServerStatus) {
		return statusCode, body, nil
	}
	if err != nil {
		return statusCode, nil, err
	}

	return statusCode, body, nil
}

func (c *Client) do(ctx context.Context, req HttpRequest) (int, []byte, error) {
	request, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewBuffer(req.Body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.Headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return response.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return response.StatusCode, body, nil
}
