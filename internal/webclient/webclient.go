package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient is the minimal HTTP transport contract shared by the outbound
// API clients (identity provider, text-generation endpoint).
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}

// Config holds construction options for a WebClient backend.
type Config struct {
	// Timeout applies to each request when no *http.Client is supplied.
	// Zero means the 30s default.
	Timeout time.Duration
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}
