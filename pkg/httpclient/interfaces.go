package httpclient

import (
	"context"
	"io"
)

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// DrainResult describes a response whose body was read to completion and discarded.
type DrainResult struct {
	StatusCode int
	Bytes      int64
}

// StreamResponse is an open response whose body the caller reads incrementally and
// must close.
type StreamResponse interface {
	StatusCode() int
	Body() io.ReadCloser
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	// Drain issues a GET and reads the whole body before returning. Services that
	// perform work while streaming a response have finished once Drain returns nil.
	Drain(ctx context.Context, url string, headers map[string]string) (DrainResult, error)
}

// StreamClient opens long-lived responses.
type StreamClient interface {
	Stream(ctx context.Context, method, url string, headers, form map[string]string) (StreamResponse, error)
}
