package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a new RestyClient with the specified timeout. A zero
// timeout leaves requests bounded only by their context, which streams need.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return &RestyClient{client: newRestyBaseClient(timeout)}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// Drain performs a GET and consumes the body without buffering it.
func (r *RestyClient) Drain(ctx context.Context, url string, headers map[string]string) (DrainResult, error) {
	req := r.client.R().SetContext(ctx).SetDoNotParseResponse(true)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		closeRaw(resp)
		return DrainResult{}, err
	}

	body := resp.RawBody()
	if body == nil {
		return DrainResult{StatusCode: resp.StatusCode()}, nil
	}
	defer body.Close()

	n, err := io.Copy(io.Discard, body)
	result := DrainResult{StatusCode: resp.StatusCode(), Bytes: n}
	if err != nil {
		return result, fmt.Errorf("drain response body: %w", err)
	}
	return result, nil
}

// Stream opens a request whose body is handed to the caller unread.
func (r *RestyClient) Stream(ctx context.Context, method, url string, headers, form map[string]string) (StreamResponse, error) {
	req := r.client.R().SetContext(ctx).SetDoNotParseResponse(true)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if len(form) > 0 {
		req.SetFormData(form)
	}
	if method == "" {
		method = http.MethodGet
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		closeRaw(resp)
		return nil, err
	}
	return &restyStreamAdapter{resp: resp}, nil
}

func closeRaw(resp *resty.Response) {
	if resp == nil {
		return
	}
	if body := resp.RawBody(); body != nil {
		body.Close()
	}
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte    { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int { return r.resp.StatusCode() }

type restyStreamAdapter struct {
	resp *resty.Response
}

func (r *restyStreamAdapter) StatusCode() int { return r.resp.StatusCode() }

func (r *restyStreamAdapter) Body() io.ReadCloser {
	if body := r.resp.RawBody(); body != nil {
		return body
	}
	return io.NopCloser(http.NoBody)
}
