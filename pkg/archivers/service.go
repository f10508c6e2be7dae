package archivers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/samvad-hq/post-archiver/pkg/httpclient"
)

// Service submits URLs to one external archive.
type Service interface {
	ID() string
	Type() string
	// Target returns the submission URL for postURL.
	Target(postURL string) string
	// SubmitAndAwaitCompletion requests a snapshot of postURL and reads the response
	// body to its end. Archives may capture lazily while the body streams, so the
	// submission is complete only when this returns.
	SubmitAndAwaitCompletion(ctx context.Context, postURL string) (Submission, error)
}

// Submission is the outcome of one drained archive request.
type Submission struct {
	ServiceID  string `json:"service_id"`
	Target     string `json:"target"`
	StatusCode int    `json:"status_code"`
	Bytes      int64  `json:"bytes"`
}

// StatusError reports a non-success status from an archive service.
type StatusError struct {
	ServiceID string
	Code      int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archiver %s returned status %d", e.ServiceID, e.Code)
}

// Temporary reports whether retrying the submission may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type prefixService struct {
	id      string
	typ     string
	prefix  string
	escape  bool
	headers map[string]string
	client  httpclient.Client
}

func newPrefixService(cfg ServiceConfig) (Service, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("archiver %q missing prefix", cfg.ID)
	}
	client := httpclient.NewRestyClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	return newPrefixServiceWithClient(cfg, client), nil
}

func newPrefixServiceWithClient(cfg ServiceConfig, client httpclient.Client) *prefixService {
	return &prefixService{
		id:      cfg.ID,
		typ:     cfg.Type,
		prefix:  cfg.Prefix,
		escape:  cfg.Type == TypeArchiveToday,
		headers: cfg.Headers,
		client:  client,
	}
}

func (p *prefixService) ID() string   { return p.id }
func (p *prefixService) Type() string { return p.typ }

func (p *prefixService) Target(postURL string) string {
	if p.escape {
		return p.prefix + url.QueryEscape(postURL)
	}
	return p.prefix + postURL
}

func (p *prefixService) SubmitAndAwaitCompletion(ctx context.Context, postURL string) (Submission, error) {
	target := p.Target(postURL)
	sub := Submission{ServiceID: p.id, Target: target}

	res, err := p.client.Drain(ctx, target, p.headers)
	sub.StatusCode = res.StatusCode
	sub.Bytes = res.Bytes
	if err != nil {
		return sub, fmt.Errorf("archiver %s submit %s: %w", p.id, target, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return sub, &StatusError{ServiceID: p.id, Code: res.StatusCode}
	}
	return sub, nil
}
