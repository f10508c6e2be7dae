package timeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/pkg/httpclient"
)

// Lister lists an account's posts newest first.
type Lister interface {
	// UserTimeline returns at most count posts by handle, newest first. When maxID is
	// not domain.NoPostID only posts with id <= maxID are returned.
	UserTimeline(ctx context.Context, handle string, count int, maxID domain.PostID) ([]domain.Post, error)
}

// MaxPageSize is the largest page the timeline endpoint serves.
const MaxPageSize = 200

// HTTPClient aliases the shared httpclient.Client interface for clarity within timeline.
type HTTPClient = httpclient.Client

// Client calls the REST user timeline endpoint.
type Client struct {
	baseURL string
	token   string
	http    HTTPClient
	log     logger.Logger
}

// NewClient builds a timeline client for baseURL, e.g. https://api.twitter.com/1.1.
func NewClient(baseURL, bearerToken string, client HTTPClient, log logger.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("timeline base url is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse timeline base url: %w", err)
	}
	if client == nil {
		client = httpclient.NewRestyClient(15 * time.Second)
	}
	return &Client{baseURL: baseURL, token: strings.TrimSpace(bearerToken), http: client, log: logger.Ensure(log)}, nil
}

// UserTimeline implements Lister.
func (c *Client) UserTimeline(ctx context.Context, handle string, count int, maxID domain.PostID) ([]domain.Post, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, fmt.Errorf("handle is empty")
	}
	if count <= 0 || count > MaxPageSize {
		count = MaxPageSize
	}

	q := url.Values{}
	q.Set("screen_name", handle)
	q.Set("count", strconv.Itoa(count))
	q.Set("include_rts", "true")
	q.Set("tweet_mode", "extended")
	if maxID != domain.NoPostID {
		q.Set("max_id", maxID.String())
	}
	endpoint := c.baseURL + "/statuses/user_timeline.json?" + q.Encode()

	resp, err := c.http.Get(ctx, endpoint, c.headers())
	if err != nil {
		return nil, fmt.Errorf("fetch %s timeline: %w", handle, err)
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s timeline returned status %d body: %s", handle, resp.StatusCode(), responseSnippet(body))
	}

	posts, skipped, err := DecodeStatuses(body)
	if err != nil {
		return nil, fmt.Errorf("%s timeline: %w", handle, err)
	}
	for _, e := range skipped {
		c.log.WarnObj("skipping malformed timeline status", "timeline_status", map[string]any{
			"handle": handle,
			"error":  e.Error(),
		})
	}
	return posts, nil
}

func (c *Client) headers() map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}
	return headers
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
