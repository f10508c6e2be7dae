package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/pkg/httpclient"
)

const (
	defaultStallTimeout = 90 * time.Second
	maxMessageSize      = 1 << 20
	errorBodyLimit      = 512
	// statusEnhanceYourCalm is the streaming endpoint's rate-limit status.
	statusEnhanceYourCalm = 420
)

// HTTPTransport reads a newline-delimited JSON filter stream over a long-lived POST.
type HTTPTransport struct {
	url          string
	token        string
	client       httpclient.StreamClient
	stallTimeout time.Duration
	log          logger.Logger
}

// NewHTTPTransport builds a transport for streamURL. client defaults to a resty client
// without an overall timeout; stallTimeout bounds silence between lines.
func NewHTTPTransport(streamURL, bearerToken string, client httpclient.StreamClient, stallTimeout time.Duration, log logger.Logger) (*HTTPTransport, error) {
	streamURL = strings.TrimSpace(streamURL)
	if streamURL == "" {
		return nil, fmt.Errorf("stream url is empty")
	}
	if client == nil {
		client = httpclient.NewRestyClient(0)
	}
	if stallTimeout <= 0 {
		stallTimeout = defaultStallTimeout
	}
	return &HTTPTransport{
		url:          streamURL,
		token:        strings.TrimSpace(bearerToken),
		client:       client,
		stallTimeout: stallTimeout,
		log:          logger.Ensure(log),
	}, nil
}

// Subscribe implements Transport.
func (t *HTTPTransport) Subscribe(ctx context.Context, follow []string, h Handler) error {
	if len(follow) == 0 {
		return fmt.Errorf("no accounts to follow")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	form := map[string]string{
		"follow":         strings.Join(follow, ","),
		"stall_warnings": "true",
	}
	resp, err := t.client.Stream(streamCtx, http.MethodPost, t.url, t.headers(), form)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: connect: %v", ErrTransient, err)
	}
	body := resp.Body()
	defer body.Close()

	if status := resp.StatusCode(); status != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		h.OnError(ctx, status, strings.TrimSpace(string(excerpt)))
		if transientStatus(status) {
			return fmt.Errorf("%w: stream returned status %d", ErrTransient, status)
		}
		return fmt.Errorf("stream returned status %d", status)
	}

	if ch, ok := h.(ConnectHandler); ok {
		ch.OnConnect(ctx)
	}

	var stalled atomic.Bool
	stall := time.AfterFunc(t.stallTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer stall.Stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	// Silence is measured only while waiting on the wire, not while a handler
	// is archiving a post.
	for scanner.Scan() {
		stall.Stop()
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			t.deliver(ctx, line, h)
		}
		stall.Reset(t.stallTimeout)
	}
	readErr := scanner.Err()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case stalled.Load():
		return fmt.Errorf("%w: no data for %s", ErrTransient, t.stallTimeout)
	case readErr != nil:
		return fmt.Errorf("%w: read stream: %v", ErrTransient, readErr)
	default:
		return fmt.Errorf("%w: stream closed by server", ErrTransient)
	}
}

func (t *HTTPTransport) deliver(ctx context.Context, line []byte, h Handler) {
	evt, control, err := ParseEvent(line)
	if err != nil {
		t.log.WarnObj("skipping malformed stream message", "stream_message", map[string]any{
			"error": err.Error(),
			"size":  len(line),
		})
		return
	}
	if control != "" {
		t.log.DebugObj("stream control message", "stream_control", map[string]any{
			"kind":    control,
			"message": string(line),
		})
		return
	}
	h.OnPost(ctx, evt)
}

func (t *HTTPTransport) headers() map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if t.token != "" {
		headers["Authorization"] = "Bearer " + t.token
	}
	return headers
}

func transientStatus(status int) bool {
	return status == statusEnhanceYourCalm || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
