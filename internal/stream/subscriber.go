package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/post-archiver/internal/archiver"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/pkg/accounts"
)

const defaultReconnectDelay = 15 * time.Second

// Options tunes the subscriber.
type Options struct {
	ReconnectDelay time.Duration
	// OnState, when set, observes every state transition.
	OnState func(State)
}

// Subscriber follows the watched accounts live and archives every post they author.
type Subscriber struct {
	transport Transport
	accounts  *accounts.Registry
	archiver  archiver.Archiver
	log       logger.Logger
	opts      Options

	mu    sync.Mutex
	state State
}

// NewSubscriber wires a live subscriber.
func NewSubscriber(t Transport, reg *accounts.Registry, arch archiver.Archiver, log logger.Logger, opts Options) (*Subscriber, error) {
	if t == nil {
		return nil, fmt.Errorf("stream transport is nil")
	}
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("no watched accounts")
	}
	if arch == nil {
		return nil, fmt.Errorf("archiver is nil")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Subscriber{
		transport: t,
		accounts:  reg,
		archiver:  arch,
		log:       logger.Ensure(log),
		opts:      opts,
		state:     Disconnected,
	}, nil
}

// State reports the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run keeps a subscription open until ctx is cancelled, reconnecting after every
// failure once the reconnect delay has passed. It returns nil on shutdown.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.setState(Terminated)

	follow := s.accounts.IDs()
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(Connecting)
		s.log.InfoObj("subscribing to live posts", "stream_subscribe", map[string]any{
			"follow": follow,
		})
		err := s.transport.Subscribe(ctx, follow, s)
		if ctx.Err() != nil {
			s.log.InfoObj("live subscription stopped", "stream_state", Terminated.String())
			return nil
		}

		s.setState(Disconnected)
		payload := map[string]any{
			"retry_in": s.opts.ReconnectDelay.String(),
		}
		if err != nil {
			payload["error"] = err.Error()
		}
		if err == nil || errors.Is(err, ErrTransient) {
			s.log.WarnObj("live subscription interrupted", "stream_disconnect", payload)
		} else {
			s.log.ErrorObj("live subscription failed", "stream_disconnect", payload)
		}

		timer := time.NewTimer(s.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// OnConnect implements ConnectHandler.
func (s *Subscriber) OnConnect(context.Context) {
	s.setState(Streaming)
}

// OnPost archives posts authored by a watched account and drops everything else,
// such as replies to or retweets of watched accounts by others.
func (s *Subscriber) OnPost(ctx context.Context, evt Event) {
	acc, ok := s.accounts.ByID(evt.AuthorID)
	if !ok {
		s.log.DebugObj("ignoring post from unwatched author", "stream_post", map[string]any{
			"author_id": evt.AuthorID,
			"post_id":   evt.ID.String(),
		})
		return
	}
	s.archiver.Archive(ctx, acc.Handle, evt.ID, evt.Text)
}

// OnError implements Handler.
func (s *Subscriber) OnError(_ context.Context, status int, body string) {
	s.log.ErrorObj("live subscription refused", "stream_error", map[string]any{
		"status": status,
		"body":   body,
	})
}

func (s *Subscriber) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.opts.OnState != nil {
		s.opts.OnState(next)
	}
}
