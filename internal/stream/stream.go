package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/pkg/timeline"
)

// ErrTransient marks subscription failures worth reconnecting after: truncated reads,
// stalls, dropped connections and throttling statuses.
var ErrTransient = errors.New("transient stream failure")

// State is the lifecycle position of a Subscriber.
type State int

const (
	Connecting State = iota
	Streaming
	Disconnected
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a post delivered on the live subscription.
type Event struct {
	ID       domain.PostID
	AuthorID string
	Handle   string
	Text     string
}

// Handler receives what a Transport reads off the wire.
type Handler interface {
	OnPost(ctx context.Context, evt Event)
	// OnError is called with the status and a body excerpt when the subscription
	// request is refused.
	OnError(ctx context.Context, status int, body string)
}

// ConnectHandler is implemented by handlers that want to know when the subscription
// request was accepted.
type ConnectHandler interface {
	OnConnect(ctx context.Context)
}

// Transport opens a subscription filtered to the follow ids and blocks until it ends.
// It returns an error wrapping ErrTransient when reconnecting may help, and nil or
// ctx.Err() once ctx is cancelled.
type Transport interface {
	Subscribe(ctx context.Context, follow []string, h Handler) error
}

type wireMessage struct {
	timeline.Status
	Delete     json.RawMessage `json:"delete"`
	Limit      json.RawMessage `json:"limit"`
	Warning    json.RawMessage `json:"warning"`
	Disconnect json.RawMessage `json:"disconnect"`
}

// ParseEvent decodes one newline-delimited message. Control messages (delete, limit,
// warning, disconnect) carry no post; their kind is returned in control instead.
func ParseEvent(line []byte) (evt Event, control string, err error) {
	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Event{}, "", fmt.Errorf("decode stream message: %w", err)
	}
	if msg.IDStr == "" {
		if kind := msg.controlKind(); kind != "" {
			return Event{}, kind, nil
		}
		return Event{}, "", fmt.Errorf("stream message has no post id")
	}

	post, err := msg.Post()
	if err != nil {
		return Event{}, "", err
	}
	return Event{
		ID:       post.ID,
		AuthorID: post.AccountID,
		Handle:   post.Handle,
		Text:     post.Text,
	}, "", nil
}

func (m wireMessage) controlKind() string {
	switch {
	case len(m.Delete) > 0:
		return "delete"
	case len(m.Limit) > 0:
		return "limit"
	case len(m.Warning) > 0:
		return "warning"
	case len(m.Disconnect) > 0:
		return "disconnect"
	default:
		return ""
	}
}
