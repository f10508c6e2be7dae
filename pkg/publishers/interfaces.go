package publishers

import "context"

// Publisher sends archived-post events to a downstream sink (SQS, SNS, HTTP, Pub/Sub).
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Selective publishers only want some events; Fanout skips the rest.
type Selective interface {
	Accepts(evt Event) bool
}
