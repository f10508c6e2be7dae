package publishers

import (
	"time"
)

// Outcome summarises how a post's submissions went.
const (
	OutcomeArchived = "archived"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
)

// Attempt is one archive submission made for a post.
type Attempt struct {
	ServiceID  string `json:"service_id"`
	Target     string `json:"target"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Event is published once a post has been submitted to every archive service.
// PostID is a decimal string so consumers with 53-bit numbers do not lose precision.
type Event struct {
	AccountHandle string    `json:"account_handle"`
	PostID        string    `json:"post_id"`
	PostURLs      []string  `json:"post_urls"`
	Attempts      []Attempt `json:"attempts"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// NewEvent constructs an Event and tallies the attempt outcomes.
func NewEvent(handle, postID string, urls []string, attempts []Attempt) Event {
	evt := Event{
		AccountHandle: handle,
		PostID:        postID,
		PostURLs:      urls,
		Attempts:      attempts,
		ArchivedAt:    time.Now().UTC(),
	}
	for _, a := range attempts {
		if a.Error == "" {
			evt.Succeeded++
		} else {
			evt.Failed++
		}
	}
	return evt
}

// Outcome returns archived when every attempt succeeded, failed when none did and
// partial otherwise.
func (e Event) Outcome() string {
	switch {
	case e.Failed == 0:
		return OutcomeArchived
	case e.Succeeded == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// DedupKey identifies the post across redeliveries.
func (e Event) DedupKey() string {
	return e.AccountHandle + "-" + e.PostID
}

// Attributes are the routing attributes attached to every published message.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"account_handle": e.AccountHandle,
		"post_id":        e.PostID,
		"outcome":        e.Outcome(),
	}
}
