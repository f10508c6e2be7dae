package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Domain contains core models shared by the archiver components.

// PostID is the numeric identifier of a post. Ids grow monotonically per account and
// are compared numerically; int64 covers the full range the source ecosystem emits.
type PostID int64

// NoPostID is the watermark held before any post has been archived.
const NoPostID PostID = -1

// ParsePostID parses the decimal wire form of a post id.
func ParsePostID(raw string) (PostID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoPostID, fmt.Errorf("post id is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return NoPostID, fmt.Errorf("parse post id %q: %w", raw, err)
	}
	return PostID(v), nil
}

func (id PostID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Account is a watched account.
type Account struct {
	ID     string `json:"id" yaml:"id"`
	Handle string `json:"handle" yaml:"handle"`
}

// Post is a single post by a watched (or unwatched) account.
type Post struct {
	ID        PostID    `json:"id"`
	AccountID string    `json:"account_id"`
	Handle    string    `json:"handle"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// PostURLs returns the canonical post URL in http and https form, in that order.
func PostURLs(host, handle string, id PostID) []string {
	path := fmt.Sprintf("%s/%s/status/%s", host, handle, id)
	return []string{"http://" + path, "https://" + path}
}
