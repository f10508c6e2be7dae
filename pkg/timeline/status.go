package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/post-archiver/internal/domain"
)

const createdAtLayout = time.RubyDate

// Status is the wire form of a post shared by the timeline and streaming endpoints.
type Status struct {
	IDStr     string `json:"id_str"`
	Text      string `json:"text"`
	FullText  string `json:"full_text"`
	CreatedAt string `json:"created_at"`
	User      struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
}

// Post converts the wire status into a domain post.
func (s Status) Post() (domain.Post, error) {
	id, err := domain.ParsePostID(s.IDStr)
	if err != nil {
		return domain.Post{}, err
	}
	if strings.TrimSpace(s.User.IDStr) == "" {
		return domain.Post{}, fmt.Errorf("post %s has no author id", s.IDStr)
	}

	text := s.FullText
	if text == "" {
		text = s.Text
	}

	post := domain.Post{
		ID:        id,
		AccountID: strings.TrimSpace(s.User.IDStr),
		Handle:    strings.TrimSpace(s.User.ScreenName),
		Text:      text,
	}
	if ts, err := time.Parse(createdAtLayout, s.CreatedAt); err == nil {
		post.CreatedAt = ts.UTC()
	}
	return post, nil
}

// DecodeStatuses decodes a JSON array of statuses into posts, preserving order.
// Entries that cannot be converted are left out and reported in skipped. A page
// whose every entry is unusable is an error, since an empty page means the
// history is exhausted.
func DecodeStatuses(data []byte) (posts []domain.Post, skipped []error, err error) {
	var raw []Status
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode statuses: %w", err)
	}
	posts = make([]domain.Post, 0, len(raw))
	for i, st := range raw {
		post, err := st.Post()
		if err != nil {
			skipped = append(skipped, fmt.Errorf("status[%d]: %w", i, err))
			continue
		}
		posts = append(posts, post)
	}
	if len(raw) > 0 && len(posts) == 0 {
		return nil, skipped, fmt.Errorf("no usable statuses on page: %w", errors.Join(skipped...))
	}
	return posts, skipped, nil
}
