package timeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/pkg/httpclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientUserTimelineBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.1/statuses/user_timeline.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("screen_name") != "POTUS" || q.Get("count") != "200" || q.Get("max_id") != "99" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`[
			{"id_str":"98","full_text":"newer","created_at":"Wed Jan 20 17:00:00 +0000 2021","user":{"id_str":"822215679726100480","screen_name":"POTUS"}},
			{"id_str":"97","text":"older","user":{"id_str":"822215679726100480","screen_name":"POTUS"}}
		]`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/1.1/", "secret", httpclient.NewRestyClient(0), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	posts, err := client.UserTimeline(context.Background(), "POTUS", 500, 99)
	if err != nil {
		t.Fatalf("UserTimeline: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != 98 || posts[1].ID != 97 {
		t.Fatalf("unexpected posts %+v", posts)
	}
	if posts[0].Text != "newer" || posts[1].Text != "older" {
		t.Fatalf("unexpected text %+v", posts)
	}
	if posts[0].CreatedAt.Year() != 2021 {
		t.Fatalf("expected created_at parsed, got %v", posts[0].CreatedAt)
	}
}

func TestClientUserTimelineOmitsMaxIDForSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["max_id"]; ok {
			t.Errorf("max_id should be omitted")
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "", nil, nil)
	posts, err := client.UserTimeline(context.Background(), "POTUS", 10, domain.NoPostID)
	if err != nil || len(posts) != 0 {
		t.Fatalf("expected empty page, got %v err=%v", posts, err)
	}
}

func TestClientUserTimelineReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "", nil, nil)
	_, err := client.UserTimeline(context.Background(), "POTUS", 10, domain.NoPostID)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDecodeStatusesRejectsPageWithoutUsableEntries(t *testing.T) {
	if _, _, err := DecodeStatuses([]byte(`[{"id_str":"x","user":{"id_str":"1"}}]`)); err == nil {
		t.Fatalf("expected error for a page of bad ids")
	}
}

func TestClientUserTimelineSkipsMalformedStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			{"id_str":"98","text":"kept","user":{"id_str":"822215679726100480","screen_name":"POTUS"}},
			{"id_str":"","text":"no id","user":{"id_str":"822215679726100480"}},
			{"id_str":"96","text":"no author","user":{}},
			{"id_str":"95","text":"also kept","user":{"id_str":"822215679726100480","screen_name":"POTUS"}}
		]`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	client, err := NewClient(srv.URL, "", nil, logger.New(zap.New(core)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	posts, err := client.UserTimeline(context.Background(), "POTUS", 10, domain.NoPostID)
	if err != nil {
		t.Fatalf("UserTimeline: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != 98 || posts[1].ID != 95 {
		t.Fatalf("expected the two well-formed posts, got %+v", posts)
	}
	if n := logs.FilterMessage("skipping malformed timeline status").Len(); n != 2 {
		t.Fatalf("expected 2 skip warnings, got %d", n)
	}
}
