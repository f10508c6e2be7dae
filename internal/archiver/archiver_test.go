package archiver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/internal/storage"
	"github.com/samvad-hq/post-archiver/pkg/archivers"
	"github.com/samvad-hq/post-archiver/pkg/publishers"
)

// fakeService records submitted URLs and fails according to failFor.
type fakeService struct {
	id      string
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
	failN   int
}

func (f *fakeService) ID() string                    { return f.id }
func (f *fakeService) Type() string                  { return archivers.TypePrefix }
func (f *fakeService) Target(postURL string) string { return "https://archive.example/" + f.id + "/" + postURL }

func (f *fakeService) SubmitAndAwaitCompletion(_ context.Context, postURL string) (archivers.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, postURL)
	sub := archivers.Submission{ServiceID: f.id, Target: f.Target(postURL), StatusCode: http.StatusOK}
	if err, ok := f.failFor[postURL]; ok {
		if f.failN <= 0 || len(f.calls) <= f.failN {
			return sub, err
		}
	}
	return sub, nil
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	events []publishers.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.events = append(f.events, evt)
	return 1, f.err
}

func newTestService(store storage.Store, pub EventPublisher, retries int, services ...archivers.Service) *Service {
	return NewService(services, store, pub, nil, Options{
		PostURLHost:  "twitter.com",
		Retries:      retries,
		RetryBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
}

func TestArchiveSubmitsEveryURLToEveryService(t *testing.T) {
	store := storage.NewMemoryStore()
	wayback := &fakeService{id: "wayback"}
	today := &fakeService{id: "today"}

	newTestService(store, nil, 0, wayback, today).Archive(context.Background(), "POTUS", 42, "hello")

	want := []string{"http://twitter.com/POTUS/status/42", "https://twitter.com/POTUS/status/42"}
	for _, svc := range []*fakeService{wayback, today} {
		if len(svc.calls) != 2 || svc.calls[0] != want[0] || svc.calls[1] != want[1] {
			t.Fatalf("%s: unexpected calls %#v", svc.id, svc.calls)
		}
	}
	if got, _ := store.Read("POTUS"); got != 42 {
		t.Fatalf("expected watermark 42, got %d", got)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := &fakeService{id: "wayback"}
	archiver := newTestService(store, nil, 0, svc)

	archiver.Archive(context.Background(), "POTUS", 42, "hello")
	archiver.Archive(context.Background(), "POTUS", 42, "hello")

	if svc.callCount() != 4 {
		t.Fatalf("expected submissions on both calls, got %d", svc.callCount())
	}
	if got, _ := store.Read("POTUS"); got != 42 {
		t.Fatalf("expected watermark to stay 42, got %d", got)
	}
}

func TestArchiveDoesNotLowerWatermark(t *testing.T) {
	store := storage.NewMemoryStore()
	archiver := newTestService(store, nil, 0, &fakeService{id: "wayback"})

	archiver.Archive(context.Background(), "POTUS", 50, "")
	archiver.Archive(context.Background(), "POTUS", 10, "")

	if got, _ := store.Read("POTUS"); got != 50 {
		t.Fatalf("expected watermark 50, got %d", got)
	}
}

func TestArchiveContinuesAfterSubmissionFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	failing := &fakeService{id: "wayback", failFor: map[string]error{
		"http://twitter.com/POTUS/status/7": errors.New("connection reset"),
	}}
	healthy := &fakeService{id: "today"}
	pub := &fakePublisher{}

	newTestService(store, pub, 0, failing, healthy).Archive(context.Background(), "POTUS", 7, "")

	if failing.callCount() != 2 || healthy.callCount() != 2 {
		t.Fatalf("expected all four submissions, got %d and %d", failing.callCount(), healthy.callCount())
	}
	if got, _ := store.Read("POTUS"); got != 7 {
		t.Fatalf("watermark must advance despite failures, got %d", got)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	if evt := pub.events[0]; evt.Succeeded != 3 || evt.Failed != 1 || evt.PostID != "7" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestArchiveRetriesAreBounded(t *testing.T) {
	svc := &fakeService{id: "wayback", failFor: map[string]error{
		"http://twitter.com/POTUS/status/1":  errors.New("timeout"),
		"https://twitter.com/POTUS/status/1": errors.New("timeout"),
	}}

	newTestService(storage.NewMemoryStore(), nil, 2, svc).Archive(context.Background(), "POTUS", 1, "")

	if svc.callCount() != 6 {
		t.Fatalf("expected 3 attempts per URL, got %d calls", svc.callCount())
	}
}

func TestArchiveRetryRecoversTransientFailure(t *testing.T) {
	svc := &fakeService{id: "wayback", failN: 1, failFor: map[string]error{
		"http://twitter.com/POTUS/status/1": errors.New("timeout"),
	}}
	pub := &fakePublisher{}

	newTestService(storage.NewMemoryStore(), pub, 3, svc).Archive(context.Background(), "POTUS", 1, "")

	if svc.callCount() != 3 {
		t.Fatalf("expected one retry then success, got %d calls", svc.callCount())
	}
	if pub.events[0].Failed != 0 {
		t.Fatalf("expected no failed attempts, got %+v", pub.events[0])
	}
}

func TestArchiveDoesNotRetryPermanentStatus(t *testing.T) {
	svc := &fakeService{id: "wayback", failFor: map[string]error{
		"http://twitter.com/POTUS/status/1": &archivers.StatusError{ServiceID: "wayback", Code: http.StatusNotFound},
	}}

	newTestService(storage.NewMemoryStore(), nil, 5, svc).Archive(context.Background(), "POTUS", 1, "")

	if svc.callCount() != 2 {
		t.Fatalf("expected no retries for 404, got %d calls", svc.callCount())
	}
}

func TestArchiveSkipsWatermarkWhenCancelled(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := &fakeService{id: "wayback"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newTestService(store, nil, 0, svc).Archive(ctx, "POTUS", 9, "")

	if svc.callCount() != 0 {
		t.Fatalf("expected no submissions after cancellation, got %d", svc.callCount())
	}
	if got, _ := store.Read("POTUS"); got != domain.NoPostID {
		t.Fatalf("expected watermark untouched, got %d", got)
	}
}

func TestArchiveLogsPublisherErrors(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &fakePublisher{err: errors.New("queue down")}

	newTestService(store, pub, 0, &fakeService{id: "wayback"}).Archive(context.Background(), "POTUS", 3, "")

	if got, _ := store.Read("POTUS"); got != 3 {
		t.Fatalf("publisher errors must not affect the watermark, got %d", got)
	}
}
