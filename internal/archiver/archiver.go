package archiver

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/internal/storage"
	"github.com/samvad-hq/post-archiver/pkg/archivers"
	"github.com/samvad-hq/post-archiver/pkg/publishers"
)

// Archiver submits a post to the archive services and advances the account watermark.
// Archive never fails from the caller's point of view; problems are logged.
type Archiver interface {
	Archive(ctx context.Context, handle string, id domain.PostID, text string)
}

// EventPublisher publishes archived-post events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Options tunes submission behaviour.
type Options struct {
	PostURLHost string
	// Timeout bounds each submission, including draining the response body.
	Timeout time.Duration
	// Retries is the number of extra attempts per submission after the first.
	Retries int
	// RetryBackOff builds the wait policy between retries.
	RetryBackOff func() backoff.BackOff
}

const (
	defaultPostURLHost = "twitter.com"
	defaultTimeout     = 60 * time.Second
)

// Service is the Archiver used by backfill and the live subscriber.
type Service struct {
	services  []archivers.Service
	store     storage.Store
	publisher EventPublisher
	log       logger.Logger
	opts      Options
}

// NewService wires an archiver. publisher may be nil.
func NewService(services []archivers.Service, store storage.Store, publisher EventPublisher, log logger.Logger, opts Options) *Service {
	if opts.PostURLHost == "" {
		opts.PostURLHost = defaultPostURLHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBackOff == nil {
		opts.RetryBackOff = newRetryBackOff
	}
	return &Service{
		services:  services,
		store:     store,
		publisher: publisher,
		log:       logger.Ensure(log),
		opts:      opts,
	}
}

// newRetryBackOff creates the exponential policy between submission retries.
func newRetryBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second
	bo.Multiplier = 2
	return bo
}

// Archive submits both URL forms of the post to every archive service, then records
// id as the account watermark. Submissions abandoned because ctx ended leave the
// watermark untouched so the next backfill picks the post up again.
func (s *Service) Archive(ctx context.Context, handle string, id domain.PostID, text string) {
	s.log.DebugObj("new post", "post", map[string]any{
		"handle":  handle,
		"post_id": id.String(),
		"text":    text,
	})

	urls := domain.PostURLs(s.opts.PostURLHost, handle, id)
	attempts := make([]publishers.Attempt, 0, len(urls)*len(s.services))

	for _, postURL := range urls {
		for _, svc := range s.services {
			if ctx.Err() != nil {
				s.log.WarnObj("archive abandoned on shutdown", "archive_abandoned", map[string]any{
					"handle":  handle,
					"post_id": id.String(),
				})
				return
			}
			attempts = append(attempts, s.submit(ctx, svc, handle, postURL))
		}
	}

	if ctx.Err() != nil {
		s.log.WarnObj("archive abandoned on shutdown", "archive_abandoned", map[string]any{
			"handle":  handle,
			"post_id": id.String(),
		})
		return
	}

	s.recordWatermark(handle, id)
	s.publish(ctx, publishers.NewEvent(handle, id.String(), urls, attempts))
}

func (s *Service) submit(ctx context.Context, svc archivers.Service, handle, postURL string) publishers.Attempt {
	attempt := publishers.Attempt{ServiceID: svc.ID(), Target: svc.Target(postURL)}

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		sub, err := svc.SubmitAndAwaitCompletion(reqCtx, postURL)
		attempt.StatusCode = sub.StatusCode
		if err == nil {
			return nil
		}
		var statusErr *archivers.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.WarnObj("archive submission failed; retrying", "archive_submission", map[string]any{
			"handle":     handle,
			"service_id": svc.ID(),
			"target":     attempt.Target,
			"retry_in":   wait.String(),
			"error":      err.Error(),
		})
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.opts.RetryBackOff(), uint64(s.opts.Retries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		attempt.Error = err.Error()
		s.log.ErrorObj("archive submission failed", "archive_submission", map[string]any{
			"handle":     handle,
			"service_id": svc.ID(),
			"target":     attempt.Target,
			"status":     attempt.StatusCode,
			"error":      err.Error(),
		})
		return attempt
	}

	s.log.InfoObj("archive submission completed", "archive_submission", map[string]any{
		"handle":     handle,
		"service_id": svc.ID(),
		"target":     attempt.Target,
		"status":     attempt.StatusCode,
	})
	return attempt
}

func (s *Service) recordWatermark(handle string, id domain.PostID) {
	if s.store == nil {
		return
	}
	changed, err := s.store.Write(handle, id)
	if err != nil {
		s.log.ErrorObj("watermark update failed", "watermark_error", map[string]any{
			"handle":  handle,
			"post_id": id.String(),
			"error":   err.Error(),
		})
		return
	}
	s.log.DebugObj("watermark recorded", "watermark", map[string]any{
		"handle":  handle,
		"post_id": id.String(),
		"changed": changed,
	})
}

func (s *Service) publish(ctx context.Context, evt publishers.Event) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.WarnObj("archived post notification failed", "publish_error", map[string]any{
			"handle":  evt.AccountHandle,
			"post_id": evt.PostID,
			"error":   err.Error(),
		})
	}
}
