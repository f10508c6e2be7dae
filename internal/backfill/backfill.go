package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samvad-hq/post-archiver/internal/archiver"
	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/internal/storage"
	"github.com/samvad-hq/post-archiver/pkg/timeline"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options tunes pagination and pacing.
type Options struct {
	PageSize int
	// MaxPages caps requests per account; zero means unlimited.
	MaxPages int
	// Delay is the minimum spacing between archive calls.
	Delay time.Duration
	// Concurrency is the number of accounts processed in parallel.
	Concurrency int
}

// Fetcher finds posts newer than the stored watermark and hands them to the archiver.
type Fetcher struct {
	lister   timeline.Lister
	store    storage.Store
	archiver archiver.Archiver
	log      logger.Logger
	opts     Options
	limiter  *rate.Limiter
}

// NewFetcher wires a backfill fetcher.
func NewFetcher(lister timeline.Lister, store storage.Store, arch archiver.Archiver, log logger.Logger, opts Options) *Fetcher {
	if opts.PageSize <= 0 || opts.PageSize > timeline.MaxPageSize {
		opts.PageSize = timeline.MaxPageSize
	}
	if opts.MaxPages < 0 {
		opts.MaxPages = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Fetcher{
		lister:   lister,
		store:    store,
		archiver: arch,
		log:      logger.Ensure(log),
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// FetchMissed returns the account's posts newer than its watermark, oldest first.
func (f *Fetcher) FetchMissed(ctx context.Context, handle string) ([]domain.Post, error) {
	if f == nil || f.lister == nil || f.store == nil {
		return nil, fmt.Errorf("backfill fetcher is not initialized")
	}

	watermark, err := f.store.Read(handle)
	if err != nil {
		return nil, fmt.Errorf("read watermark for %s: %w", handle, err)
	}

	var (
		collected []domain.Post
		maxID     = domain.NoPostID
		oldest    = domain.NoPostID
		pages     int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.opts.MaxPages > 0 && pages >= f.opts.MaxPages {
			f.log.WarnObj("backfill page limit reached", "backfill_pagination", map[string]any{
				"handle":    handle,
				"pages":     pages,
				"watermark": watermark.String(),
			})
			break
		}

		page, err := f.lister.UserTimeline(ctx, handle, f.opts.PageSize, maxID)
		if err != nil {
			return nil, fmt.Errorf("list %s timeline page %d: %w", handle, pages+1, err)
		}
		pages++
		if len(page) == 0 {
			break
		}

		pageNewest, pageOldest := idRange(page)
		if oldest != domain.NoPostID && pageOldest >= oldest {
			f.log.WarnObj("timeline ids did not decrease; stopping pagination", "backfill_pagination", map[string]any{
				"handle":      handle,
				"page":        pages,
				"page_oldest": pageOldest.String(),
				"prev_oldest": oldest.String(),
			})
			break
		}
		oldest = pageOldest
		collected = append(collected, page...)

		// A page reaching past the watermark still gets one more request below it;
		// pagination ends once a whole page sits at or under the watermark.
		if pageNewest <= watermark {
			break
		}
		maxID = oldest - 1
	}

	missed := make([]domain.Post, 0, len(collected))
	seen := make(map[domain.PostID]struct{}, len(collected))
	for _, post := range collected {
		if post.ID <= watermark {
			continue
		}
		if _, dup := seen[post.ID]; dup {
			continue
		}
		seen[post.ID] = struct{}{}
		missed = append(missed, post)
	}
	sort.Slice(missed, func(i, j int) bool { return missed[i].ID < missed[j].ID })

	f.log.InfoObj("backfill fetch completed", "backfill_fetch", map[string]any{
		"handle":    handle,
		"watermark": watermark.String(),
		"pages":     pages,
		"missed":    len(missed),
	})
	return missed, nil
}

// Run backfills every account. A failure for one account is logged and does not stop
// the others; the returned error joins them.
func (f *Fetcher) Run(ctx context.Context, accounts []domain.Account) error {
	if f == nil || f.archiver == nil {
		return fmt.Errorf("backfill fetcher is not initialized")
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(f.opts.Concurrency)

	for _, acc := range accounts {
		g.Go(func() error {
			if err := f.runAccount(ctx, acc); err != nil {
				f.log.ErrorObj("backfill failed", "backfill_error", map[string]any{
					"handle": acc.Handle,
					"error":  err.Error(),
				})
				mu.Lock()
				errs = append(errs, fmt.Errorf("backfill %s: %w", acc.Handle, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (f *Fetcher) runAccount(ctx context.Context, acc domain.Account) error {
	posts, err := f.FetchMissed(ctx, acc.Handle)
	if err != nil {
		return err
	}
	for _, post := range posts {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		f.archiver.Archive(ctx, acc.Handle, post.ID, post.Text)
	}
	return ctx.Err()
}

func idRange(posts []domain.Post) (newest, oldest domain.PostID) {
	newest, oldest = posts[0].ID, posts[0].ID
	for _, p := range posts[1:] {
		if p.ID > newest {
			newest = p.ID
		}
		if p.ID < oldest {
			oldest = p.ID
		}
	}
	return newest, oldest
}
