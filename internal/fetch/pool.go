package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"prospect/internal/core"
	"prospect/internal/logger"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultParallelism is the fetch pool width.
	DefaultParallelism = 10
	// defaultRetryDelay is the base pause before the single transient retry.
	defaultRetryDelay = 500 * time.Millisecond
)

// PageError pairs a failed URL with its cause so the caller can decide
// whether enough of the batch survived.
type PageError struct {
	URL string
	Err error
}

// ProgressFunc is invoked after each page settles, successfully or not.
type ProgressFunc func(done, total int, url string, err error)

// Pool fetches batches of selected pages concurrently.
type Pool struct {
	client      *Client
	parallelism int
	retryDelay  time.Duration
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithParallelism overrides the worker count.
func WithParallelism(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithRetryDelay overrides the base delay before the transient retry.
func WithRetryDelay(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// NewPool builds a fetch pool over the given client.
func NewPool(client *Client, opts ...PoolOption) *Pool {
	p := &Pool{
		client:      client,
		parallelism: DefaultParallelism,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchAll downloads every URL with bounded parallelism and returns extracted
// page contents in completion order. Individual failures do not abort the
// batch; they come back in the errs slice. Context cancellation stops
// dispatch and fails the remaining pages with the context error.
func (p *Pool) FetchAll(ctx context.Context, urls []string, onProgress ProgressFunc) ([]core.PageContent, []PageError) {
	log := logger.Get()
	total := len(urls)
	if total == 0 {
		return nil, nil
	}

	type settled struct {
		page core.PageContent
		err  error
		url  string
	}

	resultCh := make(chan settled, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	go func() {
		for _, u := range urls {
			u := u
			g.Go(func() error {
				page, err := p.fetchOne(gctx, u)
				resultCh <- settled{page: page, err: err, url: u}
				return nil
			})
		}
		_ = g.Wait()
		close(resultCh)
	}()

	var pages []core.PageContent
	var errs []PageError
	done := 0

	for res := range resultCh {
		done++
		if res.err != nil {
			errs = append(errs, PageError{URL: res.url, Err: res.err})
			log.Debug("page fetch failed", "url", res.url, "error", res.err)
		} else {
			pages = append(pages, res.page)
		}
		if onProgress != nil {
			onProgress(done, total, res.url, res.err)
		}
	}

	return pages, errs
}

// fetchOne downloads and extracts a single page, retrying once on a
// transient failure after a jittered delay.
func (p *Pool) fetchOne(ctx context.Context, url string) (core.PageContent, error) {
	res, err := p.client.Get(ctx, url)
	if err != nil && Retryable(err) && ctx.Err() == nil {
		delay := p.retryDelay + time.Duration(rand.Int63n(int64(p.retryDelay)))
		select {
		case <-ctx.Done():
			return core.PageContent{}, ctx.Err()
		case <-time.After(delay):
		}
		res, err = p.client.Get(ctx, url)
	}
	if err != nil {
		return core.PageContent{}, err
	}

	if !IsHTML(res.ContentType) {
		return core.PageContent{}, fmt.Errorf("%s served non-HTML content type %q", url, res.ContentType)
	}

	title, text, err := ExtractText(res.Body)
	if err != nil {
		return core.PageContent{}, fmt.Errorf("cannot parse %s: %w", url, err)
	}

	return core.PageContent{
		URL:         url,
		Title:       title,
		FetchedAt:   time.Now().UTC(),
		Status:      res.Status,
		ContentType: res.ContentType,
		Text:        text,
		ByteLen:     res.ByteLen,
		Duration:    res.Duration,
	}, nil
}
