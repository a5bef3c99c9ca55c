package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"vea/internal/dedup"
	"vea/internal/domain"
	"vea/internal/feed"
	"vea/internal/filter"

	"github.com/mmcdole/gofeed"
)

const fetchFeedsMaxConcurrencyGrowthFactor = 10

type Fetcher interface {
	Fetch(ctx context.Context, source domain.FeedSource) ([]*gofeed.Item, error)
}

type Result struct {
	Entries []domain.Entry
	Stats   domain.RunStats
	// Failures holds one *feed.FetchError (or wrapped error) per failed source.
	Failures []error
}

type Aggregator struct {
	fetcher        Fetcher
	maxConcurrency int
	log            *slog.Logger
}

// New returns an Aggregator. maxConcurrency <= 0 means NumCPU*10.
func New(fetcher Fetcher, maxConcurrency int, log *slog.Logger) *Aggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU() * fetchFeedsMaxConcurrencyGrowthFactor
	}

	return &Aggregator{
		fetcher:        fetcher,
		maxConcurrency: maxConcurrency,
		log:            log,
	}
}

type sourceEntries struct {
	source  domain.FeedSource
	entries []domain.Entry
	err     error
}

// Run fetches every source concurrently and returns the filtered, deduplicated
// entries. Entries of one source keep their feed order; sources are merged in
// completion order. Failed sources are counted and skipped.
func (a *Aggregator) Run(
	ctx context.Context,
	sources []domain.FeedSource,
	keywords []string,
) Result {
	matcher := filter.NewMatcher(keywords)

	concurrency := max(min(a.maxConcurrency, len(sources)), 1)
	semCh := make(chan struct{}, concurrency)
	resultCh := make(chan sourceEntries, len(sources))

	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Go(func() {
			semCh <- struct{}{}
			defer func() { <-semCh }()

			resultCh <- a.collect(ctx, source, matcher)
		})
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var (
		merged   []domain.Entry
		failures []error
	)

	for r := range resultCh {
		if r.err != nil {
			a.log.WarnContext(ctx, "Failed to fetch feed",
				"error", r.err,
				"source", r.source.Name,
				"feedURL", r.source.URL)

			failures = append(failures, r.err)

			continue
		}

		merged = append(merged, r.entries...)
	}

	entries := dedup.Dedupe(merged)

	stats := domain.RunStats{
		SourcesAttempted: len(sources),
		SourcesFailed:    len(failures),
		EntriesMatched:   len(merged),
		EntriesEmitted:   len(entries),
	}

	a.log.InfoContext(ctx, "Feeds are aggregated",
		"sourcesAttempted", stats.SourcesAttempted,
		"sourcesFailed", stats.SourcesFailed,
		"entriesMatched", stats.EntriesMatched,
		"entriesAfterDedup", stats.EntriesEmitted,
		"keywords", matcher.Keywords())

	return Result{Entries: entries, Stats: stats, Failures: failures}
}

func (a *Aggregator) collect(
	ctx context.Context,
	source domain.FeedSource,
	matcher *filter.Matcher,
) sourceEntries {
	a.log.InfoContext(ctx, "Fetching feed",
		"source", source.Name,
		"feedURL", source.URL)

	items, err := a.fetcher.Fetch(ctx, source)
	if err != nil {
		var fetchErr *feed.FetchError
		if !errors.As(err, &fetchErr) {
			err = &feed.FetchError{Source: source.Name, URL: source.URL, Err: err}
		}

		return sourceEntries{source: source, err: err}
	}

	var (
		entries []domain.Entry
		dropped int
	)

	for _, item := range items {
		entry, normalizeErr := feed.Normalize(source.Name, item)
		if normalizeErr != nil {
			dropped++
			a.log.DebugContext(ctx, "Skipping feed item",
				"error", normalizeErr,
				"source", source.Name)

			continue
		}

		if !matcher.Matches(entry) {
			continue
		}

		entries = append(entries, entry)
	}

	a.log.DebugContext(ctx, "Feed is processed",
		"source", source.Name,
		"itemsFetched", len(items),
		"itemsDropped", dropped,
		"entriesMatched", len(entries))

	return sourceEntries{source: source, entries: entries}
}
