// Package aggregate merges upcoming events from every calendar of an account
// into one list ordered by start time.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beekhof/upcoming/internal/calendar"
	"github.com/beekhof/upcoming/internal/logging"
)

const (
	// DefaultHorizon is how far ahead of now events are kept.
	DefaultHorizon = 5 * 24 * time.Hour
	// DefaultConcurrency bounds simultaneous per-calendar requests.
	DefaultConcurrency = 4
)

// EventSource lists calendars and their upcoming events.
type EventSource interface {
	ListCalendars(ctx context.Context) ([]string, error)
	ListEvents(ctx context.Context, calendarID string, from time.Time) ([]calendar.Event, error)
}

// Config configures an Aggregator.
type Config struct {
	// Horizon defaults to DefaultHorizon.
	Horizon time.Duration
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Aggregator fetches events from all calendars of an EventSource.
type Aggregator struct {
	source      EventSource
	horizon     time.Duration
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates an Aggregator over source.
func New(source EventSource, cfg Config) *Aggregator {
	a := &Aggregator{
		source:      source,
		horizon:     cfg.Horizon,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
		logger:      logging.OrDiscard(cfg.Logger),
	}
	if a.horizon <= 0 {
		a.horizon = DefaultHorizon
	}
	if a.concurrency <= 0 {
		a.concurrency = DefaultConcurrency
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Aggregate returns the upcoming events of every calendar, sorted by start
// and limited to those starting strictly before now plus the horizon. If any
// calendar cannot be read the whole aggregation fails and no events are returned.
func (a *Aggregator) Aggregate(ctx context.Context) ([]calendar.Event, error) {
	now := a.now()

	calendarIDs, err := a.source.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("aggregating events", logging.Count(len(calendarIDs)))

	perCalendar := make([][]calendar.Event, len(calendarIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range calendarIDs {
		g.Go(func() error {
			events, err := a.source.ListEvents(gctx, id, now)
			if err != nil {
				return fmt.Errorf("calendar %s: %w", id, err)
			}
			perCalendar[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Window(slices.Concat(perCalendar...), now, a.horizon), nil
}

// Window stable-sorts events by start and keeps those whose start is
// strictly before now+horizon.
func Window(events []calendar.Event, now time.Time, horizon time.Duration) []calendar.Event {
	cutoff := now.Add(horizon)

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(x, y calendar.Event) int {
		return x.Start.Compare(y.Start)
	})

	result := make([]calendar.Event, 0, len(sorted))
	for _, event := range sorted {
		if !event.Start.Before(cutoff) {
			break
		}
		result = append(result, event)
	}
	return result
}
