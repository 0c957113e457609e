// Package calendar reads calendars and upcoming events from the Google
// Calendar API.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/beekhof/upcoming/internal/logging"
)

// DefaultMaxResults is the number of upcoming events requested per calendar.
const DefaultMaxResults = 10

// ClientOptions configures a Client.
type ClientOptions struct {
	// MaxResults defaults to DefaultMaxResults.
	MaxResults int64
	// Location is used for date-only (all-day) starts. Defaults to time.Local.
	Location *time.Location
	Logger   *slog.Logger
	// APIOptions are appended after the HTTP client when creating the service.
	APIOptions []option.ClientOption
}

// Client is a wrapper around the Google Calendar API service.
type Client struct {
	service    *calendar.Service
	maxResults int64
	location   *time.Location
	logger     *slog.Logger
}

// NewClient creates a new Google Calendar API client using the provided HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client, opts ClientOptions) (*Client, error) {
	apiOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts.APIOptions...)
	service, err := calendar.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	c := &Client{
		service:    service,
		maxResults: opts.MaxResults,
		location:   opts.Location,
		logger:     logging.OrDiscard(opts.Logger),
	}
	if c.maxResults <= 0 {
		c.maxResults = DefaultMaxResults
	}
	if c.location == nil {
		c.location = time.Local
	}
	return c, nil
}

// ListCalendars returns the ID of every calendar visible to the account.
func (c *Client) ListCalendars(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.service.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			ids = append(ids, item.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	c.logger.Debug("listed calendars", logging.Count(len(ids)))
	return ids, nil
}

// ListEvents returns up to MaxResults events of calendarID starting at or
// after from, ordered by start time. Recurring events are expanded into
// their instances. A calendar without upcoming events yields an empty slice.
func (c *Client) ListEvents(ctx context.Context, calendarID string, from time.Time) ([]Event, error) {
	resp, err := c.service.Events.List(calendarID).
		Context(ctx).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(c.maxResults).
		SingleEvents(true). // Expand recurring events
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events of calendar %s: %w", calendarID, err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		event, err := FromAPI(calendarID, item, c.location)
		if err != nil {
			c.logger.Warn("skipping event", logging.Calendar(calendarID), logging.Err(err))
			continue
		}
		events = append(events, event)
	}

	c.logger.Debug("listed events", logging.Calendar(calendarID), logging.Count(len(events)))
	return events, nil
}
