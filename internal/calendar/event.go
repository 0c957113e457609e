package calendar

import (
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
)

// Event is a single upcoming occurrence. Recurring events arrive already
// expanded, so every Event has its own start.
type Event struct {
	ID         string
	CalendarID string
	Summary    string
	Start      time.Time
	// End is zero when the source event has no end.
	End    time.Time
	AllDay bool
}

// FromAPI converts a Calendar API event. The start prefers dateTime and falls
// back to the date-only field, which is taken as midnight in loc.
func FromAPI(calendarID string, item *calendar.Event, loc *time.Location) (Event, error) {
	if item == nil {
		return Event{}, fmt.Errorf("nil event")
	}
	start, allDay, err := parseEventTime(item.Start, loc)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: invalid start: %w", item.Id, err)
	}

	event := Event{
		ID:         item.Id,
		CalendarID: calendarID,
		Summary:    item.Summary,
		Start:      start,
		AllDay:     allDay,
	}
	if item.End != nil {
		if end, _, err := parseEventTime(item.End, loc); err == nil {
			event.End = end
		}
	}
	return event, nil
}

func parseEventTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if dt == nil {
		return time.Time{}, false, fmt.Errorf("missing time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err
	}
	if dt.Date != "" {
		if loc == nil {
			loc = time.Local
		}
		t, err := time.ParseInLocation(time.DateOnly, dt.Date, loc)
		return t, true, err
	}
	return time.Time{}, false, fmt.Errorf("neither dateTime nor date set")
}
