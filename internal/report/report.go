// Package report renders aggregated events for the terminal or for other tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/beekhof/upcoming/internal/calendar"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatICS  = "ics"
)

// Formats lists the supported output formats.
var Formats = []string{FormatText, FormatJSON, FormatICS}

// ValidFormat reports whether format is supported.
func ValidFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Write renders events to w in the given format.
func Write(w io.Writer, format string, events []calendar.Event) error {
	switch format {
	case FormatText, "":
		return writeText(w, events)
	case FormatJSON:
		return writeJSON(w, events)
	case FormatICS:
		return writeICS(w, events, time.Now())
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, events []calendar.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No upcoming events found.")
		return err
	}
	for _, event := range events {
		when := event.Start.Format("Mon Jan 02 15:04")
		if event.AllDay {
			when = event.Start.Format("Mon Jan 02") + " all day"
		}
		if _, err := fmt.Fprintf(w, "%-20s  %s\n", when, event.Summary); err != nil {
			return err
		}
	}
	return nil
}

type jsonEvent struct {
	ID         string     `json:"id,omitempty"`
	CalendarID string     `json:"calendar_id"`
	Summary    string     `json:"summary"`
	Start      time.Time  `json:"start"`
	End        *time.Time `json:"end,omitempty"`
	AllDay     bool       `json:"all_day"`
}

func writeJSON(w io.Writer, events []calendar.Event) error {
	out := make([]jsonEvent, 0, len(events))
	for _, event := range events {
		je := jsonEvent{
			ID:         event.ID,
			CalendarID: event.CalendarID,
			Summary:    event.Summary,
			Start:      event.Start,
			AllDay:     event.AllDay,
		}
		if !event.End.IsZero() {
			end := event.End
			je.End = &end
		}
		out = append(out, je)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeICS writes nothing for an empty list, since a VCALENDAR needs at
// least one component.
func writeICS(w io.Writer, events []calendar.Event, stamp time.Time) error {
	if len(events) == 0 {
		return nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//upcoming//EN")

	for i, event := range events {
		vevent := ical.NewComponent(ical.CompEvent)

		uid := event.ID
		if uid == "" {
			uid = fmt.Sprintf("%d-%s@upcoming", i, event.Start.UTC().Format("20060102T150405Z"))
		}
		vevent.Props.SetText(ical.PropUID, uid)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		if event.Summary != "" {
			vevent.Props.SetText(ical.PropSummary, event.Summary)
		}

		setTime(vevent, ical.PropDateTimeStart, event.Start, event.AllDay)
		if !event.End.IsZero() {
			setTime(vevent, ical.PropDateTimeEnd, event.End, event.AllDay)
		}

		cal.Children = append(cal.Children, vevent)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}
	return nil
}

// setTime sets a DATE property for all-day events and a UTC DATE-TIME otherwise.
func setTime(comp *ical.Component, name string, t time.Time, allDay bool) {
	if allDay {
		prop := ical.NewProp(name)
		prop.SetDate(t)
		comp.Props.Set(prop)
		return
	}
	comp.Props.SetDateTime(name, t.UTC())
}
