// Package logging sets up the slog logger used by upcoming and provides
// attribute helpers so log keys stay consistent across packages.
package logging

import (
	"errors"
	"io"
	"log/slog"

	"google.golang.org/api/googleapi"
)

// Common log attribute keys.
const (
	KeyCalendar = "calendar"
	KeyCount    = "count"
	KeyPath     = "path"
	KeyStatus   = "status_code"
	KeyError    = "error"
)

// New returns a text logger writing to w. Debug output is enabled when verbose is set.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops everything. Used when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or a discarding logger when logger is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// Calendar returns an attribute for a calendar ID.
func Calendar(id string) slog.Attr {
	return slog.String(KeyCalendar, id)
}

// Count returns an attribute for a number of items.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Path returns an attribute for a file path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Err returns an attribute for err. A nil error yields an empty group that
// slog omits from output. Google API errors also carry their HTTP status.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return slog.Group("",
			slog.String(KeyError, err.Error()),
			slog.Int(KeyStatus, apiErr.Code))
	}
	return slog.String(KeyError, err.Error())
}
