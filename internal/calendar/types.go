package calendar

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/mo"
	calendar "google.golang.org/api/calendar/v3"
)

// dateLayout is the layout of all-day event dates.
const dateLayout = "2006-01-02"

// Credentials supplies the bearer token for a call. *session.Session implements it.
type Credentials interface {
	AccessToken() (string, bool)
}

// EventTime is an event boundary: an instant, or a calendar date for all-day events.
type EventTime struct {
	Time   time.Time
	AllDay bool
}

// IsZero reports whether the boundary was missing.
func (t EventTime) IsZero() bool {
	return t.Time.IsZero()
}

// Event is a render-only copy of a remote calendar event.
type Event struct {
	ID          string
	Title       string
	Description mo.Option[string]
	Start       EventTime
	End         EventTime
}

// EventInput represents the input for creating a calendar event.
type EventInput struct {
	Title       string
	Description mo.Option[string]
	Start       time.Time
	End         time.Time
}

// ErrNotAuthenticated is returned when a call is attempted without a usable token.
// No request is sent.
var ErrNotAuthenticated = errors.New("not authenticated")

// ValidationError reports input rejected before any request is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation messages.
const (
	MsgMissingFields  = "Please fill title, start and end times."
	MsgEndBeforeStart = "End time must be after start time."
)

// APIError reports a failed Calendar API call: a non-2xx response, or a
// transport failure when StatusCode is 0.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	msg := fmt.Sprintf("status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// parseEventTime reads a {dateTime|date} boundary. Dates are interpreted in loc.
func parseEventTime(dt *calendar.EventDateTime, loc *time.Location) EventTime {
	if dt == nil {
		return EventTime{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return EventTime{Time: t}
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation(dateLayout, dt.Date, loc); err == nil {
			return EventTime{Time: t, AllDay: true}
		}
	}
	return EventTime{}
}

// toEvent converts a Google Calendar event to an Event.
func toEvent(event *calendar.Event, loc *time.Location) Event {
	if event == nil {
		return Event{}
	}

	e := Event{
		ID:    event.Id,
		Title: event.Summary,
		Start: parseEventTime(event.Start, loc),
		End:   parseEventTime(event.End, loc),
	}
	if event.Description != "" {
		e.Description = mo.Some(event.Description)
	}
	return e
}
