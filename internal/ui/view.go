package ui

import (
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/teemow/calpane/internal/calendar"
)

// Mode is the presentation mode driving what the user currently sees.
type Mode int

const (
	ModeSignedOut Mode = iota
	ModeIdle
	ModeLoading
	ModeError
	ModeSuccess
)

func (m Mode) String() string {
	switch m {
	case ModeSignedOut:
		return "signed-out"
	case ModeIdle:
		return "idle"
	case ModeLoading:
		return "loading"
	case ModeError:
		return "error"
	case ModeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// NoticeKind classifies a notice.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
)

// SuccessNoticeTTL is how long a success notice stays visible.
const SuccessNoticeTTL = 4 * time.Second

// Notice is a banner shown above the event list.
// Expires is zero for notices that persist until the next action.
type Notice struct {
	Kind    NoticeKind
	Message string
	Expires time.Time
}

// IsZero reports whether there is no notice.
func (n Notice) IsZero() bool {
	return n.Message == ""
}

func (n Notice) expired(now time.Time) bool {
	return !n.Expires.IsZero() && !now.Before(n.Expires)
}

// User-facing messages.
const (
	MsgNoAccessToken  = "No access token. Please login again."
	MsgEventCreated   = "Event created. It will appear in your Google Calendar."
	MsgEventDeleted   = "Event deleted"
	MsgNoEvents       = "No events found"
	MsgNoTitle        = "No Title"
	MsgNoTime         = "No time"
	prefixLoadError   = "Error loading events: "
	prefixCreateError = "Error creating event: "
	prefixDeleteError = "Error deleting event: "
	prefixInitError   = "Failed to initialize Google Sign-In: "
)

// Time formats for rendered rows.
const (
	TimedLayout  = "Mon Jan 2, 2006 15:04"
	AllDayLayout = "Mon Jan 2, 2006"
)

// Form holds the create-event form fields as submitted by the browser.
// Start and End are datetime-local values.
type Form struct {
	Title       string
	Description string
	Start       string
	End         string
}

// datetime-local values, with and without seconds.
var formLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

// Input converts the form into gateway input, interpreting times in loc.
// It returns a *calendar.ValidationError for missing, malformed or misordered fields.
func (f Form) Input(loc *time.Location) (calendar.EventInput, error) {
	title := strings.TrimSpace(f.Title)
	start, okStart := parseFormTime(f.Start, loc)
	end, okEnd := parseFormTime(f.End, loc)
	if title == "" || !okStart || !okEnd {
		return calendar.EventInput{}, &calendar.ValidationError{Message: calendar.MsgMissingFields}
	}

	input := calendar.EventInput{Title: title, Start: start, End: end}
	if desc := strings.TrimSpace(f.Description); desc != "" {
		input.Description = mo.Some(desc)
	}
	if err := calendar.ValidateInput(input); err != nil {
		return calendar.EventInput{}, err
	}
	return input, nil
}

func parseFormTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range formLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Row is one rendered event.
type Row struct {
	ID    string
	Title string
	When  string
	// Mine marks events recorded in the created-item index.
	Mine bool
}

// View is a snapshot of the presentation state.
type View struct {
	Mode     Mode
	SignedIn bool
	Notice   Notice
	Rows     []Row
	// NoEvents is set when a load returned nothing; Rows then holds a single placeholder.
	NoEvents bool
	Form     Form
	Loading  bool
	// RefreshAfter is how long until the current notice expires, or zero.
	RefreshAfter time.Duration
}

// formatWhen renders an event start for display.
func formatWhen(t calendar.EventTime, loc *time.Location) string {
	if t.IsZero() {
		return MsgNoTime
	}
	if t.AllDay {
		return t.Time.Format(AllDayLayout)
	}
	return t.Time.In(loc).Format(TimedLayout)
}

func toRow(event calendar.Event, mine bool, loc *time.Location) Row {
	title := event.Title
	if strings.TrimSpace(title) == "" {
		title = MsgNoTitle
	}
	return Row{
		ID:    event.ID,
		Title: title,
		When:  formatWhen(event.Start, loc),
		Mine:  mine,
	}
}
