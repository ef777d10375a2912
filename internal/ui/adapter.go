package ui

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/calpane/internal/calendar"
	"github.com/teemow/calpane/internal/instrumentation"
	"github.com/teemow/calpane/internal/logging"
	"github.com/teemow/calpane/internal/session"
)

// Gateway is the remote calendar used by the Adapter.
type Gateway interface {
	ListEvents(ctx context.Context, creds calendar.Credentials) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, creds calendar.Credentials, input calendar.EventInput) (calendar.Event, error)
	DeleteEvent(ctx context.Context, creds calendar.Credentials, eventID string) error
}

// Sessions signs the user in and out.
type Sessions interface {
	Begin() (string, error)
	Complete(ctx context.Context, state, code, providerErr string) (*session.Session, error)
	Logout()
	Current() (*session.Session, error)
}

// Index records which events were created by this client.
type Index interface {
	Add(ctx context.Context, id string)
	Remove(ctx context.Context, id string)
	Contains(ctx context.Context, id string) bool
}

// Config configures an Adapter.
type Config struct {
	Gateway  Gateway
	Sessions Sessions
	Index    Index

	// Location is used to parse form times and render rows (default: time.Local)
	Location *time.Location

	// StartupError puts the adapter in error mode until the first action.
	StartupError error

	Logger *slog.Logger

	// Now is the clock used for notice expiry (default: time.Now)
	Now func() time.Time
}

// Adapter maps user actions to gateway calls and presentation state.
// It is safe for concurrent use.
type Adapter struct {
	gateway  Gateway
	sessions Sessions
	index    Index
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	mode     Mode
	signedIn bool
	notice   Notice
	events   []calendar.Event
	mine     map[string]bool
	loaded   bool
	form     Form
}

// New creates an Adapter in signed-out mode.
func New(cfg Config) *Adapter {
	a := &Adapter{
		gateway:  cfg.Gateway,
		sessions: cfg.Sessions,
		index:    cfg.Index,
		location: cfg.Location,
		logger:   cfg.Logger,
		now:      cfg.Now,
		mode:     ModeSignedOut,
	}
	if a.location == nil {
		a.location = time.Local
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = logging.WithComponent(a.logger, "ui")
	if a.now == nil {
		a.now = time.Now
	}
	if cfg.StartupError != nil {
		a.mode = ModeError
		a.notice = Notice{Kind: NoticeError, Message: prefixInitError + cfg.StartupError.Error()}
	}
	return a
}

// View returns a snapshot of the current state as of now.
// An expired success notice reads as idle.
func (a *Adapter) View(now time.Time) View {
	a.mu.Lock()
	defer a.mu.Unlock()

	v := View{
		Mode:     a.mode,
		SignedIn: a.signedIn,
		Notice:   a.notice,
		Form:     a.form,
		Loading:  a.mode == ModeLoading,
	}
	if a.notice.expired(now) {
		v.Notice = Notice{}
		if v.Mode == ModeSuccess {
			v.Mode = ModeIdle
		}
	} else if !a.notice.Expires.IsZero() {
		v.RefreshAfter = a.notice.Expires.Sub(now)
	}

	if a.loaded {
		v.Rows = make([]Row, 0, len(a.events))
		for _, e := range a.events {
			v.Rows = append(v.Rows, toRow(e, a.mine[e.ID], a.location))
		}
		if len(v.Rows) == 0 {
			v.NoEvents = true
			v.Rows = []Row{{Title: MsgNoEvents}}
		}
	}
	return v
}

// SignIn starts sign-in and returns the provider URL to redirect to.
func (a *Adapter) SignIn() (string, error) {
	if a.sessions == nil {
		return "", errors.New("sign-in is not configured")
	}
	authURL, err := a.sessions.Begin()
	if err != nil {
		a.fail(prefixInitError + err.Error())
		return "", err
	}
	return authURL, nil
}

// CompleteSignIn finishes sign-in from the provider callback.
func (a *Adapter) CompleteSignIn(ctx context.Context, state, code, providerErr string) error {
	ctx, span := instrumentation.StartActionSpan(ctx, "signin")
	defer span.End()

	if a.sessions == nil {
		return errors.New("sign-in is not configured")
	}
	if _, err := a.sessions.Complete(ctx, state, code, providerErr); err != nil {
		instrumentation.SetSpanError(span, err)
		a.mu.Lock()
		a.signedIn = false
		a.setNotice(ModeError, Notice{Kind: NoticeError, Message: err.Error()})
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.signedIn = true
	a.events, a.mine, a.loaded = nil, nil, false
	a.setNotice(ModeIdle, Notice{})
	return nil
}

// SignOut discards the session and clears the rendered list.
func (a *Adapter) SignOut() {
	if a.sessions != nil {
		a.sessions.Logout()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.signedIn = false
	a.events, a.mine, a.loaded = nil, nil, false
	a.setNotice(ModeSignedOut, Notice{})
}

// ClearForm resets the form fields. No other state changes.
func (a *Adapter) ClearForm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.form = Form{}
}

// Load lists events and renders them as rows.
func (a *Adapter) Load(ctx context.Context) error {
	ctx, span := instrumentation.StartActionSpan(ctx, "load")
	defer span.End()

	sess, err := a.credentials()
	if err != nil {
		return err
	}

	err = a.once(ctx, "load", func(ctx context.Context) error {
		return a.load(ctx, sess)
	})
	instrumentation.SetSpanError(span, err)
	return err
}

// Create validates the form, creates the event and reloads the list.
// The form is kept on failure and reset on success.
func (a *Adapter) Create(ctx context.Context, form Form) error {
	ctx, span := instrumentation.StartActionSpan(ctx, "create")
	defer span.End()

	a.mu.Lock()
	a.form = form
	a.mu.Unlock()

	sess, err := a.credentials()
	if err != nil {
		return err
	}
	input, err := form.Input(a.location)
	if err != nil {
		a.fail(err.Error())
		return err
	}

	err = a.once(ctx, "create", func(ctx context.Context) error {
		a.setLoading()
		event, err := a.gateway.CreateEvent(ctx, sess, input)
		if err != nil {
			return a.failFrom(err, prefixCreateError)
		}
		a.logger.Info("event created", logging.EventID(event.ID))
		a.index.Add(ctx, event.ID)

		a.mu.Lock()
		a.form = Form{}
		a.mu.Unlock()

		if err := a.load(ctx, sess); err != nil {
			return err
		}
		a.succeed(MsgEventCreated)
		return nil
	})
	instrumentation.SetSpanError(span, err)
	return err
}

// Delete deletes an event and removes its row.
func (a *Adapter) Delete(ctx context.Context, eventID string) error {
	ctx, span := instrumentation.StartActionSpan(ctx, "delete")
	defer span.End()

	sess, err := a.credentials()
	if err != nil {
		return err
	}

	err = a.once(ctx, "delete:"+eventID, func(ctx context.Context) error {
		a.setLoading()
		if err := a.gateway.DeleteEvent(ctx, sess, eventID); err != nil {
			return a.failFrom(err, prefixDeleteError)
		}
		a.logger.Info("event deleted", logging.EventID(eventID))
		a.index.Remove(ctx, eventID)

		a.mu.Lock()
		a.events = slices.DeleteFunc(a.events, func(e calendar.Event) bool { return e.ID == eventID })
		delete(a.mine, eventID)
		a.mu.Unlock()

		a.succeed(MsgEventDeleted)
		return nil
	})
	instrumentation.SetSpanError(span, err)
	return err
}

func (a *Adapter) load(ctx context.Context, sess *session.Session) error {
	a.setLoading()
	events, err := a.gateway.ListEvents(ctx, sess)
	if err != nil {
		return a.failFrom(err, prefixLoadError)
	}

	mine := make(map[string]bool, len(events))
	for _, e := range events {
		if a.index.Contains(ctx, e.ID) {
			mine[e.ID] = true
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.events, a.mine, a.loaded = events, mine, true
	a.setNotice(ModeIdle, Notice{})
	return nil
}

// once runs fn for key unless a call for key is already in flight, in which
// case the caller joins it. fn runs detached from the caller's cancellation:
// once issued, a call always completes. A caller whose context ends only
// stops waiting; a later attempt joins the call still in flight.
func (a *Adapter) once(ctx context.Context, key string, fn func(context.Context) error) error {
	shared := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		return nil, fn(shared)
	})
	select {
	case res := <-ch:
		if res.Shared {
			a.logger.Debug("joined in-flight call", logging.Operation(key))
		}
		return res.Err
	case <-ctx.Done():
		a.logger.Debug("stopped waiting for in-flight call", logging.Operation(key))
		return ctx.Err()
	}
}

func (a *Adapter) credentials() (*session.Session, error) {
	if a.sessions == nil {
		a.notAuthenticated()
		return nil, session.ErrNotAuthenticated
	}
	sess, err := a.sessions.Current()
	if err != nil {
		a.notAuthenticated()
		return nil, err
	}
	return sess, nil
}

func (a *Adapter) notAuthenticated() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signedIn = false
	a.setNotice(ModeError, Notice{Kind: NoticeError, Message: MsgNoAccessToken})
}

// failFrom shows err under prefix and returns it.
func (a *Adapter) failFrom(err error, prefix string) error {
	if errors.Is(err, calendar.ErrNotAuthenticated) {
		a.notAuthenticated()
		return err
	}
	a.fail(prefix + err.Error())
	return err
}

func (a *Adapter) fail(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setNotice(ModeError, Notice{Kind: NoticeError, Message: message})
}

func (a *Adapter) succeed(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setNotice(ModeSuccess, Notice{
		Kind:    NoticeSuccess,
		Message: message,
		Expires: a.now().Add(SuccessNoticeTTL),
	})
}

func (a *Adapter) setLoading() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setNotice(ModeLoading, Notice{})
}

// setNotice must be called with mu held.
func (a *Adapter) setNotice(mode Mode, notice Notice) {
	a.mode = mode
	a.notice = notice
}
