package ui

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/calpane/internal/calendar"
	"github.com/teemow/calpane/internal/calendar/calendartest"
	"github.com/teemow/calpane/internal/index"
	"github.com/teemow/calpane/internal/session"
)

type fakeSessions struct {
	current     *session.Session
	completeErr error
	loggedOut   bool
}

func (f *fakeSessions) Begin() (string, error) {
	return "https://accounts.example.com/auth", nil
}

func (f *fakeSessions) Complete(context.Context, string, string, string) (*session.Session, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.current = session.New(&oauth2.Token{AccessToken: "tok"})
	return f.current, nil
}

func (f *fakeSessions) Logout() {
	f.loggedOut = true
	f.current = nil
}

func (f *fakeSessions) Current() (*session.Session, error) {
	if f.current == nil {
		return nil, session.ErrNotAuthenticated
	}
	return f.current, nil
}

type fixture struct {
	adapter  *Adapter
	server   *calendartest.Server
	sessions *fakeSessions
	index    *index.Index
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := calendartest.NewServer()
	t.Cleanup(srv.Close)

	f := &fixture{
		server:   srv,
		sessions: &fakeSessions{},
		index:    index.New(index.NewMemoryStore()),
		now:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	f.adapter = New(Config{
		Gateway: calendar.NewGateway(calendar.Config{
			HTTPClient: srv.Client(),
			Endpoint:   srv.Endpoint(),
			Location:   time.UTC,
		}),
		Sessions: f.sessions,
		Index:    f.index,
		Location: time.UTC,
		Now:      func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, f.adapter.CompleteSignIn(context.Background(), "state", "code", ""))
}

func (f *fixture) view() View {
	return f.adapter.View(f.now)
}

func TestAdapter_InitialState(t *testing.T) {
	f := newFixture(t)

	v := f.view()
	assert.Equal(t, ModeSignedOut, v.Mode)
	assert.False(t, v.SignedIn)
	assert.Empty(t, v.Rows)
	assert.True(t, v.Notice.IsZero())
}

func TestAdapter_StartupError(t *testing.T) {
	a := New(Config{StartupError: errors.New("google client id is not configured")})

	v := a.View(time.Now())
	assert.Equal(t, ModeError, v.Mode)
	assert.Equal(t, "Failed to initialize Google Sign-In: google client id is not configured", v.Notice.Message)
}

func TestAdapter_SignInFailure(t *testing.T) {
	f := newFixture(t)
	f.sessions.completeErr = &session.AuthError{Message: "access_denied"}

	err := f.adapter.CompleteSignIn(context.Background(), "s", "", "access_denied")
	require.Error(t, err)

	v := f.view()
	assert.Equal(t, ModeError, v.Mode)
	assert.Equal(t, "access_denied", v.Notice.Message)
	assert.False(t, v.SignedIn)
}

func TestAdapter_LoadWithoutSession(t *testing.T) {
	f := newFixture(t)

	err := f.adapter.Load(context.Background())
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	v := f.view()
	assert.Equal(t, ModeError, v.Mode)
	assert.Equal(t, MsgNoAccessToken, v.Notice.Message)
	assert.Empty(t, f.server.Requests())
}

func TestAdapter_LoadRendersRows(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.index.Add(context.Background(), "mine")

	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{
		Id:      "mine",
		Summary: "Planning",
		Start:   &gcal.EventDateTime{DateTime: "2024-01-02T15:04:00Z"},
	})
	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{
		Id:    "allday",
		Start: &gcal.EventDateTime{Date: "2024-01-05"},
	})
	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "notime", Summary: "Floating"})

	require.NoError(t, f.adapter.Load(context.Background()))

	v := f.view()
	assert.Equal(t, ModeIdle, v.Mode)
	assert.False(t, v.NoEvents)
	assert.Equal(t, []Row{
		{ID: "mine", Title: "Planning", When: "Tue Jan 2, 2024 15:04", Mine: true},
		{ID: "allday", Title: MsgNoTitle, When: "Fri Jan 5, 2024"},
		{ID: "notime", Title: "Floating", When: MsgNoTime},
	}, v.Rows)
}

func TestAdapter_LoadEmptyShowsSinglePlaceholder(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	require.NoError(t, f.adapter.Load(context.Background()))

	v := f.view()
	assert.Equal(t, ModeIdle, v.Mode)
	assert.True(t, v.NoEvents)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, MsgNoEvents, v.Rows[0].Title)
	assert.True(t, v.Notice.IsZero())
}

func TestAdapter_CreateRecordsIDAndReloads(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.server.SetNextID("abc123")

	err := f.adapter.Create(context.Background(), Form{
		Title: "Review",
		Start: "2024-01-01T10:00",
		End:   "2024-01-01T11:00",
	})
	require.NoError(t, err)

	assert.True(t, f.index.Contains(context.Background(), "abc123"))

	v := f.view()
	assert.Equal(t, ModeSuccess, v.Mode)
	assert.Equal(t, MsgEventCreated, v.Notice.Message)
	assert.Equal(t, Form{}, v.Form)
	assert.Equal(t, SuccessNoticeTTL, v.RefreshAfter)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, Row{ID: "abc123", Title: "Review", When: "Mon Jan 1, 2024 10:00", Mine: true}, v.Rows[0])

	reqs := f.server.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, http.MethodGet, reqs[1].Method)
}

func TestAdapter_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		form    Form
		wantMsg string
	}{
		{
			name:    "missing title",
			form:    Form{Start: "2024-01-01T10:00", End: "2024-01-01T11:00"},
			wantMsg: "Please fill title, start and end times.",
		},
		{
			name:    "missing end",
			form:    Form{Title: "x", Start: "2024-01-01T10:00"},
			wantMsg: "Please fill title, start and end times.",
		},
		{
			name:    "unparseable start",
			form:    Form{Title: "x", Start: "tomorrow", End: "2024-01-01T11:00"},
			wantMsg: "Please fill title, start and end times.",
		},
		{
			name:    "end before start",
			form:    Form{Title: "x", Start: "2024-01-01T10:00", End: "2024-01-01T09:00"},
			wantMsg: "End time must be after start time.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.signIn(t)

			err := f.adapter.Create(context.Background(), tt.form)

			var vErr *calendar.ValidationError
			require.ErrorAs(t, err, &vErr)

			v := f.view()
			assert.Equal(t, ModeError, v.Mode)
			assert.Equal(t, tt.wantMsg, v.Notice.Message)
			assert.Equal(t, tt.form, v.Form, "form is kept on failure")
			assert.Empty(t, f.server.Requests())
		})
	}
}

func TestAdapter_CreateChecksSessionBeforeForm(t *testing.T) {
	f := newFixture(t)
	form := Form{Title: "x", Start: "2024-01-01T10:00", End: "2024-01-01T09:00"}

	err := f.adapter.Create(context.Background(), form)
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	v := f.view()
	assert.Equal(t, ModeError, v.Mode)
	assert.Equal(t, MsgNoAccessToken, v.Notice.Message)
	assert.Equal(t, form, v.Form)
	assert.Empty(t, f.server.Requests())
}

func TestAdapter_DeleteRemovesRowAndIndexEntry(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "e1", Summary: "One"})
	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "e2", Summary: "Two"})
	f.index.Add(ctx, "e1")
	require.NoError(t, f.adapter.Load(ctx))

	require.NoError(t, f.adapter.Delete(ctx, "e1"))

	v := f.view()
	assert.Equal(t, ModeSuccess, v.Mode)
	assert.Equal(t, MsgEventDeleted, v.Notice.Message)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "e2", v.Rows[0].ID)
	assert.False(t, f.index.Contains(ctx, "e1"))
}

func TestAdapter_DeleteLastRowShowsPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "e1"})
	require.NoError(t, f.adapter.Load(ctx))
	require.NoError(t, f.adapter.Delete(ctx, "e1"))

	v := f.view()
	assert.True(t, v.NoEvents)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, MsgNoEvents, v.Rows[0].Title)
}

func TestAdapter_HTTPErrorsLeaveIndexUntouched(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		action     func(ctx context.Context, a *Adapter) error
		wantPrefix string
	}{
		{
			name:       "load",
			method:     http.MethodGet,
			action:     func(ctx context.Context, a *Adapter) error { return a.Load(ctx) },
			wantPrefix: "Error loading events: ",
		},
		{
			name:   "create",
			method: http.MethodPost,
			action: func(ctx context.Context, a *Adapter) error {
				return a.Create(ctx, Form{Title: "x", Start: "2024-01-01T10:00", End: "2024-01-01T11:00"})
			},
			wantPrefix: "Error creating event: ",
		},
		{
			name:       "delete",
			method:     http.MethodDelete,
			action:     func(ctx context.Context, a *Adapter) error { return a.Delete(ctx, "e1") },
			wantPrefix: "Error deleting event: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.signIn(t)
			ctx := context.Background()

			f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "e1", Summary: "One"})
			f.index.Add(ctx, "e1")
			require.NoError(t, f.adapter.Load(ctx))
			before := f.index.List(ctx)

			f.server.FailNext(tt.method, http.StatusInternalServerError, "")
			err := tt.action(ctx, f.adapter)

			var apiErr *calendar.APIError
			require.ErrorAs(t, err, &apiErr)

			v := f.view()
			assert.Equal(t, ModeError, v.Mode)
			assert.Contains(t, v.Notice.Message, tt.wantPrefix)
			assert.Contains(t, v.Notice.Message, "500")
			assert.Equal(t, before, f.index.List(ctx))
			require.Len(t, v.Rows, 1, "rendered row is kept")
			assert.Equal(t, "e1", v.Rows[0].ID)
		})
	}
}

func TestAdapter_SuccessNoticeExpires(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	ctx := context.Background()

	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "e1"})
	require.NoError(t, f.adapter.Load(ctx))
	require.NoError(t, f.adapter.Delete(ctx, "e1"))

	v := f.adapter.View(f.now.Add(SuccessNoticeTTL - time.Millisecond))
	assert.Equal(t, ModeSuccess, v.Mode)
	assert.Equal(t, MsgEventDeleted, v.Notice.Message)

	v = f.adapter.View(f.now.Add(SuccessNoticeTTL))
	assert.Equal(t, ModeIdle, v.Mode)
	assert.True(t, v.Notice.IsZero())
	assert.Zero(t, v.RefreshAfter)
}

func TestAdapter_ErrorNoticePersists(t *testing.T) {
	f := newFixture(t)

	_ = f.adapter.Load(context.Background())

	v := f.adapter.View(f.now.Add(time.Hour))
	assert.Equal(t, ModeError, v.Mode)
	assert.Equal(t, MsgNoAccessToken, v.Notice.Message)
}

func TestAdapter_SignOutClearsRows(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.server.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "e1"})
	require.NoError(t, f.adapter.Load(context.Background()))

	f.adapter.SignOut()

	v := f.view()
	assert.Equal(t, ModeSignedOut, v.Mode)
	assert.False(t, v.SignedIn)
	assert.Empty(t, v.Rows)
	assert.True(t, f.sessions.loggedOut)
}

func TestAdapter_ClearFormOnlyResetsFields(t *testing.T) {
	f := newFixture(t)

	_ = f.adapter.Create(context.Background(), Form{Title: "draft"})
	before := f.view()

	f.adapter.ClearForm()

	v := f.view()
	assert.Equal(t, Form{}, v.Form)
	assert.Equal(t, before.Mode, v.Mode)
	assert.Equal(t, before.Notice, v.Notice)
}

// blockingGateway holds ListEvents until release is closed.
type blockingGateway struct {
	calls     atomic.Int32
	cancelled atomic.Bool
	started   chan struct{}
	release   chan struct{}
}

func (g *blockingGateway) ListEvents(ctx context.Context, _ calendar.Credentials) ([]calendar.Event, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return []calendar.Event{}, nil
	case <-ctx.Done():
		g.cancelled.Store(true)
		return nil, ctx.Err()
	}
}

func (g *blockingGateway) CreateEvent(context.Context, calendar.Credentials, calendar.EventInput) (calendar.Event, error) {
	return calendar.Event{}, errors.New("unexpected")
}

func (g *blockingGateway) DeleteEvent(context.Context, calendar.Credentials, string) error {
	return errors.New("unexpected")
}

func TestAdapter_ConcurrentLoadsJoin(t *testing.T) {
	gw := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	sessions := &fakeSessions{current: session.New(&oauth2.Token{AccessToken: "tok"})}
	a := New(Config{Gateway: gw, Sessions: sessions, Index: index.New(index.NewMemoryStore())})

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = a.Load(context.Background())
	}()
	<-gw.started

	assert.True(t, a.View(time.Now()).Loading)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = a.Load(context.Background())
	}()

	// Give the second caller time to join before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), gw.calls.Load())
	assert.True(t, a.View(time.Now()).NoEvents)
}

func TestAdapter_AbandonedCallKeepsRunning(t *testing.T) {
	gw := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	sessions := &fakeSessions{current: session.New(&oauth2.Token{AccessToken: "tok"})}
	a := New(Config{Gateway: gw, Sessions: sessions, Index: index.New(index.NewMemoryStore())})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- a.Load(ctx) }()
	<-gw.started

	second := make(chan error, 1)
	go func() { second <- a.Load(context.Background()) }()

	// Give the second caller time to join before the first gives up.
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	// A retry while the call is still running joins it.
	retry := make(chan error, 1)
	go func() { retry <- a.Load(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	close(gw.release)
	require.NoError(t, <-second)
	require.NoError(t, <-retry)
	assert.Equal(t, int32(1), gw.calls.Load())
	assert.False(t, gw.cancelled.Load(), "the in-flight call must not see the caller's cancellation")

	v := a.View(time.Now())
	assert.Equal(t, ModeIdle, v.Mode)
	assert.True(t, v.NoEvents)

	require.NoError(t, a.Load(context.Background()))
	assert.Equal(t, int32(2), gw.calls.Load())
}
