package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
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
	"github.com/teemow/calpane/internal/ui"
)

// fakeAdapter records the actions it receives.
type fakeAdapter struct {
	view      ui.View
	signInURL string
	signInErr error
	calls     []string
	form      ui.Form
	deleted   string
	callback  [3]string
}

func (f *fakeAdapter) View(time.Time) ui.View { return f.view }

func (f *fakeAdapter) SignIn() (string, error) {
	f.calls = append(f.calls, "signin")
	return f.signInURL, f.signInErr
}

func (f *fakeAdapter) CompleteSignIn(_ context.Context, state, code, providerErr string) error {
	f.calls = append(f.calls, "callback")
	f.callback = [3]string{state, code, providerErr}
	return nil
}

func (f *fakeAdapter) SignOut() { f.calls = append(f.calls, "signout") }

func (f *fakeAdapter) Load(context.Context) error {
	f.calls = append(f.calls, "load")
	return nil
}

func (f *fakeAdapter) Create(_ context.Context, form ui.Form) error {
	f.calls = append(f.calls, "create")
	f.form = form
	return nil
}

func (f *fakeAdapter) Delete(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete")
	f.deleted = id
	return nil
}

func (f *fakeAdapter) ClearForm() { f.calls = append(f.calls, "clear") }

func newTestServer(t *testing.T, adapter Adapter) http.Handler {
	t.Helper()
	s, err := New(Config{Addr: "localhost:0", BaseURL: "http://localhost:8080", Adapter: adapter})
	require.NoError(t, err)
	return s.Handler()
}

func do(h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresAdapter(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestActionsRedirectHome(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		form     url.Values
		wantCall string
	}{
		{name: "sign out", method: http.MethodPost, target: "/signout", wantCall: "signout"},
		{name: "load", method: http.MethodPost, target: "/events/load", wantCall: "load"},
		{name: "create", method: http.MethodPost, target: "/events", form: url.Values{"title": {"x"}}, wantCall: "create"},
		{name: "delete", method: http.MethodPost, target: "/events/e1/delete", wantCall: "delete"},
		{name: "clear form", method: http.MethodPost, target: "/form/clear", wantCall: "clear"},
		{name: "callback", method: http.MethodGet, target: "/oauth/callback?state=s&code=c", wantCall: "callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &fakeAdapter{}
			rec := do(newTestServer(t, adapter), tt.method, tt.target, tt.form)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/", rec.Header().Get("Location"))
			assert.Equal(t, []string{tt.wantCall}, adapter.calls)
		})
	}
}

func TestSignInRedirectsToProvider(t *testing.T) {
	adapter := &fakeAdapter{signInURL: "https://accounts.google.com/o/oauth2/auth?state=abc"}

	rec := do(newTestServer(t, adapter), http.MethodPost, "/signin", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, adapter.signInURL, rec.Header().Get("Location"))
}

func TestSignInUnavailableRedirectsHome(t *testing.T) {
	adapter := &fakeAdapter{signInErr: errors.New("not configured")}

	rec := do(newTestServer(t, adapter), http.MethodPost, "/signin", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallbackPassesProviderError(t *testing.T) {
	adapter := &fakeAdapter{}

	do(newTestServer(t, adapter), http.MethodGet, "/oauth/callback?state=s&error=access_denied&error_description=denied", nil)

	assert.Equal(t, [3]string{"s", "", "access_denied: denied"}, adapter.callback)
}

func TestCreatePassesFormFields(t *testing.T) {
	adapter := &fakeAdapter{}

	do(newTestServer(t, adapter), http.MethodPost, "/events", url.Values{
		"title":       {"Lunch"},
		"description": {"with team"},
		"start":       {"2024-01-01T12:00"},
		"end":         {"2024-01-01T13:00"},
	})

	assert.Equal(t, ui.Form{
		Title:       "Lunch",
		Description: "with team",
		Start:       "2024-01-01T12:00",
		End:         "2024-01-01T13:00",
	}, adapter.form)
}

func TestDeleteDecodesEventID(t *testing.T) {
	adapter := &fakeAdapter{}

	do(newTestServer(t, adapter), http.MethodPost, "/events/a%20b/delete", nil)

	assert.Equal(t, "a b", adapter.deleted)
}

func TestCrossOriginPostRejected(t *testing.T) {
	adapter := &fakeAdapter{}
	h := newTestServer(t, adapter)

	req := httptest.NewRequest(http.MethodPost, "/events/e1/delete", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, adapter.calls)

	req = httptest.NewRequest(http.MethodPost, "/events/e1/delete", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	rec := do(newTestServer(t, &fakeAdapter{}), http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexRendering(t *testing.T) {
	tests := []struct {
		name        string
		view        ui.View
		contains    []string
		notContains []string
	}{
		{
			name:        "signed out",
			view:        ui.View{Mode: ui.ModeSignedOut},
			contains:    []string{`action="/signin"`},
			notContains: []string{`action="/signout"`, `http-equiv="refresh"`},
		},
		{
			name: "startup error",
			view: ui.View{
				Mode:   ui.ModeError,
				Notice: ui.Notice{Kind: ui.NoticeError, Message: "Failed to initialize Google Sign-In: boom"},
			},
			contains: []string{`notice-error`, "Failed to initialize Google Sign-In: boom"},
		},
		{
			name: "signed in with rows",
			view: ui.View{
				Mode:     ui.ModeIdle,
				SignedIn: true,
				Rows: []ui.Row{
					{ID: "e1", Title: "Standup", When: "Mon Jan 1, 2024 09:00", Mine: true},
					{ID: "e2", Title: "<script>", When: "No time"},
				},
				Form: ui.Form{Title: "draft"},
			},
			contains: []string{
				`action="/signout"`,
				`action="/events/e1/delete"`,
				`action="/events/e2/delete"`,
				"created here",
				"&lt;script&gt;",
				`value="draft"`,
			},
			notContains: []string{"<script>"},
		},
		{
			name: "no events",
			view: ui.View{
				Mode:     ui.ModeIdle,
				SignedIn: true,
				NoEvents: true,
				Rows:     []ui.Row{{Title: ui.MsgNoEvents}},
			},
			contains:    []string{"No events found"},
			notContains: []string{"/delete"},
		},
		{
			name: "success notice refreshes",
			view: ui.View{
				Mode:         ui.ModeSuccess,
				SignedIn:     true,
				Notice:       ui.Notice{Kind: ui.NoticeSuccess, Message: ui.MsgEventDeleted},
				RefreshAfter: 3500 * time.Millisecond,
			},
			contains: []string{`notice-success`, "Event deleted", `<meta http-equiv="refresh" content="4">`},
		},
		{
			name:     "loading",
			view:     ui.View{Mode: ui.ModeLoading, SignedIn: true, Loading: true},
			contains: []string{"Loading", "disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(t, &fakeAdapter{view: tt.view}), http.MethodGet, "/", nil)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

			body := rec.Body.String()
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestHealthEndpointsRegistered(t *testing.T) {
	h := newTestServer(t, &fakeAdapter{})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/readyz", nil).Code)
}

// staticSessions always holds one live session.
type staticSessions struct{}

func (staticSessions) Begin() (string, error) { return "https://accounts.example.com", nil }

func (staticSessions) Complete(context.Context, string, string, string) (*session.Session, error) {
	return session.New(&oauth2.Token{AccessToken: "tok"}), nil
}

func (staticSessions) Logout() {}

func (staticSessions) Current() (*session.Session, error) {
	return session.New(&oauth2.Token{AccessToken: "tok"}), nil
}

func TestEndToEnd_CreateThenDelete(t *testing.T) {
	api := calendartest.NewServer()
	t.Cleanup(api.Close)
	api.SetNextID("abc123")
	api.AddEvent(calendar.PrimaryCalendar, &gcal.Event{Id: "other", Summary: "Existing"})

	idx := index.New(index.NewMemoryStore())
	adapter := ui.New(ui.Config{
		Gateway: calendar.NewGateway(calendar.Config{
			HTTPClient: api.Client(),
			Endpoint:   api.Endpoint(),
			Location:   time.UTC,
		}),
		Sessions: staticSessions{},
		Index:    idx,
		Location: time.UTC,
	})
	h := newTestServer(t, adapter)
	ctx := context.Background()

	do(h, http.MethodGet, "/oauth/callback?state=s&code=c", nil)
	rec := do(h, http.MethodPost, "/events", url.Values{
		"title": {"Review"},
		"start": {"2024-01-01T10:00"},
		"end":   {"2024-01-01T11:00"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, idx.Contains(ctx, "abc123"))

	body := do(h, http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, body, "Event created. It will appear in your Google Calendar.")
	assert.Contains(t, body, "Review")
	assert.Contains(t, body, "created here")
	assert.Contains(t, body, `http-equiv="refresh"`)

	do(h, http.MethodPost, "/events/abc123/delete", nil)
	assert.False(t, idx.Contains(ctx, "abc123"))

	body = do(h, http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, body, "Event deleted")
	assert.NotContains(t, body, "/events/abc123/delete")
	assert.Contains(t, body, "Existing")
}
