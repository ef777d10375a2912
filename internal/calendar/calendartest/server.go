// Package calendartest provides a fake Google Calendar API server for tests.
//
// It serves the list, insert and delete endpoints of the events collection,
// keeps events in memory per calendar and records every request it receives.
//
//	srv := calendartest.NewServer()
//	defer srv.Close()
//
//	gw := calendar.NewGateway(calendar.Config{Endpoint: srv.Endpoint()})
package calendartest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	calendar "google.golang.org/api/calendar/v3"
)

// Request is a recorded request.
type Request struct {
	Method        string
	Path          string
	EscapedPath   string
	Authorization string
	Body          []byte
}

type failure struct {
	status int
	body   string
}

// Server is a fake Calendar API.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	events   map[string][]*calendar.Event
	requests []Request
	failures map[string]failure
	nextIDs  []string
	seq      int

	deleteStatus int
}

// NewServer starts a fake Calendar API server.
func NewServer() *Server {
	s := &Server{
		events:       make(map[string][]*calendar.Event),
		failures:     make(map[string]failure),
		deleteStatus: http.StatusNoContent,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// URL is the server's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Endpoint is the value to pass as the API endpoint override.
func (s *Server) Endpoint() string {
	return s.srv.URL + "/"
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// AddEvent pre-populates an event.
func (s *Server) AddEvent(calendarID string, event *calendar.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[calendarID] = append(s.events[calendarID], event)
}

// Events returns the stored events of a calendar.
func (s *Server) Events(calendarID string) []*calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*calendar.Event(nil), s.events[calendarID]...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// FailNext makes the next request with the given method fail with status.
// An empty body produces a standard JSON error envelope.
func (s *Server) FailNext(method string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = failure{status: status, body: body}
}

// SetNextID sets the id assigned to the next inserted event.
func (s *Server) SetNextID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIDs = append(s.nextIDs, id)
}

// SetDeleteStatus sets the 2xx status answered by a successful delete (default 204).
func (s *Server) SetDeleteStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteStatus = status
}

// Reset clears events, recorded requests and pending failures.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]*calendar.Event)
	s.failures = make(map[string]failure)
	s.requests = nil
	s.nextIDs = nil
	s.deleteStatus = http.StatusNoContent
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		EscapedPath:   r.URL.EscapedPath(),
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	f, failing := s.failures[r.Method]
	delete(s.failures, r.Method)
	s.mu.Unlock()

	if failing {
		writeError(w, f.status, f.body)
		return
	}

	calendarID, eventID, ok := parsePath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "")
		return
	}

	switch {
	case r.Method == http.MethodGet && eventID == "":
		s.list(w, calendarID)
	case r.Method == http.MethodPost && eventID == "":
		s.insert(w, calendarID, body)
	case r.Method == http.MethodDelete && eventID != "":
		s.delete(w, calendarID, eventID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "")
	}
}

// parsePath extracts ids from [/calendar/v3]/calendars/{calendarId}/events[/{eventId}].
func parsePath(path string) (calendarID, eventID string, ok bool) {
	path = strings.TrimPrefix(path, "/calendar/v3")
	rest, found := strings.CutPrefix(path, "/calendars/")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[1] != "events" {
		return "", "", false
	}
	if len(parts) == 3 {
		eventID = parts[2]
	}
	return parts[0], eventID, true
}

func (s *Server) list(w http.ResponseWriter, calendarID string) {
	s.mu.Lock()
	items := append([]*calendar.Event{}, s.events[calendarID]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &calendar.Events{Kind: "calendar#events", Items: items})
}

func (s *Server) insert(w http.ResponseWriter, calendarID string, body []byte) {
	var event calendar.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}

	s.mu.Lock()
	if len(s.nextIDs) > 0 {
		event.Id = s.nextIDs[0]
		s.nextIDs = s.nextIDs[1:]
	} else {
		s.seq++
		event.Id = fmt.Sprintf("evt%d", s.seq)
	}
	event.Kind = "calendar#event"
	event.Status = "confirmed"
	s.events[calendarID] = append(s.events[calendarID], &event)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &event)
}

func (s *Server) delete(w http.ResponseWriter, calendarID, eventID string) {
	s.mu.Lock()
	events := s.events[calendarID]
	found := false
	status := s.deleteStatus
	for i, e := range events {
		if e.Id == eventID {
			s.events[calendarID] = append(events[:i:i], events[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "")
		return
	}
	w.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body string) {
	if body == "" {
		body = fmt.Sprintf(`{"error":{"code":%d,"message":%q}}`, status, http.StatusText(status))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
