package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calpane/internal/google"
	"github.com/teemow/calpane/internal/instrumentation"
	"github.com/teemow/calpane/internal/logging"
)

// PrimaryCalendar is the calendar id every operation targets.
const PrimaryCalendar = "primary"

// maxBodyInError bounds how much of a response body is kept in an APIError.
const maxBodyInError = 512

// Config configures a Gateway.
type Config struct {
	// HTTPClient is the base client; its transport carries the requests.
	// nil uses an HTTP/1.1 clone of the default transport.
	HTTPClient *http.Client

	// Endpoint overrides the API base URL (default: https://www.googleapis.com/calendar/v3/)
	Endpoint string

	// Location is used to interpret all-day dates (default: time.Local)
	Location *time.Location

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Gateway issues list, create and delete calls against the primary calendar.
// Every call is a single attempt: no retries, no backoff.
type Gateway struct {
	httpClient *http.Client
	endpoint   string
	location   *time.Location
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config) *Gateway {
	g := &Gateway{
		httpClient: cfg.HTTPClient,
		endpoint:   cfg.Endpoint,
		location:   cfg.Location,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if g.location == nil {
		g.location = time.Local
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = logging.WithComponent(g.logger, "calendar")
	return g
}

// service builds a Calendar service bound to the caller's token.
func (g *Gateway) service(ctx context.Context, creds Credentials) (*calendar.Service, error) {
	if creds == nil {
		return nil, ErrNotAuthenticated
	}
	token, ok := creds.AccessToken()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	opts := []option.ClientOption{option.WithHTTPClient(google.BearerClient(g.httpClient, token))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

// ValidateInput checks event input locally.
func ValidateInput(input EventInput) error {
	if strings.TrimSpace(input.Title) == "" || input.Start.IsZero() || input.End.IsZero() {
		return &ValidationError{Message: MsgMissingFields}
	}
	if !input.Start.Before(input.End) {
		return &ValidationError{Message: MsgEndBeforeStart}
	}
	return nil
}

// ListEvents lists the events of the primary calendar.
// An empty calendar yields an empty, non-nil slice.
func (g *Gateway) ListEvents(ctx context.Context, creds Credentials) ([]Event, error) {
	svc, err := g.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	var events []Event
	err = g.observe(ctx, instrumentation.OperationList, "", func(ctx context.Context) error {
		resp, err := svc.Events.List(PrimaryCalendar).Context(ctx).Do()
		if err != nil {
			return err
		}
		events = make([]Event, 0, len(resp.Items))
		for _, item := range resp.Items {
			events = append(events, toEvent(item, g.location))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent creates an event on the primary calendar and returns it with
// its remote-assigned id. Invalid input is rejected without a request.
func (g *Gateway) CreateEvent(ctx context.Context, creds Credentials, input EventInput) (Event, error) {
	if err := ValidateInput(input); err != nil {
		return Event{}, err
	}
	svc, err := g.service(ctx, creds)
	if err != nil {
		return Event{}, err
	}

	event := &calendar.Event{
		Summary:     strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description.OrEmpty()),
		Start:       &calendar.EventDateTime{DateTime: input.Start.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: input.End.UTC().Format(time.RFC3339)},
	}

	var created Event
	err = g.observe(ctx, instrumentation.OperationCreate, "", func(ctx context.Context) error {
		resp, err := svc.Events.Insert(PrimaryCalendar, event).Context(ctx).Do()
		if err != nil {
			return err
		}
		created = toEvent(resp, g.location)
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	if created.ID == "" {
		return Event{}, &APIError{Op: instrumentation.OperationCreate, StatusCode: http.StatusOK, Body: "response carried no event id"}
	}
	return created, nil
}

// DeleteEvent deletes an event from the primary calendar.
// 204 No Content or any other 2xx response is success.
func (g *Gateway) DeleteEvent(ctx context.Context, creds Credentials, eventID string) error {
	if eventID == "" {
		return &ValidationError{Message: "event id is required"}
	}
	svc, err := g.service(ctx, creds)
	if err != nil {
		return err
	}

	return g.observe(ctx, instrumentation.OperationDelete, eventID, func(ctx context.Context) error {
		return svc.Events.Delete(PrimaryCalendar, eventID).Context(ctx).Do()
	})
}

// observe runs one API call inside a span, records metrics and logs, and
// translates failures into *APIError.
func (g *Gateway) observe(ctx context.Context, op, eventID string, call func(context.Context) error) error {
	var attrs []attribute.KeyValue
	if eventID != "" {
		attrs = append(attrs, attribute.String(instrumentation.SpanAttrEventID, eventID))
	}
	ctx, span := instrumentation.StartCalendarSpan(ctx, op, attrs...)
	defer span.End()

	logger := logging.WithOperation(g.logger, op)
	if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
		logger = logger.With(logging.TraceID(traceID))
	}
	start := time.Now()

	err := call(ctx)
	duration := time.Since(start)

	if err == nil {
		g.metrics.RecordCalendarOperation(ctx, op, instrumentation.StatusSuccess, http.StatusOK, duration)
		instrumentation.SetSpanSuccess(span)
		logger.Debug("calendar call finished",
			logging.Status(logging.StatusSuccess),
			slog.Duration(logging.KeyDuration, duration))
		return nil
	}

	apiErr := translate(op, err)
	g.metrics.RecordCalendarOperation(ctx, op, instrumentation.StatusError, apiErr.StatusCode, duration)
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrHTTPStatus, apiErr.StatusCode))
	instrumentation.SetSpanError(span, apiErr)
	logger.Warn("calendar call finished",
		logging.Status(logging.StatusError),
		logging.HTTPStatus(apiErr.StatusCode),
		slog.Duration(logging.KeyDuration, duration),
		logging.Err(apiErr))
	return apiErr
}

func translate(op string, err error) *APIError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Message
		if body == "" {
			body = strings.TrimSpace(gerr.Body)
		}
		if len(body) > maxBodyInError {
			body = body[:maxBodyInError]
		}
		return &APIError{Op: op, StatusCode: gerr.Code, Body: body, Err: err}
	}
	return &APIError{Op: op, Err: err}
}
