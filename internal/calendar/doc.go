// Package calendar talks to the Google Calendar API v3 on behalf of the
// signed-in user.
//
// A Gateway performs exactly three operations against the primary calendar:
// list, create and delete. Each requires Credentials carrying a bearer token;
// without one the call fails with ErrNotAuthenticated and nothing is sent.
// Non-2xx responses become *APIError values carrying the HTTP status.
//
// Example usage:
//
//	gw := calendar.NewGateway(calendar.Config{Logger: logger})
//	events, err := gw.ListEvents(ctx, sess)
//	if err != nil {
//	    return err
//	}
package calendar
