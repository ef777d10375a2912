package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
)

// CalendarScope is the single OAuth scope requested: full access to the user's calendars.
const CalendarScope = calendar.CalendarScope

// CallbackPath is the path on the local server that receives the authorization code.
const CallbackPath = "/oauth/callback"

// Authenticator runs the provider side of the authorization-code flow.
// *oauth2.Config satisfies it.
type Authenticator interface {
	// AuthCodeURL returns the provider URL the user is sent to for consent.
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string

	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// OAuthConfig returns the OAuth2 configuration for the Calendar API.
// redirectBase is the public base URL of the local server, e.g. "http://localhost:8080".
func OAuthConfig(clientID, clientSecret, redirectBase string) (*oauth2.Config, error) {
	if clientID == "" {
		return nil, fmt.Errorf("google client id is not configured")
	}

	redirect, err := url.JoinPath(redirectBase, CallbackPath)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect base URL: %w", err)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       []string{CalendarScope},
	}, nil
}

// BearerClient returns an HTTP client that sends accessToken as a bearer
// credential on every request. The token is never refreshed; when it expires
// the user signs in again. A nil base uses an HTTP/1.1-only clone of the
// default transport.
func BearerClient(base *http.Client, accessToken string) *http.Client {
	var rt http.RoundTripper
	if base != nil && base.Transport != nil {
		rt = base.Transport
	} else {
		// Force HTTP/1.1 by disabling HTTP/2
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ForceAttemptHTTP2 = false
		rt = t
	}

	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: rt,
		},
	}
	if base != nil {
		client.Timeout = base.Timeout
	}
	return client
}
