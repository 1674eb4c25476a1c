package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// OAUTH 2.0 AUTHORIZATION CODE FLOW (GitHub flavour):
//  1. The frontend sends the browser to github.com/login/oauth/authorize with
//     our client_id and a state envelope.
//  2. The user approves; GitHub redirects to GET /github/callback?code&state.
//  3. We POST {client_id, client_secret, code} to /login/oauth/access_token
//     (server to server, the secret never reaches the browser).
//  4. The returned access token is used for /user and /user/repos, and stored
//     sealed so later requests can act on the user's behalf.
//
// golang.org/x/oauth2 performs step 3. GitHub answers a bad or reused code
// with HTTP 200 and {"error": "bad_verification_code"}; oauth2 turns that into
// a *oauth2.RetrieveError, and a body without access_token into a plain error.
// Both become ErrNoToken here.

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.cfg.OAuthBaseURL + "/login/oauth/authorize",
			TokenURL: c.cfg.OAuthBaseURL + "/login/oauth/access_token",
			// Send client_id/client_secret in the POST body, as GitHub documents.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ExchangeCode trades an authorization code for a GitHub access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrNoToken)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	// oauth2 picks its HTTP client from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: acceptJSON{base: c.http.Transport},
		Timeout:   c.http.Timeout,
	})

	tok, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			status := 0
			if rErr.Response != nil {
				status = rErr.Response.StatusCode
			}
			c.logger.Warn("github token exchange rejected",
				slog.Int("status", status),
				slog.String("errorCode", rErr.ErrorCode),
			)
		}
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoToken
	}

	return tok.AccessToken, nil
}

// acceptJSON asks the token endpoint for JSON instead of its default
// form-encoded body.
type acceptJSON struct {
	base http.RoundTripper
}

func (t acceptJSON) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	return base.RoundTrip(req)
}
