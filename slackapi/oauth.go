// Package slackapi wraps the pieces of the Slack platform slackfm talks
// to: the OAuth v2 install flow that yields a per-user token, and the Web
// API calls that set and clear a user's custom status with that token.
package slackapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
	"golang.org/x/oauth2"
)

// endpoint is Slack's OAuth v2 endpoint pair.
var endpoint = oauth2.Endpoint{
	AuthURL:  "https://slack.com/oauth/v2/authorize",
	TokenURL: "https://slack.com/api/oauth.v2.access",
}

// userScopes are the user-token scopes needed to read and write a user's
// custom status.
const userScopes = "users.profile:read,users.profile:write"

// App holds the Slack application credentials and performs the
// account-linking flows: minting CSRF states, building authorize URLs,
// and exchanging callback codes for user tokens.
type App struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIURL       string       // Web API base override for tests; must end in "/"
	HTTPClient   *http.Client // defaults to http.DefaultClient
}

func (a *App) http() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

// NewState mints a CSRF state for one link attempt: 16 random bytes,
// hex-encoded. States are single-use; the record that carries one drops
// it at authorization.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AuthorizeURL builds the browser URL that asks the user to install the
// app with the commands bot scope and grant the profile user scopes.
func (a *App) AuthorizeURL(state string) string {
	conf := &oauth2.Config{
		ClientID:    a.ClientID,
		Endpoint:    endpoint,
		RedirectURL: a.RedirectURI,
		Scopes:      []string{"commands"},
	}
	return conf.AuthCodeURL(state, oauth2.SetAuthURLParam("user_scope", userScopes))
}

// ExchangeCode trades an authorization code for the authed user's ID and
// user token. Called exactly once per successful link flow.
func (a *App) ExchangeCode(ctx context.Context, code string) (userID, userToken string, err error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, a.http(), a.ClientID, a.ClientSecret, code, a.RedirectURI)
	if err != nil {
		return "", "", fmt.Errorf("oauth exchange: %w", err)
	}
	if resp.AuthedUser.ID == "" || resp.AuthedUser.AccessToken == "" {
		return "", "", fmt.Errorf("oauth exchange: response carries no user token (granted scopes: %q)", resp.AuthedUser.Scope)
	}
	return resp.AuthedUser.ID, resp.AuthedUser.AccessToken, nil
}
