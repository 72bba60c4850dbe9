package slackapi

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// StatusEmoji marks every status slackfm sets, and doubles as the marker
// for statuses it is allowed to clear.
const StatusEmoji = ":musical_note:"

// Client performs Web API calls on behalf of one linked user, using that
// user's token.
type Client struct {
	api *slack.Client
}

// UserClient builds a per-user Web API client from a user token obtained
// through ExchangeCode.
func (a *App) UserClient(token string) *Client {
	opts := []slack.Option{}
	if a.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(a.APIURL))
	}
	if a.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(a.HTTPClient))
	}
	return &Client{api: slack.New(token, opts...)}
}

// SetStatus sets the user's custom status to text with the now-playing
// emoji. No expiration is set: Last.fm reports no track duration, so the
// status stands until the next change event replaces or clears it.
func (c *Client) SetStatus(ctx context.Context, text string) error {
	if err := c.api.SetUserCustomStatusContext(ctx, text, StatusEmoji, 0); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// ClearStatus blanks the user's custom status.
func (c *Client) ClearStatus(ctx context.Context) error {
	if err := c.api.UnsetUserCustomStatusContext(ctx); err != nil {
		return fmt.Errorf("clear status: %w", err)
	}
	return nil
}
