// Package lastfm contains a minimal client for the Last.fm web API plus
// the change-detection machinery that turns its polling-only
// recent-tracks endpoint into a stream of now-playing change events.
package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the public Last.fm API root.
const DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// placeholderImage stands in when a track carries no usable artwork.
const placeholderImage = "https://via.placeholder.com/64"

// APIError is an error payload returned by the Last.fm API
// (https://www.last.fm/api/errorcodes).
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm api error %d: %s", e.Code, e.Message)
}

// apiErrUserNotFound is Last.fm error code 6, "User not found".
const apiErrUserNotFound = 6

// Track is one observed now-playing snapshot. ID is the MusicBrainz
// identifier and is blank for unscrobbled or radio tracks, which is why
// change detection falls back to the title (see Tracker).
type Track struct {
	ID         string
	Title      string
	Artist     string
	Album      string
	ImageURL   string
	URL        string
	NowPlaying bool
}

// Client provides the minimal Last.fm methods slackfm needs: recent
// tracks for polling and user lookup for link-time validation.
type Client struct {
	APIKey     string
	BaseURL    string // defaults to DefaultBaseURL
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

type wireTrack struct {
	Name   string `json:"name"`
	MBID   string `json:"mbid"`
	URL    string `json:"url"`
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Album struct {
		Text string `json:"#text"`
	} `json:"album"`
	Image []struct {
		Size string `json:"size"`
		Text string `json:"#text"`
	} `json:"image"`
	Attr struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

func (w wireTrack) track() Track {
	t := Track{
		ID:         w.MBID,
		Title:      w.Name,
		Artist:     w.Artist.Text,
		Album:      w.Album.Text,
		URL:        w.URL,
		ImageURL:   placeholderImage,
		NowPlaying: w.Attr.NowPlaying == "true",
	}
	for _, img := range w.Image {
		if img.Size == "medium" && img.Text != "" {
			t.ImageURL = img.Text
		}
	}
	return t
}

// RecentTracks fetches the user's recent listening history, most recent
// first. A track currently being played is flagged NowPlaying.
func (c *Client) RecentTracks(ctx context.Context, user string) ([]Track, error) {
	if user == "" {
		return nil, fmt.Errorf("user empty")
	}
	var body struct {
		RecentTracks struct {
			Track []wireTrack `json:"track"`
		} `json:"recenttracks"`
	}
	params := url.Values{}
	params.Set("method", "user.getrecenttracks")
	params.Set("user", user)
	if err := c.get(ctx, params, &body); err != nil {
		return nil, err
	}
	out := make([]Track, 0, len(body.RecentTracks.Track))
	for _, w := range body.RecentTracks.Track {
		out = append(out, w.track())
	}
	return out, nil
}

// NowPlaying returns the track the user is listening to right now, or nil
// when nothing is playing.
func (c *Client) NowPlaying(ctx context.Context, user string) (*Track, error) {
	tracks, err := c.RecentTracks(ctx, user)
	if err != nil {
		return nil, err
	}
	for i := range tracks {
		if tracks[i].NowPlaying {
			return &tracks[i], nil
		}
	}
	return nil, nil
}

// VerifyUser reports whether the username resolves to a Last.fm account.
// A definitive "no such user" answer from the API yields (false, nil);
// transient failures yield (false, err) so the caller chooses how
// conservatively to treat them.
func (c *Client) VerifyUser(ctx context.Context, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	var body struct {
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	params := url.Values{}
	params.Set("method", "user.getinfo")
	params.Set("user", user)
	if err := c.get(ctx, params, &body); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == apiErrUserNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// get performs one API call. Last.fm reports failures as a JSON
// {"error":N,"message":...} payload, sometimes with a 2xx status, so the
// body is checked for that shape before decoding into out.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("api key empty")
	}
	params.Set("api_key", c.APIKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base(), nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiErr struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		return &APIError{Code: apiErr.Error, Message: apiErr.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lastfm status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
