package lastfm

import (
	"context"
	"time"

	"github.com/Suyashtnt/slackfm/telemetry"
)

// DefaultPollInterval matches the cadence Last.fm tolerates comfortably
// for per-user recent-tracks polling.
const DefaultPollInterval = 10 * time.Second

// UserSource provides the username to poll. The stream re-reads it every
// tick, so an implementation backed by mutable state (a linked-user
// record) lets renames take effect without restarting the stream.
type UserSource interface {
	TrackedUsername() string
}

// Username is a fixed UserSource for callers polling a known name.
type Username string

// TrackedUsername implements UserSource.
func (u Username) TrackedUsername() string { return string(u) }

// StreamNowPlaying polls the user's now-playing state every interval and
// delivers deduplicated change events on the returned channel. The first
// observation happens one full interval after the call. Fetch failures
// are delivered as error events and polling continues; the channel closes
// only when ctx is cancelled. Each call starts a fresh comparison
// baseline.
func (c *Client) StreamNowPlaying(ctx context.Context, src UserSource, interval time.Duration) <-chan Event {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	events := make(chan Event)

	go func() {
		defer close(events)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var tracker Tracker
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, err := c.NowPlaying(ctx, src.TrackedUsername())
			telemetry.IncPoll(err != nil)
			if err != nil {
				select {
				case events <- Event{Err: err}:
				case <-ctx.Done():
					return
				}
				continue
			}

			ev, changed := tracker.Observe(current)
			if !changed {
				continue
			}
			telemetry.IncTrackChange()
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}
