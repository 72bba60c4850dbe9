package lastfm

// Event is one change in a user's now-playing state. Exactly one
// interpretation applies:
//   - Err non-nil: the poll behind this tick failed; Track is nil and the
//     previous state still stands.
//   - Err nil, Track non-nil: a different track started playing.
//   - Err nil, Track nil: playback stopped.
type Event struct {
	Track *Track
	Err   error
}

// Tracker turns repeated now-playing samples into deduplicated change
// events. It holds the last emitted snapshot; feed it every poll result
// via Observe. The zero value starts with an empty baseline, so the first
// playing sample always produces an event.
type Tracker struct {
	last *Track
}

// Observe compares a freshly polled snapshot (nil = nothing playing)
// against the retained one. It returns the event to emit and whether to
// emit at all; non-changes return false so callers stay silent while the
// same track keeps playing.
func (tk *Tracker) Observe(current *Track) (Event, bool) {
	switch {
	case current == nil && tk.last == nil:
		return Event{}, false
	case current == nil:
		tk.last = nil
		return Event{}, true
	case tk.last == nil:
		tk.last = current
		return Event{Track: current}, true
	case sameTrack(current, tk.last):
		return Event{}, false
	default:
		tk.last = current
		return Event{Track: current}, true
	}
}

// sameTrack compares by the stable ID when the current track has one.
// Tracks without an ID (unscrobbled uploads, radio) fall back to title
// equality, otherwise every tick would look like a change.
func sameTrack(current, last *Track) bool {
	if current.ID != "" {
		return current.ID == last.ID
	}
	return current.Title == last.Title
}
