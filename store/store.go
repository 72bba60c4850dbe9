// Package store persists slackfm's linked-user records. The whole record
// set lives in one passphrase-encrypted JSON snapshot on disk; every
// mutation rewrites the file atomically (temp file + rename), so the store
// is a last-writer-wins snapshot rather than a transaction log.
//
// Concurrency follows a two-level discipline: a store-level mutex guards
// the map and serializes structural changes and persists, while each
// record carries its own lock for field access, so one user's worker never
// contends with another's. Lock order is always store before record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Suyashtnt/slackfm/crypto"
)

// ErrUnknownUser is returned by record mutations addressing a Slack user
// ID that has no record in the store.
var ErrUnknownUser = errors.New("unknown user")

// Record is one linked user: a Slack identity joined to the Last.fm
// account it tracks and its authorization state. A record is either
// pending (holds a CSRF token, waiting for the OAuth callback) or
// authorized (holds a Slack user token); never both.
//
// Records are shared by pointer between the store and at most one running
// worker. All field access goes through the record's lock so a worker
// observes username changes made while it runs.
type Record struct {
	mu        sync.Mutex
	id        string // Slack user ID, immutable once created
	username  string // Last.fm username being tracked
	csrf      string // pending-authorization CSRF token, cleared on promotion
	token     string // Slack user token, set on promotion
	createdAt time.Time
	updatedAt time.Time
}

// NewPending creates a record awaiting OAuth authorization.
func NewPending(slackUserID, lastfmUsername, csrfToken string) *Record {
	now := time.Now().UTC()
	return &Record{
		id:        slackUserID,
		username:  lastfmUsername,
		csrf:      csrfToken,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the Slack user ID. Immutable, safe without the lock.
func (r *Record) ID() string { return r.id }

// TrackedUsername returns the Last.fm username currently being tracked.
func (r *Record) TrackedUsername() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.username
}

// Token returns the Slack user token, or "" while authorization is pending.
func (r *Record) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// Authorized reports whether the record holds a Slack user token.
func (r *Record) Authorized() bool {
	return r.Token() != ""
}

// persistedRecord is the on-disk JSON shape of one record.
type persistedRecord struct {
	SlackUserID    string    `json:"slack_user_id"`
	LastFMUsername string    `json:"lastfm_username"`
	CSRFToken      string    `json:"csrf_token,omitempty"`
	SlackToken     string    `json:"slack_token,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// snapshot copies the record's fields under its lock.
func (r *Record) snapshot() persistedRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return persistedRecord{
		SlackUserID:    r.id,
		LastFMUsername: r.username,
		CSRFToken:      r.csrf,
		SlackToken:     r.token,
		CreatedAt:      r.createdAt,
		UpdatedAt:      r.updatedAt,
	}
}

// Store holds every linked-user record and owns the encrypted snapshot
// file. Construct with Open; the zero value is not usable.
type Store struct {
	mu     sync.Mutex
	path   string
	sealer crypto.Sealer
	users  map[string]*Record
}

// Open loads the store from path, decrypting with a key derived from
// passphrase. An absent file yields an empty store; a present file that
// cannot be decrypted or decoded is an error, so a wrong passphrase never
// silently masquerades as a fresh install.
func Open(path, passphrase string) (*Store, error) {
	sealer, err := crypto.NewPassphraseSealer(passphrase)
	if err != nil {
		return nil, fmt.Errorf("init sealer: %w", err)
	}

	s := &Store{
		path:   path,
		sealer: sealer,
		users:  make(map[string]*Record),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	plaintext, err := sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("decrypt store file %s: %w", path, err)
	}

	var onDisk map[string]persistedRecord
	if err := json.Unmarshal(plaintext, &onDisk); err != nil {
		return nil, fmt.Errorf("decode store file %s: %w", path, err)
	}

	for id, pr := range onDisk {
		s.users[id] = &Record{
			id:        pr.SlackUserID,
			username:  pr.LastFMUsername,
			csrf:      pr.CSRFToken,
			token:     pr.SlackToken,
			createdAt: pr.CreatedAt,
			updatedAt: pr.UpdatedAt,
		}
		if pr.SlackUserID == "" {
			s.users[id].id = id
		}
	}

	return s, nil
}

// Len returns the number of linked-user records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Get returns the shared record for a Slack user ID, or nil.
func (s *Store) Get(slackUserID string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[slackUserID]
}

// FindByPendingToken returns the record whose pending CSRF token matches,
// or nil. Authorized records never match: their token is cleared at
// promotion, so a spent token cannot be replayed.
func (s *Store) FindByPendingToken(token string) *Record {
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		rec.mu.Lock()
		match := rec.csrf == token && rec.token == ""
		rec.mu.Unlock()
		if match {
			return rec
		}
	}
	return nil
}

// Range calls fn for each record until fn returns false. It iterates over
// a snapshot taken under the store lock, so fn may call back into the
// store (including Remove) without deadlocking.
func (s *Store) Range(fn func(rec *Record) bool) {
	s.mu.Lock()
	recs := make([]*Record, 0, len(s.users))
	for _, rec := range s.users {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	for _, rec := range recs {
		if !fn(rec) {
			return
		}
	}
}

// Add inserts or replaces the record for its Slack user ID and persists.
// A persist failure leaves the in-memory insert in place; see Persist.
func (s *Store) Add(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[rec.ID()] = rec
	return s.persistLocked()
}

// Remove deletes the record for a Slack user ID and persists, returning
// the removed record or nil if none existed.
func (s *Store) Remove(slackUserID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[slackUserID]
	if !ok {
		return nil, nil
	}
	delete(s.users, slackUserID)
	return rec, s.persistLocked()
}

// SetUsername updates the tracked Last.fm username on an existing record
// and persists. A running worker for this user picks the change up on its
// next poll tick.
func (s *Store) SetUsername(slackUserID, lastfmUsername string) error {
	rec := s.Get(slackUserID)
	if rec == nil {
		return fmt.Errorf("set username for %s: %w", slackUserID, ErrUnknownUser)
	}

	rec.mu.Lock()
	rec.username = lastfmUsername
	rec.updatedAt = time.Now().UTC()
	rec.mu.Unlock()

	return s.Persist()
}

// Authorize promotes a pending record: stores the Slack user token,
// clears the CSRF token so it can never be looked up again, and persists.
// The transition is one-way; records never return to pending.
func (s *Store) Authorize(slackUserID, slackToken string) error {
	rec := s.Get(slackUserID)
	if rec == nil {
		return fmt.Errorf("authorize %s: %w", slackUserID, ErrUnknownUser)
	}

	rec.mu.Lock()
	rec.token = slackToken
	rec.csrf = ""
	rec.updatedAt = time.Now().UTC()
	rec.mu.Unlock()

	return s.Persist()
}

// Persist serializes the whole record set, encrypts it, and atomically
// replaces the snapshot file. On failure the in-memory state is NOT
// rolled back: the caller gets the error, the divergence is logged, and
// the next successful mutation rewrites the full snapshot and heals the
// file.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Rekey re-encrypts the snapshot under a new passphrase. Records are
// untouched; only the sealing key changes.
func (s *Store) Rekey(passphrase string) error {
	sealer, err := crypto.NewPassphraseSealer(passphrase)
	if err != nil {
		return fmt.Errorf("init sealer: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealer = sealer
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	out := make(map[string]persistedRecord, len(s.users))
	for id, rec := range s.users {
		out[id] = rec.snapshot()
	}

	if err := s.writeSnapshot(out); err != nil {
		slog.Error("store persist failed, in-memory state now diverges from disk until the next successful write",
			"path", s.path, "err", err)
		return err
	}
	return nil
}

func (s *Store) writeSnapshot(out map[string]persistedRecord) error {
	plaintext, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	blob, err := s.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
