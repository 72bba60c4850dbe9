package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "db.json.enc")
}

// TestOpen_MissingFile tests that an absent snapshot yields an empty store, not an error
func TestOpen_MissingFile(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
	if rec := s.Get("U123"); rec != nil {
		t.Errorf("Get() on empty store = %v, want nil", rec)
	}
}

// TestStoreRoundTrip tests that persisted records survive a close/reopen cycle
func TestStoreRoundTrip(t *testing.T) {
	path := tempStorePath(t)

	s, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := s.Add(NewPending("U111", "alice", "csrf-alice")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(NewPending("U222", "bob", "csrf-bob")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Authorize("U222", "xoxp-bob-token"); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if err := s.SetUsername("U222", "bob2"); err != nil {
		t.Fatalf("SetUsername() error = %v", err)
	}

	reopened, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}

	if got := reopened.Len(); got != 2 {
		t.Fatalf("reopened Len() = %d, want 2", got)
	}

	alice := reopened.Get("U111")
	if alice == nil {
		t.Fatal("reopened Get(U111) = nil")
	}
	if alice.Authorized() {
		t.Errorf("alice should still be pending")
	}
	if got := alice.TrackedUsername(); got != "alice" {
		t.Errorf("alice username = %q, want %q", got, "alice")
	}
	if found := reopened.FindByPendingToken("csrf-alice"); found == nil || found.ID() != "U111" {
		t.Errorf("FindByPendingToken(csrf-alice) = %v, want alice's record", found)
	}

	bob := reopened.Get("U222")
	if bob == nil {
		t.Fatal("reopened Get(U222) = nil")
	}
	if !bob.Authorized() {
		t.Errorf("bob should be authorized")
	}
	if got := bob.Token(); got != "xoxp-bob-token" {
		t.Errorf("bob token = %q, want %q", got, "xoxp-bob-token")
	}
	if got := bob.TrackedUsername(); got != "bob2" {
		t.Errorf("bob username = %q, want %q", got, "bob2")
	}
}

// TestOpen_WrongPassphrase tests that a wrong passphrase fails loudly instead of
// returning an empty store
func TestOpen_WrongPassphrase(t *testing.T) {
	path := tempStorePath(t)

	s, err := Open(path, "right-passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice", "csrf")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	_, err = Open(path, "wrong-passphrase")
	if err == nil {
		t.Fatal("Open() with wrong passphrase should fail")
	}
	if !strings.Contains(err.Error(), "decrypt store file") {
		t.Errorf("Open() error = %v, want decrypt error", err)
	}
}

// TestOpen_CorruptFile tests that garbage on disk is an error
func TestOpen_CorruptFile(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("not an encrypted snapshot"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Open(path, "passphrase")
	if err == nil {
		t.Fatal("Open() on corrupt file should fail")
	}
}

// TestRemove tests removal of present and absent records
func TestRemove(t *testing.T) {
	path := tempStorePath(t)

	s, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice", "csrf")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	rec, err := s.Remove("U111")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if rec == nil || rec.ID() != "U111" {
		t.Errorf("Remove() = %v, want alice's record", rec)
	}

	rec, err = s.Remove("U111")
	if err != nil {
		t.Fatalf("Remove() of absent record error = %v", err)
	}
	if rec != nil {
		t.Errorf("Remove() of absent record = %v, want nil", rec)
	}

	reopened, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if got := reopened.Len(); got != 0 {
		t.Errorf("reopened Len() = %d, want 0", got)
	}
}

// TestFindByPendingToken_SpentToken tests that authorization consumes the CSRF
// token: once promoted, a record can never be found by its old token again
func TestFindByPendingToken_SpentToken(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice", "csrf-token")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if found := s.FindByPendingToken("csrf-token"); found == nil {
		t.Fatal("FindByPendingToken() = nil before authorization, want record")
	}
	if found := s.FindByPendingToken(""); found != nil {
		t.Errorf("FindByPendingToken(\"\") = %v, want nil", found)
	}
	if found := s.FindByPendingToken("nope"); found != nil {
		t.Errorf("FindByPendingToken(unknown) = %v, want nil", found)
	}

	if err := s.Authorize("U111", "xoxp-token"); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if found := s.FindByPendingToken("csrf-token"); found != nil {
		t.Errorf("FindByPendingToken() after Authorize = %v, want nil", found)
	}
}

// TestSetUsername_SharedView tests that a held record pointer observes a
// username change made through the store
func TestSetUsername_SharedView(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice", "csrf")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	held := s.Get("U111")
	if held == nil {
		t.Fatal("Get() = nil")
	}

	if err := s.SetUsername("U111", "alice-renamed"); err != nil {
		t.Fatalf("SetUsername() error = %v", err)
	}

	if got := held.TrackedUsername(); got != "alice-renamed" {
		t.Errorf("held record username = %q, want %q", got, "alice-renamed")
	}
}

// TestSetUsername_UnknownUser tests the unknown-user sentinel
func TestSetUsername_UnknownUser(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	err = s.SetUsername("U404", "ghost")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("SetUsername() error = %v, want ErrUnknownUser", err)
	}

	err = s.Authorize("U404", "token")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Authorize() error = %v, want ErrUnknownUser", err)
	}
}

// TestAdd_ReplacesPending tests that re-linking overwrites a stale pending record
func TestAdd_ReplacesPending(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := s.Add(NewPending("U111", "alice", "csrf-old")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice-new", "csrf-new")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if found := s.FindByPendingToken("csrf-old"); found != nil {
		t.Errorf("FindByPendingToken(csrf-old) = %v, want nil after replacement", found)
	}
	if found := s.FindByPendingToken("csrf-new"); found == nil {
		t.Error("FindByPendingToken(csrf-new) = nil, want replacement record")
	}
	if got := s.Get("U111").TrackedUsername(); got != "alice-new" {
		t.Errorf("username = %q, want %q", got, "alice-new")
	}
}

// TestPersistFailure_NoRollback tests that a failed persist leaves the
// in-memory mutation in place and reports the error to the caller
func TestPersistFailure_NoRollback(t *testing.T) {
	// Point the store into a directory that does not exist: reads see an
	// absent file (empty store), writes fail.
	path := filepath.Join(t.TempDir(), "missing-dir", "db.json.enc")

	s, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	err = s.Add(NewPending("U111", "alice", "csrf"))
	if err == nil {
		t.Fatal("Add() should report the persist failure")
	}

	if rec := s.Get("U111"); rec == nil {
		t.Error("Get() = nil, want the in-memory record to survive a failed persist")
	}
}

// TestRange tests snapshot iteration, including removal during iteration
func TestRange(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("U%d", i)
		if err := s.Add(NewPending(id, "user"+id, "csrf"+id)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	seen := 0
	s.Range(func(rec *Record) bool {
		seen++
		// Removing while iterating must not deadlock.
		if _, err := s.Remove(rec.ID()); err != nil {
			t.Errorf("Remove(%s) during Range error = %v", rec.ID(), err)
		}
		return true
	})

	if seen != 3 {
		t.Errorf("Range visited %d records, want 3", seen)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() after removing all = %d, want 0", got)
	}
}

// TestConcurrentAccess exercises the two-level locking under the race detector
func TestConcurrentAccess(t *testing.T) {
	s, err := Open(tempStorePath(t), "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice", "csrf")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.SetUsername("U111", fmt.Sprintf("alice-%d", n)); err != nil {
				t.Errorf("SetUsername() error = %v", err)
			}
			_ = s.Get("U111").TrackedUsername()
			s.Range(func(rec *Record) bool { return rec.Authorized() == false })
		}(i)
	}
	wg.Wait()
}

func TestRekey(t *testing.T) {
	path := tempStorePath(t)

	s, err := Open(path, "old-passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Add(NewPending("U111", "alice", "csrf")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Authorize("U111", "xoxp-token"); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if err := s.Rekey("new-passphrase"); err != nil {
		t.Fatalf("Rekey() error = %v", err)
	}

	if _, err := Open(path, "old-passphrase"); err == nil {
		t.Error("old passphrase still opens the store after Rekey()")
	}

	reopened, err := Open(path, "new-passphrase")
	if err != nil {
		t.Fatalf("Open() with new passphrase error = %v", err)
	}
	rec := reopened.Get("U111")
	if rec == nil {
		t.Fatal("record lost across Rekey()")
	}
	if rec.Token() != "xoxp-token" {
		t.Errorf("Token() = %q, want xoxp-token", rec.Token())
	}
}
