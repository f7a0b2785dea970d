package audit

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"), keep)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	s := openStore(t, 100)

	for i := 0; i < 3; i++ {
		e := &Entry{Kind: KindCommand, Command: "whoami", Outcome: OutcomeOK}
		if err := s.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if e.ID != uint64(i+1) {
			t.Errorf("entry %d got ID %d", i, e.ID)
		}
		if e.Time.IsZero() {
			t.Error("expected timestamp to be assigned")
		}
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestTailReturnsNewestChronologically(t *testing.T) {
	s := openStore(t, 100)

	for i := 0; i < 5; i++ {
		e := &Entry{
			Kind:    KindCommand,
			Command: fmt.Sprintf("cmd-%d", i),
			Outcome: OutcomeOK,
			Time:    time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		}
		if err := s.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := s.Tail(3)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Tail returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"cmd-2", "cmd-3", "cmd-4"} {
		if entries[i].Command != want {
			t.Errorf("entries[%d].Command = %s, want %s", i, entries[i].Command, want)
		}
	}
	if !entries[0].Time.Before(entries[1].Time) {
		t.Error("entries not in chronological order")
	}
}

func TestTailLargerThanStore(t *testing.T) {
	s := openStore(t, 100)

	if err := s.Append(&Entry{Kind: KindUpdate, Outcome: OutcomeRefused}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := s.Tail(50)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Tail returned %d entries, want 1", len(entries))
	}
}

func TestRetentionDropsOldest(t *testing.T) {
	s := openStore(t, 3)

	for i := 0; i < 10; i++ {
		e := &Entry{Kind: KindCommand, Command: fmt.Sprintf("cmd-%d", i), Outcome: OutcomeOK}
		if err := s.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("Count = %d, want 3", count)
	}

	entries, err := s.Tail(10)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	for i, want := range []string{"cmd-7", "cmd-8", "cmd-9"} {
		if entries[i].Command != want {
			t.Errorf("entries[%d].Command = %s, want %s", i, entries[i].Command, want)
		}
	}
}

func TestEntryDetailRoundTrip(t *testing.T) {
	s := openStore(t, 100)

	exitCode := 3
	uid := uint32(1000)
	in := &Entry{
		Kind:     KindCommand,
		Command:  "reload-units",
		Right:    "io.wardenhq.wardend.reload-units",
		Outcome:  OutcomeDenied,
		Detail:   "token lacks right",
		ExitCode: &exitCode,
		PeerUID:  &uid,
	}
	if err := s.Append(in); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := s.Tail(1)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	got := entries[0]
	if got.Right != in.Right || got.Detail != in.Detail || got.Outcome != OutcomeDenied {
		t.Errorf("round-tripped entry mismatch: %+v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != 3 {
		t.Errorf("ExitCode = %v, want 3", got.ExitCode)
	}
	if got.PeerUID == nil || *got.PeerUID != 1000 {
		t.Errorf("PeerUID = %v, want 1000", got.PeerUID)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Append(&Entry{Kind: KindUninstall, Outcome: OutcomeOK}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(path, 10)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count after reopen = %d, want 1", count)
	}

	// Sequence keeps increasing across reopen.
	e := &Entry{Kind: KindCommand, Command: "whoami", Outcome: OutcomeOK}
	if err := s.Append(e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.ID != 2 {
		t.Errorf("ID after reopen = %d, want 2", e.ID)
	}
}
