package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"notedrop/internal/server/config"
	"notedrop/internal/server/database"
)

// --- In-memory store fake ---

type fakeStore struct {
	receipts map[string]*database.Receipt
	limits   map[string]int
	counters map[string]int64

	// failCreates makes the next N CreateReceipt calls report a
	// reference collision.
	failCreates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		receipts: make(map[string]*database.Receipt),
		limits:   make(map[string]int),
		counters: make(map[string]int64),
	}
}

func (f *fakeStore) CreateReceipt(_ context.Context, receipt *database.Receipt) error {
	if f.failCreates > 0 {
		f.failCreates--
		return database.ErrRefTaken
	}
	if _, exists := f.receipts[receipt.Ref]; exists {
		return database.ErrRefTaken
	}
	stored := *receipt
	f.receipts[receipt.Ref] = &stored
	return nil
}

func (f *fakeStore) GetReceipt(_ context.Context, ref string) (*database.Receipt, error) {
	receipt, ok := f.receipts[ref]
	if !ok {
		return nil, database.ErrReceiptNotFound
	}
	return receipt, nil
}

func (f *fakeStore) DailyCount(_ context.Context, identityHash, day string) (int, error) {
	return f.limits[identityHash+"|"+day], nil
}

func (f *fakeStore) IncrementDailyCount(_ context.Context, identityHash, day string, _ time.Time) (int, error) {
	key := identityHash + "|" + day
	f.limits[key]++
	return f.limits[key], nil
}

func (f *fakeStore) Counter(_ context.Context, name string) (int64, error) {
	return f.counters[name], nil
}

func (f *fakeStore) IncrementCounter(_ context.Context, name string) (int64, error) {
	f.counters[name]++
	return f.counters[name], nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:       "8080",
		Salt:       "test-salt",
		BaseURL:    "http://example.com",
		DailyLimit: 3,
		LimitTTL:   48 * time.Hour,
	}
}

func newTestService(t *testing.T, store Store) *ReceiptService {
	t.Helper()
	svc, err := NewReceiptService(store, testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

// --- Fingerprinting ---

func TestFingerprint(t *testing.T) {
	t.Run("known vector", func(t *testing.T) {
		// sha256("note:hello world:test-salt")
		want := "8bb8a809500c6413737bce0f57ce39ab8ebe1d42ab1489d90b26518c7b0c8d7b"
		if got := Fingerprint("hello world", "test-salt"); got != want {
			t.Errorf("Fingerprint = %s, want %s", got, want)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		first := Fingerprint("some note", "s1")
		for i := 0; i < 10; i++ {
			if got := Fingerprint("some note", "s1"); got != first {
				t.Fatalf("call %d produced %s, want %s", i, got, first)
			}
		}
	})

	t.Run("distinct for near-duplicate inputs", func(t *testing.T) {
		a := Fingerprint("hello world", "s")
		b := Fingerprint("hello worle", "s")
		if a == b {
			t.Error("one-character change produced identical fingerprints")
		}
	})

	t.Run("distinct for different salts", func(t *testing.T) {
		if Fingerprint("hello", "s1") == Fingerprint("hello", "s2") {
			t.Error("different salts produced identical fingerprints")
		}
	})

	t.Run("empty input still hashes", func(t *testing.T) {
		got := Fingerprint("", "s")
		if len(got) != 64 {
			t.Errorf("expected 64 hex chars, got %d", len(got))
		}
	})

	t.Run("lowercase hex output", func(t *testing.T) {
		got := Fingerprint("anything", "s")
		if got != strings.ToLower(got) {
			t.Errorf("fingerprint is not lowercase: %s", got)
		}
	})
}

func TestIdentityHash(t *testing.T) {
	t.Run("known vector", func(t *testing.T) {
		// sha256("203.0.113.7:test-salt")
		want := "cc4cecefd101db6403ad6e420bf3a025c2aa8c157d8b5c8e1fcf28f5221dd9f6"
		if got := IdentityHash("203.0.113.7", "test-salt"); got != want {
			t.Errorf("IdentityHash = %s, want %s", got, want)
		}
	})

	t.Run("never equals the raw address", func(t *testing.T) {
		if IdentityHash("10.0.0.1", "s") == "10.0.0.1" {
			t.Error("identity hash leaked the raw address")
		}
	})
}

// --- Reference generation ---

func TestNewReference(t *testing.T) {
	wellFormed := regexp.MustCompile(`^[0-9A-Z]{4}-[0-9A-Z]{3}$`)

	t.Run("matches XXXX-XXX format", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			ref, err := NewReference()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !wellFormed.MatchString(ref) {
				t.Fatalf("malformed reference: %q", ref)
			}
		}
	})

	t.Run("references are unique in practice", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			ref, err := NewReference()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[ref] {
				t.Fatalf("duplicate reference generated: %s", ref)
			}
			seen[ref] = true
		}
	})
}

func TestNormalizeRef(t *testing.T) {
	if got := NormalizeRef("  ab12-cd3 "); got != "AB12-CD3" {
		t.Errorf("NormalizeRef = %q, want %q", got, "AB12-CD3")
	}
}

// --- Quota day computation ---

func TestDayString(t *testing.T) {
	zone, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load zone: %v", err)
	}

	t.Run("formats in New York civil time", func(t *testing.T) {
		// 04:59:59 UTC on Jan 16 is still 23:59:59 Jan 15 in New York (EST).
		before := time.Date(2026, 1, 16, 4, 59, 59, 0, time.UTC)
		if got := dayString(before, zone); got != "2026-01-15" {
			t.Errorf("dayString = %s, want 2026-01-15", got)
		}
	})

	t.Run("rolls over at New York midnight", func(t *testing.T) {
		after := time.Date(2026, 1, 16, 5, 0, 1, 0, time.UTC)
		if got := dayString(after, zone); got != "2026-01-16" {
			t.Errorf("dayString = %s, want 2026-01-16", got)
		}
	})
}

// --- Submission workflow ---

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a note and issues a receipt", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		result, err := svc.Submit(ctx, "hello world", "203.0.113.7")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !regexp.MustCompile(`^[0-9A-Z]{4}-[0-9A-Z]{3}$`).MatchString(result.Ref) {
			t.Errorf("malformed reference: %q", result.Ref)
		}
		if result.ReceiptURL != "http://example.com/r/"+result.Ref {
			t.Errorf("unexpected receipt URL: %s", result.ReceiptURL)
		}
		if result.Counter != 1 {
			t.Errorf("expected counter 1, got %d", result.Counter)
		}
		if result.RemainingToday != 2 {
			t.Errorf("expected 2 remaining, got %d", result.RemainingToday)
		}

		stored := store.receipts[result.Ref]
		if stored == nil {
			t.Fatal("receipt was not persisted")
		}
		if stored.Fingerprint != Fingerprint("hello world", "test-salt") {
			t.Errorf("stored fingerprint does not match the note")
		}

		ackKnown := false
		for _, ack := range acks {
			if stored.Ack == ack {
				ackKnown = true
				break
			}
		}
		if !ackKnown {
			t.Errorf("unknown acknowledgment phrase: %q", stored.Ack)
		}
	})

	t.Run("fingerprints the trimmed text", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		result, err := svc.Submit(ctx, "  hi there \n", "203.0.113.7")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.receipts[result.Ref].Fingerprint != Fingerprint("hi there", "test-salt") {
			t.Error("fingerprint was not computed over trimmed text")
		}
	})

	t.Run("rejects empty and whitespace-only notes with no side effects", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		for _, note := range []string{"", "   ", "\n\t "} {
			if _, err := svc.Submit(ctx, note, "203.0.113.7"); !errors.Is(err, ErrEmptyNote) {
				t.Errorf("Submit(%q) error = %v, want ErrEmptyNote", note, err)
			}
		}
		if len(store.receipts) != 0 {
			t.Error("rejected submission created a receipt")
		}
		if store.counters[database.TotalCounter] != 0 {
			t.Error("rejected submission bumped the counter")
		}
	})

	t.Run("fourth submission in a day is rejected", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		for i := 0; i < 3; i++ {
			if _, err := svc.Submit(ctx, "note", "203.0.113.7"); err != nil {
				t.Fatalf("submission %d failed: %v", i+1, err)
			}
		}

		_, err := svc.Submit(ctx, "note", "203.0.113.7")
		if !errors.Is(err, ErrDailyLimit) {
			t.Fatalf("expected ErrDailyLimit, got %v", err)
		}
		if len(store.receipts) != 3 {
			t.Errorf("expected 3 receipts, got %d", len(store.receipts))
		}
		if store.counters[database.TotalCounter] != 3 {
			t.Errorf("expected counter 3, got %d", store.counters[database.TotalCounter])
		}
	})

	t.Run("quotas are per client identity", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		for i := 0; i < 3; i++ {
			if _, err := svc.Submit(ctx, "note", "203.0.113.7"); err != nil {
				t.Fatalf("submission %d failed: %v", i+1, err)
			}
		}

		if _, err := svc.Submit(ctx, "note", "198.51.100.9"); err != nil {
			t.Errorf("different client should not share the quota, got %v", err)
		}
	})

	t.Run("remaining count decreases per submission", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		for i, want := range []int{2, 1, 0} {
			result, err := svc.Submit(ctx, "note", "203.0.113.7")
			if err != nil {
				t.Fatalf("submission %d failed: %v", i+1, err)
			}
			if result.RemainingToday != want {
				t.Errorf("submission %d: remaining = %d, want %d", i+1, result.RemainingToday, want)
			}
		}
	})

	t.Run("counter equals accepted submissions", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		addrs := []string{"203.0.113.7", "198.51.100.9", "192.0.2.1"}
		total := 0
		for _, addr := range addrs {
			for i := 0; i < 2; i++ {
				if _, err := svc.Submit(ctx, "note", addr); err != nil {
					t.Fatalf("submission failed: %v", err)
				}
				total++
			}
		}

		counter, err := svc.Counter(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counter != int64(total) {
			t.Errorf("counter = %d, want %d", counter, total)
		}
	})

	t.Run("retries on reference collision", func(t *testing.T) {
		store := newFakeStore()
		store.failCreates = 2
		svc := newTestService(t, store)

		result, err := svc.Submit(ctx, "note", "203.0.113.7")
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if store.receipts[result.Ref] == nil {
			t.Error("receipt missing after collision retries")
		}
	})

	t.Run("gives up after too many collisions", func(t *testing.T) {
		store := newFakeStore()
		store.failCreates = maxRefAttempts
		svc := newTestService(t, store)

		if _, err := svc.Submit(ctx, "note", "203.0.113.7"); err == nil {
			t.Fatal("expected error after exhausting reference attempts")
		}
		if store.counters[database.TotalCounter] != 0 {
			t.Error("failed submission bumped the counter")
		}
	})

	t.Run("never stores the note text or raw address", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		note := "a very identifiable secret note"
		addr := "203.0.113.7"
		result, err := svc.Submit(ctx, note, addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stored := store.receipts[result.Ref]
		if strings.Contains(stored.Fingerprint, note) || strings.Contains(stored.Ack, note) {
			t.Error("note text leaked into the stored receipt")
		}
		for key := range store.limits {
			if strings.Contains(key, addr) {
				t.Error("raw client address leaked into the quota key")
			}
		}
	})
}

// --- Retrieval and verification ---

func TestReceipt(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored receipt with RFC3339 UTC timestamp", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		submittedAt := time.Date(2026, 2, 3, 12, 30, 0, 0, time.UTC)
		store.receipts["AB12-CD3"] = &database.Receipt{
			Ref:         "AB12-CD3",
			SubmittedAt: submittedAt,
			Ack:         "Noted.",
			Fingerprint: Fingerprint("hello", "test-salt"),
		}

		view, err := svc.Receipt(ctx, "AB12-CD3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if view.Timestamp != "2026-02-03T12:30:00Z" {
			t.Errorf("timestamp = %s, want 2026-02-03T12:30:00Z", view.Timestamp)
		}
		if view.Ack != "Noted." {
			t.Errorf("ack = %q", view.Ack)
		}
	})

	t.Run("lookups are case-insensitive", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)
		store.receipts["AB12-CD3"] = &database.Receipt{Ref: "AB12-CD3", SubmittedAt: time.Now()}

		view, err := svc.Receipt(ctx, "ab12-cd3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if view.Ref != "AB12-CD3" {
			t.Errorf("ref = %s, want AB12-CD3", view.Ref)
		}
	})

	t.Run("unknown reference is ErrNotFound", func(t *testing.T) {
		svc := newTestService(t, newFakeStore())
		if _, err := svc.Receipt(ctx, "ZZZZ-ZZZ"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fakeStore, *ReceiptService, string) {
		store := newFakeStore()
		svc := newTestService(t, store)
		result, err := svc.Submit(ctx, "hello world", "203.0.113.7")
		if err != nil {
			t.Fatalf("setup submission failed: %v", err)
		}
		return store, svc, result.Ref
	}

	t.Run("original text matches", func(t *testing.T) {
		_, svc, ref := setup(t)
		result, err := svc.Verify(ctx, ref, "hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Match {
			t.Error("original text should match its receipt")
		}
	})

	t.Run("reference case does not matter", func(t *testing.T) {
		_, svc, ref := setup(t)
		result, err := svc.Verify(ctx, strings.ToLower(ref), "hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Match {
			t.Error("lowercased reference should still verify")
		}
	})

	t.Run("candidate text is trimmed like the submission", func(t *testing.T) {
		_, svc, ref := setup(t)
		result, err := svc.Verify(ctx, ref, "  hello world \n")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Match {
			t.Error("padded candidate of the same text should match")
		}
	})

	t.Run("different text does not match", func(t *testing.T) {
		_, svc, ref := setup(t)
		result, err := svc.Verify(ctx, ref, "hello world!")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Match {
			t.Error("altered text must not match")
		}
	})

	t.Run("unknown reference is ErrNotFound", func(t *testing.T) {
		svc := newTestService(t, newFakeStore())
		if _, err := svc.Verify(ctx, "ZZZZ-ZZZ", "anything"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
