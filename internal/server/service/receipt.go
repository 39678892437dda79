package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	mrand "math/rand"
	"strings"
	"time"

	"notedrop/internal/server/config"
	"notedrop/internal/server/database"
)

// Sentinel errors for the service layer.
var (
	ErrEmptyNote  = errors.New("empty submission")
	ErrDailyLimit = errors.New("daily limit reached")
	ErrNotFound   = errors.New("receipt not found")
)

// quotaZone is the civil calendar used for daily-limit rollover. Fixed so
// the quota resets at the same wall-clock moment regardless of where the
// server runs.
const quotaZone = "America/New_York"

// refAlphabet is the base-36 character set used for reference codes.
const refAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxRefAttempts bounds the regenerate-and-retry loop on a reference
// collision. 36^7 codes make even one retry rare.
const maxRefAttempts = 5

// acks are the cosmetic acknowledgment phrases attached to receipts.
// Purely decorative, chosen uniformly at random.
var acks = []string{
	"Acknowledged.",
	"Noted.",
	"Recorded.",
	"Logged.",
	"Receipt generated.",
	"Entry accepted.",
	"Submission captured.",
	"Reference issued.",
}

// Store is the persistence surface the receipt service needs.
// *database.Repository satisfies it.
type Store interface {
	CreateReceipt(ctx context.Context, receipt *database.Receipt) error
	GetReceipt(ctx context.Context, ref string) (*database.Receipt, error)
	DailyCount(ctx context.Context, identityHash, day string) (int, error)
	IncrementDailyCount(ctx context.Context, identityHash, day string, expiresAt time.Time) (int, error)
	Counter(ctx context.Context, name string) (int64, error)
	IncrementCounter(ctx context.Context, name string) (int64, error)
}

// SubmitResult is returned after an accepted submission.
type SubmitResult struct {
	Ref            string `json:"ref"`
	ReceiptURL     string `json:"receiptUrl"`
	Ack            string `json:"message"`
	Counter        int64  `json:"counter"`
	RemainingToday int    `json:"remainingToday"`
}

// ReceiptView is the public projection of a stored receipt.
type ReceiptView struct {
	Ref         string `json:"ref"`
	Timestamp   string `json:"timestamp"`
	Ack         string `json:"message"`
	Fingerprint string `json:"fingerprint"`
}

// VerifyResult reports whether a candidate text matches a receipt's
// fingerprint.
type VerifyResult struct {
	Ref   string `json:"ref"`
	Match bool   `json:"match"`
}

// ReceiptService contains the business logic for note submissions,
// receipt retrieval and fingerprint verification.
type ReceiptService struct {
	store Store
	cfg   *config.Config
	zone  *time.Location
}

// NewReceiptService creates a new receipt service. Fails if the quota
// time zone is missing from the host's tzdata.
func NewReceiptService(store Store, cfg *config.Config) (*ReceiptService, error) {
	zone, err := time.LoadLocation(quotaZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota time zone %s: %w", quotaZone, err)
	}
	return &ReceiptService{store: store, cfg: cfg, zone: zone}, nil
}

// Submit runs the submission workflow for one note: validate, quota-check
// the anonymized client identity, fingerprint the text, persist a receipt
// under a fresh reference, then bump the public counter. The note text and
// the raw client address are discarded here; neither is stored or logged.
func (s *ReceiptService) Submit(ctx context.Context, note, clientAddr string) (*SubmitResult, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyNote
	}

	identity := IdentityHash(clientAddr, s.cfg.Salt)
	day := s.Today()

	count, err := s.store.DailyCount(ctx, identity, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily count: %w", err)
	}
	if count >= s.cfg.DailyLimit {
		return nil, ErrDailyLimit
	}

	fingerprint := Fingerprint(note, s.cfg.Salt)
	now := time.Now().UTC()

	receipt := &database.Receipt{
		SubmittedAt: now,
		Ack:         acks[mrand.Intn(len(acks))],
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}

	// Reference codes are probabilistically unique; retry on the rare
	// collision rather than trusting 36^7 alone.
	var created bool
	for attempt := 0; attempt < maxRefAttempts; attempt++ {
		ref, err := NewReference()
		if err != nil {
			return nil, fmt.Errorf("failed to generate reference: %w", err)
		}
		receipt.Ref = ref

		err = s.store.CreateReceipt(ctx, receipt)
		if err == nil {
			created = true
			break
		}
		if errors.Is(err, database.ErrRefTaken) {
			slog.Warn("reference collision, regenerating", "attempt", attempt+1)
			continue
		}
		return nil, fmt.Errorf("failed to persist receipt: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("failed to allocate a unique reference after %d attempts", maxRefAttempts)
	}

	newCount, err := s.store.IncrementDailyCount(ctx, identity, day, now.Add(s.cfg.LimitTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to record daily count: %w", err)
	}

	// Receipt-then-counter ordering: a failed insert never bumps the
	// public counter.
	counter, err := s.store.IncrementCounter(ctx, database.TotalCounter)
	if err != nil {
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}

	slog.Info("note accepted",
		"ref", receipt.Ref,
		"counter", counter,
		"remaining_today", s.cfg.DailyLimit-newCount,
	)

	return &SubmitResult{
		Ref:            receipt.Ref,
		ReceiptURL:     fmt.Sprintf("%s/r/%s", s.cfg.BaseURL, receipt.Ref),
		Ack:            receipt.Ack,
		Counter:        counter,
		RemainingToday: s.cfg.DailyLimit - newCount,
	}, nil
}

// Receipt looks up a receipt by reference. References are case-insensitive.
func (s *ReceiptService) Receipt(ctx context.Context, ref string) (*ReceiptView, error) {
	ref = NormalizeRef(ref)

	receipt, err := s.store.GetReceipt(ctx, ref)
	if err != nil {
		if errors.Is(err, database.ErrReceiptNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ReceiptView{
		Ref:         receipt.Ref,
		Timestamp:   receipt.SubmittedAt.UTC().Format(time.RFC3339),
		Ack:         receipt.Ack,
		Fingerprint: receipt.Fingerprint,
	}, nil
}

// Verify re-hashes a candidate text with the server salt and compares it
// to the stored fingerprint. The fingerprint is content-derived and already
// disclosed by Receipt, so plain string equality is enough.
func (s *ReceiptService) Verify(ctx context.Context, ref, note string) (*VerifyResult, error) {
	ref = NormalizeRef(ref)

	receipt, err := s.store.GetReceipt(ctx, ref)
	if err != nil {
		if errors.Is(err, database.ErrReceiptNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	candidate := Fingerprint(strings.TrimSpace(note), s.cfg.Salt)
	return &VerifyResult{
		Ref:   receipt.Ref,
		Match: candidate == receipt.Fingerprint,
	}, nil
}

// Counter returns the all-time accepted submission count.
func (s *ReceiptService) Counter(ctx context.Context) (int64, error) {
	return s.store.Counter(ctx, database.TotalCounter)
}

// Today returns the current calendar day in the quota time zone.
func (s *ReceiptService) Today() string {
	return dayString(time.Now(), s.zone)
}

// dayString formats an instant as YYYY-MM-DD in the given zone.
func dayString(t time.Time, zone *time.Location) string {
	return t.In(zone).Format("2006-01-02")
}

// Fingerprint computes the salted content hash bound into a receipt:
// lowercase hex SHA-256 of "note:" + text + ":" + salt. Deterministic, so
// the same text and salt always reproduce the stored value.
func Fingerprint(text, salt string) string {
	sum := sha256.Sum256([]byte("note:" + text + ":" + salt))
	return hex.EncodeToString(sum[:])
}

// IdentityHash anonymizes a client address for quota keying. The raw
// address never reaches storage or logs.
func IdentityHash(clientAddr, salt string) string {
	sum := sha256.Sum256([]byte(clientAddr + ":" + salt))
	return hex.EncodeToString(sum[:])
}

// NormalizeRef uppercases and trims a reference code for lookup.
func NormalizeRef(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// NewReference produces a fresh XXXX-XXX reference code from crypto/rand.
// References are the lookup key, so unpredictability matters.
func NewReference() (string, error) {
	chars := make([]byte, 7)
	for i := range chars {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(refAlphabet))))
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		chars[i] = refAlphabet[n.Int64()]
	}
	return string(chars[:4]) + "-" + string(chars[4:]), nil
}
