package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrRefTaken        = errors.New("reference already in use")
)

// TotalCounter is the name of the public all-time submission counter.
const TotalCounter = "total"

// Repository provides persistence for receipts, daily limits and counters.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateReceipt inserts a new receipt record. Returns ErrRefTaken when the
// reference is already present, so callers can regenerate and retry.
func (r *Repository) CreateReceipt(ctx context.Context, receipt *Receipt) error {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO receipts (ref, submitted_at, ack, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ref) DO NOTHING
	`,
		receipt.Ref,
		receipt.SubmittedAt,
		receipt.Ack,
		receipt.Fingerprint,
		receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefTaken
	}
	return nil
}

// GetReceipt retrieves a receipt by its reference code.
// Callers are expected to normalize the reference to uppercase first.
func (r *Repository) GetReceipt(ctx context.Context, ref string) (*Receipt, error) {
	receipt := &Receipt{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT ref, submitted_at, ack, fingerprint, created_at
		FROM receipts WHERE ref = $1
	`, ref).Scan(
		&receipt.Ref,
		&receipt.SubmittedAt,
		&receipt.Ack,
		&receipt.Fingerprint,
		&receipt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// DailyCount returns the accepted-submission count for an identity on a
// given day. Expired rows and absent rows both read as zero.
func (r *Repository) DailyCount(ctx context.Context, identityHash, day string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT count FROM daily_limits
		WHERE identity_hash = $1 AND day = $2 AND expires_at > NOW()
	`, identityHash, day).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get daily count: %w", err)
	}
	return count, nil
}

// IncrementDailyCount atomically bumps the counter for (identity, day),
// creating the row on first write, and refreshes its expiry.
// Returns the new count.
func (r *Repository) IncrementDailyCount(ctx context.Context, identityHash, day string, expiresAt time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO daily_limits (identity_hash, day, count, expires_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (identity_hash, day)
		DO UPDATE SET count = daily_limits.count + 1, expires_at = EXCLUDED.expires_at
		RETURNING count
	`, identityHash, day, expiresAt).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment daily count: %w", err)
	}
	return count, nil
}

// Counter returns the current value of a named counter. An absent row
// reads as zero.
func (r *Repository) Counter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.db.Pool.QueryRow(ctx,
		"SELECT value FROM counters WHERE name = $1", name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return value, nil
}

// IncrementCounter atomically increments a named counter and returns the
// new value, creating the row on first use.
func (r *Repository) IncrementCounter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return value, nil
}

// DeleteExpiredLimits removes daily-limit rows past their expiry and
// returns how many were deleted.
func (r *Repository) DeleteExpiredLimits(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM daily_limits WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
