package database

import "time"

// Receipt is the stored proof-of-submission record. It never contains
// the submitted note text, only a salted fingerprint of it.
type Receipt struct {
	Ref         string
	SubmittedAt time.Time
	Ack         string
	Fingerprint string
	CreatedAt   time.Time
}

// DailyLimit tracks accepted submissions for one anonymized client
// identity on one America/New_York calendar day. Rows expire 48 hours
// after the last write.
type DailyLimit struct {
	IdentityHash string
	Day          string // YYYY-MM-DD
	Count        int
	ExpiresAt    time.Time
}
