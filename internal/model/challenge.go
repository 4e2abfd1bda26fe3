package model

import (
	"time"

	"github.com/google/uuid"
)

// Challenge is the attempt-limited secret row shared by one-time entry codes
// and login lockout. OwnerKey namespaces the two uses ("otp:<phone>",
// "login:<user id>"); at most one row is live per owner key.
type Challenge struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OwnerKey    string     `db:"owner_key" json:"owner_key"`
	SecretHash  string     `db:"secret_hash" json:"-"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Attempts    int        `db:"attempts" json:"attempts"`
	UsedAt      *time.Time `db:"used_at" json:"used_at,omitempty"`
	LockedUntil *time.Time `db:"locked_until" json:"locked_until,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
