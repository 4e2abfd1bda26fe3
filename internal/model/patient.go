package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxNoShowCount is the saturation point of the no-show counter; reaching it
// makes the patient a blacklist candidate.
const MaxNoShowCount = 3

type Patient struct {
	Base
	Name          string  `db:"name" json:"name"`
	Phone         *string `db:"phone" json:"phone,omitempty"`
	NoShowCount   int     `db:"no_show_count" json:"no_show_count"`
	IsBlacklisted bool    `db:"is_blacklisted" json:"is_blacklisted"`
}

// Blacklist exists one-to-one with a blacklisted patient. CreatedBy is nil
// for system-generated entries (the reconciliation sweep).
type Blacklist struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	Reason    string     `db:"reason" json:"reason"`
	CreatedBy *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type CreatePatientRequest struct {
	Name  string `json:"name" binding:"required,max=200"`
	Phone string `json:"phone" binding:"omitempty,e164"`
}
