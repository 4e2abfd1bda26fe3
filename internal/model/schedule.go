package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSlotMinutes is the capacity ceiling of a newly created slot.
const DefaultSlotMinutes = 30

// Schedule is one doctor's calendar day. (doctor_id, date) is unique.
type Schedule struct {
	Base
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date        time.Time `db:"date" json:"date"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
}

// TimeSlot is the capacity ledger row: a bounded window of a doctor's day
// with minute-denominated remaining capacity, not a boolean availability flag.
type TimeSlot struct {
	Base
	ScheduleID       uuid.UUID `db:"schedule_id" json:"schedule_id"`
	StartTime        time.Time `db:"start_time" json:"start_time"`
	EndTime          time.Time `db:"end_time" json:"end_time"`
	TotalMinutes     int       `db:"total_minutes" json:"total_minutes"`
	RemainingMinutes int       `db:"remaining_minutes" json:"remaining_minutes"`
}

type CreateScheduleRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
	Date     time.Time `json:"date" binding:"required,notpast"`
	Slots    []struct {
		StartTime    time.Time `json:"start_time" binding:"required"`
		EndTime      time.Time `json:"end_time" binding:"required"`
		TotalMinutes int       `json:"total_minutes" binding:"omitempty,min=1"`
	} `json:"slots"`
}
