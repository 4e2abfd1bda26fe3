package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "booked"
	AppointmentStatusCheckedIn AppointmentStatus = "checked_in"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	Base
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	TreatmentTypeID uuid.UUID         `db:"treatment_type_id" json:"treatment_type_id"`
	TimeSlotID      uuid.UUID         `db:"time_slot_id" json:"time_slot_id"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointment_date"`
	Status          AppointmentStatus `db:"status" json:"status"`
	CancelledReason *string           `db:"cancelled_reason" json:"cancelled_reason,omitempty"`
	CancelledBy     *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
}

type BookAppointmentRequest struct {
	PatientID       uuid.UUID `json:"patient_id" binding:"required"`
	DoctorID        uuid.UUID `json:"doctor_id" binding:"required"`
	TreatmentTypeID uuid.UUID `json:"treatment_type_id" binding:"required"`
	TimeSlotID      uuid.UUID `json:"time_slot_id" binding:"required"`
}

type ChangeStatusRequest struct {
	// no_show is deliberately absent: only the reconciliation sweep may
	// assign it.
	Status AppointmentStatus `json:"status" binding:"required,oneof=checked_in completed cancelled"`
	Reason string            `json:"reason" binding:"max=500"`
}

type AppointmentFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
	StartDate time.Time
	EndDate   time.Time
}
