package model

// Treatment duration bounds, minutes. A slot's default capacity is one
// half-hour, so no single treatment may exceed it.
const (
	MinTreatmentDuration = 1
	MaxTreatmentDuration = 30
)

type TreatmentType struct {
	Base
	Name            string `db:"name" json:"name"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
	IsActive        bool   `db:"is_active" json:"is_active"`
}

type CreateTreatmentRequest struct {
	Name            string `json:"name" binding:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=30"`
}
