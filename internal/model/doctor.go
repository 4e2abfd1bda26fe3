package model

type Doctor struct {
	Base
	Name      string `db:"name" json:"name"`
	Specialty string `db:"specialty" json:"specialty,omitempty"`
	IsActive  bool   `db:"is_active" json:"is_active"`
}

type CreateDoctorRequest struct {
	Name      string `json:"name" binding:"required,max=200"`
	Specialty string `json:"specialty" binding:"max=200"`
}
