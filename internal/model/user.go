package model

import (
	"github.com/google/uuid"
)

// User is a staff account (front desk, admin). Login lockout state lives in
// the challenge row keyed "login:<id>", not on this row.
type User struct {
	Base
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Name         string `db:"name" json:"name"`
	Role         string `db:"role" json:"role"`
}

type TokenClaims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
