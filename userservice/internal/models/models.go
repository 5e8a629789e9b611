package models

import (
	"time"

	"github.com/google/uuid"

	"user-platform/shared/contracts"
)

// User is the persisted account row. PasswordHash never leaves this package
// except through repos; responses are built via ToResponse.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) ToResponse() contracts.UserResponse {
	return contracts.UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
