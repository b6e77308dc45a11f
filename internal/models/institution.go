package models

import (
	"time"

	"github.com/google/uuid"
)

// Institution is a listed education provider. Exactly one admin user owns it.
type Institution struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
