package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a locally provisioned requester account. Tickets reference users
// with SET NULL semantics so a ticket survives deletion of its creator.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}
