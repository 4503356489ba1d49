package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncEvent is an append-only audit row recording a creation-status
// transition for a ticket.
type SyncEvent struct {
	ID         uuid.UUID
	TicketID   uuid.UUID
	FromStatus CreationStatus
	ToStatus   CreationStatus
	Attempt    int
	Message    string
	CreatedAt  time.Time
}
