package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketSynced     EventType = "ticket_synced"
	EventTicketSyncFailed EventType = "ticket_sync_failed"
	EventTicketReconciled EventType = "ticket_reconciled"
	EventReplySent        EventType = "ticket_reply_sent"
)

// Event represents a pipeline event emitted by the sync engine.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  uuid.UUID   `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, ticketID uuid.UUID, payload interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Origin   domain.RequestOrigin `json:"origin"`
	Category domain.Category      `json:"category"`
	Priority domain.Priority      `json:"priority"`
	Title    string               `json:"title"`
}

// TicketSyncedPayload payload.
type TicketSyncedPayload struct {
	RemoteNumber string `json:"remote_number"`
	RemoteSysID  string `json:"remote_sys_id"`
	Attempts     int    `json:"attempts"`
}

// TicketSyncFailedPayload payload.
type TicketSyncFailedPayload struct {
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

// TicketReconciledPayload payload.
type TicketReconciledPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ReplySentPayload payload.
type ReplySentPayload struct {
	Recipient    string `json:"recipient"`
	RemoteNumber string `json:"remote_number"`
}
