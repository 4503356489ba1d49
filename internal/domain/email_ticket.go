package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailTicket is the dedup and correlation record for an inbound mailbox
// message. The mailbox UID is the idempotency key for the whole
// email-to-ticket path: at most one Ticket is ever created per UID.
type EmailTicket struct {
	ID         uuid.UUID
	UID        string
	Sender     string
	Subject    string
	Body       string
	RawMessage string
	TicketID   *uuid.UUID
	ReplySent  bool
	ReceivedAt time.Time
}

// PendingReply is an email ticket whose linked ticket has a remote number
// but whose acknowledgment reply has not been sent yet.
type PendingReply struct {
	EmailTicketID uuid.UUID
	TicketID      uuid.UUID
	RemoteNumber  string
	Sender        string
	Subject       string
}
