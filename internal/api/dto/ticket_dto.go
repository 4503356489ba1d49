package dto

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// CreateTicketRequest payload. CreatedBy is optional; authentication is
// handled upstream and only the requester id reaches this service.
type CreateTicketRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CreatedBy   *string `json:"created_by,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Category       domain.Category       `json:"category"`
	Priority       domain.Priority       `json:"priority"`
	AssignedTeam   string                `json:"assigned_team,omitempty"`
	RemoteNumber   *string               `json:"remote_number"`
	RemoteStatus   string                `json:"remote_status"`
	CreationStatus domain.CreationStatus `json:"creation_status"`
	Origin         domain.RequestOrigin  `json:"origin"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID                 string                `json:"id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Category           domain.Category       `json:"category"`
	CategoryConfidence float64               `json:"category_confidence"`
	Priority           domain.Priority       `json:"priority"`
	PriorityConfidence float64               `json:"priority_confidence"`
	AssignedTeam       string                `json:"assigned_team,omitempty"`
	RemoteNumber       *string               `json:"remote_number"`
	RemoteSysID        *string               `json:"remote_sys_id"`
	RemoteStatus       string                `json:"remote_status"`
	CreationStatus     domain.CreationStatus `json:"creation_status"`
	SyncAttempts       int                   `json:"sync_attempts"`
	LastSyncAttempt    *time.Time            `json:"last_sync_attempt"`
	ErrorMessage       *string               `json:"error_message"`
	Origin             domain.RequestOrigin  `json:"origin"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// SyncStatusResponse is the compact sync progress view.
type SyncStatusResponse struct {
	ID              string                `json:"id"`
	CreationStatus  domain.CreationStatus `json:"creation_status"`
	RemoteNumber    *string               `json:"remote_number"`
	RemoteStatus    string                `json:"remote_status"`
	SyncAttempts    int                   `json:"sync_attempts"`
	LastSyncAttempt *time.Time            `json:"last_sync_attempt"`
	ErrorMessage    *string               `json:"error_message"`
}

// SyncEventResponse represents one audit-trail entry.
type SyncEventResponse struct {
	ID         string                `json:"id"`
	FromStatus domain.CreationStatus `json:"from_status"`
	ToStatus   domain.CreationStatus `json:"to_status"`
	Attempt    int                   `json:"attempt"`
	Message    string                `json:"message,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}
