package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreationStatus tracks how far a ticket has progressed toward the remote
// ticket service. Created is the only terminal value.
type CreationStatus string

const (
	CreationPending  CreationStatus = "pending"
	CreationCreated  CreationStatus = "created"
	CreationFailed   CreationStatus = "failed"
	CreationRetrying CreationStatus = "retrying"
)

// Category enumerates the closed set of ticket categories the classifier
// can emit.
type Category string

const (
	CategoryCloud          Category = "cloud"
	CategoryUnix           Category = "unix"
	CategoryNetwork        Category = "network"
	CategoryDatabase       Category = "database"
	CategoryApplication    Category = "application"
	CategorySecurity       Category = "security"
	CategoryVirtualization Category = "virtualization"
	CategoryStorage        Category = "storage"
	CategoryMonitoring     Category = "monitoring"
	CategoryDevOps         Category = "devops"
	CategoryHardware       Category = "hardware"
	CategoryEmail          Category = "email"
	CategoryBackup         Category = "backup"
	CategoryVendor         Category = "vendor"
)

// Categories lists every valid category value.
var Categories = []Category{
	CategoryCloud, CategoryUnix, CategoryNetwork, CategoryDatabase,
	CategoryApplication, CategorySecurity, CategoryVirtualization,
	CategoryStorage, CategoryMonitoring, CategoryDevOps, CategoryHardware,
	CategoryEmail, CategoryBackup, CategoryVendor,
}

// ValidCategory reports whether v is a member of the closed category set.
func ValidCategory(v string) bool {
	for _, c := range Categories {
		if string(c) == v {
			return true
		}
	}
	return false
}

// Priority enumerates ticket urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ValidPriority reports whether v is a known priority value.
func ValidPriority(v string) bool {
	switch Priority(v) {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// RequestOrigin distinguishes how a ticket entered the system.
type RequestOrigin string

const (
	OriginWeb   RequestOrigin = "web"
	OriginEmail RequestOrigin = "email"
)

// RemoteStatusQueued is the remote status a ticket carries before the first
// reconciliation pass.
const RemoteStatusQueued = "queued"

// TerminalRemoteStatuses are remote lifecycle labels that stop
// reconciliation for a ticket.
var TerminalRemoteStatuses = []string{"Resolved", "Closed", "Canceled"}

// Ticket is the unit of work synchronized to the remote ticket service.
type Ticket struct {
	ID          uuid.UUID
	Title       string
	Description string

	Category           Category
	CategoryConfidence float64
	Priority           Priority
	PriorityConfidence float64

	AssignedTeam      string
	AssignmentGroupID *string

	RemoteNumber *string
	RemoteSysID  *string
	RemoteStatus string

	CreationStatus  CreationStatus
	SyncAttempts    int
	LastSyncAttempt *time.Time
	ErrorMessage    *string

	Origin      RequestOrigin
	CreatedByID *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AssignmentGroup maps a predicted category to a remote assignment group.
type AssignmentGroup struct {
	Category      Category
	Name          string
	RemoteGroupID string
}
