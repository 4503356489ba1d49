package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	ticketsync "github.com/spec-kit/ticket-sync/internal/sync"
	"github.com/spec-kit/ticket-sync/pkg/util"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
	defaultListLimit     = 20
	maxListLimit         = 100
)

// TicketService is the web-facing surface over the sync engine: submit,
// read and manually retry tickets.
type TicketService struct {
	tickets repository.TicketRepository
	events  repository.SyncEventRepository
	engine  *ticketsync.Engine
	logger  *zap.Logger
}

// NewTicketService creates the service.
func NewTicketService(tickets repository.TicketRepository, events repository.SyncEventRepository, engine *ticketsync.Engine, logger *zap.Logger) *TicketService {
	return &TicketService{
		tickets: tickets,
		events:  events,
		engine:  engine,
		logger:  logger,
	}
}

// SubmitInput carries a web ticket submission.
type SubmitInput struct {
	Title       string
	Description string
	CreatedByID *uuid.UUID
}

// Submit validates and captures a new ticket. The returned ticket is in
// the pending state; remote creation happens asynchronously.
func (s *TicketService) Submit(ctx context.Context, input SubmitInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	details := map[string]any{}
	if title == "" {
		details["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		details["title"] = "title must be at most 200 characters"
	}
	if description == "" {
		details["description"] = "description is required"
	} else if len(description) > maxDescriptionLength {
		details["description"] = "description must be at most 10000 characters"
	}
	if len(details) > 0 {
		return nil, util.NewValidationError("invalid ticket submission", details)
	}

	ticket, err := s.engine.CreateAndEnqueue(ctx, ticketsync.CreateInput{
		Title:       title,
		Description: description,
		CreatedByID: input.CreatedByID,
	})
	if err != nil {
		return nil, util.ToDomainError(err)
	}
	return ticket, nil
}

// Get returns a single ticket.
func (s *TicketService) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"id": id.String()})
		}
		return nil, util.ToDomainError(err)
	}
	return ticket, nil
}

// ListInput carries listing parameters.
type ListInput struct {
	CreatedByID      *uuid.UUID
	Category         string
	CreationStatuses []string
	Search           string
	Limit            int
	Offset           int
}

// List returns tickets matching the filter.
func (s *TicketService) List(ctx context.Context, input ListInput) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		CreatedByID: input.CreatedByID,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if input.Category != "" {
		if !domain.ValidCategory(input.Category) {
			return nil, util.NewValidationError("unknown category", map[string]any{"category": input.Category})
		}
		category := domain.Category(input.Category)
		filter.Category = &category
	}
	for _, raw := range input.CreationStatuses {
		switch status := domain.CreationStatus(raw); status {
		case domain.CreationPending, domain.CreationCreated, domain.CreationFailed, domain.CreationRetrying:
			filter.CreationStatuses = append(filter.CreationStatuses, status)
		default:
			return nil, util.NewValidationError("unknown creation status", map[string]any{"status": raw})
		}
	}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.SearchTerm = &search
	}

	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, util.ToDomainError(err)
	}
	return tickets, nil
}

// Retry re-arms a failed ticket and queues another creation attempt.
func (s *TicketService) Retry(ctx context.Context, id uuid.UUID) error {
	if err := s.engine.ManualRetry(ctx, id); err != nil {
		switch {
		case errors.Is(err, ticketsync.ErrAlreadyCreated):
			return util.NewConflict("ticket is already created in the remote service", map[string]any{"id": id.String()})
		case errors.Is(err, ticketsync.ErrRetryInProgress):
			return util.NewConflict("a sync attempt is already in progress", map[string]any{"id": id.String()})
		case errors.Is(err, pgx.ErrNoRows):
			return util.NewNotFound("ticket", map[string]any{"id": id.String()})
		}
		return util.ToDomainError(err)
	}
	return nil
}

// History returns the sync event trail for a ticket in chronological order.
func (s *TicketService) History(ctx context.Context, id uuid.UUID) ([]domain.SyncEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.events.ListByTicket(ctx, id)
	if err != nil {
		return nil, util.ToDomainError(err)
	}
	return events, nil
}
