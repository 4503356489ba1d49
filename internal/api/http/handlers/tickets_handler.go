package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/service"
	"github.com/spec-kit/ticket-sync/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	input := service.SubmitInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.CreatedBy != nil {
		createdBy, err := uuid.Parse(*req.CreatedBy)
		if err != nil {
			return util.NewValidationError("invalid created_by", map[string]any{"created_by": *req.CreatedBy})
		}
		input.CreatedByID = &createdBy
	}

	ticket, err := h.service.Submit(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	input := parseTicketQuery(c)
	tickets, err := h.service.List(c.UserContext(), input)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := parseTicketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// GetSyncStatus GET /tickets/:id/status.
func (h *TicketsHandler) GetSyncStatus(c *fiber.Ctx) error {
	id, err := parseTicketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SyncStatusResponse{
		ID:              ticket.ID.String(),
		CreationStatus:  ticket.CreationStatus,
		RemoteNumber:    ticket.RemoteNumber,
		RemoteStatus:    ticket.RemoteStatus,
		SyncAttempts:    ticket.SyncAttempts,
		LastSyncAttempt: ticket.LastSyncAttempt,
		ErrorMessage:    ticket.ErrorMessage,
	}})
}

// RetryTicket POST /tickets/:id/retry.
func (h *TicketsHandler) RetryTicket(c *fiber.Ctx) error {
	id, err := parseTicketID(c)
	if err != nil {
		return err
	}
	if err := h.service.Retry(c.UserContext(), id); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"id":     id.String(),
		"status": "retry queued",
	}})
}

// ListSyncEvents GET /tickets/:id/events.
func (h *TicketsHandler) ListSyncEvents(c *fiber.Ctx) error {
	id, err := parseTicketID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.SyncEventResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.SyncEventResponse{
			ID:         entry.ID.String(),
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			Attempt:    entry.Attempt,
			Message:    entry.Message,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, util.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseTicketQuery(c *fiber.Ctx) service.ListInput {
	input := service.ListInput{
		Category: strings.TrimSpace(c.Query("category")),
		Search:   c.Query("search"),
	}
	if statusStr := c.Query("creation_status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			input.CreationStatuses = append(input.CreationStatuses, strings.TrimSpace(part))
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	input.Offset = (page - 1) * pageSize
	input.Limit = pageSize
	return input
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID.String(),
		Title:          ticket.Title,
		Category:       ticket.Category,
		Priority:       ticket.Priority,
		AssignedTeam:   ticket.AssignedTeam,
		RemoteNumber:   ticket.RemoteNumber,
		RemoteStatus:   ticket.RemoteStatus,
		CreationStatus: ticket.CreationStatus,
		Origin:         ticket.Origin,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		ID:                 ticket.ID.String(),
		Title:              ticket.Title,
		Description:        ticket.Description,
		Category:           ticket.Category,
		CategoryConfidence: ticket.CategoryConfidence,
		Priority:           ticket.Priority,
		PriorityConfidence: ticket.PriorityConfidence,
		AssignedTeam:       ticket.AssignedTeam,
		RemoteNumber:       ticket.RemoteNumber,
		RemoteSysID:        ticket.RemoteSysID,
		RemoteStatus:       ticket.RemoteStatus,
		CreationStatus:     ticket.CreationStatus,
		SyncAttempts:       ticket.SyncAttempts,
		LastSyncAttempt:    ticket.LastSyncAttempt,
		ErrorMessage:       ticket.ErrorMessage,
		Origin:             ticket.Origin,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
	}
}
