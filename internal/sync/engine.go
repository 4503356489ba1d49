package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/classifier"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/mailer"
	"github.com/spec-kit/ticket-sync/internal/queue"
	"github.com/spec-kit/ticket-sync/internal/remote"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

// Classification fallbacks. A classifier outage must never prevent ticket
// capture.
const (
	fallbackCategory = domain.CategoryApplication
	fallbackPriority = domain.PriorityHigh

	maxTitleLen = 200
)

// ErrAlreadyCreated is returned by ManualRetry for tickets that finished
// syncing; nothing to retry.
var ErrAlreadyCreated = errors.New("ticket already created in remote service")

// ErrRetryInProgress is returned by ManualRetry while a worker holds the
// creation claim.
var ErrRetryInProgress = errors.New("a sync attempt for this ticket is in progress")

// Engine drives the ticket lifecycle against the remote ticket service:
// capture, creation with bounded retry, status reconciliation and email
// reply dispatch. Every operation is idempotent; concurrency safety comes
// from single-row conditional updates, not locks.
type Engine struct {
	tickets      repository.TicketRepository
	emailTickets repository.EmailTicketRepository
	groups       repository.AssignmentGroupRepository
	syncEvents   repository.SyncEventRepository
	broker       queue.Enqueuer
	classifier   classifier.Classifier
	remote       remote.Client
	sender       mailer.Sender
	dispatcher   events.Dispatcher
	logger       *zap.Logger

	statusLabels    map[string]string
	staleRetryAge   time.Duration
	replyAccountKey string
}

// Dependencies bundles collaborators for the engine.
type Dependencies struct {
	TicketRepo      repository.TicketRepository
	EmailTicketRepo repository.EmailTicketRepository
	GroupRepo       repository.AssignmentGroupRepository
	SyncEventRepo   repository.SyncEventRepository
	Broker          queue.Enqueuer
	Classifier      classifier.Classifier
	Remote          remote.Client
	Sender          mailer.Sender
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
}

// Config tunes engine behavior.
type Config struct {
	// StatusLabels maps remote state codes to display labels; defaults to
	// DefaultStatusLabels when nil.
	StatusLabels map[string]string

	// StaleRetryAge is how long a retrying claim may sit before the sweep
	// reclaims it (crash recovery).
	StaleRetryAge time.Duration

	// ReplyAccountKey selects the outbound mail account for replies.
	ReplyAccountKey string
}

// NewEngine constructs the engine.
func NewEngine(deps Dependencies, cfg Config) *Engine {
	labels := cfg.StatusLabels
	if labels == nil {
		labels = DefaultStatusLabels()
	}
	staleAge := cfg.StaleRetryAge
	if staleAge <= 0 {
		staleAge = 30 * time.Minute
	}
	return &Engine{
		tickets:         deps.TicketRepo,
		emailTickets:    deps.EmailTicketRepo,
		groups:          deps.GroupRepo,
		syncEvents:      deps.SyncEventRepo,
		broker:          deps.Broker,
		classifier:      deps.Classifier,
		remote:          deps.Remote,
		sender:          deps.Sender,
		dispatcher:      deps.Dispatcher,
		logger:          deps.Logger,
		statusLabels:    labels,
		staleRetryAge:   staleAge,
		replyAccountKey: cfg.ReplyAccountKey,
	}
}

// CreateInput describes a web-origin ticket submission.
type CreateInput struct {
	Title       string
	Description string
	CreatedByID *uuid.UUID
}

// EmailInput describes an email-origin ticket submission.
type EmailInput struct {
	UID        string
	Sender     string
	Subject    string
	Body       string
	RawMessage string
	CreatedBy  *uuid.UUID
}

// CreateAndEnqueue classifies the request, persists a pending ticket and
// enqueues its creation task. It never blocks on the remote service.
func (e *Engine) CreateAndEnqueue(ctx context.Context, input CreateInput) (*domain.Ticket, error) {
	ticket := e.buildTicket(ctx, input.Title, input.Description, domain.OriginWeb, input.CreatedByID)
	if err := e.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("persist ticket: %w", err)
	}
	e.recordCapture(ctx, ticket)
	return ticket, nil
}

// IngestEmail is the email-origin creation path. The mailbox UID is the
// idempotency key: reprocessing a UID returns the already-linked ticket
// without creating a second one.
func (e *Engine) IngestEmail(ctx context.Context, input EmailInput) (*domain.Ticket, bool, error) {
	existing, err := e.emailTickets.GetByUID(ctx, input.UID)
	if err == nil {
		return e.resolveExisting(ctx, input.UID, existing)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup email ticket: %w", err)
	}

	title := strings.TrimSpace(input.Subject)
	if title == "" {
		title = "No subject"
	}
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}

	ticket := e.buildTicket(ctx, title, input.Body, domain.OriginEmail, input.CreatedBy)
	emailTicket := &domain.EmailTicket{
		UID:        input.UID,
		Sender:     input.Sender,
		Subject:    input.Subject,
		Body:       input.Body,
		RawMessage: input.RawMessage,
	}

	if err := e.emailTickets.CreateWithTicket(ctx, emailTicket, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicateUID) {
			// A concurrent cycle won the insert; absorb as dedup.
			dup, lookupErr := e.emailTickets.GetByUID(ctx, input.UID)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("re-read deduplicated email ticket: %w", lookupErr)
			}
			return e.resolveExisting(ctx, input.UID, dup)
		}
		return nil, false, fmt.Errorf("persist email ticket: %w", err)
	}

	e.recordCapture(ctx, ticket)
	return ticket, true, nil
}

func (e *Engine) resolveExisting(ctx context.Context, uid string, email *domain.EmailTicket) (*domain.Ticket, bool, error) {
	if email.TicketID == nil {
		e.logger.Warn("email ticket exists without linked ticket; skipping", zap.String("uid", uid))
		return nil, false, nil
	}
	e.logger.Debug("email uid already processed", zap.String("uid", uid))
	ticket, err := e.tickets.GetByID(ctx, *email.TicketID)
	if err != nil {
		return nil, false, fmt.Errorf("load ticket for email uid %s: %w", uid, err)
	}
	return ticket, false, nil
}

// ProcessCreation performs one remote creation attempt for a ticket.
// Safe under duplicate task delivery: at most one concurrent call wins
// the claim; the rest no-op.
func (e *Engine) ProcessCreation(ctx context.Context, ticketID uuid.UUID) error {
	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		// Missing ticket is a data error, not a remote failure.
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if ticket.CreationStatus == domain.CreationCreated {
		e.logger.Debug("ticket already created; skipping", zap.String("ticket_id", ticketID.String()))
		return nil
	}

	now := time.Now().UTC()
	claimed, err := e.tickets.ClaimForCreation(ctx, ticketID, now, now.Add(-e.staleRetryAge))
	if err != nil {
		return fmt.Errorf("claim ticket %s: %w", ticketID, err)
	}
	if !claimed {
		e.logger.Debug("creation claim lost; another worker owns the ticket",
			zap.String("ticket_id", ticketID.String()))
		return nil
	}

	req := remote.CreateRequest{
		ShortDescription: ticket.Title,
		Description:      ticket.Description,
		Category:         string(ticket.Category),
		Urgency:          urgencyFor(string(ticket.Priority)),
	}
	if ticket.AssignmentGroupID != nil {
		req.AssignmentGroup = *ticket.AssignmentGroupID
	}

	result, err := e.remote.CreateTicket(ctx, req)
	if err != nil {
		// Record the failure durably before propagating it, so a race
		// between retries can never lose the failure bookkeeping.
		attempts, markErr := e.tickets.MarkFailed(ctx, ticketID, err.Error(), time.Now().UTC())
		if markErr != nil {
			return errors.Join(fmt.Errorf("mark ticket %s failed: %w", ticketID, markErr), err)
		}
		e.appendEvent(ctx, ticketID, domain.CreationRetrying, domain.CreationFailed, attempts, err.Error())
		e.publish(ctx, events.NewEvent(events.EventTicketSyncFailed, ticketID, events.TicketSyncFailedPayload{
			Attempt: attempts,
			Error:   err.Error(),
		}))
		e.logger.Warn("remote creation failed",
			zap.String("ticket_id", ticketID.String()),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return err
	}

	if err := e.tickets.MarkCreated(ctx, ticketID, result.Number, result.SysID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another path finished first; the remote ticket it recorded
			// stands and this one was never observed. Idempotent no-op.
			return nil
		}
		return fmt.Errorf("mark ticket %s created: %w", ticketID, err)
	}
	e.appendEvent(ctx, ticketID, domain.CreationRetrying, domain.CreationCreated, ticket.SyncAttempts, "")
	e.publish(ctx, events.NewEvent(events.EventTicketSynced, ticketID, events.TicketSyncedPayload{
		RemoteNumber: result.Number,
		RemoteSysID:  result.SysID,
		Attempts:     ticket.SyncAttempts,
	}))
	e.logger.Info("ticket created in remote service",
		zap.String("ticket_id", ticketID.String()),
		zap.String("remote_number", result.Number))
	return nil
}

// RetrySweep enqueues a creation task for every ticket still awaiting
// remote creation. Safe to run concurrently with itself and with in-flight
// creation tasks; the claim in ProcessCreation absorbs duplicates.
func (e *Engine) RetrySweep(ctx context.Context) error {
	staleBefore := time.Now().UTC().Add(-e.staleRetryAge)
	tickets, err := e.tickets.ListForRetry(ctx, staleBefore)
	if err != nil {
		return fmt.Errorf("list tickets for retry: %w", err)
	}
	if len(tickets) == 0 {
		e.logger.Debug("no pending or failed tickets to retry")
		return nil
	}

	e.logger.Info("retry sweep started", zap.Int("tickets", len(tickets)))
	for _, ticket := range tickets {
		if err := e.broker.Enqueue(ctx, queue.NewTask(queue.TaskTicketCreate, ticket.ID)); err != nil {
			e.logger.Warn("enqueue creation task failed",
				zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// StatusReconcile mirrors remote lifecycle state into local tickets. Only
// remote status changes; creation status is never touched here. A single
// bad ticket (fetch failure, unmapped code) is skipped, the sweep
// continues.
func (e *Engine) StatusReconcile(ctx context.Context) error {
	tickets, err := e.tickets.ListForReconcile(ctx, domain.TerminalRemoteStatuses)
	if err != nil {
		return fmt.Errorf("list tickets for reconcile: %w", err)
	}
	e.logger.Info("status reconcile started", zap.Int("tickets", len(tickets)))

	for _, ticket := range tickets {
		if ticket.RemoteSysID == nil {
			continue
		}
		code, err := e.remote.FetchStatus(ctx, *ticket.RemoteSysID)
		if err != nil {
			e.logger.Warn("fetch remote status failed",
				zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
			continue
		}
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		label, ok := e.statusLabels[code]
		if !ok {
			e.logger.Warn("unmapped remote status code",
				zap.String("ticket_id", ticket.ID.String()),
				zap.String("code", code))
			continue
		}
		if label == ticket.RemoteStatus {
			continue
		}
		if err := e.tickets.UpdateRemoteStatus(ctx, ticket.ID, label); err != nil {
			e.logger.Warn("persist remote status failed",
				zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
			continue
		}
		e.publish(ctx, events.NewEvent(events.EventTicketReconciled, ticket.ID, events.TicketReconciledPayload{
			OldStatus: ticket.RemoteStatus,
			NewStatus: label,
		}))
	}
	return nil
}

// ReplySweep sends the ticket-number acknowledgment for email tickets
// whose remote creation has completed. Keyed on "has remote number and
// reply not sent" so it is safe to re-run.
func (e *Engine) ReplySweep(ctx context.Context) error {
	pending, err := e.emailTickets.ListAwaitingReply(ctx)
	if err != nil {
		return fmt.Errorf("list email tickets awaiting reply: %w", err)
	}
	for _, p := range pending {
		if err := e.sender.SendReply(ctx, e.replyAccountKey, p.RemoteNumber, p.Sender, p.Subject); err != nil {
			e.logger.Warn("reply mail failed",
				zap.String("ticket_id", p.TicketID.String()),
				zap.String("recipient", p.Sender),
				zap.Error(err))
			continue
		}
		if err := e.emailTickets.MarkReplySent(ctx, p.EmailTicketID); err != nil {
			e.logger.Warn("mark reply sent failed",
				zap.String("ticket_id", p.TicketID.String()), zap.Error(err))
			continue
		}
		e.publish(ctx, events.NewEvent(events.EventReplySent, p.TicketID, events.ReplySentPayload{
			Recipient:    p.Sender,
			RemoteNumber: p.RemoteNumber,
		}))
	}
	return nil
}

// ManualRetry re-arms a failed (or still pending) ticket and enqueues a
// creation task. Attempt counts reflect total history and are never
// reset.
func (e *Engine) ManualRetry(ctx context.Context, ticketID uuid.UUID) error {
	ok, err := e.tickets.MarkPending(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("mark ticket %s pending: %w", ticketID, err)
	}
	if !ok {
		ticket, err := e.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("load ticket %s: %w", ticketID, err)
		}
		if ticket.CreationStatus == domain.CreationCreated {
			return ErrAlreadyCreated
		}
		return ErrRetryInProgress
	}

	e.appendEvent(ctx, ticketID, domain.CreationFailed, domain.CreationPending, 0, "manual retry")
	if err := e.broker.Enqueue(ctx, queue.NewTask(queue.TaskTicketCreate, ticketID)); err != nil {
		return fmt.Errorf("enqueue creation task: %w", err)
	}
	return nil
}

func (e *Engine) buildTicket(ctx context.Context, title, description string, origin domain.RequestOrigin, createdBy *uuid.UUID) *domain.Ticket {
	category, categoryConf, priority, priorityConf := e.classify(ctx, title+" "+description)

	ticket := &domain.Ticket{
		Title:              title,
		Description:        description,
		Category:           category,
		CategoryConfidence: categoryConf,
		Priority:           priority,
		PriorityConfidence: priorityConf,
		RemoteStatus:       domain.RemoteStatusQueued,
		CreationStatus:     domain.CreationPending,
		Origin:             origin,
		CreatedByID:        createdBy,
	}

	group, err := e.groups.GetByCategory(ctx, category)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			e.logger.Warn("assignment group lookup failed",
				zap.String("category", string(category)), zap.Error(err))
		}
		// Creation proceeds without an assignment either way.
		return ticket
	}
	ticket.AssignedTeam = group.Name
	ticket.AssignmentGroupID = &group.RemoteGroupID

	return ticket
}

func (e *Engine) classify(ctx context.Context, text string) (domain.Category, float64, domain.Priority, float64) {
	category := fallbackCategory
	priority := fallbackPriority
	var categoryConf, priorityConf float64

	if pred, err := e.classifier.PredictCategory(ctx, text); err != nil {
		e.logger.Error("category prediction failed; using fallback", zap.Error(err))
	} else if !domain.ValidCategory(pred.Label) {
		e.logger.Warn("classifier returned unknown category; using fallback",
			zap.String("label", pred.Label))
	} else {
		category = domain.Category(pred.Label)
		categoryConf = pred.Confidence
	}

	if pred, err := e.classifier.PredictPriority(ctx, text); err != nil {
		e.logger.Error("priority prediction failed; using fallback", zap.Error(err))
	} else if !domain.ValidPriority(pred.Label) {
		e.logger.Warn("classifier returned unknown priority; using fallback",
			zap.String("label", pred.Label))
	} else {
		priority = domain.Priority(pred.Label)
		priorityConf = pred.Confidence
	}

	return category, categoryConf, priority, priorityConf
}

func (e *Engine) recordCapture(ctx context.Context, ticket *domain.Ticket) {
	e.appendEvent(ctx, ticket.ID, "", domain.CreationPending, 0, "ticket captured")
	e.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		Origin:   ticket.Origin,
		Category: ticket.Category,
		Priority: ticket.Priority,
		Title:    ticket.Title,
	}))
	if err := e.broker.Enqueue(ctx, queue.NewTask(queue.TaskTicketCreate, ticket.ID)); err != nil {
		// The periodic retry sweep will pick the pending ticket up.
		e.logger.Warn("enqueue creation task failed; sweep will recover",
			zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
	}
}

func (e *Engine) appendEvent(ctx context.Context, ticketID uuid.UUID, from, to domain.CreationStatus, attempt int, message string) {
	event := &domain.SyncEvent{
		TicketID:   ticketID,
		FromStatus: from,
		ToStatus:   to,
		Attempt:    attempt,
		Message:    message,
	}
	if err := e.syncEvents.Append(ctx, event); err != nil {
		e.logger.Warn("append sync event failed",
			zap.String("ticket_id", ticketID.String()), zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, event)
}
