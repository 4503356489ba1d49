package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// ErrDuplicateUID signals that an email ticket for the message UID already
// exists. Callers treat it as a dedup no-op, not a failure.
var ErrDuplicateUID = errors.New("email ticket with this uid already exists")

const uniqueViolationCode = "23505"

// EmailTicketRepository encapsulates email-ticket persistence.
type EmailTicketRepository interface {
	GetByUID(ctx context.Context, uid string) (*domain.EmailTicket, error)

	// CreateWithTicket persists the ticket and its email record in one
	// transaction, so a crash can never leave an email record without its
	// ticket or vice versa. Returns ErrDuplicateUID when a concurrent
	// cycle already recorded the UID; nothing is persisted in that case.
	CreateWithTicket(ctx context.Context, email *domain.EmailTicket, ticket *domain.Ticket) error

	// ListAwaitingReply returns email tickets whose linked ticket has a
	// remote number and whose acknowledgment has not been sent.
	ListAwaitingReply(ctx context.Context) ([]domain.PendingReply, error)

	MarkReplySent(ctx context.Context, id uuid.UUID) error
}

type emailTicketRepository struct {
	pool *pgxpool.Pool
}

// NewEmailTicketRepository instantiates the repository.
func NewEmailTicketRepository(pool *pgxpool.Pool) EmailTicketRepository {
	return &emailTicketRepository{pool: pool}
}

func (r *emailTicketRepository) GetByUID(ctx context.Context, uid string) (*domain.EmailTicket, error) {
	const query = `
        SELECT id, uid, sender, subject, body, raw_message, ticket_id, reply_sent, received_at
        FROM email_tickets WHERE uid=$1`
	var email domain.EmailTicket
	if err := r.pool.QueryRow(ctx, query, uid).Scan(
		&email.ID,
		&email.UID,
		&email.Sender,
		&email.Subject,
		&email.Body,
		&email.RawMessage,
		&email.TicketID,
		&email.ReplySent,
		&email.ReceivedAt,
	); err != nil {
		return nil, err
	}
	return &email, nil
}

func (r *emailTicketRepository) CreateWithTicket(ctx context.Context, email *domain.EmailTicket, ticket *domain.Ticket) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const ticketQuery = `
            INSERT INTO tickets (title, description, category, category_confidence, priority, priority_confidence,
                assigned_team, assignment_group_id, remote_status, creation_status, origin, created_by)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
            RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, ticketQuery,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.CategoryConfidence,
			ticket.Priority,
			ticket.PriorityConfidence,
			ticket.AssignedTeam,
			ticket.AssignmentGroupID,
			ticket.RemoteStatus,
			ticket.CreationStatus,
			ticket.Origin,
			ticket.CreatedByID,
		).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		const emailQuery = `
            INSERT INTO email_tickets (uid, sender, subject, body, raw_message, ticket_id)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING id, received_at`
		if err := tx.QueryRow(ctx, emailQuery,
			email.UID,
			email.Sender,
			email.Subject,
			email.Body,
			email.RawMessage,
			ticket.ID,
		).Scan(&email.ID, &email.ReceivedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
				return ErrDuplicateUID
			}
			return fmt.Errorf("insert email ticket: %w", err)
		}
		email.TicketID = &ticket.ID
		return nil
	})
}

func (r *emailTicketRepository) ListAwaitingReply(ctx context.Context) ([]domain.PendingReply, error) {
	const query = `
        SELECT e.id, t.id, t.remote_number, e.sender, e.subject
        FROM email_tickets e
        JOIN tickets t ON t.id = e.ticket_id
        WHERE e.reply_sent = FALSE AND t.remote_number IS NOT NULL
        ORDER BY e.received_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PendingReply
	for rows.Next() {
		var pending domain.PendingReply
		if err := rows.Scan(
			&pending.EmailTicketID,
			&pending.TicketID,
			&pending.RemoteNumber,
			&pending.Sender,
			&pending.Subject,
		); err != nil {
			return nil, err
		}
		result = append(result, pending)
	}
	return result, rows.Err()
}

func (r *emailTicketRepository) MarkReplySent(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE email_tickets SET reply_sent=TRUE WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
