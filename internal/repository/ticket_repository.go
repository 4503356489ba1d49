package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

const ticketColumns = `id, title, description, category, category_confidence, priority, priority_confidence,
               assigned_team, assignment_group_id, remote_number, remote_sys_id, remote_status,
               creation_status, sync_attempts, last_sync_attempt, error_message, origin, created_by,
               created_at, updated_at`

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedByID      *uuid.UUID
	Category         *domain.Category
	CreationStatuses []domain.CreationStatus
	SearchTerm       *string
	Limit            int
	Offset           int
}

// TicketRepository encapsulates ticket persistence. Every mutation is
// scoped to a single row; the conditional status updates are what make
// concurrent creation attempts safe.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)

	// ListForRetry returns tickets awaiting a creation attempt: pending or
	// failed tickets, plus retrying tickets whose claim has gone stale.
	ListForRetry(ctx context.Context, staleBefore time.Time) ([]domain.Ticket, error)

	// ListForReconcile returns tickets with a remote identity whose remote
	// status is not terminal.
	ListForReconcile(ctx context.Context, terminalStatuses []string) ([]domain.Ticket, error)

	// ClaimForCreation atomically moves a pending/failed (or stale
	// retrying) ticket into the retrying state. Returns false when another
	// worker holds the claim or the ticket is already created.
	ClaimForCreation(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error)

	// MarkCreated records a successful remote creation and clears the
	// error message. A no-op for tickets already created.
	MarkCreated(ctx context.Context, id uuid.UUID, remoteNumber, remoteSysID string) error

	// MarkFailed records a failed attempt and returns the new attempt
	// count.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) (int, error)

	// MarkPending re-arms a failed or pending ticket for retry. Returns
	// false when the ticket is in any other state.
	MarkPending(ctx context.Context, id uuid.UUID) (bool, error)

	UpdateRemoteStatus(ctx context.Context, id uuid.UUID, status string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, category, category_confidence, priority, priority_confidence,
            assigned_team, assignment_group_id, remote_status, creation_status, origin, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
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
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedByID != nil {
		args = append(args, *filter.CreatedByID)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if len(filter.CreationStatuses) > 0 {
		placeholders := make([]string, len(filter.CreationStatuses))
		for i, status := range filter.CreationStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("creation_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(COALESCE(remote_number,'')) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListForRetry(ctx context.Context, staleBefore time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE creation_status IN ('pending','failed')
           OR (creation_status='retrying' AND (last_sync_attempt IS NULL OR last_sync_attempt < $1))
        ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, staleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListForReconcile(ctx context.Context, terminalStatuses []string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE remote_sys_id IS NOT NULL AND remote_status <> ALL($1)
        ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, terminalStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ClaimForCreation(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	const query = `
        UPDATE tickets
        SET creation_status='retrying', last_sync_attempt=$2, updated_at=NOW()
        WHERE id=$1
          AND (creation_status IN ('pending','failed')
               OR (creation_status='retrying' AND (last_sync_attempt IS NULL OR last_sync_attempt < $3)))`
	cmd, err := r.pool.Exec(ctx, query, id, at, staleBefore)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) MarkCreated(ctx context.Context, id uuid.UUID, remoteNumber, remoteSysID string) error {
	const query = `
        UPDATE tickets
        SET creation_status='created', remote_number=$2, remote_sys_id=$3, error_message=NULL, updated_at=NOW()
        WHERE id=$1 AND creation_status <> 'created'`
	cmd, err := r.pool.Exec(ctx, query, id, remoteNumber, remoteSysID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) (int, error) {
	const query = `
        UPDATE tickets
        SET creation_status='failed', sync_attempts=sync_attempts+1, last_sync_attempt=$3,
            error_message=$2, updated_at=NOW()
        WHERE id=$1 AND creation_status <> 'created'
        RETURNING sync_attempts`
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id, errMsg, at).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *ticketRepository) MarkPending(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
        UPDATE tickets
        SET creation_status='pending', updated_at=NOW()
        WHERE id=$1 AND creation_status IN ('failed','pending')`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) UpdateRemoteStatus(ctx context.Context, id uuid.UUID, status string) error {
	const query = `UPDATE tickets SET remote_status=$2, updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.CategoryConfidence,
		&ticket.Priority,
		&ticket.PriorityConfidence,
		&ticket.AssignedTeam,
		&ticket.AssignmentGroupID,
		&ticket.RemoteNumber,
		&ticket.RemoteSysID,
		&ticket.RemoteStatus,
		&ticket.CreationStatus,
		&ticket.SyncAttempts,
		&ticket.LastSyncAttempt,
		&ticket.ErrorMessage,
		&ticket.Origin,
		&ticket.CreatedByID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
