package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// SyncEventRepository records the audit trail of creation-status
// transitions. Append-only.
type SyncEventRepository interface {
	Append(ctx context.Context, event *domain.SyncEvent) error
	ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]domain.SyncEvent, error)
}

type syncEventRepository struct {
	pool *pgxpool.Pool
}

// NewSyncEventRepository instantiates the repository.
func NewSyncEventRepository(pool *pgxpool.Pool) SyncEventRepository {
	return &syncEventRepository{pool: pool}
}

func (r *syncEventRepository) Append(ctx context.Context, event *domain.SyncEvent) error {
	const query = `
        INSERT INTO ticket_sync_events (ticket_id, from_status, to_status, attempt, message)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		event.TicketID,
		event.FromStatus,
		event.ToStatus,
		event.Attempt,
		event.Message,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *syncEventRepository) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]domain.SyncEvent, error) {
	const query = `
        SELECT id, ticket_id, from_status, to_status, attempt, message, created_at
        FROM ticket_sync_events WHERE ticket_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SyncEvent
	for rows.Next() {
		var event domain.SyncEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.FromStatus,
			&event.ToStatus,
			&event.Attempt,
			&event.Message,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
