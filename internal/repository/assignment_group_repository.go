package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// AssignmentGroupRepository reads the category to remote-group mapping.
// The table is slow-changing and read-only from the pipeline's view.
type AssignmentGroupRepository interface {
	GetByCategory(ctx context.Context, category domain.Category) (*domain.AssignmentGroup, error)
	List(ctx context.Context) ([]domain.AssignmentGroup, error)
}

type assignmentGroupRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentGroupRepository instantiates the repository.
func NewAssignmentGroupRepository(pool *pgxpool.Pool) AssignmentGroupRepository {
	return &assignmentGroupRepository{pool: pool}
}

func (r *assignmentGroupRepository) GetByCategory(ctx context.Context, category domain.Category) (*domain.AssignmentGroup, error) {
	const query = `SELECT category, name, remote_group_id FROM assignment_groups WHERE category=$1`
	var group domain.AssignmentGroup
	if err := r.pool.QueryRow(ctx, query, category).Scan(
		&group.Category,
		&group.Name,
		&group.RemoteGroupID,
	); err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *assignmentGroupRepository) List(ctx context.Context) ([]domain.AssignmentGroup, error) {
	const query = `SELECT category, name, remote_group_id FROM assignment_groups ORDER BY category`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssignmentGroup
	for rows.Next() {
		var group domain.AssignmentGroup
		if err := rows.Scan(&group.Category, &group.Name, &group.RemoteGroupID); err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	return result, rows.Err()
}
