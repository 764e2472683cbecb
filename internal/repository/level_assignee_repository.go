package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// LevelAssigneeRepository stores the per-level support roster.
type LevelAssigneeRepository interface {
	ListActiveByLevel(ctx context.Context, level domain.SupportLevel) ([]domain.LevelAssignee, error)
}

type levelAssigneeRepository struct {
	pool *pgxpool.Pool
}

// NewLevelAssigneeRepository builds repository.
func NewLevelAssigneeRepository(pool *pgxpool.Pool) LevelAssigneeRepository {
	return &levelAssigneeRepository{pool: pool}
}

func (r *levelAssigneeRepository) ListActiveByLevel(ctx context.Context, level domain.SupportLevel) ([]domain.LevelAssignee, error) {
	const query = `
        SELECT id, level, assignee, active, created_at
        FROM level_assignees WHERE level=$1 AND active
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, level)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LevelAssignee
	for rows.Next() {
		var entry domain.LevelAssignee
		if err := rows.Scan(
			&entry.ID,
			&entry.Level,
			&entry.Assignee,
			&entry.Active,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
