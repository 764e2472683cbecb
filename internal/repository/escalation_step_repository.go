package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EscalationStepRepository reads a ticket's escalation chain. Writes go
// through TicketRepository so each escalation stays atomic.
type EscalationStepRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationStep, error)
}

type escalationStepRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationStepRepository builds repository.
func NewEscalationStepRepository(pool *pgxpool.Pool) EscalationStepRepository {
	return &escalationStepRepository{pool: pool}
}

func (r *escalationStepRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationStep, error) {
	const query = `
        SELECT id, ticket_id, level, assignee, assigned_at, escalated_at, response_min, resolution_min
        FROM escalation_steps WHERE ticket_id=$1 ORDER BY assigned_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationStep
	for rows.Next() {
		var step domain.EscalationStep
		if err := rows.Scan(
			&step.ID,
			&step.TicketID,
			&step.Level,
			&step.Assignee,
			&step.AssignedAt,
			&step.EscalatedAt,
			&step.ResponseMinutes,
			&step.ResolutionMinutes,
		); err != nil {
			return nil, err
		}
		result = append(result, step)
	}
	return result, rows.Err()
}
