package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// StatusUpdate describes a conditional status transition.
type StatusUpdate struct {
	TicketID   string
	FromStatus domain.TicketStatus
	ToStatus   domain.TicketStatus
	SubStatus  *string
	// WipStartedAt is recorded only if the ticket has no earlier value.
	WipStartedAt *time.Time
	ResolvedAt   *time.Time
	// ClearNextEscalation drops the pending deadline (resolution).
	ClearNextEscalation bool
}

// PriorityUpdate describes an audited priority assignment.
type PriorityUpdate struct {
	TicketID         string
	Priority         domain.Priority
	SetBy            string
	SetAt            time.Time
	NextEscalationAt *time.Time
}

// EscalationUpdate moves a ticket one tier up, closing the open chain
// entry and appending the next one, all under a single transaction.
type EscalationUpdate struct {
	TicketID         string
	FromLevel        domain.SupportLevel
	ToLevel          domain.SupportLevel
	EscalatedAt      time.Time
	NewStep          domain.EscalationStep
	NextEscalationAt *time.Time
}

// TicketRepository encapsulates ticket persistence. All mutating
// operations use conditional updates so racing writers cannot both
// succeed with inconsistent end states.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, initialStep *domain.EscalationStep) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) error
	UpdatePriority(ctx context.Context, update PriorityUpdate) error
	ApplyEscalation(ctx context.Context, update EscalationUpdate) error
	// ListEscalationDue returns unresolved tickets whose deadline is at
	// or before now, oldest deadline first.
	ListEscalationDue(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, category, sub_category, issue,
    priority, priority_set_by, priority_set_at, priority_manually_set,
    status, sub_status, current_level, next_escalation_at,
    created_by, wip_started_at, resolved_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, initialStep *domain.EscalationStep) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insert = `
        INSERT INTO tickets (id, title, description, category, sub_category, issue,
            priority, status, current_level, next_escalation_at, created_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, insert,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.SubCategory,
		ticket.Issue,
		ticket.Priority,
		ticket.Status,
		ticket.CurrentLevel,
		ticket.NextEscalationAt,
		ticket.CreatedBy,
		ticket.CreatedAt,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}

	if initialStep != nil {
		initialStep.TicketID = ticket.ID
		if err := insertStep(ctx, tx, initialStep); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	return ticket, err
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	const query = `
        UPDATE tickets SET status=$1, sub_status=$2,
            wip_started_at = COALESCE(wip_started_at, $3),
            resolved_at = COALESCE($4, resolved_at),
            next_escalation_at = CASE WHEN $5 THEN NULL ELSE next_escalation_at END,
            updated_at = NOW()
        WHERE id=$6 AND status=$7`
	cmd, err := r.pool.Exec(ctx, query,
		update.ToStatus,
		update.SubStatus,
		update.WipStartedAt,
		update.ResolvedAt,
		update.ClearNextEscalation,
		update.TicketID,
		update.FromStatus,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.classifyMiss(ctx, update.TicketID)
	}
	return nil
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, update PriorityUpdate) error {
	const query = `
        UPDATE tickets SET priority=$1, priority_set_by=$2, priority_set_at=$3,
            priority_manually_set=TRUE, next_escalation_at=$4, updated_at=NOW()
        WHERE id=$5 AND status <> 'RESOLVED'`
	cmd, err := r.pool.Exec(ctx, query,
		update.Priority,
		update.SetBy,
		update.SetAt,
		update.NextEscalationAt,
		update.TicketID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.classifyMiss(ctx, update.TicketID)
	}
	return nil
}

func (r *ticketRepository) ApplyEscalation(ctx context.Context, update EscalationUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const bump = `
        UPDATE tickets SET current_level=$1, next_escalation_at=$2, updated_at=NOW()
        WHERE id=$3 AND current_level=$4 AND status <> 'RESOLVED'`
	cmd, err := tx.Exec(ctx, bump,
		update.ToLevel,
		update.NextEscalationAt,
		update.TicketID,
		update.FromLevel,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.classifyMiss(ctx, update.TicketID)
	}

	const closeStep = `
        UPDATE escalation_steps SET escalated_at=$1
        WHERE ticket_id=$2 AND escalated_at IS NULL`
	if _, err := tx.Exec(ctx, closeStep, update.EscalatedAt, update.TicketID); err != nil {
		return err
	}

	step := update.NewStep
	step.TicketID = update.TicketID
	if err := insertStep(ctx, tx, &step); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) ListEscalationDue(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE next_escalation_at IS NOT NULL AND next_escalation_at <= $1
          AND status <> 'RESOLVED'
        ORDER BY next_escalation_at ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// classifyMiss distinguishes a lost optimistic-concurrency race from a
// missing ticket after a conditional update touched zero rows.
func (r *ticketRepository) classifyMiss(ctx context.Context, ticketID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticketID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrTicketNotFound
	}
	return domain.ErrConcurrentModification
}

func insertStep(ctx context.Context, tx pgx.Tx, step *domain.EscalationStep) error {
	const query = `
        INSERT INTO escalation_steps (ticket_id, level, assignee, assigned_at, response_min, resolution_min)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return tx.QueryRow(ctx, query,
		step.TicketID,
		step.Level,
		step.Assignee,
		step.AssignedAt,
		step.ResponseMinutes,
		step.ResolutionMinutes,
	).Scan(&step.ID)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.SubCategory,
		&ticket.Issue,
		&ticket.Priority,
		&ticket.PrioritySetBy,
		&ticket.PrioritySetAt,
		&ticket.PriorityManuallySet,
		&ticket.Status,
		&ticket.SubStatus,
		&ticket.CurrentLevel,
		&ticket.NextEscalationAt,
		&ticket.CreatedBy,
		&ticket.WipStartedAt,
		&ticket.ResolvedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
