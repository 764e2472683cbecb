package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// allowedTransitions is the strict lifecycle graph: Open → WIP →
// Resolved, nothing else. Resolved is terminal.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:     {domain.TicketStatusWIP},
	domain.TicketStatusWIP:      {domain.TicketStatusResolved},
	domain.TicketStatusResolved: {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// LifecycleService enforces the ticket status state machine and the
// audited priority assignment.
type LifecycleService struct {
	tickets    repository.TicketRepository
	history    repository.StatusHistoryRepository
	clock      *EscalationClock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.StatusHistoryRepository
	Clock       *EscalationClock
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// TransitionInput describes a requested status change.
type TransitionInput struct {
	ToStatus  domain.TicketStatus
	ChangedBy string
	Reason    *string
	SubStatus *string
}

// Transition moves a ticket through the state machine. The update is
// conditional on the status observed here, so two racing callers cannot
// both succeed. Entering WIP records wipStartedAt once; entering
// Resolved records resolvedAt and clears the escalation deadline.
func (s *LifecycleService) Transition(ctx context.Context, ticketID string, input TransitionInput) (*domain.Ticket, error) {
	if !input.ToStatus.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(input.ToStatus)})
	}
	if input.ChangedBy == "" {
		return nil, apperrors.NewValidationError("changed_by required", nil)
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(ticket.Status, input.ToStatus) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(input.ToStatus))
	}

	now := s.now()
	update := repository.StatusUpdate{
		TicketID:   ticket.ID,
		FromStatus: ticket.Status,
		ToStatus:   input.ToStatus,
		SubStatus:  input.SubStatus,
	}
	switch input.ToStatus {
	case domain.TicketStatusWIP:
		update.WipStartedAt = &now
	case domain.TicketStatusResolved:
		update.ResolvedAt = &now
		update.ClearNextEscalation = true
	}

	if err := s.tickets.UpdateStatus(ctx, update); err != nil {
		return nil, mapTicketError(err)
	}

	change := &domain.StatusChange{
		TicketID:  ticket.ID,
		Status:    input.ToStatus,
		ChangedBy: input.ChangedBy,
		Reason:    input.Reason,
	}
	if err := s.history.Append(ctx, change); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    input.ChangedBy,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: ticket.Status,
			NewStatus: input.ToStatus,
			Reason:    derefString(input.Reason),
		},
	})

	return s.getTicket(ctx, ticketID)
}

// PriorityInput describes an audited priority assignment.
type PriorityInput struct {
	Priority      domain.Priority
	SetBy         string
	Justification *string
}

// SetPriority is an explicit, audited action distinct from status
// changes. The escalation deadline is recomputed immediately under the
// new multiplier, still anchored at the ticket's creation time.
func (s *LifecycleService) SetPriority(ctx context.Context, ticketID string, input PriorityInput) (*domain.Ticket, error) {
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(input.Priority)})
	}
	if input.SetBy == "" {
		return nil, apperrors.NewValidationError("set_by required", nil)
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusResolved {
		return nil, apperrors.NewConflict("cannot change priority of a resolved ticket", nil)
	}

	now := s.now()
	update := repository.PriorityUpdate{
		TicketID:         ticket.ID,
		Priority:         input.Priority,
		SetBy:            input.SetBy,
		SetAt:            now,
		NextEscalationAt: s.clock.NextDeadline(ticket.CreatedAt, input.Priority, ticket.CurrentLevel),
	}
	if err := s.tickets.UpdatePriority(ctx, update); err != nil {
		return nil, mapTicketError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    input.SetBy,
		Payload: events.TicketPriorityChangedPayload{
			OldPriority:      ticket.Priority,
			NewPriority:      input.Priority,
			Justification:    derefString(input.Justification),
			NextEscalationAt: update.NextEscalationAt,
		},
	})

	return s.getTicket(ctx, ticketID)
}

func (s *LifecycleService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err)
	}
	return ticket, nil
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// mapTicketError translates repository sentinels to transport errors.
func mapTicketError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, domain.ErrConcurrentModification):
		return apperrors.NewConcurrentModification("ticket")
	default:
		return apperrors.MapError(err)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
