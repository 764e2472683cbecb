package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// EscalationService owns ticket intake and the time-driven walk across
// support tiers.
type EscalationService struct {
	tickets    repository.TicketRepository
	steps      repository.EscalationStepRepository
	resolver   *RuleService
	directory  AssigneeDirectory
	clock      *EscalationClock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	batchLimit int
	now        func() time.Time
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	TicketRepo repository.TicketRepository
	StepRepo   repository.EscalationStepRepository
	Resolver   *RuleService
	Directory  AssigneeDirectory
	Clock      *EscalationClock
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	BatchLimit int
	Now        func() time.Time
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	limit := deps.BatchLimit
	if limit <= 0 {
		limit = 500
	}
	return &EscalationService{
		tickets:    deps.TicketRepo,
		steps:      deps.StepRepo,
		resolver:   deps.Resolver,
		directory:  deps.Directory,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		batchLimit: limit,
		now:        now,
	}
}

// TicketCreateInput describes ticket intake payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	SubCategory string
	Issue       string
	Priority    string
	CreatedBy   string
}

// CreateTicket registers a ticket with the engine: it opens the L0
// chain entry and schedules the first escalation deadline. The SLA
// windows of the matched rule are copied onto the chain entry; a
// missing rule is not an error, the ticket just carries no budget.
func (s *EscalationService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Category) == "" {
		return nil, apperrors.NewValidationError("title and category required", nil)
	}
	if input.CreatedBy == "" {
		return nil, apperrors.NewValidationError("created_by required", nil)
	}
	priority, err := domain.ParsePriority(input.Priority)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Category:     strings.TrimSpace(input.Category),
		SubCategory:  strings.TrimSpace(input.SubCategory),
		Issue:        strings.TrimSpace(input.Issue),
		Priority:     priority,
		Status:       domain.TicketStatusOpen,
		CurrentLevel: domain.LevelL0,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
	}
	ticket.NextEscalationAt = s.clock.NextDeadline(ticket.CreatedAt, ticket.Priority, ticket.CurrentLevel)

	assignee, err := s.directory.Pick(ctx, domain.LevelL0, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	step := &domain.EscalationStep{
		Level:      domain.LevelL0,
		Assignee:   assignee,
		AssignedAt: now,
	}
	s.applyRuleWindow(ticket, step)

	if err := s.tickets.Create(ctx, ticket, step); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    input.CreatedBy,
		Payload: events.TicketCreatedPayload{
			Category:         ticket.Category,
			SubCategory:      ticket.SubCategory,
			Issue:            ticket.Issue,
			Priority:         ticket.Priority,
			Level:            ticket.CurrentLevel,
			NextEscalationAt: ticket.NextEscalationAt,
		},
	})
	return ticket, nil
}

// GetTicket returns a ticket with its escalation chain and is used by
// the transport layer.
func (s *EscalationService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.EscalationStep, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, mapTicketError(err)
	}
	chain, err := s.steps.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, chain, nil
}

// ShouldEscalate reports whether the ticket's deadline has passed.
func (s *EscalationService) ShouldEscalate(ticket *domain.Ticket) bool {
	return s.clock.ShouldEscalate(ticket, s.now())
}

// Escalate advances a ticket from fromLevel to toLevel. toLevel must be
// the immediate successor and the ticket must still be at fromLevel and
// unresolved. Escalation never demotes and never touches status.
func (s *EscalationService) Escalate(ctx context.Context, ticketID string, fromLevel, toLevel domain.SupportLevel, reason, actor string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err)
	}
	return s.escalateTicket(ctx, ticket, fromLevel, toLevel, reason, actor)
}

// EscalateNext advances a ticket one tier from its current level.
func (s *EscalationService) EscalateNext(ctx context.Context, ticketID, reason, actor string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err)
	}
	next, ok := ticket.CurrentLevel.Next()
	if !ok {
		return nil, apperrors.NewInvalidEscalation("ticket is already at the top tier", map[string]any{
			"current_level": string(ticket.CurrentLevel),
		})
	}
	return s.escalateTicket(ctx, ticket, ticket.CurrentLevel, next, reason, actor)
}

// SweepResult summarizes one batch escalation pass.
type SweepResult struct {
	Escalated int
	Errors    int
}

// ProcessPending escalates every unresolved ticket whose deadline has
// passed. A single ticket's failure is counted and isolated; it never
// aborts the batch. Each per-ticket escalation is independently atomic,
// so an interrupted sweep leaves no partial state.
func (s *EscalationService) ProcessPending(ctx context.Context) (SweepResult, error) {
	now := s.now()
	due, err := s.tickets.ListEscalationDue(ctx, now, s.batchLimit)
	if err != nil {
		return SweepResult{}, apperrors.MapError(err)
	}

	var result SweepResult
	for i := range due {
		ticket := &due[i]
		next, ok := ticket.CurrentLevel.Next()
		if !ok {
			// deadline should have been nil at the top tier
			s.logger.Warn("due ticket has no successor tier",
				zap.String("ticket_id", ticket.ID),
				zap.String("level", string(ticket.CurrentLevel)))
			result.Errors++
			continue
		}
		if _, err := s.escalateTicket(ctx, ticket, ticket.CurrentLevel, next, "escalation deadline passed", "scheduler"); err != nil {
			s.logger.Warn("sweep escalation failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			result.Errors++
			continue
		}
		result.Escalated++
	}

	s.logger.Info("escalation sweep complete",
		zap.Int("due", len(due)),
		zap.Int("escalated", result.Escalated),
		zap.Int("errors", result.Errors))
	return result, nil
}

func (s *EscalationService) escalateTicket(ctx context.Context, ticket *domain.Ticket, fromLevel, toLevel domain.SupportLevel, reason, actor string) (*domain.Ticket, error) {
	if ticket.Status == domain.TicketStatusResolved {
		return nil, apperrors.NewInvalidEscalation("cannot escalate a resolved ticket", nil)
	}
	if ticket.CurrentLevel != fromLevel {
		return nil, apperrors.NewInvalidEscalation("ticket is not at the expected tier", map[string]any{
			"expected": string(fromLevel),
			"actual":   string(ticket.CurrentLevel),
		})
	}
	next, ok := fromLevel.Next()
	if !ok || next != toLevel {
		return nil, apperrors.NewInvalidEscalation("target tier is not the immediate successor", map[string]any{
			"from": string(fromLevel),
			"to":   string(toLevel),
		})
	}

	assignee, err := s.directory.Pick(ctx, toLevel, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	step := domain.EscalationStep{
		Level:      toLevel,
		Assignee:   assignee,
		AssignedAt: now,
	}
	shifted := *ticket
	shifted.CurrentLevel = toLevel
	s.applyRuleWindow(&shifted, &step)

	update := repository.EscalationUpdate{
		TicketID:         ticket.ID,
		FromLevel:        fromLevel,
		ToLevel:          toLevel,
		EscalatedAt:      now,
		NewStep:          step,
		NextEscalationAt: s.clock.NextDeadline(ticket.CreatedAt, ticket.Priority, toLevel),
	}
	if err := s.tickets.ApplyEscalation(ctx, update); err != nil {
		return nil, mapTicketError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketEscalatedPayload{
			FromLevel:        fromLevel,
			ToLevel:          toLevel,
			Assignee:         assignee,
			Reason:           reason,
			NextEscalationAt: update.NextEscalationAt,
		},
	})

	refreshed, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, mapTicketError(err)
	}
	return refreshed, nil
}

// applyRuleWindow copies the matched rule's SLA budget for the step's
// tier onto the chain entry. The match is recomputed at each use, never
// cached on the ticket, so rule changes affect later evaluations only.
func (s *EscalationService) applyRuleWindow(ticket *domain.Ticket, step *domain.EscalationStep) {
	rule, err := s.resolver.Resolve(ticket.Category, ticket.SubCategory, ticket.Issue, string(ticket.Priority))
	if err != nil {
		if !errors.Is(err, domain.ErrRuleNotFound) && s.logger != nil {
			s.logger.Warn("rule resolution failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		return
	}
	if window, ok := rule.Window(step.Level); ok {
		response := window.ResponseMinutes
		resolution := window.ResolutionMinutes
		step.ResponseMinutes = &response
		step.ResolutionMinutes = &resolution
	}
}

func (s *EscalationService) publish(ctx context.Context, event events.Event) {
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
