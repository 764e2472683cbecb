package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

// memStore is an in-memory stand-in for the ticket persistence layer.
// It mirrors the conditional-update semantics of the real repository so
// the optimistic-concurrency paths are exercisable.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	steps   map[string][]domain.EscalationStep
	history map[string][]domain.StatusChange

	// beforeStatusUpdate runs between the service's read and the
	// conditional write, to simulate a racing writer.
	beforeStatusUpdate func()
}

func newMemStore() *memStore {
	return &memStore{
		tickets: make(map[string]*domain.Ticket),
		steps:   make(map[string][]domain.EscalationStep),
		history: make(map[string][]domain.StatusChange),
	}
}

func (m *memStore) Create(_ context.Context, ticket *domain.Ticket, initialStep *domain.EscalationStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *ticket
	copied.UpdatedAt = copied.CreatedAt
	m.tickets[ticket.ID] = &copied
	if initialStep != nil {
		step := *initialStep
		step.TicketID = ticket.ID
		step.ID = "step-1"
		m.steps[ticket.ID] = append(m.steps[ticket.ID], step)
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	copied := *ticket
	return &copied, nil
}

func (m *memStore) UpdateStatus(_ context.Context, update repository.StatusUpdate) error {
	if m.beforeStatusUpdate != nil {
		m.beforeStatusUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[update.TicketID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if ticket.Status != update.FromStatus {
		return domain.ErrConcurrentModification
	}
	ticket.Status = update.ToStatus
	ticket.SubStatus = update.SubStatus
	if update.WipStartedAt != nil && ticket.WipStartedAt == nil {
		ticket.WipStartedAt = update.WipStartedAt
	}
	if update.ResolvedAt != nil {
		ticket.ResolvedAt = update.ResolvedAt
	}
	if update.ClearNextEscalation {
		ticket.NextEscalationAt = nil
	}
	return nil
}

func (m *memStore) UpdatePriority(_ context.Context, update repository.PriorityUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[update.TicketID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if ticket.Status == domain.TicketStatusResolved {
		return domain.ErrConcurrentModification
	}
	setAt := update.SetAt
	setBy := update.SetBy
	ticket.Priority = update.Priority
	ticket.PrioritySetBy = &setBy
	ticket.PrioritySetAt = &setAt
	ticket.PriorityManuallySet = true
	ticket.NextEscalationAt = update.NextEscalationAt
	return nil
}

func (m *memStore) ApplyEscalation(_ context.Context, update repository.EscalationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[update.TicketID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if ticket.Status == domain.TicketStatusResolved || ticket.CurrentLevel != update.FromLevel {
		return domain.ErrConcurrentModification
	}
	ticket.CurrentLevel = update.ToLevel
	ticket.NextEscalationAt = update.NextEscalationAt

	chain := m.steps[update.TicketID]
	for i := range chain {
		if chain[i].EscalatedAt == nil {
			escalatedAt := update.EscalatedAt
			chain[i].EscalatedAt = &escalatedAt
		}
	}
	step := update.NewStep
	step.TicketID = update.TicketID
	m.steps[update.TicketID] = append(chain, step)
	return nil
}

func (m *memStore) ListEscalationDue(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []domain.Ticket
	for _, ticket := range m.tickets {
		if ticket.Status == domain.TicketStatusResolved || ticket.NextEscalationAt == nil {
			continue
		}
		if ticket.NextEscalationAt.After(now) {
			continue
		}
		due = append(due, *ticket)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextEscalationAt.Before(*due[j].NextEscalationAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memStore) Append(_ context.Context, change *domain.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	change.CreatedAt = time.Now()
	m.history[change.TicketID] = append(m.history[change.TicketID], *change)
	return nil
}

func (m *memStore) ListByTicket(_ context.Context, ticketID string) ([]domain.EscalationStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EscalationStep{}, m.steps[ticketID]...), nil
}

func (m *memStore) historyOf(ticketID string) []domain.StatusChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StatusChange{}, m.history[ticketID]...)
}

// historyView adapts memStore to the status-history repository, whose
// ListByTicket returns status changes rather than escalation steps.
type historyView struct {
	*memStore
}

func (v historyView) ListByTicket(_ context.Context, ticketID string) ([]domain.StatusChange, error) {
	return v.historyOf(ticketID), nil
}

// memRuleRepo is an in-memory rule table.
type memRuleRepo struct {
	mu    sync.Mutex
	rules []domain.EscalationRule
}

func (r *memRuleRepo) ListAll(_ context.Context) ([]domain.EscalationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EscalationRule{}, r.rules...), nil
}

func (r *memRuleRepo) ReplaceAll(_ context.Context, rules []domain.EscalationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append([]domain.EscalationRule{}, rules...)
	return nil
}

// staticDirectory maps levels to fixed assignees.
type staticDirectory map[domain.SupportLevel]string

func (d staticDirectory) Pick(_ context.Context, level domain.SupportLevel, _ string) (string, error) {
	if assignee, ok := d[level]; ok {
		return assignee, nil
	}
	return "unassigned", nil
}

// captureDispatcher records published events for assertions.
type captureDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *captureDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *captureDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *captureDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, event := range d.events {
		out = append(out, event.Type)
	}
	return out
}

func testEscalationConfig() config.EscalationConfig {
	return config.EscalationConfig{
		TierOffsetsMinutes: map[domain.SupportLevel]int{
			domain.LevelL0: 0,
			domain.LevelL1: 240,
			domain.LevelL2: 480,
		},
		PriorityMultipliers: map[domain.Priority]float64{
			domain.PriorityP1: 0.5,
			domain.PriorityP2: 1,
			domain.PriorityP3: 1.5,
			domain.PriorityP4: 2,
		},
		SweepBatchLimit: 100,
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }

func makeRule(category, subCategory, issue string, priority domain.Priority, responseBase int) domain.EscalationRule {
	rule := domain.EscalationRule{
		Category: category,
		Priority: priority,
		Tiers: map[domain.SupportLevel]domain.TierWindow{
			domain.LevelL0: {ResponseMinutes: responseBase, ResolutionMinutes: responseBase * 4},
			domain.LevelL1: {ResponseMinutes: responseBase * 2, ResolutionMinutes: responseBase * 8},
			domain.LevelL2: {ResponseMinutes: responseBase * 3, ResolutionMinutes: responseBase * 12},
			domain.LevelL3: {ResponseMinutes: responseBase * 4, ResolutionMinutes: responseBase * 16},
		},
	}
	if subCategory != "" {
		rule.SubCategory = strPtr(subCategory)
	}
	if issue != "" {
		rule.Issue = strPtr(issue)
	}
	return rule
}
