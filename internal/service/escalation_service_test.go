package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

type escalationFixture struct {
	svc        *EscalationService
	store      *memStore
	dispatcher *captureDispatcher
	now        time.Time
}

func newEscalationFixture(t *testing.T, rules ...domain.EscalationRule) *escalationFixture {
	t.Helper()
	f := &escalationFixture{
		store:      newMemStore(),
		dispatcher: &captureDispatcher{},
		now:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	resolver, _, _ := newRuleService(t, rules...)
	f.svc = NewEscalationService(EscalationDependencies{
		TicketRepo: f.store,
		StepRepo:   f.store,
		Resolver:   resolver,
		Directory: staticDirectory{
			domain.LevelL0: "frontline",
			domain.LevelL1: "specialist",
			domain.LevelL2: "site-manager",
		},
		Clock:      NewEscalationClock(testEscalationConfig()),
		Dispatcher: f.dispatcher,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return f.now },
	})
	return f
}

func TestCreateTicket(t *testing.T) {
	f := newEscalationFixture(t, makeRule("hvac", "", "", domain.PriorityP3, 10))

	ticket, err := f.svc.CreateTicket(context.Background(), TicketCreateInput{
		Title:       "  AC not cooling  ",
		Description: " unit blows warm air ",
		Category:    " HVAC ",
		SubCategory: "cooling",
		CreatedBy:   "tenant-12",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, "AC not cooling", ticket.Title)
	assert.Equal(t, "HVAC", ticket.Category)
	assert.Equal(t, domain.DefaultPriority, ticket.Priority, "missing priority defaults")
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.LevelL0, ticket.CurrentLevel)

	// P3 multiplies the 240-minute L1 entry offset by 1.5
	require.NotNil(t, ticket.NextEscalationAt)
	assert.Equal(t, f.now.Add(360*time.Minute), *ticket.NextEscalationAt)

	chain, err := f.store.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, domain.LevelL0, chain[0].Level)
	assert.Equal(t, "frontline", chain[0].Assignee)
	assert.Nil(t, chain[0].EscalatedAt)
	require.NotNil(t, chain[0].ResponseMinutes)
	assert.Equal(t, 10, *chain[0].ResponseMinutes)

	assert.Contains(t, f.dispatcher.types(), events.EventTicketCreated)
}

func TestCreateTicketWithoutRule(t *testing.T) {
	f := newEscalationFixture(t)

	ticket, err := f.svc.CreateTicket(context.Background(), TicketCreateInput{
		Title:     "broken lock",
		Category:  "security",
		Priority:  "P2",
		CreatedBy: "tenant-12",
	})
	require.NoError(t, err)

	// no rule match: the ticket still schedules, it just has no SLA budget
	require.NotNil(t, ticket.NextEscalationAt)
	chain, err := f.store.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Nil(t, chain[0].ResponseMinutes)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newEscalationFixture(t)

	tests := []struct {
		name  string
		input TicketCreateInput
	}{
		{name: "title required", input: TicketCreateInput{Category: "hvac", CreatedBy: "tenant-12"}},
		{name: "category required", input: TicketCreateInput{Title: "broken", CreatedBy: "tenant-12"}},
		{name: "creator required", input: TicketCreateInput{Title: "broken", Category: "hvac"}},
		{name: "priority must be known", input: TicketCreateInput{Title: "broken", Category: "hvac", Priority: "P5", CreatedBy: "tenant-12"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(context.Background(), tc.input)
			var domainErr *apperrors.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
		})
	}
}

func TestDeadlineScalesWithPriority(t *testing.T) {
	f := newEscalationFixture(t)

	wantMinutes := map[domain.Priority]int{
		domain.PriorityP1: 120,
		domain.PriorityP2: 240,
		domain.PriorityP3: 360,
		domain.PriorityP4: 480,
	}
	for priority, minutes := range wantMinutes {
		ticket, err := f.svc.CreateTicket(context.Background(), TicketCreateInput{
			Title:     "test",
			Category:  "hvac",
			Priority:  string(priority),
			CreatedBy: "tenant-12",
		})
		require.NoError(t, err)
		require.NotNil(t, ticket.NextEscalationAt)
		assert.Equal(t, f.now.Add(time.Duration(minutes)*time.Minute), *ticket.NextEscalationAt, "priority %s", priority)
	}
}

func TestEscalateAdvancesOneTier(t *testing.T) {
	f := newEscalationFixture(t, makeRule("hvac", "", "", domain.PriorityP2, 10))

	created, err := f.svc.CreateTicket(context.Background(), TicketCreateInput{
		Title:     "AC not cooling",
		Category:  "hvac",
		Priority:  "P2",
		CreatedBy: "tenant-12",
	})
	require.NoError(t, err)

	f.now = f.now.Add(241 * time.Minute)
	ticket, err := f.svc.Escalate(context.Background(), created.ID, domain.LevelL0, domain.LevelL1, "no response", "agent-7")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL1, ticket.CurrentLevel)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status, "escalation never touches status")

	// deadline stays anchored at creation: L2 entry at 480 minutes for P2
	require.NotNil(t, ticket.NextEscalationAt)
	assert.Equal(t, created.CreatedAt.Add(480*time.Minute), *ticket.NextEscalationAt)

	chain, err := f.store.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.NotNil(t, chain[0].EscalatedAt, "previous tier entry is closed")
	assert.Equal(t, domain.LevelL1, chain[1].Level)
	assert.Equal(t, "specialist", chain[1].Assignee)
	require.NotNil(t, chain[1].ResponseMinutes)
	assert.Equal(t, 20, *chain[1].ResponseMinutes, "L1 window from the matched rule")

	assert.Contains(t, f.dispatcher.types(), events.EventTicketEscalated)
}

func TestEscalateStopsWhenLadderRunsOut(t *testing.T) {
	f := newEscalationFixture(t)

	created, err := f.svc.CreateTicket(context.Background(), TicketCreateInput{
		Title:     "AC not cooling",
		Category:  "hvac",
		Priority:  "P2",
		CreatedBy: "tenant-12",
	})
	require.NoError(t, err)

	ticket, err := f.svc.EscalateNext(context.Background(), created.ID, "deadline passed", "scheduler")
	require.NoError(t, err)
	ticket, err = f.svc.EscalateNext(context.Background(), ticket.ID, "deadline passed", "scheduler")
	require.NoError(t, err)

	// L3 has no configured offset, so no further deadline exists
	assert.Equal(t, domain.LevelL2, ticket.CurrentLevel)
	assert.Nil(t, ticket.NextEscalationAt)
}

func TestEscalateRejections(t *testing.T) {
	f := newEscalationFixture(t)

	resolved := domain.Ticket{ID: "resolved-1", Status: domain.TicketStatusResolved, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL0, CreatedAt: f.now}
	require.NoError(t, f.store.Create(context.Background(), &resolved, nil))
	atL1 := domain.Ticket{ID: "open-1", Status: domain.TicketStatusOpen, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL1, CreatedAt: f.now}
	require.NoError(t, f.store.Create(context.Background(), &atL1, nil))
	top := domain.Ticket{ID: "top-1", Status: domain.TicketStatusOpen, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL5, CreatedAt: f.now}
	require.NoError(t, f.store.Create(context.Background(), &top, nil))

	tests := []struct {
		name string
		call func() error
	}{
		{name: "resolved ticket", call: func() error {
			_, err := f.svc.Escalate(context.Background(), "resolved-1", domain.LevelL0, domain.LevelL1, "", "agent-7")
			return err
		}},
		{name: "stale from level", call: func() error {
			_, err := f.svc.Escalate(context.Background(), "open-1", domain.LevelL0, domain.LevelL1, "", "agent-7")
			return err
		}},
		{name: "skipping a tier", call: func() error {
			_, err := f.svc.Escalate(context.Background(), "open-1", domain.LevelL1, domain.LevelL3, "", "agent-7")
			return err
		}},
		{name: "demotion", call: func() error {
			_, err := f.svc.Escalate(context.Background(), "open-1", domain.LevelL1, domain.LevelL0, "", "agent-7")
			return err
		}},
		{name: "already at top tier", call: func() error {
			_, err := f.svc.EscalateNext(context.Background(), "top-1", "", "scheduler")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var domainErr *apperrors.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, "INVALID_ESCALATION", domainErr.Code)
			assert.Equal(t, 422, domainErr.HTTPStatus)
		})
	}

	_, err := f.svc.Escalate(context.Background(), "missing", domain.LevelL0, domain.LevelL1, "", "agent-7")
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestProcessPendingSweep(t *testing.T) {
	f := newEscalationFixture(t)

	dueAt := f.now.Add(-time.Minute)
	futureAt := f.now.Add(time.Hour)
	due := domain.Ticket{ID: "due-1", Status: domain.TicketStatusOpen, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL0, NextEscalationAt: &dueAt, CreatedAt: f.now.Add(-241 * time.Minute)}
	notDue := domain.Ticket{ID: "future-1", Status: domain.TicketStatusOpen, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL0, NextEscalationAt: &futureAt, CreatedAt: f.now}
	resolved := domain.Ticket{ID: "resolved-1", Status: domain.TicketStatusResolved, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL0, NextEscalationAt: &dueAt, CreatedAt: f.now.Add(-time.Hour)}
	stuckAtTop := domain.Ticket{ID: "top-1", Status: domain.TicketStatusOpen, Priority: domain.PriorityP2, CurrentLevel: domain.LevelL5, NextEscalationAt: &dueAt, CreatedAt: f.now.Add(-time.Hour)}
	for _, ticket := range []domain.Ticket{due, notDue, resolved, stuckAtTop} {
		seeded := ticket
		require.NoError(t, f.store.Create(context.Background(), &seeded, nil))
	}

	result, err := f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)
	assert.Equal(t, 1, result.Errors, "top-tier ticket with a stale deadline is isolated, not fatal")

	escalated, err := f.store.GetByID(context.Background(), "due-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL1, escalated.CurrentLevel)

	untouched, err := f.store.GetByID(context.Background(), "future-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL0, untouched.CurrentLevel)

	skipped, err := f.store.GetByID(context.Background(), "resolved-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL0, skipped.CurrentLevel)
}

func TestSweepCatchesUpOneLevelPerSweep(t *testing.T) {
	f := newEscalationFixture(t)

	// a ticket far past both deadlines still climbs one tier per sweep:
	// each escalation recomputes the next creation-anchored deadline,
	// which is itself already past, so the following sweep picks the
	// ticket up again instead of jumping tiers in one pass
	createdAt := f.now.Add(-1000 * time.Minute)
	deadline := createdAt.Add(240 * time.Minute)
	stale := domain.Ticket{
		ID:               "stale-1",
		Status:           domain.TicketStatusOpen,
		Priority:         domain.PriorityP2,
		CurrentLevel:     domain.LevelL0,
		NextEscalationAt: &deadline,
		CreatedAt:        createdAt,
	}
	require.NoError(t, f.store.Create(context.Background(), &stale, nil))

	result, err := f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)

	ticket, err := f.store.GetByID(context.Background(), "stale-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL1, ticket.CurrentLevel)
	require.NotNil(t, ticket.NextEscalationAt)
	assert.Equal(t, createdAt.Add(480*time.Minute), *ticket.NextEscalationAt)
	assert.True(t, ticket.NextEscalationAt.Before(f.now), "recomputed deadline is already overdue")

	result, err = f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)

	ticket, err = f.store.GetByID(context.Background(), "stale-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL2, ticket.CurrentLevel)
	assert.Nil(t, ticket.NextEscalationAt)

	chain, err := f.store.ListByTicket(context.Background(), "stale-1")
	require.NoError(t, err)
	assert.Len(t, chain, 2, "every tier crossed leaves an audited chain entry")
}

func TestEscalationScenarioP2(t *testing.T) {
	f := newEscalationFixture(t)
	t0 := f.now

	created, err := f.svc.CreateTicket(context.Background(), TicketCreateInput{
		Title:     "elevator stuck",
		Category:  "mechanical",
		Priority:  "P2",
		CreatedBy: "tenant-12",
	})
	require.NoError(t, err)
	require.NotNil(t, created.NextEscalationAt)
	assert.Equal(t, t0.Add(240*time.Minute), *created.NextEscalationAt)

	// one minute before the deadline nothing happens
	f.now = t0.Add(239 * time.Minute)
	result, err := f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Escalated)

	// at the deadline the ticket advances to L1
	f.now = t0.Add(240 * time.Minute)
	result, err = f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)

	ticket, err := f.store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL1, ticket.CurrentLevel)
	require.NotNil(t, ticket.NextEscalationAt)
	assert.Equal(t, t0.Add(480*time.Minute), *ticket.NextEscalationAt)

	// repeating the sweep at the same instant is a no-op
	result, err = f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Escalated)

	// at the second deadline the ticket tops out at L2 with no successor
	f.now = t0.Add(480 * time.Minute)
	result, err = f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)

	ticket, err = f.store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelL2, ticket.CurrentLevel)
	assert.Nil(t, ticket.NextEscalationAt)

	result, err = f.svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Escalated)
	assert.Zero(t, result.Errors)
}
