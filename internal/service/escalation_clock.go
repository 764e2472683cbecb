package service

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EscalationClock computes when a ticket must advance to the next
// support tier. Tier offsets are cumulative minutes from ticket
// creation at which each level is entered; the priority multiplier
// scales the whole window, so P1 (0.5x) escalates twice as fast as P2
// and P4 (2x) half as fast.
type EscalationClock struct {
	offsets     map[domain.SupportLevel]int
	multipliers map[domain.Priority]float64
}

// NewEscalationClock builds a clock from configuration.
func NewEscalationClock(cfg config.EscalationConfig) *EscalationClock {
	return &EscalationClock{
		offsets:     cfg.TierOffsetsMinutes,
		multipliers: cfg.PriorityMultipliers,
	}
}

// NextDeadline returns the time at which a ticket at currentLevel must
// escalate to its successor tier, or nil when the successor has no
// configured offset (no further escalation).
func (c *EscalationClock) NextDeadline(createdAt time.Time, priority domain.Priority, currentLevel domain.SupportLevel) *time.Time {
	next, ok := currentLevel.Next()
	if !ok {
		return nil
	}
	offsetMinutes, ok := c.offsets[next]
	if !ok {
		return nil
	}
	multiplier, ok := c.multipliers[priority]
	if !ok || multiplier <= 0 {
		multiplier = 1
	}
	window := time.Duration(float64(offsetMinutes) * multiplier * float64(time.Minute))
	deadline := createdAt.Add(window)
	return &deadline
}

// ShouldEscalate reports whether the ticket's deadline has passed. The
// clock never triggers itself; callers poll.
func (c *EscalationClock) ShouldEscalate(ticket *domain.Ticket, now time.Time) bool {
	if ticket == nil || ticket.NextEscalationAt == nil {
		return false
	}
	if ticket.Status == domain.TicketStatusResolved {
		return false
	}
	return !now.Before(*ticket.NextEscalationAt)
}
