package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "OPEN"
	TicketStatusWIP      TicketStatus = "WIP"
	TicketStatusResolved TicketStatus = "RESOLVED"
)

// Valid reports whether the status is one of the three lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusWIP, TicketStatusResolved:
		return true
	}
	return false
}

// Ticket is the aggregate for helpdesk requests tracked by the SLA engine.
type Ticket struct {
	ID          string
	Title       string
	Description string

	// Classification drives rule resolution. SubCategory/Issue may be
	// empty; matching uses normalized copies, these keep caller casing.
	Category    string
	SubCategory string
	Issue       string

	Priority            Priority
	PrioritySetBy       *string
	PrioritySetAt       *time.Time
	PriorityManuallySet bool

	Status TicketStatus
	// SubStatus annotates in-progress nuance (denied, pushed back)
	// without widening the status enum.
	SubStatus *string

	CurrentLevel     SupportLevel
	NextEscalationAt *time.Time

	CreatedBy    string
	WipStartedAt *time.Time
	ResolvedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusChange is an immutable audit trail entry for a status transition.
type StatusChange struct {
	ID        string
	TicketID  string
	Status    TicketStatus
	ChangedBy string
	Reason    *string
	CreatedAt time.Time
}

// EscalationStep is one entry of a ticket's escalation chain: the tier,
// who held it, and the SLA windows in force while it was held.
type EscalationStep struct {
	ID                string
	TicketID          string
	Level             SupportLevel
	Assignee          string
	AssignedAt        time.Time
	EscalatedAt       *time.Time
	ResponseMinutes   *int
	ResolutionMinutes *int
}

// LevelAssignee is a roster entry mapping a support level to a handler.
type LevelAssignee struct {
	ID        string
	Level     SupportLevel
	Assignee  string
	Active    bool
	CreatedAt time.Time
}
