package events

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EventType identifies a domain event.
type EventType string

const (
	EventTicketCreated         EventType = "ticket.created"
	EventTicketStatusChanged   EventType = "ticket.status_changed"
	EventTicketPriorityChanged EventType = "ticket.priority_changed"
	EventTicketEscalated       EventType = "ticket.escalated"
	EventRulesReloaded         EventType = "rules.reloaded"
)

// Event is the envelope published through the dispatcher.
type Event struct {
	ID        string
	Type      EventType
	TicketID  string
	Actor     string
	Payload   any
	Timestamp time.Time
}

// TicketCreatedPayload describes a new ticket entering the engine.
type TicketCreatedPayload struct {
	Category         string
	SubCategory      string
	Issue            string
	Priority         domain.Priority
	Level            domain.SupportLevel
	NextEscalationAt *time.Time
}

// TicketStatusChangedPayload describes a lifecycle transition.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus
	NewStatus domain.TicketStatus
	Reason    string
}

// TicketPriorityChangedPayload describes an audited priority assignment.
type TicketPriorityChangedPayload struct {
	OldPriority      domain.Priority
	NewPriority      domain.Priority
	Justification    string
	NextEscalationAt *time.Time
}

// TicketEscalatedPayload describes a tier advance.
type TicketEscalatedPayload struct {
	FromLevel        domain.SupportLevel
	ToLevel          domain.SupportLevel
	Assignee         string
	Reason           string
	NextEscalationAt *time.Time
}

// RulesReloadedPayload describes an atomic rule table swap.
type RulesReloadedPayload struct {
	TotalRules int
}
