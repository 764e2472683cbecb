package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category"`
	Issue       string `json:"issue"`
	Priority    string `json:"priority"`
}

// TransitionRequest payload for a status change.
type TransitionRequest struct {
	ToStatus  domain.TicketStatus `json:"to_status"`
	ChangedBy string              `json:"changed_by"`
	Reason    *string             `json:"reason"`
	SubStatus *string             `json:"sub_status"`
}

// SetPriorityRequest payload.
type SetPriorityRequest struct {
	Priority      string  `json:"priority"`
	SetBy         string  `json:"set_by"`
	Justification *string `json:"justification"`
}

// EscalateRequest payload. FromLevel/ToLevel are optional; when absent
// the ticket advances one tier from its current level.
type EscalateRequest struct {
	FromLevel *string `json:"from_level"`
	ToLevel   *string `json:"to_level"`
	Reason    string  `json:"reason"`
}

// EscalationStepResponse is one chain entry.
type EscalationStepResponse struct {
	Level             domain.SupportLevel `json:"level"`
	Assignee          string              `json:"assignee"`
	AssignedAt        time.Time           `json:"assigned_at"`
	EscalatedAt       *time.Time          `json:"escalated_at"`
	ResponseMinutes   *int                `json:"response_minutes"`
	ResolutionMinutes *int                `json:"resolution_minutes"`
}

// StatusChangeResponse is one audit trail entry.
type StatusChangeResponse struct {
	Status    domain.TicketStatus `json:"status"`
	ChangedBy string              `json:"changed_by"`
	Reason    *string             `json:"reason"`
	CreatedAt time.Time           `json:"created_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID                  string                   `json:"id"`
	Title               string                   `json:"title"`
	Description         string                   `json:"description"`
	Category            string                   `json:"category"`
	SubCategory         string                   `json:"sub_category"`
	Issue               string                   `json:"issue"`
	Priority            domain.Priority          `json:"priority"`
	PrioritySetBy       *string                  `json:"priority_set_by,omitempty"`
	PrioritySetAt       *time.Time               `json:"priority_set_at,omitempty"`
	PriorityManuallySet bool                     `json:"priority_manually_set"`
	Status              domain.TicketStatus      `json:"status"`
	SubStatus           *string                  `json:"sub_status,omitempty"`
	CurrentLevel        domain.SupportLevel      `json:"current_level"`
	NextEscalationAt    *time.Time               `json:"next_escalation_at"`
	CreatedBy           string                   `json:"created_by"`
	WipStartedAt        *time.Time               `json:"wip_started_at,omitempty"`
	ResolvedAt          *time.Time               `json:"resolved_at,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
	EscalationChain     []EscalationStepResponse `json:"escalation_chain,omitempty"`
	StatusHistory       []StatusChangeResponse   `json:"status_history,omitempty"`
}

// SweepResponse summarizes a batch escalation pass.
type SweepResponse struct {
	Escalated int `json:"escalated"`
	Errors    int `json:"errors"`
}
