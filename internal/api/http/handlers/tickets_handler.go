package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// TicketsHandler manages ticket intake, lifecycle and escalation endpoints.
type TicketsHandler struct {
	escalations *service.EscalationService
	lifecycle   *service.LifecycleService
	history     repository.StatusHistoryRepository
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(escalations *service.EscalationService, lifecycle *service.LifecycleService, history repository.StatusHistoryRepository) *TicketsHandler {
	return &TicketsHandler{escalations: escalations, lifecycle: lifecycle, history: history}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.escalations.CreateTicket(c.Context(), service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SubCategory: req.SubCategory,
		Issue:       req.Issue,
		Priority:    req.Priority,
		CreatedBy:   principal.SubjectID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket, nil, nil)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, chain, err := h.escalations.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	history, err := h.history.ListByTicket(c.Context(), ticket.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, chain, history)})
}

// Transition POST /tickets/:id/transition.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = principal.SubjectID
	}

	ticket, err := h.lifecycle.Transition(c.Context(), c.Params("id"), service.TransitionInput{
		ToStatus:  req.ToStatus,
		ChangedBy: changedBy,
		Reason:    req.Reason,
		SubStatus: req.SubStatus,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, nil, nil)})
}

// SetPriority POST /tickets/:id/priority.
func (h *TicketsHandler) SetPriority(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SetPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	setBy := req.SetBy
	if setBy == "" {
		setBy = principal.SubjectID
	}

	ticket, err := h.lifecycle.SetPriority(c.Context(), c.Params("id"), service.PriorityInput{
		Priority:      priority,
		SetBy:         setBy,
		Justification: req.Justification,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, nil, nil)})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual escalation"
	}

	var (
		ticket *domain.Ticket
		err    error
	)
	if req.FromLevel != nil && req.ToLevel != nil {
		from, parseErr := domain.ParseSupportLevel(*req.FromLevel)
		if parseErr != nil {
			return apperrors.NewValidationError(parseErr.Error(), nil)
		}
		to, parseErr := domain.ParseSupportLevel(*req.ToLevel)
		if parseErr != nil {
			return apperrors.NewValidationError(parseErr.Error(), nil)
		}
		ticket, err = h.escalations.Escalate(c.Context(), c.Params("id"), from, to, reason, principal.SubjectID)
	} else {
		ticket, err = h.escalations.EscalateNext(c.Context(), c.Params("id"), reason, principal.SubjectID)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, nil, nil)})
}

func ticketResponse(ticket *domain.Ticket, chain []domain.EscalationStep, history []domain.StatusChange) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:                  ticket.ID,
		Title:               ticket.Title,
		Description:         ticket.Description,
		Category:            ticket.Category,
		SubCategory:         ticket.SubCategory,
		Issue:               ticket.Issue,
		Priority:            ticket.Priority,
		PrioritySetBy:       ticket.PrioritySetBy,
		PrioritySetAt:       ticket.PrioritySetAt,
		PriorityManuallySet: ticket.PriorityManuallySet,
		Status:              ticket.Status,
		SubStatus:           ticket.SubStatus,
		CurrentLevel:        ticket.CurrentLevel,
		NextEscalationAt:    ticket.NextEscalationAt,
		CreatedBy:           ticket.CreatedBy,
		WipStartedAt:        ticket.WipStartedAt,
		ResolvedAt:          ticket.ResolvedAt,
		CreatedAt:           ticket.CreatedAt,
		UpdatedAt:           ticket.UpdatedAt,
	}
	for _, step := range chain {
		resp.EscalationChain = append(resp.EscalationChain, dto.EscalationStepResponse{
			Level:             step.Level,
			Assignee:          step.Assignee,
			AssignedAt:        step.AssignedAt,
			EscalatedAt:       step.EscalatedAt,
			ResponseMinutes:   step.ResponseMinutes,
			ResolutionMinutes: step.ResolutionMinutes,
		})
	}
	for _, change := range history {
		resp.StatusHistory = append(resp.StatusHistory, dto.StatusChangeResponse{
			Status:    change.Status,
			ChangedBy: change.ChangedBy,
			Reason:    change.Reason,
			CreatedAt: change.CreatedAt,
		})
	}
	return resp
}
