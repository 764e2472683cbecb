package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// RulesHandler serves rule catalog, lookup, stats and reseed endpoints.
type RulesHandler struct {
	rules *service.RuleService
}

// NewRulesHandler constructs handler.
func NewRulesHandler(rules *service.RuleService) *RulesHandler {
	return &RulesHandler{rules: rules}
}

// Categories GET /rules/categories.
func (h *RulesHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.rules.Categories()})
}

// Subcategories GET /rules/subcategories?category=.
func (h *RulesHandler) Subcategories(c *fiber.Ctx) error {
	category := c.Query("category")
	if strings.TrimSpace(category) == "" {
		return apperrors.NewValidationError("category required", nil)
	}
	return c.JSON(fiber.Map{"data": h.rules.Subcategories(category)})
}

// Issues GET /rules/issues?category=&sub_category=.
func (h *RulesHandler) Issues(c *fiber.Ctx) error {
	category := c.Query("category")
	subCategory := c.Query("sub_category")
	if strings.TrimSpace(category) == "" || strings.TrimSpace(subCategory) == "" {
		return apperrors.NewValidationError("category and sub_category required", nil)
	}
	return c.JSON(fiber.Map{"data": h.rules.Issues(category, subCategory)})
}

// Match GET /rules/match?category=&sub_category=&issue=&priority=.
func (h *RulesHandler) Match(c *fiber.Ctx) error {
	category := c.Query("category")
	if strings.TrimSpace(category) == "" {
		return apperrors.NewValidationError("category required", nil)
	}
	rule, err := h.rules.Resolve(category, c.Query("sub_category"), c.Query("issue"), c.Query("priority"))
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return apperrors.NewRuleNotFound(map[string]any{
				"category":     category,
				"sub_category": c.Query("sub_category"),
				"issue":        c.Query("issue"),
			})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Stats GET /rules/stats.
func (h *RulesHandler) Stats(c *fiber.Ctx) error {
	stats := h.rules.Stats()
	return c.JSON(fiber.Map{"data": dto.StatsResponse{
		TotalRules:       stats.TotalRules,
		UniqueCategories: stats.UniqueCategories,
		UniquePriorities: stats.UniquePriorities,
		Categories:       stats.Categories,
	}})
}

// Replace PUT /rules. Swaps the whole rule table atomically.
func (h *RulesHandler) Replace(c *fiber.Ctx) error {
	var req dto.ReplaceRulesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Rules) == 0 {
		return apperrors.NewValidationError("rules required", nil)
	}

	rules := make([]domain.EscalationRule, 0, len(req.Rules))
	for i, upsert := range req.Rules {
		priority, err := domain.ParsePriority(upsert.Priority)
		if err != nil {
			return apperrors.NewValidationError(err.Error(), map[string]any{"index": i})
		}
		tiers := make(map[domain.SupportLevel]domain.TierWindow, len(upsert.Tiers))
		for raw, window := range upsert.Tiers {
			level, err := domain.ParseSupportLevel(strings.ToUpper(strings.TrimSpace(raw)))
			if err != nil {
				return apperrors.NewValidationError(err.Error(), map[string]any{"index": i})
			}
			tiers[level] = domain.TierWindow{
				ResponseMinutes:   window.ResponseMinutes,
				ResolutionMinutes: window.ResolutionMinutes,
			}
		}
		rules = append(rules, domain.EscalationRule{
			Category:    upsert.Category,
			SubCategory: upsert.SubCategory,
			Issue:       upsert.Issue,
			Priority:    priority,
			Tiers:       tiers,
		})
	}

	if err := h.rules.ReplaceAll(c.Context(), rules); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"total_rules": len(rules)}})
}

func ruleResponse(rule *domain.EscalationRule) dto.RuleResponse {
	tiers := make(map[string]dto.TierWindowDTO, len(rule.Tiers))
	for level, window := range rule.Tiers {
		tiers[string(level)] = dto.TierWindowDTO{
			ResponseMinutes:   window.ResponseMinutes,
			ResolutionMinutes: window.ResolutionMinutes,
		}
	}
	return dto.RuleResponse{
		ID:          rule.ID,
		Category:    rule.Category,
		SubCategory: rule.SubCategory,
		Issue:       rule.Issue,
		Priority:    rule.Priority,
		Tiers:       tiers,
		CreatedAt:   rule.CreatedAt,
	}
}
