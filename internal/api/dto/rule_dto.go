package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// TierWindowDTO is the SLA budget for one support level.
type TierWindowDTO struct {
	ResponseMinutes   int `json:"response_minutes"`
	ResolutionMinutes int `json:"resolution_minutes"`
}

// RuleResponse describes an escalation rule.
type RuleResponse struct {
	ID          string                   `json:"id,omitempty"`
	Category    string                   `json:"category"`
	SubCategory *string                  `json:"sub_category"`
	Issue       *string                  `json:"issue"`
	Priority    domain.Priority          `json:"priority"`
	Tiers       map[string]TierWindowDTO `json:"tiers"`
	CreatedAt   time.Time                `json:"created_at,omitempty"`
}

// RuleUpsert is one rule in a replacement set.
type RuleUpsert struct {
	Category    string                   `json:"category"`
	SubCategory *string                  `json:"sub_category"`
	Issue       *string                  `json:"issue"`
	Priority    string                   `json:"priority"`
	Tiers       map[string]TierWindowDTO `json:"tiers"`
}

// ReplaceRulesRequest carries a full rule-table replacement.
type ReplaceRulesRequest struct {
	Rules []RuleUpsert `json:"rules"`
}

// StatsResponse summarizes the rule table.
type StatsResponse struct {
	TotalRules       int               `json:"total_rules"`
	UniqueCategories int               `json:"unique_categories"`
	UniquePriorities []domain.Priority `json:"unique_priorities"`
	Categories       []string          `json:"categories"`
}
