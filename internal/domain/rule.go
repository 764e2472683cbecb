package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority enumerates SLA urgency buckets used by escalation rules.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// DefaultPriority applies when a caller supplies no priority.
const DefaultPriority = PriorityP3

// Priorities returns the closed priority set, most urgent first.
func Priorities() []Priority {
	return []Priority{PriorityP1, PriorityP2, PriorityP3, PriorityP4}
}

// Valid reports whether the priority is part of the closed set.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return true
	}
	return false
}

// ParsePriority validates a priority string, defaulting when empty.
func ParsePriority(raw string) (Priority, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultPriority, nil
	}
	priority := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	if !priority.Valid() {
		return "", fmt.Errorf("unknown priority %q", raw)
	}
	return priority, nil
}

// NormalizeKey canonicalizes classification strings for rule matching.
// Applied uniformly at ingestion and lookup so matching is trim- and
// case-insensitive while tickets keep their original display strings.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TierWindow is the SLA budget for one support level.
type TierWindow struct {
	ResponseMinutes   int
	ResolutionMinutes int
}

// EscalationRule maps a classification to per-tier SLA windows.
// SubCategory/Issue nil means the rule is a wildcard at that position.
type EscalationRule struct {
	ID          string
	Category    string
	SubCategory *string
	Issue       *string
	Priority    Priority
	Tiers       map[SupportLevel]TierWindow
	CreatedAt   time.Time
}

// Window returns the SLA budget configured for the given level.
func (r *EscalationRule) Window(level SupportLevel) (TierWindow, bool) {
	if r == nil || r.Tiers == nil {
		return TierWindow{}, false
	}
	window, ok := r.Tiers[level]
	return window, ok
}

// IsWildcard reports whether the rule matches beyond an exact classification.
func (r *EscalationRule) IsWildcard() bool {
	return r.SubCategory == nil || r.Issue == nil
}
