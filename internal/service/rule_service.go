package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// RuleService owns the escalation rule table: it loads rules into an
// in-memory index and swaps that index atomically, so resolvers always
// see either the complete old set or the complete new set.
type RuleService struct {
	rules      repository.RuleRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	index      atomic.Pointer[ruleIndex]
}

// RuleDependencies bundles collaborators for the rule service.
type RuleDependencies struct {
	RuleRepo   repository.RuleRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// RuleStats summarizes the rule table for dashboards.
type RuleStats struct {
	TotalRules       int
	UniqueCategories int
	UniquePriorities []domain.Priority
	Categories       []string
}

type ruleKey struct {
	category    string
	subCategory string
	issue       string
	priority    domain.Priority
}

type ruleIndex struct {
	exact       map[ruleKey]*domain.EscalationRule
	subWildcard map[ruleKey]*domain.EscalationRule
	catWildcard map[ruleKey]*domain.EscalationRule
	all         []domain.EscalationRule
}

// NewRuleService constructs the service with an empty index; call
// Reload once the backing store is reachable.
func NewRuleService(deps RuleDependencies) *RuleService {
	s := &RuleService{
		rules:      deps.RuleRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
	s.index.Store(buildIndex(nil))
	return s
}

// Reload rebuilds the in-memory index from the backing store and swaps
// it in atomically.
func (s *RuleService) Reload(ctx context.Context) error {
	rules, err := s.rules.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load escalation rules: %w", err)
	}
	s.index.Store(buildIndex(rules))
	if s.logger != nil {
		s.logger.Info("rule index reloaded", zap.Int("rules", len(rules)))
	}
	return nil
}

// ReplaceAll validates and persists a full replacement rule set, then
// swaps the index. Readers never observe a partial table: the store
// write is one transaction and the index swap is atomic.
func (s *RuleService) ReplaceAll(ctx context.Context, rules []domain.EscalationRule) error {
	normalized, err := normalizeRules(rules)
	if err != nil {
		return err
	}
	if err := s.rules.ReplaceAll(ctx, normalized); err != nil {
		return apperrors.MapError(err)
	}
	if err := s.Reload(ctx); err != nil {
		return apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:    events.EventRulesReloaded,
		Payload: events.RulesReloadedPayload{TotalRules: len(normalized)},
	})
	return nil
}

// Resolve finds the best-matching rule for a classification using the
// fallback cascade: exact match, then subcategory wildcard, then
// category wildcard. Priority defaults to P3 when empty. Matching is
// trim- and case-insensitive. Pure read; no side effects.
func (s *RuleService) Resolve(category, subCategory, issue, priority string) (*domain.EscalationRule, error) {
	parsed, err := domain.ParsePriority(priority)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	cat := domain.NormalizeKey(category)
	sub := domain.NormalizeKey(subCategory)
	iss := domain.NormalizeKey(issue)
	idx := s.index.Load()

	if rule, ok := idx.exact[ruleKey{cat, sub, iss, parsed}]; ok {
		return rule, nil
	}
	if rule, ok := idx.subWildcard[ruleKey{category: cat, subCategory: sub, priority: parsed}]; ok {
		return rule, nil
	}
	if rule, ok := idx.catWildcard[ruleKey{category: cat, priority: parsed}]; ok {
		return rule, nil
	}
	return nil, domain.ErrRuleNotFound
}

// Categories returns the sorted distinct categories in the rule table.
func (s *RuleService) Categories() []string {
	idx := s.index.Load()
	seen := map[string]struct{}{}
	for i := range idx.all {
		seen[idx.all[i].Category] = struct{}{}
	}
	return sortedKeys(seen)
}

// Subcategories returns the sorted distinct subcategories for a category.
func (s *RuleService) Subcategories(category string) []string {
	cat := domain.NormalizeKey(category)
	idx := s.index.Load()
	seen := map[string]struct{}{}
	for i := range idx.all {
		rule := &idx.all[i]
		if rule.Category != cat || rule.SubCategory == nil {
			continue
		}
		seen[*rule.SubCategory] = struct{}{}
	}
	return sortedKeys(seen)
}

// Issues returns the sorted distinct issues for a category/subcategory.
func (s *RuleService) Issues(category, subCategory string) []string {
	cat := domain.NormalizeKey(category)
	sub := domain.NormalizeKey(subCategory)
	idx := s.index.Load()
	seen := map[string]struct{}{}
	for i := range idx.all {
		rule := &idx.all[i]
		if rule.Category != cat || rule.SubCategory == nil || *rule.SubCategory != sub || rule.Issue == nil {
			continue
		}
		seen[*rule.Issue] = struct{}{}
	}
	return sortedKeys(seen)
}

// Stats aggregates rule counts for dashboards. Pure read over the rule
// table; no ticket data involved.
func (s *RuleService) Stats() RuleStats {
	idx := s.index.Load()
	categories := map[string]struct{}{}
	priorities := map[domain.Priority]struct{}{}
	for i := range idx.all {
		categories[idx.all[i].Category] = struct{}{}
		priorities[idx.all[i].Priority] = struct{}{}
	}

	prioList := make([]domain.Priority, 0, len(priorities))
	for p := range priorities {
		prioList = append(prioList, p)
	}
	sort.Slice(prioList, func(i, j int) bool { return prioList[i] < prioList[j] })

	return RuleStats{
		TotalRules:       len(idx.all),
		UniqueCategories: len(categories),
		UniquePriorities: prioList,
		Categories:       sortedKeys(categories),
	}
}

func (s *RuleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// normalizeRules canonicalizes classification keys and enforces the
// at-most-one-rule-per-combination invariant before persisting.
func normalizeRules(rules []domain.EscalationRule) ([]domain.EscalationRule, error) {
	normalized := make([]domain.EscalationRule, 0, len(rules))
	seen := map[ruleKey]struct{}{}

	for i := range rules {
		rule := rules[i]
		rule.Category = domain.NormalizeKey(rule.Category)
		if rule.Category == "" {
			return nil, apperrors.NewValidationError("rule category required", map[string]any{"index": i})
		}
		if !rule.Priority.Valid() {
			return nil, apperrors.NewValidationError("rule priority invalid", map[string]any{"index": i, "priority": string(rule.Priority)})
		}
		if rule.SubCategory != nil {
			sub := domain.NormalizeKey(*rule.SubCategory)
			if sub == "" {
				rule.SubCategory = nil
			} else {
				rule.SubCategory = &sub
			}
		}
		if rule.Issue != nil {
			iss := domain.NormalizeKey(*rule.Issue)
			if iss == "" {
				rule.Issue = nil
			} else {
				rule.Issue = &iss
			}
		}
		// an issue-level rule requires a subcategory to attach to
		if rule.SubCategory == nil && rule.Issue != nil {
			return nil, apperrors.NewValidationError("rule with issue requires sub_category", map[string]any{"index": i})
		}
		for _, level := range []domain.SupportLevel{domain.LevelL0, domain.LevelL1, domain.LevelL2, domain.LevelL3} {
			window, ok := rule.Tiers[level]
			if !ok {
				return nil, apperrors.NewValidationError(
					fmt.Sprintf("rule missing tier %s", level), map[string]any{"index": i})
			}
			if window.ResponseMinutes < 0 || window.ResolutionMinutes < 0 {
				return nil, apperrors.NewValidationError(
					fmt.Sprintf("rule tier %s has negative window", level), map[string]any{"index": i})
			}
		}

		key := indexKey(&rule)
		if _, dup := seen[key]; dup {
			return nil, apperrors.NewValidationError("duplicate rule for classification", map[string]any{
				"category": rule.Category,
				"priority": string(rule.Priority),
			})
		}
		seen[key] = struct{}{}
		normalized = append(normalized, rule)
	}
	return normalized, nil
}

func buildIndex(rules []domain.EscalationRule) *ruleIndex {
	idx := &ruleIndex{
		exact:       make(map[ruleKey]*domain.EscalationRule),
		subWildcard: make(map[ruleKey]*domain.EscalationRule),
		catWildcard: make(map[ruleKey]*domain.EscalationRule),
		all:         rules,
	}
	for i := range idx.all {
		rule := &idx.all[i]
		switch {
		case rule.SubCategory != nil && rule.Issue != nil:
			idx.exact[indexKey(rule)] = rule
		case rule.SubCategory != nil:
			idx.subWildcard[indexKey(rule)] = rule
		default:
			idx.catWildcard[indexKey(rule)] = rule
		}
	}
	return idx
}

func indexKey(rule *domain.EscalationRule) ruleKey {
	key := ruleKey{category: rule.Category, priority: rule.Priority}
	if rule.SubCategory != nil {
		key.subCategory = *rule.SubCategory
	}
	if rule.Issue != nil {
		key.issue = *rule.Issue
	}
	return key
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
