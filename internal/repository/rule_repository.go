package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// RuleRepository encapsulates escalation rule persistence.
type RuleRepository interface {
	ListAll(ctx context.Context) ([]domain.EscalationRule, error)
	// ReplaceAll swaps the entire rule set inside one transaction so
	// concurrent readers never observe a partially rewritten table.
	ReplaceAll(ctx context.Context, rules []domain.EscalationRule) error
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

const ruleColumns = `id, category, sub_category, issue, priority,
    l0_response_min, l0_resolution_min, l1_response_min, l1_resolution_min,
    l2_response_min, l2_resolution_min, l3_response_min, l3_resolution_min,
    l4_response_min, l4_resolution_min, l5_response_min, l5_resolution_min,
    created_at`

func (r *ruleRepository) ListAll(ctx context.Context) ([]domain.EscalationRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM escalation_rules ORDER BY category, priority`, ruleColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *ruleRepository) ReplaceAll(ctx context.Context, rules []domain.EscalationRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM escalation_rules`); err != nil {
		return err
	}

	const insert = `
        INSERT INTO escalation_rules (category, sub_category, issue, priority,
            l0_response_min, l0_resolution_min, l1_response_min, l1_resolution_min,
            l2_response_min, l2_resolution_min, l3_response_min, l3_resolution_min,
            l4_response_min, l4_resolution_min, l5_response_min, l5_resolution_min)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	for i := range rules {
		rule := &rules[i]
		args := []any{rule.Category, rule.SubCategory, rule.Issue, rule.Priority}
		for _, level := range []domain.SupportLevel{domain.LevelL0, domain.LevelL1, domain.LevelL2, domain.LevelL3} {
			window := rule.Tiers[level]
			args = append(args, window.ResponseMinutes, window.ResolutionMinutes)
		}
		for _, level := range []domain.SupportLevel{domain.LevelL4, domain.LevelL5} {
			if window, ok := rule.Tiers[level]; ok {
				args = append(args, window.ResponseMinutes, window.ResolutionMinutes)
			} else {
				args = append(args, nil, nil)
			}
		}
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert rule %s/%s: %w", rule.Category, rule.Priority, err)
		}
	}

	return tx.Commit(ctx)
}

func scanRules(rows pgx.Rows) ([]domain.EscalationRule, error) {
	var result []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		var l0Resp, l0Resol, l1Resp, l1Resol, l2Resp, l2Resol, l3Resp, l3Resol int
		var l4Resp, l4Resol, l5Resp, l5Resol *int
		if err := rows.Scan(
			&rule.ID,
			&rule.Category,
			&rule.SubCategory,
			&rule.Issue,
			&rule.Priority,
			&l0Resp, &l0Resol,
			&l1Resp, &l1Resol,
			&l2Resp, &l2Resol,
			&l3Resp, &l3Resol,
			&l4Resp, &l4Resol,
			&l5Resp, &l5Resol,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rule.Tiers = map[domain.SupportLevel]domain.TierWindow{
			domain.LevelL0: {ResponseMinutes: l0Resp, ResolutionMinutes: l0Resol},
			domain.LevelL1: {ResponseMinutes: l1Resp, ResolutionMinutes: l1Resol},
			domain.LevelL2: {ResponseMinutes: l2Resp, ResolutionMinutes: l2Resol},
			domain.LevelL3: {ResponseMinutes: l3Resp, ResolutionMinutes: l3Resol},
		}
		if l4Resp != nil && l4Resol != nil {
			rule.Tiers[domain.LevelL4] = domain.TierWindow{ResponseMinutes: *l4Resp, ResolutionMinutes: *l4Resol}
		}
		if l5Resp != nil && l5Resol != nil {
			rule.Tiers[domain.LevelL5] = domain.TierWindow{ResponseMinutes: *l5Resp, ResolutionMinutes: *l5Resol}
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}
