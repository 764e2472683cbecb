package service

import (
	"context"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

// AssigneeDirectory supplies the handler for a support level when a
// ticket enters or escalates into it.
type AssigneeDirectory interface {
	Pick(ctx context.Context, level domain.SupportLevel, key string) (string, error)
}

// rosterDirectory picks deterministically from the active roster of a
// level, hashing the ticket id so assignments spread across the roster
// without shared state.
type rosterDirectory struct {
	roster   repository.LevelAssigneeRepository
	fallback string
}

// NewRosterDirectory builds a roster-backed directory. fallback is used
// when a level has no active roster entries.
func NewRosterDirectory(roster repository.LevelAssigneeRepository, fallback string) AssigneeDirectory {
	if fallback == "" {
		fallback = "unassigned"
	}
	return &rosterDirectory{roster: roster, fallback: fallback}
}

func (d *rosterDirectory) Pick(ctx context.Context, level domain.SupportLevel, key string) (string, error) {
	entries, err := d.roster.ListActiveByLevel(ctx, level)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return d.fallback, nil
	}
	return entries[selectIndex(key, len(entries))].Assignee, nil
}

func selectIndex(key string, length int) int {
	if length == 0 {
		return 0
	}
	sum := 0
	for _, ch := range key {
		sum += int(ch)
	}
	return sum % length
}
