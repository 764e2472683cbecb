package domain

import "errors"

// Sentinel errors surfaced by repositories so services can map them to
// transport-level responses.
var (
	// ErrRuleNotFound means no exact or wildcard rule matched a
	// classification. Expected and recoverable; callers may fall back
	// to a default SLA.
	ErrRuleNotFound = errors.New("no escalation rule matches classification")

	// ErrTicketNotFound means the ticket id is unknown.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrConcurrentModification means a conditional update lost a race
	// with another writer; the caller should re-read and retry.
	ErrConcurrentModification = errors.New("ticket modified concurrently")
)
