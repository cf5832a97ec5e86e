package jobs

import (
	"errors"

	"github.com/consertaja/backend/internal/models"
)

// ErrInvalidTransition signals a policy violation: the requested status
// change is not on the lifecycle graph for the given role. It never
// indicates an internal failure and callers must not have mutated state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// transitions is the single source of truth for the job lifecycle. The
// payment orchestrator and the completion-approval flow consult it before
// moving any money. CLOSED and CANCELLED have no outgoing edges.
var transitions = map[string][]string{
	models.JobStatusCreated:         {models.JobStatusQuoted, models.JobStatusCancelled},
	models.JobStatusQuoted:          {models.JobStatusQuoteAccepted, models.JobStatusCancelled},
	models.JobStatusQuoteAccepted:   {models.JobStatusPendingPayment, models.JobStatusCancelled},
	models.JobStatusPendingPayment:  {models.JobStatusPaid, models.JobStatusCancelled},
	models.JobStatusPaid:            {models.JobStatusInProgress, models.JobStatusCancelled},
	models.JobStatusInProgress:      {models.JobStatusPendingApproval, models.JobStatusDisputed},
	models.JobStatusPendingApproval: {models.JobStatusCompleted, models.JobStatusDisputed},
	models.JobStatusCompleted:       {models.JobStatusInGuarantee, models.JobStatusClosed},
	models.JobStatusInGuarantee:     {models.JobStatusClosed, models.JobStatusDisputed},
	models.JobStatusDisputed:        {models.JobStatusCompleted, models.JobStatusCancelled},
	models.JobStatusClosed:          {},
	models.JobStatusCancelled:       {},
}

// CanTransition reports whether current -> next is legal for the given
// role. Admins are exempt from the adjacency check.
func CanTransition(current, next, role string) bool {
	if role == models.RoleAdmin {
		return true
	}
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}
