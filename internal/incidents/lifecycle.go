package incidents

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// transition moves the incident to target if the state machine allows it.
//
//	OPEN --> IN_PROGRESS --[rca and resolution set]--> CLOSED
func transition(incident *domain.Incident, target domain.IncidentStatus, now time.Time) error {
	if !incident.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, incident.Status, target)
	}

	if target == domain.IncidentStatusClosed {
		if isBlank(incident.RCA) || isBlank(incident.Resolution) {
			return ErrPreconditionFailed
		}
		closedAt := now
		incident.ClosedAt = &closedAt
	}

	incident.Status = target
	return nil
}

// applyFields overwrites the provided fields. Nil fields are left untouched.
func applyFields(incident *domain.Incident, rca, resolution *string) error {
	if !incident.Status.AllowsFieldEdits() {
		return fmt.Errorf("%w (status %s)", ErrInvalidState, incident.Status)
	}

	if rca != nil {
		incident.RCA = *rca
	}
	if resolution != nil {
		incident.Resolution = *resolution
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
