package existence

import "github.com/JakeFAU/resource-existence/internal/catalog"

// Outcome is the result of checking one resource in the current sweep.
type Outcome int

// Check outcomes, one per resource per sweep.
const (
	OutcomeComplete Outcome = iota
	OutcomeIncomplete
	OutcomeFailed
	OutcomeTimeout
	OutcomeSoftBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeSoftBlocked:
		return "soft_blocked"
	default:
		return "unknown"
	}
}

// Action is the store operation a transition requires.
type Action int

// Store actions.
const (
	ActionNone Action = iota
	ActionClear
	ActionSet
)

// Transition describes how the persisted status changes.
type Transition struct {
	Action Action
	Status catalog.ExistenceStatus
}

// Suspect reports whether the transition marks the resource as suspect.
func (t Transition) Suspect() bool {
	return t.Action == ActionSet && t.Status.Suspect()
}

// Classify maps an outcome to a status transition. The previous status is
// deliberately not an input: every check replaces it.
func Classify(o Outcome) Transition {
	switch o {
	case OutcomeComplete:
		return Transition{Action: ActionClear, Status: catalog.StatusExisting}
	case OutcomeIncomplete:
		return Transition{Action: ActionSet, Status: catalog.StatusIncomplete}
	case OutcomeTimeout:
		return Transition{Action: ActionSet, Status: catalog.StatusTimeout}
	case OutcomeSoftBlocked:
		return Transition{Action: ActionNone}
	default:
		return Transition{Action: ActionSet, Status: catalog.StatusUnknown}
	}
}
