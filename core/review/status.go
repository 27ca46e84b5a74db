package review

// Review statuses
const (
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

var (
	Statuses = []string{StatusAssigned, StatusInProgress, StatusCompleted}

	// completed is terminal: it has no entry.
	transitions = map[string][]string{
		StatusAssigned:   {StatusInProgress, StatusCompleted},
		StatusInProgress: {StatusInProgress, StatusCompleted},
	}
)

// IsSaveStatus reports whether status is a valid target for a reviewer save.
func IsSaveStatus(status string) bool {
	return status == StatusInProgress || status == StatusCompleted
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition checks that a review in status `from` may be saved as `to`.
func Transition(from, to string) error {
	if !IsSaveStatus(to) {
		return ErrInvalidStatus
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
