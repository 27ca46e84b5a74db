package review

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
)

var (
	// errors
	ErrInsufficientRoster    = errors.New("at least two enrolled students are needed to generate reviews")
	ErrReviewNotFound        = errors.New("review not found")
	ErrSubmissionNotFound    = errors.New("submission not found")
	ErrInvalidStatus         = errors.New("invalid review status")
	ErrMissingRequiredFields = errors.New("overall feedback and criteria scores are required to complete a review")
	ErrInvalidCriterion      = errors.New("criterion does not belong to the assignment rubric")
	ErrScoreOutOfRange       = errors.New("score is out of the criterion range")
	ErrNoRubric              = errors.New("the assignment has no rubric to score against")
)

// TransitionError is returned when a review cannot move between two statuses.
// It matches ErrInvalidStatus.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("a review cannot go from %q to %q", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStatus }

func fieldError(err error, field string) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}
