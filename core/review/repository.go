package review

import (
	"context"
	"time"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
)

// Repository is the review record store.
type Repository interface {
	// WithinTx runs fn against a transaction-scoped Repository: every write fn makes
	// commits together, or none does if fn returns an error.
	// Calling WithinTx on a transaction-scoped Repository runs fn in the same transaction.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error

	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id int) (Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	ListByAssignment(ctx context.Context, assignmentID int, ordering ...core.DBOrdering) ([]Record, error)
	ListBySubmission(ctx context.Context, submissionID int) ([]Record, error)
	ListByReviewer(ctx context.Context, reviewerID int) ([]Record, error)
	// DeleteAssigned deletes the records of the assignment that are still `assigned` at the time
	// of the statement, and returns how many were deleted.
	DeleteAssigned(ctx context.Context, assignmentID int) (int, error)

	// ReplaceScores discards every score of the review and inserts the given set.
	ReplaceScores(ctx context.Context, reviewID int, scores []CriterionScore) ([]CriterionScore, error)
	ListScores(ctx context.Context, reviewIDs ...int) ([]CriterionScore, error)

	GetSubmission(ctx context.Context, id int) (course.Submission, error)
	// LockSubmission is GetSubmission, with the submission row locked until the transaction ends.
	LockSubmission(ctx context.Context, id int) (course.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id int, status string) error
	SetSubmissionSynthesis(ctx context.Context, id int, synthesis string, generatedAt time.Time) error
}

// Orderable fields for ListByAssignment
var OrderingFields = []string{"id", "assigned_at", "completed_at", "status", "total_score"}
