package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
	"github.com/trezcool/peerly/core/review"
)

var (
	reviewColumns = []string{
		"id", "assignment_id", "submission_id", "reviewee_id", "reviewer_id", "status",
		"assigned_at", "completed_at", "overall_feedback", "total_score", "is_ai_generated",
	}
	scoreColumns = []string{"id", "review_id", "criterion_id", "score", "feedback"}
)

type reviewRepository struct {
	db   core.DB // nil inside a transaction
	exec core.DBExecutor
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *sqlx.DB) review.Repository {
	return &reviewRepository{db: db, exec: db}
}

func (repo *reviewRepository) WithinTx(ctx context.Context, fn func(tx review.Repository) error) error {
	if repo.db == nil {
		return fn(repo)
	}
	err := core.Transact(ctx, repo.db, func(tx core.DBExecutor) error {
		return fn(&reviewRepository{exec: tx})
	})
	return checkShutdown(err)
}

func (repo *reviewRepository) selectRecords(ctx context.Context, stmt sq.SelectBuilder) ([]review.Record, error) {
	q, args, err := stmt.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	recs := make([]review.Record, 0)
	if err = repo.exec.SelectContext(ctx, &recs, q, args...); err != nil {
		return nil, errors.Wrap(checkShutdown(err), "listing reviews")
	}
	return recs, nil
}

func (repo *reviewRepository) Create(ctx context.Context, rec review.Record) (review.Record, error) {
	q, args, err := psql.Insert("peer_reviews").
		Columns(reviewColumns[1:]...).
		Values(
			rec.AssignmentID, rec.SubmissionID, rec.RevieweeID, rec.ReviewerID, rec.Status,
			rec.AssignedAt.UTC(), rec.CompletedAt, rec.OverallFeedback, rec.TotalScore, rec.IsAIGenerated,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return review.Record{}, errors.Wrap(err, "building query")
	}
	if err = repo.exec.GetContext(ctx, &rec.ID, q, args...); err != nil {
		return review.Record{}, errors.Wrap(err, "inserting review")
	}
	return rec, nil
}

func (repo *reviewRepository) Get(ctx context.Context, id int) (review.Record, error) {
	q, args, err := psql.Select(reviewColumns...).From("peer_reviews").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return review.Record{}, errors.Wrap(err, "building query")
	}
	var rec review.Record
	if err = repo.exec.GetContext(ctx, &rec, q, args...); err != nil {
		if isNoRows(err) {
			return review.Record{}, review.ErrReviewNotFound
		}
		return review.Record{}, errors.Wrap(err, "getting review")
	}
	return rec, nil
}

func (repo *reviewRepository) Update(ctx context.Context, rec review.Record) (review.Record, error) {
	q, args, err := psql.Update("peer_reviews").
		SetMap(map[string]interface{}{
			"status":           rec.Status,
			"completed_at":     rec.CompletedAt,
			"overall_feedback": rec.OverallFeedback,
			"total_score":      rec.TotalScore,
			"is_ai_generated":  rec.IsAIGenerated,
		}).
		Where(sq.Eq{"id": rec.ID}).
		Suffix("RETURNING " + strings.Join(reviewColumns, ", ")).
		ToSql()
	if err != nil {
		return review.Record{}, errors.Wrap(err, "building query")
	}
	var updated review.Record
	if err = repo.exec.GetContext(ctx, &updated, q, args...); err != nil {
		if isNoRows(err) {
			return review.Record{}, review.ErrReviewNotFound
		}
		return review.Record{}, errors.Wrap(err, "updating review")
	}
	return updated, nil
}

func (repo *reviewRepository) ListByAssignment(ctx context.Context, assignmentID int, ordering ...core.DBOrdering) ([]review.Record, error) {
	stmt := psql.Select(reviewColumns...).From("peer_reviews").Where(sq.Eq{"assignment_id": assignmentID})
	for _, ord := range ordering {
		if isOrderable(ord.Field) {
			stmt = stmt.OrderBy(ord.String() + " NULLS LAST")
		}
	}
	return repo.selectRecords(ctx, stmt.OrderBy("id"))
}

func (repo *reviewRepository) ListBySubmission(ctx context.Context, submissionID int) ([]review.Record, error) {
	return repo.selectRecords(ctx, psql.Select(reviewColumns...).
		From("peer_reviews").
		Where(sq.Eq{"submission_id": submissionID}).
		OrderBy("id"))
}

func (repo *reviewRepository) ListByReviewer(ctx context.Context, reviewerID int) ([]review.Record, error) {
	return repo.selectRecords(ctx, psql.Select(reviewColumns...).
		From("peer_reviews").
		Where(sq.Eq{"reviewer_id": reviewerID}).
		OrderBy("id"))
}

// DeleteAssigned re-filters on status in the statement itself: a review moved to in_progress
// after the caller listed the records is never deleted. Scores go with the review (ON DELETE CASCADE).
func (repo *reviewRepository) DeleteAssigned(ctx context.Context, assignmentID int) (int, error) {
	q, args, err := psql.Delete("peer_reviews").
		Where(sq.Eq{"assignment_id": assignmentID, "status": review.StatusAssigned}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting assigned reviews")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting deleted reviews")
}

func (repo *reviewRepository) ReplaceScores(ctx context.Context, reviewID int, scores []review.CriterionScore) ([]review.CriterionScore, error) {
	q, args, err := psql.Delete("review_scores").Where(sq.Eq{"review_id": reviewID}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if _, err = repo.exec.ExecContext(ctx, q, args...); err != nil {
		return nil, errors.Wrap(err, "deleting scores")
	}

	saved := make([]review.CriterionScore, 0, len(scores))
	if len(scores) == 0 {
		return saved, nil
	}
	stmt := psql.Insert("review_scores").Columns(scoreColumns[1:]...)
	for _, sc := range scores {
		stmt = stmt.Values(reviewID, sc.CriterionID, sc.Score, sc.Feedback)
	}
	if q, args, err = stmt.Suffix("RETURNING " + strings.Join(scoreColumns, ", ")).ToSql(); err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if err = repo.exec.SelectContext(ctx, &saved, q, args...); err != nil {
		return nil, errors.Wrap(err, "inserting scores")
	}
	return saved, nil
}

func (repo *reviewRepository) ListScores(ctx context.Context, reviewIDs ...int) ([]review.CriterionScore, error) {
	scores := make([]review.CriterionScore, 0)
	if len(reviewIDs) == 0 {
		return scores, nil
	}
	q, args, err := psql.Select(scoreColumns...).
		From("review_scores").
		Where(sq.Eq{"review_id": reviewIDs}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return scores, errors.Wrap(repo.exec.SelectContext(ctx, &scores, q, args...), "listing scores")
}

func (repo *reviewRepository) GetSubmission(ctx context.Context, id int) (course.Submission, error) {
	return repo.getSubmission(ctx, psql.Select(submissionColumns...).From("submissions").Where(sq.Eq{"id": id}))
}

// LockSubmission must run inside WithinTx for the lock to outlive the statement.
func (repo *reviewRepository) LockSubmission(ctx context.Context, id int) (course.Submission, error) {
	return repo.getSubmission(ctx, psql.Select(submissionColumns...).From("submissions").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

func (repo *reviewRepository) getSubmission(ctx context.Context, stmt sq.SelectBuilder) (course.Submission, error) {
	q, args, err := stmt.ToSql()
	if err != nil {
		return course.Submission{}, errors.Wrap(err, "building query")
	}
	var sub course.Submission
	if err = repo.exec.GetContext(ctx, &sub, q, args...); err != nil {
		if isNoRows(err) {
			return course.Submission{}, review.ErrSubmissionNotFound
		}
		return course.Submission{}, errors.Wrap(err, "getting submission")
	}
	return sub, nil
}

func (repo *reviewRepository) updateSubmission(ctx context.Context, id int, set map[string]interface{}) error {
	q, args, err := psql.Update("submissions").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return review.ErrSubmissionNotFound
	}
	return nil
}

func (repo *reviewRepository) UpdateSubmissionStatus(ctx context.Context, id int, status string) error {
	return repo.updateSubmission(ctx, id, map[string]interface{}{"status": status})
}

func (repo *reviewRepository) SetSubmissionSynthesis(ctx context.Context, id int, synthesis string, generatedAt time.Time) error {
	return repo.updateSubmission(ctx, id, map[string]interface{}{
		"synthesis":              synthesis,
		"synthesis_generated_at": generatedAt.UTC(),
	})
}

func isOrderable(field string) bool {
	for _, f := range review.OrderingFields {
		if f == field {
			return true
		}
	}
	return false
}
