package review

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
)

// SaveReview validates a reviewer's save against the assignment rubric, then, in one transaction,
// replaces the score set, updates the review and marks the submission reviewed once none of its
// reviews is pending anymore.
// Completing a review triggers the synthesis of the submission's completed reviews (best-effort).
func (svc *Service) SaveReview(ctx context.Context, reviewID int, in SaveReviewInput) (Record, error) {
	status := core.CleanString(in.Status, true /* lower */)
	if !IsSaveStatus(status) {
		return Record{}, fieldError(ErrInvalidStatus, "status")
	}
	feedback := core.CleanStringPtr(in.OverallFeedback)
	if status == StatusCompleted {
		if err := checkCompletion(feedback, in.Scores); err != nil {
			return Record{}, err
		}
	}

	rec, err := svc.repo.Get(ctx, reviewID)
	if err != nil {
		return Record{}, err
	}
	if err := Transition(rec.Status, status); err != nil {
		return Record{}, fieldError(err, "status")
	}

	criteria, err := svc.assignmentCriteria(ctx, rec.AssignmentID)
	if err != nil {
		return Record{}, err
	}
	if len(in.Scores) > 0 && len(criteria) == 0 {
		return Record{}, fieldError(ErrNoRubric, "scores")
	}
	var scores []CriterionScore
	if in.Scores != nil {
		if scores, err = buildScores(reviewID, in.Scores, criteria); err != nil {
			return Record{}, err
		}
	}

	var saved Record
	err = svc.repo.WithinTx(ctx, func(tx Repository) error {
		cur, err := tx.Get(ctx, reviewID)
		if err != nil {
			return err
		}
		if err := Transition(cur.Status, status); err != nil {
			return fieldError(err, "status")
		}

		var curScores []CriterionScore
		if in.Scores != nil {
			if curScores, err = tx.ReplaceScores(ctx, reviewID, scores); err != nil {
				return errors.Wrap(err, "replacing scores")
			}
		} else if curScores, err = tx.ListScores(ctx, reviewID); err != nil {
			return errors.Wrap(err, "listing scores")
		}

		cur.TotalScore = totalScore(curScores)
		cur.Status = status
		if feedback != nil {
			cur.OverallFeedback = null.NewString(*feedback, *feedback != "")
		}
		if status == StatusCompleted {
			cur.CompletedAt = null.TimeFrom(svc.now())
		} else {
			cur.CompletedAt = null.Time{}
		}

		if saved, err = tx.Update(ctx, cur); err != nil {
			return errors.Wrap(err, "updating review")
		}
		saved.Scores = curScores

		if status == StatusCompleted {
			return syncSubmissionStatus(ctx, tx, cur.SubmissionID)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	if status == StatusCompleted {
		svc.synthesize(ctx, saved.SubmissionID, maxScore(criteria))
	}
	return saved, nil
}

func checkCompletion(feedback *string, scores []ScoreInput) error {
	var flds []core.FieldError
	if feedback == nil || *feedback == "" {
		flds = append(flds, core.FieldError{Field: "overall_feedback", Error: "this field is required"})
	}
	if len(scores) == 0 {
		flds = append(flds, core.FieldError{Field: "scores", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(ErrMissingRequiredFields, flds...)
	}
	return nil
}

func (svc *Service) assignmentCriteria(ctx context.Context, assignmentID int) ([]course.Criterion, error) {
	asgmt, err := svc.roster.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !asgmt.RubricID.Valid {
		return nil, nil
	}
	criteria, err := svc.roster.ListCriteria(ctx, asgmt.RubricID.Int)
	return criteria, errors.Wrap(err, "listing rubric criteria")
}

// buildScores checks every input against the rubric: unknown or repeated criteria first,
// then the score bounds. Scores are truncated to whole numbers.
func buildScores(reviewID int, inputs []ScoreInput, criteria []course.Criterion) ([]CriterionScore, error) {
	byID := make(map[int]course.Criterion, len(criteria))
	for _, crit := range criteria {
		byID[crit.ID] = crit
	}

	var flds []core.FieldError
	seen := make(map[int]bool, len(inputs))
	for i, in := range inputs {
		if _, ok := byID[in.CriterionID]; !ok || seen[in.CriterionID] {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("scores[%d].criterion_id", i),
				Error: ErrInvalidCriterion.Error(),
			})
		}
		seen[in.CriterionID] = true
	}
	if len(flds) > 0 {
		return nil, core.NewValidationError(ErrInvalidCriterion, flds...)
	}

	scores := make([]CriterionScore, 0, len(inputs))
	for i, in := range inputs {
		crit := byID[in.CriterionID]
		if math.IsNaN(in.Score) || math.IsInf(in.Score, 0) || in.Score < 0 || math.Trunc(in.Score) > float64(crit.MaxScore) {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("scores[%d].score", i),
				Error: fmt.Sprintf("must be between 0 and %d", crit.MaxScore),
			})
			continue
		}
		scores = append(scores, CriterionScore{
			ReviewID:    reviewID,
			CriterionID: in.CriterionID,
			Score:       int(math.Trunc(in.Score)),
			Feedback:    core.CleanString(in.Feedback),
		})
	}
	if len(flds) > 0 {
		return nil, core.NewValidationError(ErrScoreOutOfRange, flds...)
	}
	return scores, nil
}

// syncSubmissionStatus makes a submission reviewed when it has reviews and all of them are completed,
// and submitted otherwise. Submissions without reviews are left as they are.
// The submission is locked first: two reviews completing concurrently are serialized, so the last
// one to commit sees the other as completed.
func syncSubmissionStatus(ctx context.Context, tx Repository, submissionID int) error {
	sub, err := tx.LockSubmission(ctx, submissionID)
	if err != nil {
		return errors.Wrap(err, "locking submission")
	}
	recs, err := tx.ListBySubmission(ctx, submissionID)
	if err != nil {
		return errors.Wrap(err, "listing submission reviews")
	}
	if len(recs) == 0 || !sub.IsSubmitted() {
		return nil
	}

	status := course.SubmissionReviewed
	for _, rec := range recs {
		if !rec.IsCompleted() {
			status = course.SubmissionSubmitted
			break
		}
	}
	if sub.Status == status {
		return nil
	}
	return errors.Wrap(tx.UpdateSubmissionStatus(ctx, submissionID, status), "updating submission status")
}

func totalScore(scores []CriterionScore) int {
	var total int
	for _, sc := range scores {
		total += sc.Score
	}
	return total
}

func maxScore(criteria []course.Criterion) int {
	var max int
	for _, crit := range criteria {
		max += crit.MaxScore
	}
	return max
}
