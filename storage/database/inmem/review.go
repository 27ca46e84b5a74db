package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
	"github.com/trezcool/peerly/core/review"
)

type reviewRepository struct {
	db   *DB
	inTx bool
}

var _ review.Repository = (*reviewRepository)(nil)

func NewReviewRepository(db *DB) review.Repository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) run(fn func(t *tables) error) error {
	return repo.db.run(repo.inTx, fn)
}

func (repo *reviewRepository) WithinTx(_ context.Context, fn func(tx review.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}
	return repo.db.transact(func() error {
		return fn(&reviewRepository{db: repo.db, inTx: true})
	})
}

func (repo *reviewRepository) Create(_ context.Context, rec review.Record) (review.Record, error) {
	err := repo.run(func(t *tables) error {
		if rec.ReviewerID == rec.RevieweeID {
			return ErrCheckViolation
		}
		if _, ok := t.submissions[rec.SubmissionID]; !ok {
			return ErrForeignKeyViolation
		}
		if _, ok := t.reviews[rec.ID]; ok {
			return ErrUniqueViolation
		}
		for _, r := range t.reviews {
			if r.SubmissionID == rec.SubmissionID && r.ReviewerID == rec.ReviewerID {
				return ErrUniqueViolation
			}
		}
		rec.ID = t.pkFor(rec.ID)
		rec.ReviewerName = ""
		rec.Scores = nil
		t.reviews[rec.ID] = rec
		return nil
	})
	return rec, err
}

func (repo *reviewRepository) Get(_ context.Context, id int) (review.Record, error) {
	var rec review.Record
	err := repo.run(func(t *tables) error {
		var ok bool
		if rec, ok = t.reviews[id]; !ok {
			return review.ErrReviewNotFound
		}
		return nil
	})
	return rec, err
}

func (repo *reviewRepository) Update(_ context.Context, rec review.Record) (review.Record, error) {
	err := repo.run(func(t *tables) error {
		orig, ok := t.reviews[rec.ID]
		if !ok {
			return review.ErrReviewNotFound
		}
		orig.Status = rec.Status
		orig.CompletedAt = rec.CompletedAt
		orig.OverallFeedback = rec.OverallFeedback
		orig.TotalScore = rec.TotalScore
		orig.IsAIGenerated = rec.IsAIGenerated
		t.reviews[rec.ID] = orig
		rec = orig
		return nil
	})
	return rec, err
}

func (repo *reviewRepository) filter(keep func(rec review.Record) bool) []review.Record {
	recs := make([]review.Record, 0)
	_ = repo.run(func(t *tables) error {
		for _, rec := range t.reviews {
			if keep(rec) {
				recs = append(recs, rec)
			}
		}
		return nil
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

func (repo *reviewRepository) ListByAssignment(_ context.Context, assignmentID int, ordering ...core.DBOrdering) ([]review.Record, error) {
	recs := repo.filter(func(rec review.Record) bool { return rec.AssignmentID == assignmentID })
	for i := len(ordering) - 1; i >= 0; i-- {
		sortRecords(recs, ordering[i])
	}
	return recs, nil
}

func (repo *reviewRepository) ListBySubmission(_ context.Context, submissionID int) ([]review.Record, error) {
	return repo.filter(func(rec review.Record) bool { return rec.SubmissionID == submissionID }), nil
}

func (repo *reviewRepository) ListByReviewer(_ context.Context, reviewerID int) ([]review.Record, error) {
	return repo.filter(func(rec review.Record) bool { return rec.ReviewerID == reviewerID }), nil
}

func (repo *reviewRepository) DeleteAssigned(_ context.Context, assignmentID int) (int, error) {
	var deleted int
	err := repo.run(func(t *tables) error {
		for id, rec := range t.reviews {
			if rec.AssignmentID != assignmentID || rec.Status != review.StatusAssigned {
				continue
			}
			for scID, sc := range t.scores {
				if sc.ReviewID == id {
					delete(t.scores, scID)
				}
			}
			delete(t.reviews, id)
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (repo *reviewRepository) ReplaceScores(_ context.Context, reviewID int, scores []review.CriterionScore) ([]review.CriterionScore, error) {
	saved := make([]review.CriterionScore, 0, len(scores))
	err := repo.run(func(t *tables) error {
		if _, ok := t.reviews[reviewID]; !ok {
			return review.ErrReviewNotFound
		}
		for id, sc := range t.scores {
			if sc.ReviewID == reviewID {
				delete(t.scores, id)
			}
		}
		seen := make(map[int]bool, len(scores))
		for _, sc := range scores {
			if seen[sc.CriterionID] {
				return ErrUniqueViolation
			}
			if _, ok := t.criteria[sc.CriterionID]; !ok {
				return ErrForeignKeyViolation
			}
			seen[sc.CriterionID] = true
			sc.ID = t.nextPK()
			sc.ReviewID = reviewID
			t.scores[sc.ID] = sc
			saved = append(saved, sc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *reviewRepository) ListScores(_ context.Context, reviewIDs ...int) ([]review.CriterionScore, error) {
	ids := make(map[int]bool, len(reviewIDs))
	for _, id := range reviewIDs {
		ids[id] = true
	}
	scores := make([]review.CriterionScore, 0)
	_ = repo.run(func(t *tables) error {
		for _, sc := range t.scores {
			if ids[sc.ReviewID] {
				scores = append(scores, sc)
			}
		}
		return nil
	})
	sort.Slice(scores, func(i, j int) bool { return scores[i].ID < scores[j].ID })
	return scores, nil
}

func (repo *reviewRepository) GetSubmission(_ context.Context, id int) (course.Submission, error) {
	var sub course.Submission
	err := repo.run(func(t *tables) error {
		var ok bool
		if sub, ok = t.submissions[id]; !ok {
			return review.ErrSubmissionNotFound
		}
		return nil
	})
	return sub, err
}

// LockSubmission: transactions already hold the store lock.
func (repo *reviewRepository) LockSubmission(ctx context.Context, id int) (course.Submission, error) {
	return repo.GetSubmission(ctx, id)
}

func (repo *reviewRepository) UpdateSubmissionStatus(_ context.Context, id int, status string) error {
	return repo.run(func(t *tables) error {
		sub, ok := t.submissions[id]
		if !ok {
			return review.ErrSubmissionNotFound
		}
		sub.Status = status
		t.submissions[id] = sub
		return nil
	})
}

func (repo *reviewRepository) SetSubmissionSynthesis(_ context.Context, id int, synthesis string, generatedAt time.Time) error {
	return repo.run(func(t *tables) error {
		sub, ok := t.submissions[id]
		if !ok {
			return review.ErrSubmissionNotFound
		}
		sub.Synthesis = null.StringFrom(synthesis)
		sub.SynthesisGeneratedAt = null.TimeFrom(generatedAt.UTC())
		t.submissions[id] = sub
		return nil
	})
}

// sortRecords stable-sorts recs on one ordering; nulls last.
func sortRecords(recs []review.Record, ord core.DBOrdering) {
	less := func(a, b review.Record) bool {
		switch ord.Field {
		case "assigned_at":
			return a.AssignedAt.Before(b.AssignedAt)
		case "completed_at":
			if a.CompletedAt.Valid != b.CompletedAt.Valid {
				return a.CompletedAt.Valid == ord.Ascending
			}
			return a.CompletedAt.Time.Before(b.CompletedAt.Time)
		case "status":
			return a.Status < b.Status
		case "total_score":
			return a.TotalScore < b.TotalScore
		default:
			return a.ID < b.ID
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if ord.Ascending {
			return less(recs[i], recs[j])
		}
		return less(recs[j], recs[i])
	})
}
