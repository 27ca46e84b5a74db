package review

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Record is one reviewer assigned to assess one submission.
type Record struct {
	ID              int              `json:"id" db:"id"`
	AssignmentID    int              `json:"assignment_id" db:"assignment_id"`
	SubmissionID    int              `json:"submission_id" db:"submission_id"`
	RevieweeID      int              `json:"reviewee_id" db:"reviewee_id"`
	ReviewerID      int              `json:"reviewer_id" db:"reviewer_id"`
	Status          string           `json:"status" db:"status"`
	AssignedAt      time.Time        `json:"assigned_at" db:"assigned_at"`   // UTC
	CompletedAt     null.Time        `json:"completed_at" db:"completed_at"` // UTC
	OverallFeedback null.String      `json:"overall_feedback" db:"overall_feedback"`
	TotalScore      int              `json:"total_score" db:"total_score"`
	IsAIGenerated   bool             `json:"is_ai_generated" db:"is_ai_generated"`
	ReviewerName    string           `json:"reviewer_name,omitempty" db:"-"`
	Scores          []CriterionScore `json:"scores,omitempty" db:"-"`
}

func (r Record) Key() PairKey {
	return PairKey{SubmissionID: r.SubmissionID, ReviewerID: r.ReviewerID}
}

func (r Record) IsCompleted() bool { return r.Status == StatusCompleted }

type CriterionScore struct {
	ID          int    `json:"id" db:"id"`
	ReviewID    int    `json:"review_id" db:"review_id"`
	CriterionID int    `json:"criterion_id" db:"criterion_id"`
	Score       int    `json:"score" db:"score"`
	Feedback    string `json:"feedback" db:"feedback"`
}

// PendingAssignment pairs a reviewer with a student who has not submitted yet.
// It is reported to the caller but never stored.
type PendingAssignment struct {
	StudentID    int    `json:"student_id"`
	StudentName  string `json:"student_name"`
	ReviewerID   int    `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
}

// Skip reasons
const (
	SkipSelfReview = "self_review"
	SkipDuplicate  = "duplicate"
)

type SkippedPair struct {
	RevieweeID int    `json:"reviewee_id"`
	ReviewerID int    `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

type GenerateStats struct {
	Enrolled    int `json:"enrolled"`
	Submissions int `json:"submissions"`
	Created     int `json:"created"`
	Pending     int `json:"pending"`
	Skipped     int `json:"skipped"`
	Preserved   int `json:"preserved"`
	Discarded   int `json:"discarded"`
}

type GenerateResult struct {
	Created []Record            `json:"created"`
	Pending []PendingAssignment `json:"pending"`
	Skipped []SkippedPair       `json:"skipped"`
	Stats   GenerateStats       `json:"stats"`
}

type ScoreInput struct {
	CriterionID int     `json:"criterion_id" validate:"required"`
	Score       float64 `json:"score"`
	Feedback    string  `json:"feedback"`
}

// SaveReviewInput is what a reviewer submits for one review.
// A nil OverallFeedback keeps the stored one; nil Scores keep the stored score set.
type SaveReviewInput struct {
	Status          string       `json:"status" validate:"required"`
	OverallFeedback *string      `json:"overall_feedback"`
	Scores          []ScoreInput `json:"scores" validate:"omitempty,dive"`
}
