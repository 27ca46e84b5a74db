package course

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Submission statuses
const (
	SubmissionDraft     = "draft"
	SubmissionSubmitted = "submitted"
	SubmissionReviewed  = "reviewed"
)

type Course struct {
	ID   int    `json:"id" db:"id" yaml:"id"`
	Name string `json:"name" db:"name" yaml:"name"`
}

type Student struct {
	ID    int    `json:"id" db:"id" yaml:"id"`
	Name  string `json:"name" db:"name" yaml:"name"`
	Email string `json:"email" db:"email" yaml:"email"`
}

type Rubric struct {
	ID       int         `json:"id" db:"id"`
	Name     string      `json:"name" db:"name"`
	Criteria []Criterion `json:"criteria" db:"-"`
}

// Criterion is one weighted scoring dimension of a Rubric.
type Criterion struct {
	ID          int     `json:"id" db:"id"`
	RubricID    int     `json:"rubric_id" db:"rubric_id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	MaxScore    int     `json:"max_score" db:"max_score"`
	Weight      float64 `json:"weight" db:"weight"`
	Position    int     `json:"position" db:"position"`
}

type Assignment struct {
	ID       int       `json:"id" db:"id"`
	CourseID int       `json:"course_id" db:"course_id"`
	RubricID null.Int  `json:"rubric_id" db:"rubric_id"`
	Title    string    `json:"title" db:"title"`
	DueAt    null.Time `json:"due_at" db:"due_at"` // UTC
}

type Submission struct {
	ID                   int         `json:"id" db:"id"`
	AssignmentID         int         `json:"assignment_id" db:"assignment_id"`
	StudentID            int         `json:"student_id" db:"student_id"`
	Content              string      `json:"content" db:"content"`
	Status               string      `json:"status" db:"status"`
	SubmittedAt          time.Time   `json:"submitted_at" db:"submitted_at"` // UTC
	Synthesis            null.String `json:"synthesis" db:"synthesis"`
	SynthesisGeneratedAt null.Time   `json:"synthesis_generated_at" db:"synthesis_generated_at"` // UTC
}

// IsSubmitted reports whether the submission left the draft state.
func (s Submission) IsSubmitted() bool {
	return s.Status == SubmissionSubmitted || s.Status == SubmissionReviewed
}
