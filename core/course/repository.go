package course

import (
	"context"
	"errors"
)

var (
	// errors
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrStudentExists      = errors.New("a student with this email already exists")
)

type (
	// Roster is the read side the review engine consumes: who is enrolled, what was submitted
	// and what the rubric looks like.
	Roster interface {
		GetAssignment(ctx context.Context, id int) (Assignment, error)
		ListEnrolledStudents(ctx context.Context, courseID int) ([]Student, error)
		ListCriteria(ctx context.Context, rubricID int) ([]Criterion, error)
		ListSubmissions(ctx context.Context, assignmentID int) ([]Submission, error)
	}

	// Repository adds the write operations used by fixtures and `admin importcourse`.
	Repository interface {
		Roster

		CreateCourse(ctx context.Context, c Course) (Course, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
		Enroll(ctx context.Context, courseID int, studentIDs ...int) error
		CreateRubric(ctx context.Context, r Rubric) (Rubric, error)
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		CreateSubmission(ctx context.Context, s Submission) (Submission, error)
	}
)
