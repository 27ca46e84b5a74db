package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
)

var (
	assignmentColumns = []string{"id", "course_id", "rubric_id", "title", "due_at"}
	criterionColumns  = []string{"id", "rubric_id", "name", "description", "max_score", "weight", "position"}
	submissionColumns = []string{
		"id", "assignment_id", "student_id", "content", "status", "submitted_at", "synthesis", "synthesis_generated_at",
	}
)

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) GetAssignment(ctx context.Context, id int) (course.Assignment, error) {
	q, args, err := psql.Select(assignmentColumns...).From("assignments").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "building query")
	}
	var asgmt course.Assignment
	if err = repo.db.GetContext(ctx, &asgmt, q, args...); err != nil {
		if isNoRows(err) {
			return course.Assignment{}, course.ErrAssignmentNotFound
		}
		return course.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return asgmt, nil
}

func (repo *courseRepository) ListEnrolledStudents(ctx context.Context, courseID int) ([]course.Student, error) {
	q, args, err := psql.Select("s.id", "s.name", "s.email").
		From("students s").
		Join("enrollments e ON e.student_id = s.id").
		Where(sq.Eq{"e.course_id": courseID}).
		OrderBy("s.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	students := make([]course.Student, 0)
	return students, errors.Wrap(repo.db.SelectContext(ctx, &students, q, args...), "listing enrolled students")
}

func (repo *courseRepository) ListCriteria(ctx context.Context, rubricID int) ([]course.Criterion, error) {
	q, args, err := psql.Select(criterionColumns...).
		From("rubric_criteria").
		Where(sq.Eq{"rubric_id": rubricID}).
		OrderBy("position", "id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	criteria := make([]course.Criterion, 0)
	return criteria, errors.Wrap(repo.db.SelectContext(ctx, &criteria, q, args...), "listing criteria")
}

func (repo *courseRepository) ListSubmissions(ctx context.Context, assignmentID int) ([]course.Submission, error) {
	q, args, err := psql.Select(submissionColumns...).
		From("submissions").
		Where(sq.Eq{"assignment_id": assignmentID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	subs := make([]course.Submission, 0)
	return subs, errors.Wrap(repo.db.SelectContext(ctx, &subs, q, args...), "listing submissions")
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q, args, err := psql.Insert("courses").Columns("name").Values(c.Name).Suffix("RETURNING id").ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	return c, errors.Wrap(repo.db.GetContext(ctx, &c.ID, q, args...), "creating course")
}

func (repo *courseRepository) CreateStudent(ctx context.Context, s course.Student) (course.Student, error) {
	q, args, err := psql.Insert("students").Columns("name", "email").Values(s.Name, s.Email).Suffix("RETURNING id").ToSql()
	if err != nil {
		return course.Student{}, errors.Wrap(err, "building query")
	}
	if err = repo.db.GetContext(ctx, &s.ID, q, args...); err != nil {
		if isUniqueViolation(err) {
			return course.Student{}, course.ErrStudentExists
		}
		return course.Student{}, errors.Wrap(err, "creating student")
	}
	return s, nil
}

func (repo *courseRepository) Enroll(ctx context.Context, courseID int, studentIDs ...int) error {
	if len(studentIDs) == 0 {
		return nil
	}
	stmt := psql.Insert("enrollments").Columns("course_id", "student_id")
	for _, id := range studentIDs {
		stmt = stmt.Values(courseID, id)
	}
	q, args, err := stmt.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	_, err = repo.db.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "enrolling students")
}

func (repo *courseRepository) CreateRubric(ctx context.Context, r course.Rubric) (course.Rubric, error) {
	err := core.Transact(ctx, repo.db, func(tx core.DBExecutor) error {
		q, args, err := psql.Insert("rubrics").Columns("name").Values(r.Name).Suffix("RETURNING id").ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if err = tx.GetContext(ctx, &r.ID, q, args...); err != nil {
			return errors.Wrap(err, "creating rubric")
		}

		for i := range r.Criteria {
			crit := &r.Criteria[i]
			crit.RubricID = r.ID
			if crit.Position == 0 {
				crit.Position = i + 1
			}
			q, args, err = psql.Insert("rubric_criteria").
				Columns(criterionColumns[1:]...).
				Values(crit.RubricID, crit.Name, crit.Description, crit.MaxScore, crit.Weight, crit.Position).
				Suffix("RETURNING id").
				ToSql()
			if err != nil {
				return errors.Wrap(err, "building query")
			}
			if err = tx.GetContext(ctx, &crit.ID, q, args...); err != nil {
				return errors.Wrap(err, "creating criterion")
			}
		}
		return nil
	})
	if err != nil {
		return course.Rubric{}, err
	}
	return r, nil
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	q, args, err := psql.Insert("assignments").
		Columns(assignmentColumns[1:]...).
		Values(a.CourseID, a.RubricID, a.Title, a.DueAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "building query")
	}
	return a, errors.Wrap(repo.db.GetContext(ctx, &a.ID, q, args...), "creating assignment")
}

func (repo *courseRepository) CreateSubmission(ctx context.Context, s course.Submission) (course.Submission, error) {
	if s.Status == "" {
		s.Status = course.SubmissionSubmitted
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	q, args, err := psql.Insert("submissions").
		Columns(submissionColumns[1:]...).
		Values(s.AssignmentID, s.StudentID, s.Content, s.Status, s.SubmittedAt, s.Synthesis, s.SynthesisGeneratedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return course.Submission{}, errors.Wrap(err, "building query")
	}
	return s, errors.Wrap(repo.db.GetContext(ctx, &s.ID, q, args...), "creating submission")
}
