package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/peerly/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) GetAssignment(_ context.Context, id int) (course.Assignment, error) {
	var asgmt course.Assignment
	err := repo.db.run(false, func(t *tables) error {
		var ok bool
		if asgmt, ok = t.assignments[id]; !ok {
			return course.ErrAssignmentNotFound
		}
		return nil
	})
	return asgmt, err
}

func (repo *courseRepository) ListEnrolledStudents(_ context.Context, courseID int) ([]course.Student, error) {
	var students []course.Student
	err := repo.db.run(false, func(t *tables) error {
		if _, ok := t.courses[courseID]; !ok {
			return course.ErrCourseNotFound
		}
		students = make([]course.Student, 0, len(t.enrollments[courseID]))
		for _, id := range t.enrollments[courseID] {
			students = append(students, t.students[id])
		}
		return nil
	})
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, err
}

func (repo *courseRepository) ListCriteria(_ context.Context, rubricID int) ([]course.Criterion, error) {
	var criteria []course.Criterion
	_ = repo.db.run(false, func(t *tables) error {
		for _, crit := range t.criteria {
			if crit.RubricID == rubricID {
				criteria = append(criteria, crit)
			}
		}
		return nil
	})
	sort.Slice(criteria, func(i, j int) bool {
		if criteria[i].Position != criteria[j].Position {
			return criteria[i].Position < criteria[j].Position
		}
		return criteria[i].ID < criteria[j].ID
	})
	return criteria, nil
}

func (repo *courseRepository) ListSubmissions(_ context.Context, assignmentID int) ([]course.Submission, error) {
	var subs []course.Submission
	_ = repo.db.run(false, func(t *tables) error {
		for _, sub := range t.submissions {
			if sub.AssignmentID == assignmentID {
				subs = append(subs, sub)
			}
		}
		return nil
	})
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	err := repo.db.run(false, func(t *tables) error {
		if _, ok := t.courses[c.ID]; ok {
			return ErrUniqueViolation
		}
		c.ID = t.pkFor(c.ID)
		t.courses[c.ID] = c
		return nil
	})
	return c, err
}

func (repo *courseRepository) CreateStudent(_ context.Context, s course.Student) (course.Student, error) {
	err := repo.db.run(false, func(t *tables) error {
		for _, st := range t.students {
			if s.Email != "" && strings.EqualFold(st.Email, s.Email) {
				return course.ErrStudentExists
			}
		}
		if _, ok := t.students[s.ID]; ok {
			return ErrUniqueViolation
		}
		s.ID = t.pkFor(s.ID)
		t.students[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *courseRepository) Enroll(_ context.Context, courseID int, studentIDs ...int) error {
	return repo.db.run(false, func(t *tables) error {
		if _, ok := t.courses[courseID]; !ok {
			return ErrForeignKeyViolation
		}
		enrolled := make(map[int]bool, len(t.enrollments[courseID]))
		for _, id := range t.enrollments[courseID] {
			enrolled[id] = true
		}
		for _, id := range studentIDs {
			if _, ok := t.students[id]; !ok {
				return ErrForeignKeyViolation
			}
			if !enrolled[id] {
				t.enrollments[courseID] = append(t.enrollments[courseID], id)
				enrolled[id] = true
			}
		}
		return nil
	})
}

func (repo *courseRepository) CreateRubric(_ context.Context, r course.Rubric) (course.Rubric, error) {
	err := repo.db.run(false, func(t *tables) error {
		r.ID = t.nextPK()
		criteria := make([]course.Criterion, 0, len(r.Criteria))
		for i, crit := range r.Criteria {
			crit.ID = t.nextPK()
			crit.RubricID = r.ID
			if crit.Position == 0 {
				crit.Position = i + 1
			}
			t.criteria[crit.ID] = crit
			criteria = append(criteria, crit)
		}
		r.Criteria = criteria
		t.rubrics[r.ID] = course.Rubric{ID: r.ID, Name: r.Name}
		return nil
	})
	return r, err
}

func (repo *courseRepository) CreateAssignment(_ context.Context, a course.Assignment) (course.Assignment, error) {
	err := repo.db.run(false, func(t *tables) error {
		if _, ok := t.courses[a.CourseID]; !ok {
			return ErrForeignKeyViolation
		}
		if a.RubricID.Valid {
			if _, ok := t.rubrics[a.RubricID.Int]; !ok {
				return ErrForeignKeyViolation
			}
		}
		if _, ok := t.assignments[a.ID]; ok {
			return ErrUniqueViolation
		}
		a.ID = t.pkFor(a.ID)
		t.assignments[a.ID] = a
		return nil
	})
	return a, err
}

func (repo *courseRepository) CreateSubmission(_ context.Context, s course.Submission) (course.Submission, error) {
	err := repo.db.run(false, func(t *tables) error {
		if _, ok := t.assignments[s.AssignmentID]; !ok {
			return ErrForeignKeyViolation
		}
		for _, sub := range t.submissions {
			if sub.AssignmentID == s.AssignmentID && sub.StudentID == s.StudentID {
				return ErrUniqueViolation
			}
		}
		if s.Status == "" {
			s.Status = course.SubmissionSubmitted
		}
		if s.SubmittedAt.IsZero() {
			s.SubmittedAt = time.Now().UTC()
		}
		if _, ok := t.submissions[s.ID]; ok {
			return ErrUniqueViolation
		}
		s.ID = t.pkFor(s.ID)
		t.submissions[s.ID] = s
		return nil
	})
	return s, err
}
