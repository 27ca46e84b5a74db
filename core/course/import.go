package course

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peerly/core"
)

type (
	// Import describes a whole course: roster, rubrics, assignments and submissions.
	Import struct {
		Course      string             `yaml:"course" json:"course" validate:"required,notblank"`
		Students    []ImportStudent    `yaml:"students" json:"students" validate:"dive"`
		Rubrics     []ImportRubric     `yaml:"rubrics" json:"rubrics" validate:"dive"`
		Assignments []ImportAssignment `yaml:"assignments" json:"assignments" validate:"dive"`
	}

	ImportStudent struct {
		Name  string `yaml:"name" json:"name" validate:"required,notblank"`
		Email string `yaml:"email" json:"email" validate:"required,email"`
	}

	ImportRubric struct {
		Name     string            `yaml:"name" json:"name" validate:"required,notblank"`
		Criteria []ImportCriterion `yaml:"criteria" json:"criteria" validate:"required,min=1,dive"`
	}

	ImportCriterion struct {
		Name        string  `yaml:"name" json:"name" validate:"required,notblank"`
		Description string  `yaml:"description" json:"description"`
		MaxScore    int     `yaml:"max_score" json:"max_score" validate:"min=0"`
		Weight      float64 `yaml:"weight" json:"weight" validate:"min=0"`
	}

	ImportAssignment struct {
		Title       string             `yaml:"title" json:"title" validate:"required,notblank"`
		Rubric      string             `yaml:"rubric" json:"rubric"` // rubric name
		DueAt       *time.Time         `yaml:"due_at" json:"due_at"`
		Submissions []ImportSubmission `yaml:"submissions" json:"submissions" validate:"dive"`
	}

	ImportSubmission struct {
		Student string `yaml:"student" json:"student" validate:"required,email"` // student email
		Content string `yaml:"content" json:"content"`
		Status  string `yaml:"status" json:"status" validate:"omitempty,oneof=draft submitted reviewed"`
	}

	ImportResult struct {
		Course      Course       `json:"course"`
		Students    []Student    `json:"students"`
		Assignments []Assignment `json:"assignments"`
		Rubrics     int          `json:"rubrics"`
		Submissions int          `json:"submissions"`
	}
)

// checkReferences makes sure rubrics and students referenced by name/email are declared.
func (imp Import) checkReferences() error {
	rubrics := make(map[string]bool, len(imp.Rubrics))
	for _, r := range imp.Rubrics {
		rubrics[core.CleanString(r.Name)] = true
	}
	students := make(map[string]bool, len(imp.Students))
	for _, st := range imp.Students {
		students[core.CleanString(st.Email, true /* lower */)] = true
	}

	var flds []core.FieldError
	for i, a := range imp.Assignments {
		if name := core.CleanString(a.Rubric); name != "" && !rubrics[name] {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("assignments[%d].rubric", i),
				Error: fmt.Sprintf("unknown rubric %q", name),
			})
		}
		for j, sub := range a.Submissions {
			if email := core.CleanString(sub.Student, true /* lower */); !students[email] {
				flds = append(flds, core.FieldError{
					Field: fmt.Sprintf("assignments[%d].submissions[%d].student", i, j),
					Error: fmt.Sprintf("unknown student %q", email),
				})
			}
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid course import"), flds...)
	}
	return nil
}

// ImportCourse creates everything described by imp. It does not roll back on failure;
// callers are expected to import into a fresh course.
func ImportCourse(ctx context.Context, repo Repository, imp Import) (ImportResult, error) {
	if err := imp.checkReferences(); err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	var err error
	if res.Course, err = repo.CreateCourse(ctx, Course{Name: core.CleanString(imp.Course)}); err != nil {
		return res, errors.Wrap(err, "creating course")
	}

	studentIDs := make(map[string]int, len(imp.Students)) // {email: id}
	for _, st := range imp.Students {
		student, err := repo.CreateStudent(ctx, Student{
			Name:  core.CleanString(st.Name),
			Email: core.CleanString(st.Email, true /* lower */),
		})
		if err != nil {
			return res, errors.Wrapf(err, "creating student %s", st.Email)
		}
		studentIDs[student.Email] = student.ID
		res.Students = append(res.Students, student)
	}
	ids := make([]int, 0, len(res.Students))
	for _, st := range res.Students {
		ids = append(ids, st.ID)
	}
	if err = repo.Enroll(ctx, res.Course.ID, ids...); err != nil {
		return res, errors.Wrap(err, "enrolling students")
	}

	rubricIDs := make(map[string]int, len(imp.Rubrics)) // {name: id}
	for _, r := range imp.Rubrics {
		rubric := Rubric{Name: core.CleanString(r.Name)}
		for i, c := range r.Criteria {
			weight := c.Weight
			if weight == 0 {
				weight = 1
			}
			rubric.Criteria = append(rubric.Criteria, Criterion{
				Name:        core.CleanString(c.Name),
				Description: core.CleanString(c.Description),
				MaxScore:    c.MaxScore,
				Weight:      weight,
				Position:    i + 1,
			})
		}
		if rubric, err = repo.CreateRubric(ctx, rubric); err != nil {
			return res, errors.Wrapf(err, "creating rubric %s", r.Name)
		}
		rubricIDs[rubric.Name] = rubric.ID
		res.Rubrics++
	}

	for _, a := range imp.Assignments {
		asgmt := Assignment{CourseID: res.Course.ID, Title: core.CleanString(a.Title)}
		if id, ok := rubricIDs[core.CleanString(a.Rubric)]; ok {
			asgmt.RubricID = null.IntFrom(id)
		}
		if a.DueAt != nil {
			asgmt.DueAt = null.TimeFrom(a.DueAt.UTC())
		}
		if asgmt, err = repo.CreateAssignment(ctx, asgmt); err != nil {
			return res, errors.Wrapf(err, "creating assignment %s", a.Title)
		}
		res.Assignments = append(res.Assignments, asgmt)

		for _, sub := range a.Submissions {
			_, err = repo.CreateSubmission(ctx, Submission{
				AssignmentID: asgmt.ID,
				StudentID:    studentIDs[core.CleanString(sub.Student, true /* lower */)],
				Content:      sub.Content,
				Status:       sub.Status,
			})
			if err != nil {
				return res, errors.Wrapf(err, "creating submission of %s", sub.Student)
			}
			res.Submissions++
		}
	}
	return res, nil
}
