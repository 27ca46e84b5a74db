package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
)

type importSummary struct {
	CourseID    int            `yaml:"course_id"`
	Course      string         `yaml:"course"`
	Students    int            `yaml:"students"`
	Rubrics     int            `yaml:"rubrics"`
	Assignments map[string]int `yaml:"assignments"` // {title: id}
	Submissions int            `yaml:"submissions"`
}

func (cli *commandLine) importCourse(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading course file")
	}

	var imp course.Import
	if err = yaml.Unmarshal(raw, &imp); err != nil {
		return errors.Wrap(err, "parsing course file")
	}
	if err = cli.validate.Struct(imp); err != nil {
		return core.TranslateValidationErrors(err, cli.translator)
	}

	res, err := course.ImportCourse(ctx, cli.courses, imp)
	if err != nil {
		return err
	}

	summary := importSummary{
		CourseID:    res.Course.ID,
		Course:      res.Course.Name,
		Students:    len(res.Students),
		Rubrics:     res.Rubrics,
		Assignments: make(map[string]int, len(res.Assignments)),
		Submissions: res.Submissions,
	}
	for _, a := range res.Assignments {
		summary.Assignments[a.Title] = a.ID
	}
	return cli.print(summary)
}
