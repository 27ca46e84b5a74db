package main

import (
	"context"
	"fmt"

	"github.com/trezcool/peerly/core/review"
)

type generateSummary struct {
	Stats   review.GenerateStats `yaml:"stats"`
	Created []string             `yaml:"created,omitempty"`
	Pending []string             `yaml:"pending,omitempty"`
	Skipped []string             `yaml:"skipped,omitempty"`
}

func (cli *commandLine) generateReviews(ctx context.Context, assignmentID, perStudent int) error {
	res, err := cli.reviewSvc.GenerateReviews(ctx, assignmentID, perStudent)
	if err != nil {
		return err
	}

	summary := generateSummary{Stats: res.Stats}
	for _, rec := range res.Created {
		summary.Created = append(summary.Created,
			fmt.Sprintf("review %d: %s (%d) reviews submission %d", rec.ID, rec.ReviewerName, rec.ReviewerID, rec.SubmissionID))
	}
	for _, p := range res.Pending {
		summary.Pending = append(summary.Pending,
			fmt.Sprintf("%s (%d) waits for %s (%d) to submit", p.ReviewerName, p.ReviewerID, p.StudentName, p.StudentID))
	}
	for _, s := range res.Skipped {
		summary.Skipped = append(summary.Skipped,
			fmt.Sprintf("%d -> %d: %s", s.ReviewerID, s.RevieweeID, s.Reason))
	}
	return cli.print(summary)
}
