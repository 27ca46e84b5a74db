package review

import (
	"context"
	"fmt"
	"net/mail"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
)

const reviewAssignedTemplate = "review_assigned"

// GenerateReviews (re)assigns reviewers for every enrolled student of the assignment's course.
//
// Reviews already in progress or completed are kept untouched; reviews still `assigned` are discarded
// and paired again. Each student of the shuffled pool reviews the next reviewsPerStudent students in the
// cycle. A target without a submission yields a PendingAssignment instead of a stored review.
// reviewsPerStudent < 1 falls back to the configured default and is capped at enrolled-1.
// Submission statuses are then synced with their reviews: a reviewed submission that got a new
// review goes back to submitted.
func (svc *Service) GenerateReviews(ctx context.Context, assignmentID, reviewsPerStudent int) (GenerateResult, error) {
	asgmt, err := svc.roster.GetAssignment(ctx, assignmentID)
	if err != nil {
		return GenerateResult{}, err
	}
	pool, err := svc.roster.ListEnrolledStudents(ctx, asgmt.CourseID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "listing enrolled students")
	}
	if len(pool) < 2 {
		return GenerateResult{}, ErrInsufficientRoster
	}
	subs, err := svc.roster.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "listing submissions")
	}

	submitted := make(map[int]course.Submission, len(subs)) // {studentID: submission}
	for _, sub := range subs {
		if sub.IsSubmitted() {
			submitted[sub.StudentID] = sub
		}
	}

	n := len(pool)
	perStudent := svc.reviewsPerStudent(reviewsPerStudent, n)
	res := GenerateResult{
		Created: make([]Record, 0, n*perStudent),
		Pending: make([]PendingAssignment, 0),
		Skipped: make([]SkippedPair, 0),
	}

	err = svc.repo.WithinTx(ctx, func(tx Repository) error {
		discarded, err := tx.DeleteAssigned(ctx, assignmentID)
		if err != nil {
			return errors.Wrap(err, "deleting assigned reviews")
		}
		preserved, err := tx.ListByAssignment(ctx, assignmentID)
		if err != nil {
			return errors.Wrap(err, "listing preserved reviews")
		}
		res.Stats.Discarded = discarded
		res.Stats.Preserved = len(preserved)
		pairs := NewPairSet(preserved...)

		shuffled := make([]course.Student, n)
		copy(shuffled, pool)
		svc.shuffler.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		now := svc.now()
		for i, reviewer := range shuffled {
			for k := 1; k <= perStudent; k++ {
				target := shuffled[(i+k)%n]
				if target.ID == reviewer.ID {
					res.Skipped = append(res.Skipped, SkippedPair{
						RevieweeID: target.ID,
						ReviewerID: reviewer.ID,
						Reason:     SkipSelfReview,
					})
					continue
				}

				sub, ok := submitted[target.ID]
				if !ok {
					res.Pending = append(res.Pending, PendingAssignment{
						StudentID:    target.ID,
						StudentName:  target.Name,
						ReviewerID:   reviewer.ID,
						ReviewerName: reviewer.Name,
					})
					continue
				}

				key := PairKey{SubmissionID: sub.ID, ReviewerID: reviewer.ID}
				if pairs.Has(key) {
					res.Skipped = append(res.Skipped, SkippedPair{
						RevieweeID: target.ID,
						ReviewerID: reviewer.ID,
						Reason:     SkipDuplicate,
					})
					continue
				}

				rec, err := tx.Create(ctx, Record{
					AssignmentID: assignmentID,
					SubmissionID: sub.ID,
					RevieweeID:   target.ID,
					ReviewerID:   reviewer.ID,
					Status:       StatusAssigned,
					AssignedAt:   now,
				})
				if err != nil {
					return errors.Wrap(err, "creating review")
				}
				rec.ReviewerName = reviewer.Name
				pairs.Add(key)
				res.Created = append(res.Created, rec)
			}
		}

		subIDs := make([]int, 0, len(submitted))
		for _, sub := range submitted {
			subIDs = append(subIDs, sub.ID)
		}
		sort.Ints(subIDs) // consistent lock order
		for _, id := range subIDs {
			if err := syncSubmissionStatus(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GenerateResult{}, err
	}

	res.Stats.Enrolled = n
	res.Stats.Submissions = len(submitted)
	res.Stats.Created = len(res.Created)
	res.Stats.Pending = len(res.Pending)
	res.Stats.Skipped = len(res.Skipped)

	if svc.conf.Review.NotifyReviewers {
		svc.notifyReviewers(asgmt, pool, res.Created)
	}
	return res, nil
}

func (svc *Service) reviewsPerStudent(requested, enrolled int) int {
	perStudent := requested
	if perStudent < 1 {
		perStudent = svc.conf.Review.ReviewsPerStudent
	}
	if perStudent < 1 {
		perStudent = 1
	}
	if perStudent > enrolled-1 {
		perStudent = enrolled - 1
	}
	return perStudent
}

// notifyReviewers emails each reviewer once about their new reviews. Best-effort.
func (svc *Service) notifyReviewers(asgmt course.Assignment, pool []course.Student, created []Record) {
	if len(created) == 0 {
		return
	}
	students := make(map[int]course.Student, len(pool))
	for _, st := range pool {
		students[st.ID] = st
	}
	counts := make(map[int]int)
	order := make([]int, 0)
	for _, rec := range created {
		if counts[rec.ReviewerID] == 0 {
			order = append(order, rec.ReviewerID)
		}
		counts[rec.ReviewerID]++
	}

	msgs := make([]*core.EmailMessage, 0, len(order))
	for _, reviewerID := range order {
		reviewer := students[reviewerID]
		if reviewer.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: reviewer.Name, Address: reviewer.Email}},
			Subject:      fmt.Sprintf("New peer reviews: %s", asgmt.Title),
			TemplateName: reviewAssignedTemplate,
			TemplateData: map[string]interface{}{
				"ReviewerName":    reviewer.Name,
				"AssignmentID":    asgmt.ID,
				"AssignmentTitle": asgmt.Title,
				"ReviewCount":     counts[reviewerID],
				"DueAt":           asgmt.DueAt,
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailer.SendMessages(msgs...)
	}
}
