package review

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
)

type (
	Service struct {
		conf       *core.Config
		repo       Repository
		roster     course.Roster
		summarizer Summarizer
		mailer     core.EmailService
		logger     core.Logger
		shuffler   Shuffler
		now        func() time.Time
	}

	Option func(svc *Service)
)

// WithShuffler overrides the pool shuffler (eg. a seeded one in tests).
func WithShuffler(s Shuffler) Option {
	return func(svc *Service) { svc.shuffler = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(
	conf *core.Config,
	repo Repository,
	roster course.Roster,
	summarizer Summarizer,
	mailer core.EmailService,
	logger core.Logger,
	opts ...Option,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(summarizer, "summarizer"),
		vala.IsNotNil(mailer, "mailer"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	svc := &Service{
		conf:       conf,
		repo:       repo,
		roster:     roster,
		summarizer: summarizer,
		mailer:     mailer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if seed := conf.Review.ShuffleSeed; seed != 0 {
		svc.shuffler = NewSeededShuffler(uint64(seed))
	} else {
		svc.shuffler = NewRandomShuffler()
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetReview returns the review with its scores.
func (svc *Service) GetReview(ctx context.Context, id int) (Record, error) {
	rec, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	scores, err := svc.repo.ListScores(ctx, rec.ID)
	if err != nil {
		return Record{}, errors.Wrap(err, "listing scores")
	}
	rec.Scores = scores
	return rec, nil
}

func (svc *Service) ListAssignmentReviews(ctx context.Context, assignmentID int, ordering ...core.DBOrdering) ([]Record, error) {
	if _, err := svc.roster.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	recs, err := svc.repo.ListByAssignment(ctx, assignmentID, ordering...)
	if err != nil {
		return nil, err
	}
	return svc.withScores(ctx, recs)
}

// ListReviewerReviews returns the reviews a student has to write, across assignments.
func (svc *Service) ListReviewerReviews(ctx context.Context, reviewerID int) ([]Record, error) {
	recs, err := svc.repo.ListByReviewer(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	return svc.withScores(ctx, recs)
}

func (svc *Service) GetSubmission(ctx context.Context, id int) (course.Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *Service) withScores(ctx context.Context, recs []Record) ([]Record, error) {
	if len(recs) == 0 {
		return recs, nil
	}
	ids := make([]int, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	scores, err := svc.repo.ListScores(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "listing scores")
	}
	byReview := make(map[int][]CriterionScore, len(recs))
	for _, sc := range scores {
		byReview[sc.ReviewID] = append(byReview[sc.ReviewID], sc)
	}
	for i := range recs {
		recs[i].Scores = byReview[recs[i].ID]
	}
	return recs, nil
}

// completedInOrder keeps the completed records, oldest completion first.
func completedInOrder(recs []Record) []Record {
	done := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if rec.IsCompleted() {
			done = append(done, rec)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].CompletedAt.Time.Before(done[j].CompletedAt.Time)
	})
	return done
}
