package review_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
	"github.com/trezcool/peerly/core/review"
	appfs "github.com/trezcool/peerly/fs"
	emailsvc "github.com/trezcool/peerly/services/email"
	inmemdb "github.com/trezcool/peerly/storage/database/inmem"
	testutil "github.com/trezcool/peerly/tests"
)

var errBoom = errors.New("boom")

type stubSummarizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []review.SynthesisRequest
}

func (s *stubSummarizer) Summarize(_ context.Context, req review.SynthesisRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.text, s.err
}

func (s *stubSummarizer) Calls() []review.SynthesisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]review.SynthesisRequest(nil), s.calls...)
}

// tickingClock moves one minute forward on every call.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type testEnv struct {
	conf       *core.Config
	svc        *review.Service
	courses    course.Repository
	reviews    review.Repository
	summarizer *stubSummarizer
	mailer     *emailsvc.ConsoleServiceMock
	logger     *testutil.Logger
}

func setup(t *testing.T, opts ...review.Option) *testEnv {
	t.Helper()
	conf := testutil.NewConfig(t)
	db := inmemdb.Open()
	env := &testEnv{
		conf:       conf,
		courses:    inmemdb.NewCourseRepository(db),
		reviews:    inmemdb.NewReviewRepository(db),
		summarizer: &stubSummarizer{text: "Combined narrative."},
		logger:     new(testutil.Logger),
	}
	env.mailer = emailsvc.NewConsoleServiceMock(conf, env.logger)
	env.newService(opts...)
	return env
}

func (env *testEnv) newService(opts ...review.Option) {
	clock := &tickingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]review.Option{
		review.WithShuffler(review.NewSeededShuffler(42)),
		review.WithClock(clock.Now),
	}, opts...)
	env.svc = review.NewService(env.conf, env.reviews, env.courses, env.summarizer, env.mailer, env.logger, opts...)
}

// fixture creates a course with the given students, a rubric (max 10 & 5) and an assignment.
// Students listed in submitted get a submission.
type fixture struct {
	course      course.Course
	students    map[string]course.Student
	rubric      course.Rubric
	assignment  course.Assignment
	submissions map[string]course.Submission
}

func (env *testEnv) fixture(t *testing.T, names []string, submitted ...string) fixture {
	t.Helper()
	c, students := testutil.CreateCourse(t, env.courses, names...)
	rubric := testutil.CreateRubric(t, env.courses, 10, 5)
	asgmt := testutil.CreateAssignment(t, env.courses, c.ID, &rubric)

	fx := fixture{
		course:      c,
		students:    make(map[string]course.Student, len(students)),
		rubric:      rubric,
		assignment:  asgmt,
		submissions: make(map[string]course.Submission),
	}
	for _, st := range students {
		fx.students[st.Name] = st
	}
	for _, name := range submitted {
		fx.submissions[name] = testutil.CreateSubmission(t, env.courses, asgmt.ID, fx.students[name].ID)
	}
	return fx
}

func (fx fixture) fullScores() []review.ScoreInput {
	return []review.ScoreInput{
		{CriterionID: fx.rubric.Criteria[0].ID, Score: 8, Feedback: "clear structure"},
		{CriterionID: fx.rubric.Criteria[1].ID, Score: 4, Feedback: "few sources"},
	}
}

func strPtr(s string) *string { return &s }

func TestService_GenerateReviews_singleCycle(t *testing.T) {
	names := []string{"ann", "ben", "cat", "dan", "eve", "fay", "gus", "hal"}
	for n := 2; n <= len(names); n++ {
		env := setup(t)
		fx := env.fixture(t, names[:n], names[:n]...)

		res, err := env.svc.GenerateReviews(context.Background(), fx.assignment.ID, 1)
		require.NoError(t, err)

		assert.Len(t, res.Created, n)
		assert.Empty(t, res.Pending)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, review.GenerateStats{Enrolled: n, Submissions: n, Created: n}, res.Stats)

		reviewers := make(map[int]int)
		reviewees := make(map[int]int)
		for _, rec := range res.Created {
			assert.NotEqual(t, rec.ReviewerID, rec.RevieweeID, "self review")
			assert.Equal(t, review.StatusAssigned, rec.Status)
			assert.NotEmpty(t, rec.ReviewerName)
			reviewers[rec.ReviewerID]++
			reviewees[rec.RevieweeID]++
		}
		for _, st := range fx.students {
			assert.Equal(t, 1, reviewers[st.ID], "%s should review exactly once", st.Name)
			assert.Equal(t, 1, reviewees[st.ID], "%s should be reviewed exactly once", st.Name)
		}

		stored, err := env.reviews.ListByAssignment(context.Background(), fx.assignment.ID)
		require.NoError(t, err)
		assert.Len(t, stored, n)
	}
}

func TestService_GenerateReviews_pendingTarget(t *testing.T) {
	env := setup(t)
	fx := env.fixture(t, []string{"A", "B", "C"}, "A", "B")

	res, err := env.svc.GenerateReviews(context.Background(), fx.assignment.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, review.GenerateStats{Enrolled: 3, Submissions: 2, Created: 2, Pending: 1}, res.Stats)

	require.Len(t, res.Pending, 1)
	pending := res.Pending[0]
	assert.Equal(t, fx.students["C"].ID, pending.StudentID)
	assert.Equal(t, "C", pending.StudentName)
	assert.NotEqual(t, pending.StudentID, pending.ReviewerID)
	assert.NotEmpty(t, pending.ReviewerName)

	targets := make(map[int]bool)
	reviewers := map[int]bool{pending.ReviewerID: true}
	for _, rec := range res.Created {
		assert.Equal(t, review.StatusAssigned, rec.Status)
		targets[rec.RevieweeID] = true
		reviewers[rec.ReviewerID] = true
	}
	assert.Equal(t, map[int]bool{fx.students["A"].ID: true, fx.students["B"].ID: true}, targets)
	assert.Len(t, reviewers, 3, "each student reviews once")

	stored, err := env.reviews.ListByAssignment(context.Background(), fx.assignment.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	for _, rec := range stored {
		assert.NotEqual(t, fx.students["C"].ID, rec.RevieweeID)
	}
}

func TestService_GenerateReviews_draftIsNotASubmission(t *testing.T) {
	env := setup(t)
	fx := env.fixture(t, []string{"A", "B"}, "A")
	testutil.CreateSubmission(t, env.courses, fx.assignment.ID, fx.students["B"].ID, course.SubmissionDraft)

	res, err := env.svc.GenerateReviews(context.Background(), fx.assignment.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Submissions)
	require.Len(t, res.Pending, 1)
	assert.Equal(t, fx.students["B"].ID, res.Pending[0].StudentID)
}

func TestService_GenerateReviews_preservesStartedReviews(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	c, err := env.courses.CreateCourse(ctx, course.Course{Name: "Writing"})
	require.NoError(t, err)
	ids := []int{5, 6, 7, 8}
	for _, id := range ids {
		_, err = env.courses.CreateStudent(ctx, course.Student{ID: id, Name: "student"})
		require.NoError(t, err)
	}
	require.NoError(t, env.courses.Enroll(ctx, c.ID, ids...))
	rubric := testutil.CreateRubric(t, env.courses, 10)
	asgmt := testutil.CreateAssignment(t, env.courses, c.ID, &rubric)
	_, err = env.courses.CreateSubmission(ctx, course.Submission{ID: 10, AssignmentID: asgmt.ID, StudentID: 6})
	require.NoError(t, err)
	for _, id := range []int{5, 7, 8} {
		testutil.CreateSubmission(t, env.courses, asgmt.ID, id)
	}

	started, err := env.reviews.Create(ctx, review.Record{
		AssignmentID: asgmt.ID,
		SubmissionID: 10,
		RevieweeID:   6,
		ReviewerID:   5,
		Status:       review.StatusInProgress,
		AssignedAt:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		TotalScore:   7,
	})
	require.NoError(t, err)

	var prevCreated int
	for seed := uint64(1); seed <= 20; seed++ {
		env.newService(review.WithShuffler(review.NewSeededShuffler(seed)))
		res, err := env.svc.GenerateReviews(ctx, asgmt.ID, 1)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Stats.Preserved)
		assert.Equal(t, prevCreated, res.Stats.Discarded, "assigned reviews of the previous run are discarded")
		prevCreated = res.Stats.Created

		got, err := env.reviews.Get(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, started, got)

		stored, err := env.reviews.ListByAssignment(ctx, asgmt.ID)
		require.NoError(t, err)
		var pairCount int
		for _, rec := range stored {
			if rec.SubmissionID == 10 && rec.ReviewerID == 5 {
				pairCount++
			}
		}
		assert.Equal(t, 1, pairCount, "seed %d: duplicate (10, 5) review", seed)

		for _, sk := range res.Skipped {
			assert.Equal(t, review.SkippedPair{RevieweeID: 6, ReviewerID: 5, Reason: review.SkipDuplicate}, sk)
		}
		assert.Equal(t, len(stored), res.Stats.Created+res.Stats.Preserved)
	}
}

// identityShuffler keeps the pool in roster order: pool[i] reviews pool[i+1], pool[i+2]...
type identityShuffler struct{}

func (identityShuffler) Shuffle(int, func(i, j int)) {}

// assertSubmissionStatuses checks that a submission is reviewed exactly when all its reviews are completed.
func (env *testEnv) assertSubmissionStatuses(t *testing.T, fx fixture) {
	t.Helper()
	ctx := context.Background()
	for name, sub := range fx.submissions {
		recs, err := env.reviews.ListBySubmission(ctx, sub.ID)
		require.NoError(t, err)
		done := len(recs) > 0
		for _, rec := range recs {
			done = done && rec.IsCompleted()
		}
		got, err := env.svc.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, done, got.Status == course.SubmissionReviewed, "%s: status %q", name, got.Status)
	}
}

func TestService_GenerateReviews_syncsSubmissionStatus(t *testing.T) {
	ctx := context.Background()
	env := setup(t, review.WithShuffler(identityShuffler{}))
	fx := env.fixture(t, []string{"A", "B", "C"}, "A", "B", "C")
	complete := review.SaveReviewInput{Status: review.StatusCompleted, OverallFeedback: strPtr("ok"), Scores: fx.fullScores()}

	// A->B, B->C, C->A
	res, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)
	require.Len(t, res.Created, 3)
	for _, rec := range res.Created {
		_, err = env.svc.SaveReview(ctx, rec.ID, complete)
		require.NoError(t, err)
	}
	for name, sub := range fx.submissions {
		got, err := env.svc.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, course.SubmissionReviewed, got.Status, name)
	}

	// every submission gets a second, open review
	res, err = env.svc.GenerateReviews(ctx, fx.assignment.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Created)
	assert.Equal(t, 3, res.Stats.Preserved)
	for name, sub := range fx.submissions {
		got, err := env.svc.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, course.SubmissionSubmitted, got.Status, "%s has an open review", name)
	}
	env.assertSubmissionStatuses(t, fx)

	// open reviews are discarded and the original pairs are all taken
	res, err = env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Discarded)
	assert.Equal(t, 0, res.Stats.Created)
	for name, sub := range fx.submissions {
		got, err := env.svc.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, course.SubmissionReviewed, got.Status, name)
	}
}

func TestService_GenerateReviews_preservesCompletedReviews(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	names := []string{"A", "B", "C", "D"}
	fx := env.fixture(t, names, names...)

	res, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)
	_, err = env.svc.SaveReview(ctx, res.Created[0].ID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("solid"),
		Scores:          fx.fullScores(),
	})
	require.NoError(t, err)

	done, err := env.reviews.Get(ctx, res.Created[0].ID)
	require.NoError(t, err)
	require.True(t, done.CompletedAt.Valid)
	require.Equal(t, 12, done.TotalScore)
	doneScores, err := env.reviews.ListScores(ctx, done.ID)
	require.NoError(t, err)
	require.Len(t, doneScores, 2)

	for seed := uint64(1); seed <= 20; seed++ {
		env.newService(review.WithShuffler(review.NewSeededShuffler(seed)))
		res, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Stats.Preserved, "seed %d", seed)

		got, err := env.reviews.Get(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, done, got, "seed %d", seed)

		scores, err := env.reviews.ListScores(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, doneScores, scores, "seed %d", seed)

		stored, err := env.reviews.ListByAssignment(ctx, fx.assignment.ID)
		require.NoError(t, err)
		var pairCount int
		for _, rec := range stored {
			if rec.Key() == done.Key() {
				pairCount++
			}
		}
		assert.Equal(t, 1, pairCount, "seed %d: duplicate pair %+v", seed, done.Key())
		env.assertSubmissionStatuses(t, fx)
	}
}

func TestService_GenerateReviews_reviewsPerStudent(t *testing.T) {
	env := setup(t)
	names := []string{"A", "B", "C", "D"}
	fx := env.fixture(t, names, names...)

	res, err := env.svc.GenerateReviews(context.Background(), fx.assignment.ID, 2)
	require.NoError(t, err)
	assert.Len(t, res.Created, 8)

	seen := make(map[review.PairKey]bool)
	perReviewer := make(map[int]int)
	for _, rec := range res.Created {
		assert.NotEqual(t, rec.ReviewerID, rec.RevieweeID)
		assert.False(t, seen[rec.Key()], "duplicate pair %+v", rec.Key())
		seen[rec.Key()] = true
		perReviewer[rec.ReviewerID]++
	}
	for _, st := range fx.students {
		assert.Equal(t, 2, perReviewer[st.ID])
	}

	// capped at enrolled-1
	res, err = env.svc.GenerateReviews(context.Background(), fx.assignment.ID, 10)
	require.NoError(t, err)
	assert.Len(t, res.Created, 12)
	assert.Equal(t, 8, res.Stats.Discarded)
}

func TestService_GenerateReviews_errors(t *testing.T) {
	ctx := context.Background()

	t.Run("assignment not found", func(t *testing.T) {
		env := setup(t)
		_, err := env.svc.GenerateReviews(ctx, 404, 1)
		assert.True(t, errors.Is(err, course.ErrAssignmentNotFound), "error = %v", err)
	})

	for _, names := range [][]string{{}, {"solo"}} {
		t.Run("insufficient roster", func(t *testing.T) {
			env := setup(t)
			fx := env.fixture(t, names, names...)
			_, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
			assert.True(t, errors.Is(err, review.ErrInsufficientRoster), "error = %v", err)

			stored, err := env.reviews.ListByAssignment(ctx, fx.assignment.ID)
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

// failingRepository fails every Create past the first `allowed` ones.
type failingRepository struct {
	review.Repository
	allowed int
	creates int
}

func (repo *failingRepository) WithinTx(ctx context.Context, fn func(tx review.Repository) error) error {
	return repo.Repository.WithinTx(ctx, func(tx review.Repository) error {
		return fn(&failingTx{Repository: tx, parent: repo})
	})
}

type failingTx struct {
	review.Repository
	parent *failingRepository
}

func (tx *failingTx) Create(ctx context.Context, rec review.Record) (review.Record, error) {
	tx.parent.creates++
	if tx.parent.creates > tx.parent.allowed {
		return review.Record{}, errBoom
	}
	return tx.Repository.Create(ctx, rec)
}

func TestService_GenerateReviews_rollsBack(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	names := []string{"A", "B", "C", "D"}
	fx := env.fixture(t, names, names...)

	first, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)
	before, err := env.reviews.ListByAssignment(ctx, fx.assignment.ID)
	require.NoError(t, err)

	failing := &failingRepository{Repository: env.reviews, allowed: 2}
	svc := review.NewService(env.conf, failing, env.courses, env.summarizer, env.mailer, env.logger,
		review.WithShuffler(review.NewSeededShuffler(7)))
	_, err = svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	assert.True(t, errors.Is(err, errBoom), "error = %v", err)

	after, err := env.reviews.ListByAssignment(ctx, fx.assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "no partial state")
	assert.Len(t, after, len(first.Created))
}

func TestService_GenerateReviews_notifiesReviewers(t *testing.T) {
	env := setup(t)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, "http://peerly.test", true, env.logger)
	fx := env.fixture(t, []string{"A", "B", "C"}, "A", "B")

	res, err := env.svc.GenerateReviews(context.Background(), fx.assignment.ID, 1)
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	sent := env.mailer.SentMessages()
	require.Len(t, sent, 2, "one email per reviewer with a created review")
	for _, msg := range sent {
		assert.Contains(t, msg.Subject, fx.assignment.Title)
		assert.Contains(t, msg.TextContent, "1 new peer review(s)")
		assert.Contains(t, msg.TextContent, "http://peerly.test/assignments/")
		assert.Contains(t, msg.HTMLContent, fx.assignment.Title)
	}
	assert.Empty(t, env.logger.Entries("error"))
}

func TestService_SaveReview_validation(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	fx := env.fixture(t, []string{"A", "B", "C"}, "A", "B", "C")
	res, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)
	rec := res.Created[0]

	tests := []struct {
		name     string
		reviewID int
		in       review.SaveReviewInput
		wantErr  error
		wantFlds []string
	}{
		{
			name:     "unknown status",
			reviewID: rec.ID,
			in:       review.SaveReviewInput{Status: "done", OverallFeedback: strPtr("ok"), Scores: fx.fullScores()},
			wantErr:  review.ErrInvalidStatus,
			wantFlds: []string{"status"},
		},
		{
			name:     "assigned is not a save status",
			reviewID: rec.ID,
			in:       review.SaveReviewInput{Status: review.StatusAssigned},
			wantErr:  review.ErrInvalidStatus,
			wantFlds: []string{"status"},
		},
		{
			name:     "completed without scores",
			reviewID: rec.ID,
			in:       review.SaveReviewInput{Status: review.StatusCompleted, OverallFeedback: strPtr("great"), Scores: []review.ScoreInput{}},
			wantErr:  review.ErrMissingRequiredFields,
			wantFlds: []string{"scores"},
		},
		{
			name:     "completed without feedback",
			reviewID: rec.ID,
			in:       review.SaveReviewInput{Status: review.StatusCompleted, OverallFeedback: strPtr("   "), Scores: fx.fullScores()},
			wantErr:  review.ErrMissingRequiredFields,
			wantFlds: []string{"overall_feedback"},
		},
		{
			name:     "completed with nothing",
			reviewID: rec.ID,
			in:       review.SaveReviewInput{Status: review.StatusCompleted},
			wantErr:  review.ErrMissingRequiredFields,
			wantFlds: []string{"overall_feedback", "scores"},
		},
		{
			name:     "review not found",
			reviewID: 9999,
			in:       review.SaveReviewInput{Status: review.StatusInProgress},
			wantErr:  review.ErrReviewNotFound,
		},
		{
			name:     "unknown criterion",
			reviewID: rec.ID,
			in: review.SaveReviewInput{Status: review.StatusInProgress, Scores: []review.ScoreInput{
				{CriterionID: fx.rubric.Criteria[0].ID, Score: 3},
				{CriterionID: 9999, Score: 3},
			}},
			wantErr:  review.ErrInvalidCriterion,
			wantFlds: []string{"scores[1].criterion_id"},
		},
		{
			name:     "duplicated criterion",
			reviewID: rec.ID,
			in: review.SaveReviewInput{Status: review.StatusInProgress, Scores: []review.ScoreInput{
				{CriterionID: fx.rubric.Criteria[0].ID, Score: 3},
				{CriterionID: fx.rubric.Criteria[0].ID, Score: 4},
			}},
			wantErr:  review.ErrInvalidCriterion,
			wantFlds: []string{"scores[1].criterion_id"},
		},
		{
			name:     "score above max",
			reviewID: rec.ID,
			in: review.SaveReviewInput{Status: review.StatusInProgress, Scores: []review.ScoreInput{
				{CriterionID: fx.rubric.Criteria[0].ID, Score: 11},
				{CriterionID: fx.rubric.Criteria[1].ID, Score: 5},
			}},
			wantErr:  review.ErrScoreOutOfRange,
			wantFlds: []string{"scores[0].score"},
		},
		{
			name:     "negative score",
			reviewID: rec.ID,
			in: review.SaveReviewInput{Status: review.StatusInProgress, Scores: []review.ScoreInput{
				{CriterionID: fx.rubric.Criteria[1].ID, Score: -1},
			}},
			wantErr:  review.ErrScoreOutOfRange,
			wantFlds: []string{"scores[0].score"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.SaveReview(ctx, tt.reviewID, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "error = %v; want %v", err, tt.wantErr)

			if tt.wantFlds != nil {
				var vErr *core.ValidationError
				require.True(t, errors.As(err, &vErr))
				flds := make([]string, 0, len(vErr.Fields))
				for _, f := range vErr.Fields {
					flds = append(flds, f.Field)
				}
				assert.Equal(t, tt.wantFlds, flds)
			}

			// nothing persisted
			got, err := env.svc.GetReview(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, review.StatusAssigned, got.Status)
			assert.Empty(t, got.Scores)
			assert.False(t, got.OverallFeedback.Valid)
			assert.False(t, got.CompletedAt.Valid)
		})
	}
}

func TestService_SaveReview_lifecycle(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	fx := env.fixture(t, []string{"A", "B", "C"}, "A", "B", "C")
	res, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)
	rec := res.Created[0]

	// draft save, scores truncated
	saved, err := env.svc.SaveReview(ctx, rec.ID, review.SaveReviewInput{
		Status:          review.StatusInProgress,
		OverallFeedback: strPtr("  first thoughts "),
		Scores: []review.ScoreInput{
			{CriterionID: fx.rubric.Criteria[0].ID, Score: 7.8, Feedback: "good"},
			{CriterionID: fx.rubric.Criteria[1].ID, Score: 5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, review.StatusInProgress, saved.Status)
	assert.Equal(t, "first thoughts", saved.OverallFeedback.String)
	assert.Equal(t, 12, saved.TotalScore)
	assert.False(t, saved.CompletedAt.Valid)
	require.Len(t, saved.Scores, 2)
	assert.Equal(t, 7, saved.Scores[0].Score)

	// repeated draft save without scores nor feedback keeps them
	saved, err = env.svc.SaveReview(ctx, rec.ID, review.SaveReviewInput{Status: review.StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, "first thoughts", saved.OverallFeedback.String)
	assert.Equal(t, 12, saved.TotalScore)
	assert.Len(t, saved.Scores, 2)

	// completion replaces the whole score set
	saved, err = env.svc.SaveReview(ctx, rec.ID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("solid essay"),
		Scores:          []review.ScoreInput{{CriterionID: fx.rubric.Criteria[0].ID, Score: 9}},
	})
	require.NoError(t, err)
	assert.Equal(t, review.StatusCompleted, saved.Status)
	assert.True(t, saved.CompletedAt.Valid)
	assert.Equal(t, 9, saved.TotalScore)
	require.Len(t, saved.Scores, 1)

	got, err := env.svc.GetReview(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	// completed is terminal
	_, err = env.svc.SaveReview(ctx, rec.ID, review.SaveReviewInput{Status: review.StatusInProgress})
	assert.True(t, errors.Is(err, review.ErrInvalidStatus), "error = %v", err)
	var te *review.TransitionError
	assert.True(t, errors.As(err, &te))

	_, err = env.svc.SaveReview(ctx, rec.ID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("again"),
		Scores:          fx.fullScores(),
	})
	assert.True(t, errors.Is(err, review.ErrInvalidStatus), "error = %v", err)
}

func TestService_SaveReview_directCompletion(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	fx := env.fixture(t, []string{"A", "B"}, "A", "B")
	res, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 1)
	require.NoError(t, err)

	saved, err := env.svc.SaveReview(ctx, res.Created[0].ID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("well argued"),
		Scores:          fx.fullScores(),
	})
	require.NoError(t, err)
	assert.Equal(t, review.StatusCompleted, saved.Status)
	assert.Equal(t, 12, saved.TotalScore)
}

// twoReviewsPerSubmission sets up 3 students reviewing each other and returns the reviews of A's submission.
func twoReviewsPerSubmission(t *testing.T, env *testEnv) (fixture, course.Submission, []review.Record) {
	t.Helper()
	ctx := context.Background()
	fx := env.fixture(t, []string{"A", "B", "C"}, "A", "B", "C")
	_, err := env.svc.GenerateReviews(ctx, fx.assignment.ID, 2)
	require.NoError(t, err)

	sub := fx.submissions["A"]
	recs, err := env.reviews.ListBySubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	return fx, sub, recs
}

func TestService_SaveReview_submissionReviewedWhenAllComplete(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	fx, sub, recs := twoReviewsPerSubmission(t, env)
	complete := review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("nice"),
		Scores:          fx.fullScores(),
	}

	_, err := env.svc.SaveReview(ctx, recs[0].ID, complete)
	require.NoError(t, err)
	got, err := env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SubmissionSubmitted, got.Status)

	_, err = env.svc.SaveReview(ctx, recs[1].ID, review.SaveReviewInput{Status: review.StatusInProgress})
	require.NoError(t, err)
	got, err = env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SubmissionSubmitted, got.Status)

	_, err = env.svc.SaveReview(ctx, recs[1].ID, complete)
	require.NoError(t, err)
	got, err = env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SubmissionReviewed, got.Status)
}

func TestService_SaveReview_synthesis(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	fx, sub, recs := twoReviewsPerSubmission(t, env)

	// completed in reverse id order, entries must follow completion order
	_, err := env.svc.SaveReview(ctx, recs[1].ID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("<p>Strong <b>thesis</b></p>"),
		Scores:          fx.fullScores(),
	})
	require.NoError(t, err)
	assert.Empty(t, env.summarizer.Calls(), "a single completed review is never synthesized")
	got, err := env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.Synthesis.Valid)

	_, err = env.svc.SaveReview(ctx, recs[0].ID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("Weak conclusion"),
		Scores:          []review.ScoreInput{{CriterionID: fx.rubric.Criteria[0].ID, Score: 5}},
	})
	require.NoError(t, err)

	calls := env.summarizer.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, sub.ID, req.SubmissionID)
	assert.Equal(t, review.SynthesisInstructions, req.Instructions)
	assert.Empty(t, req.PriorSynthesis)
	require.Len(t, req.Entries, 2)
	assert.Equal(t, review.SynthesisEntry{
		ReviewID:          recs[1].ID,
		Score:             12,
		MaxScore:          15,
		Feedback:          "<p>Strong <b>thesis</b></p>",
		CriterionFeedback: []string{"clear structure", "few sources"},
	}, req.Entries[0])
	assert.Equal(t, recs[0].ID, req.Entries[1].ReviewID)
	assert.Equal(t, 5, req.Entries[1].Score)

	got, err = env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Combined narrative.", got.Synthesis.String)
	assert.True(t, got.SynthesisGeneratedAt.Valid)
	assert.Equal(t, course.SubmissionReviewed, got.Status)
}

func TestService_SaveReview_summarizerFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.summarizer.err = errBoom
	fx, sub, recs := twoReviewsPerSubmission(t, env)
	complete := review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("fine"),
		Scores:          fx.fullScores(),
	}

	for _, rec := range recs {
		saved, err := env.svc.SaveReview(ctx, rec.ID, complete)
		require.NoError(t, err)
		assert.Equal(t, review.StatusCompleted, saved.Status)
	}

	assert.Len(t, env.summarizer.Calls(), 1)
	got, err := env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.Synthesis.Valid)
	assert.False(t, got.SynthesisGeneratedAt.Valid)
	assert.Equal(t, course.SubmissionReviewed, got.Status)
	assert.NotEmpty(t, env.logger.Entries("warn"))
}

func TestService_SaveReview_emptySynthesisIsIgnored(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.summarizer.text = "  "
	fx, sub, recs := twoReviewsPerSubmission(t, env)

	for _, rec := range recs {
		_, err := env.svc.SaveReview(ctx, rec.ID, review.SaveReviewInput{
			Status:          review.StatusCompleted,
			OverallFeedback: strPtr("fine"),
			Scores:          fx.fullScores(),
		})
		require.NoError(t, err)
	}
	got, err := env.svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.Synthesis.Valid)
}

func TestService_SaveReview_assignmentWithoutRubric(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	c, students := testutil.CreateCourse(t, env.courses, "A", "B")
	asgmt := testutil.CreateAssignment(t, env.courses, c.ID, nil)
	for _, st := range students {
		testutil.CreateSubmission(t, env.courses, asgmt.ID, st.ID)
	}
	res, err := env.svc.GenerateReviews(ctx, asgmt.ID, 1)
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	reviewID := res.Created[0].ID

	_, err = env.svc.SaveReview(ctx, reviewID, review.SaveReviewInput{
		Status:          review.StatusCompleted,
		OverallFeedback: strPtr("ok"),
		Scores:          []review.ScoreInput{{CriterionID: 1, Score: 3}},
	})
	assert.True(t, errors.Is(err, review.ErrNoRubric), "error = %v", err)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "scores", vErr.Fields[0].Field)

	rec, err := env.svc.SaveReview(ctx, reviewID, review.SaveReviewInput{Status: review.StatusInProgress, OverallFeedback: strPtr("draft")})
	require.NoError(t, err)
	assert.Equal(t, review.StatusInProgress, rec.Status)
}

func TestService_ListReviews(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	fx, _, recs := twoReviewsPerSubmission(t, env)

	_, err := env.svc.SaveReview(ctx, recs[0].ID, review.SaveReviewInput{
		Status: review.StatusInProgress,
		Scores: []review.ScoreInput{{CriterionID: fx.rubric.Criteria[1].ID, Score: 3}},
	})
	require.NoError(t, err)

	all, err := env.svc.ListAssignmentReviews(ctx, fx.assignment.ID, core.DBOrdering{Field: "total_score"})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, recs[0].ID, all[0].ID, "highest total first")
	assert.Len(t, all[0].Scores, 1)

	_, err = env.svc.ListAssignmentReviews(ctx, 404)
	assert.True(t, errors.Is(err, course.ErrAssignmentNotFound))

	mine, err := env.svc.ListReviewerReviews(ctx, fx.students["B"].ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, rec := range mine {
		assert.Equal(t, fx.students["B"].ID, rec.ReviewerID)
	}
}
