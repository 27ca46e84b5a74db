package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/course"
	"github.com/trezcool/peerly/storage/database"
)

// NewConfig returns the TEST config.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("ENV", "TEST")
	return core.NewConfig()
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records entries instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]LogEntry, 0)
	for _, e := range l.entries {
		if e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

// PrepareDB connects to the TEST database, migrates it and empties every table.
// The test is skipped when no database is reachable.
func PrepareDB(t *testing.T, conf *core.Config) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = database.Ping(ctx, db); err != nil {
		t.Skipf("database unavailable: %v", err)
	}

	require.NoError(t, database.Migrate(context.Background(), db, "up"))
	_, err = db.Exec(`TRUNCATE review_scores, peer_reviews, submissions, assignments, rubric_criteria, rubrics,
		enrollments, students, courses RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

// CreateCourse creates a course with one enrolled student per name.
func CreateCourse(t *testing.T, repo course.Repository, names ...string) (course.Course, []course.Student) {
	t.Helper()
	ctx := context.Background()

	c, err := repo.CreateCourse(ctx, course.Course{Name: "Course " + time.Now().Format("150405.000000")})
	require.NoError(t, err)

	students := make([]course.Student, 0, len(names))
	ids := make([]int, 0, len(names))
	for _, name := range names {
		st, err := repo.CreateStudent(ctx, course.Student{
			Name:  name,
			Email: fmt.Sprintf("%s.%d@example.com", name, c.ID),
		})
		require.NoError(t, err)
		students = append(students, st)
		ids = append(ids, st.ID)
	}
	require.NoError(t, repo.Enroll(ctx, c.ID, ids...))
	return c, students
}

// CreateRubric creates a rubric with one criterion per max score.
func CreateRubric(t *testing.T, repo course.Repository, maxScores ...int) course.Rubric {
	t.Helper()
	r := course.Rubric{Name: "Rubric"}
	for i, max := range maxScores {
		r.Criteria = append(r.Criteria, course.Criterion{
			Name:     fmt.Sprintf("Criterion %d", i+1),
			MaxScore: max,
			Weight:   1,
			Position: i + 1,
		})
	}
	r, err := repo.CreateRubric(context.Background(), r)
	require.NoError(t, err)
	return r
}

func CreateAssignment(t *testing.T, repo course.Repository, courseID int, rubric *course.Rubric) course.Assignment {
	t.Helper()
	a := course.Assignment{CourseID: courseID, Title: "Essay", DueAt: null.TimeFrom(time.Now().UTC().Add(72 * time.Hour))}
	if rubric != nil {
		a.RubricID = null.IntFrom(rubric.ID)
	}
	a, err := repo.CreateAssignment(context.Background(), a)
	require.NoError(t, err)
	return a
}

func CreateSubmission(t *testing.T, repo course.Repository, assignmentID, studentID int, status ...string) course.Submission {
	t.Helper()
	sub := course.Submission{AssignmentID: assignmentID, StudentID: studentID, Content: "my work"}
	if len(status) > 0 {
		sub.Status = status[0]
	}
	sub, err := repo.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	return sub
}
