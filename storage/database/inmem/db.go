package inmemdb

import (
	"errors"
	"sync"

	"github.com/trezcool/peerly/core/course"
	"github.com/trezcool/peerly/core/review"
)

var (
	// mirror the postgres constraints
	ErrUniqueViolation     = errors.New("inmemdb: unique constraint violation")
	ErrCheckViolation      = errors.New("inmemdb: check constraint violation")
	ErrForeignKeyViolation = errors.New("inmemdb: foreign key violation")
)

type (
	// DB is a single-lock in-memory database. Transactions hold the lock for their whole duration
	// and restore a snapshot of every table on failure.
	DB struct {
		mu sync.Mutex
		t  tables
	}

	tables struct {
		pk          int
		courses     map[int]course.Course
		students    map[int]course.Student
		enrollments map[int][]int // {courseID: [studentID]}
		rubrics     map[int]course.Rubric
		criteria    map[int]course.Criterion
		assignments map[int]course.Assignment
		submissions map[int]course.Submission
		reviews     map[int]review.Record
		scores      map[int]review.CriterionScore
	}
)

func Open() *DB {
	return &DB{t: tables{
		courses:     make(map[int]course.Course),
		students:    make(map[int]course.Student),
		enrollments: make(map[int][]int),
		rubrics:     make(map[int]course.Rubric),
		criteria:    make(map[int]course.Criterion),
		assignments: make(map[int]course.Assignment),
		submissions: make(map[int]course.Submission),
		reviews:     make(map[int]review.Record),
		scores:      make(map[int]review.CriterionScore),
	}}
}

func (t *tables) nextPK() int {
	t.pk++
	return t.pk
}

// pkFor keeps an explicit id (moving the sequence past it) or returns the next pk.
func (t *tables) pkFor(id int) int {
	if id == 0 {
		return t.nextPK()
	}
	if id > t.pk {
		t.pk = id
	}
	return id
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (t *tables) clone() tables {
	enrollments := make(map[int][]int, len(t.enrollments))
	for k, v := range t.enrollments {
		enrollments[k] = append([]int(nil), v...)
	}
	return tables{
		pk:          t.pk,
		courses:     cloneMap(t.courses),
		students:    cloneMap(t.students),
		enrollments: enrollments,
		rubrics:     cloneMap(t.rubrics),
		criteria:    cloneMap(t.criteria),
		assignments: cloneMap(t.assignments),
		submissions: cloneMap(t.submissions),
		reviews:     cloneMap(t.reviews),
		scores:      cloneMap(t.scores),
	}
}

// run gives fn access to the tables, taking the lock unless the caller already holds it (inTx).
func (db *DB) run(inTx bool, fn func(t *tables) error) error {
	if !inTx {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	return fn(&db.t)
}

// transact holds the lock while fn runs and rolls every table back if fn fails or panics.
func (db *DB) transact(fn func() error) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.t.clone()
	defer func() {
		if p := recover(); p != nil {
			db.t = snapshot
			panic(p)
		}
	}()

	if err = fn(); err != nil {
		db.t = snapshot
	}
	return err
}
