package sqlxrepos

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// postgres error codes
const (
	uniqueViolation      = "23505"
	operatorIntervention = "57" // class: admin_shutdown, crash_shutdown, cannot_connect_now...
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// checkShutdown turns "the server is going away" errors into core shutdown errors.
func checkShutdown(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == operatorIntervention {
		return errors.Wrap(core.NewShutdownError("database is shutting down"), err.Error())
	}
	return err
}
