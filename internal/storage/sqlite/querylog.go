package sqlite

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
)

const slowQueryThreshold = 100 * time.Millisecond

// dbHandle is the interface satisfied by both *sql.DB and *queryLogger.
// Store methods use this instead of *sql.DB directly.
type dbHandle interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Close() error
}

// queryLogger wraps a *sql.DB and logs statements that exceed the slow
// query threshold. On a contended registry file that usually means another
// process is holding SQLite's write lock.
type queryLogger struct {
	inner *sql.DB
}

func (q *queryLogger) Exec(query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := q.inner.Exec(query, args...)
	logSlow(query, time.Since(start))
	return result, err
}

func (q *queryLogger) Query(query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.inner.Query(query, args...)
	logSlow(query, time.Since(start))
	return rows, err
}

func (q *queryLogger) QueryRow(query string, args ...any) *sql.Row {
	start := time.Now()
	row := q.inner.QueryRow(query, args...)
	logSlow(query, time.Since(start))
	return row
}

func (q *queryLogger) Close() error {
	return q.inner.Close()
}

func logSlow(query string, d time.Duration) {
	if d < slowQueryThreshold {
		return
	}
	log.Warn().Dur("took", d.Round(time.Millisecond)).Str("query", truncateQuery(query)).Msg("slow query")
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
