package store_test

import (
	"context"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type call struct {
	sql  string
	args []any
}

// recordingQuerier captures every statement with its arguments. QueryRow
// results are taken from rowErrs in order; nil scans a zero row.
type recordingQuerier struct {
	calls    []call
	rowErrs  []error
	execTag  pgconn.CommandTag
	execErr  error
	queryErr error
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.calls = append(q.calls, call{sql: sql, args: args})
	return q.execTag, q.execErr
}

func (q *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.calls = append(q.calls, call{sql: sql, args: args})
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return &emptyRows{}, nil
}

func (q *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.calls = append(q.calls, call{sql: sql, args: args})
	var err error
	if len(q.rowErrs) > 0 {
		err, q.rowErrs = q.rowErrs[0], q.rowErrs[1:]
	}
	return errRow{err: err}
}

func (q *recordingQuerier) last() call {
	return q.calls[len(q.calls)-1]
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

type emptyRows struct{}

func (r *emptyRows) Close()                                       {}
func (r *emptyRows) Err() error                                   { return nil }
func (r *emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *emptyRows) Next() bool                                   { return false }
func (r *emptyRows) Scan(dest ...any) error                       { return nil }
func (r *emptyRows) Values() ([]any, error)                       { return nil, nil }
func (r *emptyRows) RawValues() [][]byte                          { return nil }
func (r *emptyRows) Conn() *pgx.Conn                              { return nil }

var whitespace = regexp.MustCompile(`\s+`)

// squash collapses SQL whitespace so assertions can match clauses on one line.
func squash(sql string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(sql, " "))
}
