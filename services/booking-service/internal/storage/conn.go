package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Queries are written once with "?" placeholders. The Postgres adapter
// rebinds them to $n; the SQLite adapter normalizes time arguments.

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type row interface {
	Scan(dest ...any) error
}

type queryer interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
}

type pgxQueryer struct {
	tx pgx.Tx
}

func (q pgxQueryer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.tx.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (q pgxQueryer) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := q.tx.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (q pgxQueryer) queryRow(ctx context.Context, query string, args ...any) row {
	return translatingRow{q.tx.QueryRow(ctx, rebind(query), args...)}
}

type sqlQueryer struct {
	tx *sql.Tx
}

func (q sqlQueryer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.tx.ExecContext(ctx, query, sqliteArgs(args)...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func (q sqlQueryer) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := q.tx.QueryContext(ctx, query, sqliteArgs(args)...)
	if err != nil {
		return nil, translate(err)
	}
	return sqlRows{r}, nil
}

func (q sqlQueryer) queryRow(ctx context.Context, query string, args ...any) row {
	return translatingRow{q.tx.QueryRowContext(ctx, query, sqliteArgs(args)...)}
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }

type translatingRow struct {
	row
}

func (r translatingRow) Scan(dest ...any) error {
	return translate(r.row.Scan(dest...))
}

// rebind turns "?" placeholders into "$1", "$2", ...
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqliteTimeLayout sorts lexicographically in time order as long as every
// stored value is UTC with whole seconds.
const sqliteTimeLayout = "2006-01-02 15:04:05-07:00"

func sqliteArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			out[i] = t.UTC().Truncate(time.Second).Format(sqliteTimeLayout)
			continue
		}
		out[i] = a
	}
	return out
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
