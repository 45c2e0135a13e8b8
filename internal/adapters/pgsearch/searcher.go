// Package pgsearch is a Postgres-backed planner.RecordSearcher over
// github.com/jackc/pgx/v5, using a case-insensitive ILIKE substring scan per
// table/field pair. A semaphore bounds how many concurrent queries the
// Entity Resolver's multiple strategies (§4.C4) can issue at once, so a
// single query's fan-out never exhausts the pool the rest of the process
// shares (§5: "max_connections bounds parallel Resolver calls").
package pgsearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"

	"github.com/fantastic-router/router/planner"
)

type (
	// Rows is the subset of pgx.Rows the adapter consumes, narrowed so tests
	// can fake it without reconstructing the full driver interface.
	Rows interface {
		Next() bool
		Values() ([]any, error)
		Err() error
		Close()
	}

	// Querier captures the subset of *pgxpool.Pool used by the adapter, so
	// callers can substitute a test double.
	Querier interface {
		Query(ctx context.Context, sql string, args ...any) (Rows, error)
	}

	poolQuerier struct {
		pool *pgxpool.Pool
	}
)

func (q *poolQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return q.pool.Query(ctx, sql, args...)
}

// Searcher implements planner.RecordSearcher against a Postgres database.
type Searcher struct {
	db                Querier
	sem               *semaphore.Weighted
	restrictedColumns map[string]map[string]bool
}

// New builds a Searcher over db, bounding concurrent queries to
// maxConcurrent (falling back to 4 when zero or negative), and excluding any
// "table.column" pair listed in restrictedColumns from both search and
// results.
func New(db Querier, maxConcurrent int64, restrictedColumns []string) *Searcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	restricted := make(map[string]map[string]bool)
	for _, pair := range restrictedColumns {
		table, column, ok := strings.Cut(pair, ".")
		if !ok {
			continue
		}
		if restricted[table] == nil {
			restricted[table] = make(map[string]bool)
		}
		restricted[table][column] = true
	}
	return &Searcher{db: db, sem: semaphore.NewWeighted(maxConcurrent), restrictedColumns: restricted}
}

// NewFromPool builds a Searcher directly from a pgxpool.Pool.
func NewFromPool(pool *pgxpool.Pool, maxConcurrent int64, restrictedColumns []string) *Searcher {
	return New(&poolQuerier{pool: pool}, maxConcurrent, restrictedColumns)
}

// Search implements planner.RecordSearcher: for every table, it runs one
// ILIKE query over the non-restricted fields and merges results, capping the
// combined total at limit. A non-existent table surfaces the driver's
// relation-does-not-exist error. Rows are returned in the order the database
// yields them, table by table; exact first-field matches are not ranked
// ahead of substring matches. A field name the table lacks is not skipped:
// the query fails with the driver's column-does-not-exist error.
func (s *Searcher) Search(ctx context.Context, query string, tables, fields []string, limit int) ([]planner.Row, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pgsearch: acquire concurrency slot: %w", err)
	}
	defer s.sem.Release(1)

	var out []planner.Row
	remaining := limit
	for _, table := range tables {
		if remaining <= 0 && limit > 0 {
			break
		}
		searchable := nonRestrictedFields(fields, s.restrictedColumns[table])
		if len(searchable) == 0 {
			continue
		}
		rows, err := s.searchTable(ctx, table, searchable, query, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if limit > 0 {
			remaining = limit - len(out)
		}
	}
	return out, nil
}

func (s *Searcher) searchTable(ctx context.Context, table string, fields []string, query string, limit int) ([]planner.Row, error) {
	columns, selectList := columnLists(table, fields)
	conditions := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	needle := "%" + query + "%"
	for i, field := range fields {
		conditions[i] = fmt.Sprintf("%s ILIKE $%d", quoteIdent(field), i+1)
		args = append(args, needle)
	}

	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s",
		selectList, quoteIdent(table), strings.Join(conditions, " OR "),
	)
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgsearch: query table %q: %w", table, err)
	}
	defer rows.Close()

	var out []planner.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("pgsearch: scan table %q: %w", table, err)
		}
		row := make(planner.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgsearch: iterate table %q: %w", table, err)
	}
	return out, nil
}

func nonRestrictedFields(fields []string, restricted map[string]bool) []string {
	if len(restricted) == 0 {
		return fields
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !restricted[f] {
			out = append(out, f)
		}
	}
	return out
}

// columnLists builds the projected column names (id plus the searchable
// fields) and the matching SELECT list, in a stable order.
func columnLists(_ string, fields []string) (columns []string, selectList string) {
	columns = append([]string{"id"}, fields...)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return columns, strings.Join(quoted, ", ")
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
