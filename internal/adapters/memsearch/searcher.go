// Package memsearch is an in-memory planner.RecordSearcher, grounded in the
// same mutex-guarded map pattern as cache.InMemoryStore and
// registry/store/memory. It backs tests and local demos where standing up a
// Postgres instance is unnecessary.
package memsearch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fantastic-router/router/planner"
)

// Searcher is a mutex-guarded in-memory table store.
type Searcher struct {
	mu                sync.RWMutex
	tables            map[string][]planner.Row
	restrictedColumns map[string]map[string]bool
}

// New builds a Searcher seeded with tables (table name -> rows) and a list
// of "table.column" pairs that must be excluded from both search and
// results, mirroring SiteConfiguration.RestrictedColumns.
func New(tables map[string][]planner.Row, restrictedColumns []string) *Searcher {
	s := &Searcher{
		tables:            make(map[string][]planner.Row, len(tables)),
		restrictedColumns: make(map[string]map[string]bool),
	}
	for name, rows := range tables {
		copied := make([]planner.Row, len(rows))
		copy(copied, rows)
		s.tables[name] = copied
	}
	for _, pair := range restrictedColumns {
		table, column, ok := strings.Cut(pair, ".")
		if !ok {
			continue
		}
		if s.restrictedColumns[table] == nil {
			s.restrictedColumns[table] = make(map[string]bool)
		}
		s.restrictedColumns[table][column] = true
	}
	return s
}

// Put inserts or replaces a table's rows under the write lock, useful for
// tests that grow fixtures incrementally.
func (s *Searcher) Put(table string, rows []planner.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = rows
}

// Search implements planner.RecordSearcher: a case-insensitive substring
// match of query against fields across tables, ranking exact matches of the
// first searched field ahead of substring matches, capped at limit rows
// total.
func (s *Searcher) Search(_ context.Context, query string, tables, fields []string, limit int) ([]planner.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	type scored struct {
		row   planner.Row
		exact bool
	}
	var matches []scored

	for _, table := range tables {
		rows, ok := s.tables[table]
		if !ok {
			return nil, fmt.Errorf("memsearch: unknown table %q", table)
		}
		restricted := s.restrictedColumns[table]
		for _, row := range rows {
			exact, hit := rowMatches(row, fields, needle, restricted)
			if !hit {
				continue
			}
			matches = append(matches, scored{row: redact(row, restricted), exact: exact})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].exact && !matches[j].exact })

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]planner.Row, len(matches))
	for i, m := range matches {
		out[i] = m.row
	}
	return out, nil
}

func rowMatches(row planner.Row, fields []string, needle string, restricted map[string]bool) (exact, hit bool) {
	for i, field := range fields {
		if restricted[field] {
			continue
		}
		v, ok := row[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		if lower == needle {
			return i == 0, true
		}
		if strings.Contains(lower, needle) {
			hit = true
		}
	}
	return false, hit
}

func redact(row planner.Row, restricted map[string]bool) planner.Row {
	if len(restricted) == 0 {
		return row
	}
	out := make(planner.Row, len(row))
	for k, v := range row {
		if restricted[k] {
			continue
		}
		out[k] = v
	}
	return out
}
