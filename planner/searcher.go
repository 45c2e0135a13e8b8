package planner

import "context"

// Row is one record returned by a RecordSearcher, mapping column name to
// value. Per §6, a row must expose at least one common identifier column
// ("id", "uuid", "pk") and at least one searchable display field.
type Row map[string]any

// commonIdentifierColumns is the set of column names RowID probes, in order.
var commonIdentifierColumns = []string{"id", "uuid", "pk"}

// RowID extracts the identifier value from a Row using the common
// identifier columns, returning "" if none are present.
func (r Row) RowID() string {
	for _, col := range commonIdentifierColumns {
		if v, ok := r[col]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// RecordSearcher is the capability contract over a tabular store: a
// case-insensitive substring match of query against any of fields in any of
// tables, returning at most limit rows total. In memsearch.Searcher, rows
// whose first searched field matches exactly outrank substring matches and
// non-existent field names are silently skipped; pgsearch.Searcher does
// neither (see its Search). A non-existent table returns an error. Implementations may layer a restricted-columns policy
// that removes listed columns from both the search space and the returned
// rows.
type RecordSearcher interface {
	Search(ctx context.Context, query string, tables, fields []string, limit int) ([]Row, error)
}
