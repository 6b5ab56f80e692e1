package db

import (
	"fmt"
	"strings"
)

// Query builds a filtered SELECT with positional ($n) arguments, shared by
// the list endpoints of every repository.
type Query struct {
	table   string
	cols    string
	where   []string
	args    []any
	groupBy string
	orderBy string
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

// Next returns the placeholder for the next argument.
func (q *Query) Next() string {
	return fmt.Sprintf("$%d", len(q.args)+1)
}

// Add appends a WHERE fragment. Each %s in clause is replaced by the
// placeholder of the corresponding arg.
func (q *Query) Add(clause string, args ...any) {
	ph := make([]any, len(args))
	for i := range args {
		ph[i] = fmt.Sprintf("$%d", len(q.args)+i+1)
	}
	q.where = append(q.where, fmt.Sprintf(clause, ph...))
	q.args = append(q.args, args...)
}

// Eq adds "column = value".
func (q *Query) Eq(column string, value any) {
	q.Add(column+" = %s", value)
}

// In adds "column = ANY(values)". An empty slice adds nothing.
func (q *Query) In(column string, values []string) {
	if len(values) == 0 {
		return
	}
	q.Add(column+" = ANY(%s)", values)
}

// Raw adds a fragment without arguments.
func (q *Query) Raw(clause string) {
	q.where = append(q.where, clause)
}

func (q *Query) GroupBy(groupBy string) {
	q.groupBy = groupBy
}

func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL())
}

func (q *Query) Args() []any {
	return q.args
}

// DataSQL returns the SELECT with ORDER BY and LIMIT/OFFSET placeholders;
// pair it with DataArgs. A limit of 0 means no LIMIT.
func (q *Query) DataSQL(limit int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.groupBy != "" {
		sql += " GROUP BY " + q.groupBy
	}
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if limit > 0 {
		n := len(q.args)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	}
	return sql
}

func (q *Query) DataArgs(limit, offset int) []any {
	if limit <= 0 {
		return q.args
	}
	out := make([]any, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}
