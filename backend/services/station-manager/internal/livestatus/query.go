package livestatus

import "strings"

// Query is a Livestatus Query Language request for a single table.
//
// Columns names the table columns to fetch. As renames them positionally in the parsed
// records; without As the column names are used as-is.
type Query struct {
	table   string
	columns []string
	as      []string
	filter  string
}

// Get starts a query against table.
func Get(table string) *Query {
	return &Query{table: table}
}

// Columns sets the requested columns.
func (q *Query) Columns(columns ...string) *Query {
	q.columns = append([]string(nil), columns...)
	return q
}

// As sets the output names for the requested columns.
func (q *Query) As(names ...string) *Query {
	q.as = append([]string(nil), names...)
	return q
}

// Filter sets the single filter expression, e.g. "description = dockapp_top1".
func (q *Query) Filter(expr string) *Query {
	q.filter = expr
	return q
}

// Table returns the queried table.
func (q *Query) Table() string {
	return q.table
}

// OutputColumns returns the names records are keyed by.
func (q *Query) OutputColumns() []string {
	if len(q.as) > 0 {
		return q.as
	}
	return q.columns
}

// String serializes the query in wire format, terminated by a blank line.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(q.table)
	b.WriteByte('\n')
	if len(q.columns) > 0 {
		b.WriteString("Columns: ")
		b.WriteString(strings.Join(q.columns, " "))
		b.WriteByte('\n')
	}
	if q.filter != "" {
		b.WriteString("Filter: ")
		b.WriteString(q.filter)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
