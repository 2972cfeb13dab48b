package filter

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour for Render.
type Dialect int

const (
	// Postgres renders $n placeholders and JSONB operators.
	Postgres Dialect = iota
	// SQLite renders ? placeholders and json_extract.
	SQLite
)

// sqliteTruthy mirrors the text forms accepted by a Postgres boolean cast.
const sqliteTruthy = "('1', 'true', 't', 'yes', 'y', 'on')"

// Render returns the predicate as a SQL conjunction plus its positional
// arguments. Postgres placeholders are numbered starting at next. An empty
// predicate renders as "".
func (p *Predicate) Render(d Dialect, next int) (string, []any) {
	if p.Empty() {
		return "", nil
	}
	parts := make([]string, 0, len(p.Clauses))
	var args []any
	placeholder := func(v any) string {
		args = append(args, v)
		if d == SQLite {
			return "?"
		}
		s := fmt.Sprintf("$%d", next)
		next++
		return s
	}
	for _, c := range p.Clauses {
		switch c.Kind {
		case Equal:
			parts = append(parts, fmt.Sprintf("%s = %s", c.Column, placeholder(c.Value)))
		case AtLeast:
			parts = append(parts, fmt.Sprintf("%s >= %s", c.Column, placeholder(c.Value)))
		case NestedTrue:
			if d == SQLite {
				parts = append(parts, fmt.Sprintf("lower(CAST(%s AS TEXT)) IN %s", jsonExtract(c), sqliteTruthy))
			} else {
				parts = append(parts, fmt.Sprintf("(%s)::boolean = true", jsonbPath(c)))
			}
		case NestedNotTrue:
			if d == SQLite {
				parts = append(parts, fmt.Sprintf("COALESCE(lower(CAST(%s AS TEXT)) IN %s, 0) = 0", jsonExtract(c), sqliteTruthy))
			} else {
				parts = append(parts, fmt.Sprintf("(%s)::boolean IS NOT TRUE", jsonbPath(c)))
			}
		case NestedAtLeast:
			if d == SQLite {
				parts = append(parts, fmt.Sprintf("CAST(%s AS INTEGER) >= %s", jsonExtract(c), placeholder(c.Value)))
			} else {
				parts = append(parts, fmt.Sprintf("(%s)::int >= %s", jsonbPath(c), placeholder(c.Value)))
			}
		}
	}
	return strings.Join(parts, " AND "), args
}

// jsonbPath renders col->'a'->>'b'.
func jsonbPath(c Clause) string {
	var b strings.Builder
	b.WriteString(c.Column)
	for i, key := range c.Path {
		if i == len(c.Path)-1 {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		b.WriteString("'" + key + "'")
	}
	return b.String()
}

// jsonExtract renders json_extract(col, '$.a.b').
func jsonExtract(c Clause) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", c.Column, strings.Join(c.Path, "."))
}

// Where joins base conditions with the rendered predicate into a WHERE
// clause body. Arguments follow the same numbering as Render.
func Where(p *Predicate, d Dialect, next int, base ...string) (string, []any) {
	conds := append([]string(nil), base...)
	sql, args := p.Render(d, next)
	if sql != "" {
		conds = append(conds, sql)
	}
	if len(conds) == 0 {
		return "TRUE", args
	}
	return strings.Join(conds, " AND "), args
}
