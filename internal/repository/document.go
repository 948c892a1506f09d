package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/iliyamo/scydb-api/internal/database"
	"github.com/iliyamo/scydb-api/internal/query"
)

// table describes how list queries map onto a MySQL table.
type table struct {
	name    string
	columns []string        // projectable columns in output order
	jsonArr map[string]bool // JSON array columns
	bools   map[string]bool // TINYINT(1) columns rendered as booleans
	hidden  map[string]bool // never projected, filtered or sorted on
	base    []query.Condition
}

var (
	rolesTable = table{
		name:    "roles",
		columns: []string{"id", "name", "description", "permissions", "version", "created_at"},
		jsonArr: map[string]bool{"permissions": true},
	}
	genresTable = table{
		name:    "genres",
		columns: []string{"id", "name", "description", "color", "is_active", "version", "created_at"},
		bools:   map[string]bool{"is_active": true},
	}
	usersTable = table{
		name: "users",
		columns: []string{"id", "name", "email", "photo", "role", "email_verified",
			"version", "created_at", "updated_at"},
		bools: map[string]bool{"email_verified": true},
		hidden: map[string]bool{
			"password_hash": true, "active": true, "password_changed_at": true,
			"verification_token_hash": true, "verification_expires_at": true,
			"reset_token_hash": true, "reset_expires_at": true,
		},
		base: []query.Condition{{Field: "active", Op: query.OpEq, Value: true}},
	}
	reviewsTable = table{
		name:    "reviews",
		columns: []string{"id", "review", "rating", "movie_id", "user_id", "version", "created_at"},
	}
)

// columnName converts a camelCase field name to its snake_case column.
func columnName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fieldName converts a snake_case column to the camelCase document key.
func fieldName(col string) string {
	parts := strings.Split(col, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func quoteIdent(col string) string { return "`" + col + "`" }

func opSQL(op query.Op) (string, error) {
	switch op {
	case query.OpEq:
		return "=", nil
	case query.OpNe:
		return "<>", nil
	case query.OpGt:
		return ">", nil
	case query.OpGte:
		return ">=", nil
	case query.OpLt:
		return "<", nil
	case query.OpLte:
		return "<=", nil
	}
	return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidField, op)
}

// column resolves a field for filtering or sorting. Hidden columns are
// reported as unknown; other unknown names are left for MySQL to reject.
func (t table) column(field string) (string, error) {
	if !query.ValidField(field) {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	col := columnName(field)
	if t.hidden[col] {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return col, nil
}

// where compiles the conditions of q, prefixed by the table's base
// conditions, into a WHERE body and its arguments.
func (t table) where(q *query.Query) (string, []any, error) {
	conds := make([]string, 0, len(t.base)+len(q.Conditions))
	args := make([]any, 0, len(t.base)+len(q.Conditions))

	for _, c := range t.base {
		v := c.Value
		if b, ok := v.(bool); ok {
			v = boolInt(b)
		}
		conds = append(conds, quoteIdent(columnName(c.Field))+" = ?")
		args = append(args, v)
	}
	for _, c := range q.Conditions {
		col, err := t.column(c.Field)
		if err != nil {
			return "", nil, err
		}
		if t.jsonArr[col] {
			switch c.Op {
			case query.OpEq:
				conds = append(conds, "JSON_CONTAINS("+quoteIdent(col)+", JSON_QUOTE(?))")
			case query.OpNe:
				conds = append(conds, "NOT JSON_CONTAINS("+quoteIdent(col)+", JSON_QUOTE(?))")
			default:
				return "", nil, fmt.Errorf("%w: %q only supports equality", ErrInvalidField, c.Field)
			}
			args = append(args, fmt.Sprint(c.Value))
			continue
		}
		op, err := opSQL(c.Op)
		if err != nil {
			return "", nil, err
		}
		v := c.Value
		if b, ok := v.(bool); ok {
			v = boolInt(b)
		}
		conds = append(conds, quoteIdent(col)+" "+op+" ?")
		args = append(args, v)
	}
	if len(conds) == 0 {
		return "1=1", args, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// projection returns the selected columns. id is always selected.
func (t table) projection(q *query.Query) ([]string, error) {
	if len(q.Fields) == 0 {
		excl := make(map[string]bool, len(q.Exclude))
		for _, f := range q.Exclude {
			excl[columnName(f)] = true
		}
		cols := make([]string, 0, len(t.columns))
		for _, c := range t.columns {
			if !excl[c] || c == "id" {
				cols = append(cols, c)
			}
		}
		return cols, nil
	}
	cols := []string{"id"}
	seen := map[string]bool{"id": true}
	for _, f := range q.Fields {
		col, err := t.column(f)
		if err != nil {
			return nil, err
		}
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	return cols, nil
}

func (t table) orderBy(q *query.Query) (string, error) {
	keys := make([]string, 0, len(q.Sort)+1)
	for _, k := range q.Sort {
		col, err := t.column(k.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		keys = append(keys, quoteIdent(col)+" "+dir)
	}
	keys = append(keys, "`id` ASC") // stable pages
	return strings.Join(keys, ", "), nil
}

// compiled is a list query ready to run.
type compiled struct {
	selectSQL  string
	selectArgs []any
	countSQL   string
	countArgs  []any
	columns    []string
}

func (t table) compile(q *query.Query) (compiled, error) {
	cond, args, err := t.where(q)
	if err != nil {
		return compiled{}, err
	}
	cols, err := t.projection(q)
	if err != nil {
		return compiled{}, err
	}
	order, err := t.orderBy(q)
	if err != nil {
		return compiled{}, err
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	sel := "SELECT " + strings.Join(quoted, ", ") + " FROM " + quoteIdent(t.name) +
		" WHERE " + cond + " ORDER BY " + order
	selArgs := append([]any{}, args...)
	if q.Limit > 0 {
		sel += " LIMIT ? OFFSET ?"
		selArgs = append(selArgs, q.Limit, q.Skip)
	}
	return compiled{
		selectSQL:  sel,
		selectArgs: selArgs,
		countSQL:   "SELECT COUNT(*) FROM " + quoteIdent(t.name) + " WHERE " + cond,
		countArgs:  args,
		columns:    cols,
	}, nil
}

// Document is one projected row keyed by camelCase field names.
type Document map[string]any

// ID returns the document id or 0 when it was not selected.
func (d Document) ID() uint64 {
	v, _ := d["id"].(uint64)
	return v
}

// list runs q against t and returns the projected page plus the total
// number of matches ignoring the page window.
func (t table) list(ctx context.Context, db database.DBTX, q *query.Query) ([]Document, int64, error) {
	c, err := t.compile(q)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.QueryRowContext(ctx, c.countSQL, c.countArgs...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	rows, err := db.QueryContext(ctx, c.selectSQL, c.selectArgs...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		raw := make([]any, len(c.columns))
		ptrs := make([]any, len(c.columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		doc := make(Document, len(c.columns))
		for i, col := range c.columns {
			v, err := t.decode(col, raw[i])
			if err != nil {
				return nil, 0, err
			}
			doc[fieldName(col)] = v
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return docs, total, nil
}

// decode converts a driver value into its JSON-friendly form.
func (t table) decode(col string, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		if t.jsonArr[col] {
			var arr []any
			if err := json.Unmarshal(b, &arr); err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", t.name, col, err)
			}
			return arr, nil
		}
		v = string(b)
	}
	if t.bools[col] {
		switch n := v.(type) {
		case int64:
			return n != 0, nil
		case string:
			return n == "1", nil
		}
	}
	if col == "id" {
		switch n := v.(type) {
		case int64:
			return uint64(n), nil
		case uint64:
			return n, nil
		case string:
			var id uint64
			_, err := fmt.Sscan(n, &id)
			return id, err
		}
	}
	if ts, ok := v.(time.Time); ok {
		return ts.UTC(), nil
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
