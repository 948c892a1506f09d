// Package query turns list-endpoint query strings into a store-neutral
// query description: filter conditions, sort keys, a field projection and
// a page window. Nothing in this package performs I/O; the repository layer
// compiles a *Query into SQL for a concrete table.
package query

// Op is a comparison operator of a filter condition.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

var operators = map[Op]bool{OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true}

// Condition is a single field comparison. Conditions of a Query are ANDed.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// SortKey orders results by Field.
type SortKey struct {
	Field string
	Desc  bool
}

// VersionField is the internal revision counter hidden from default projections.
const VersionField = "version"

// Query is the unexecuted description of a list request against a collection.
type Query struct {
	Collection string
	Conditions []Condition
	Sort       []SortKey
	Fields     []string // projection allow-list; empty selects everything not in Exclude
	Exclude    []string
	Skip       int
	Limit      int // 0 means no limit
}

// From returns an unfiltered query over collection.
func From(collection string) *Query {
	return &Query{Collection: collection}
}

// Where appends a condition. Controllers use it to scope a base query
// before request parameters are applied.
func (q *Query) Where(field string, op Op, value any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: op, Value: value})
	return q
}
