package query

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Reserved parameters; every other key is a filter.
const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSort   = "sort"
	ParamFields = "fields"
)

// Defaults applied when the request leaves a stage unspecified.
const (
	DefaultPage  = 1
	DefaultLimit = 100
	DefaultSort  = "-createdAt"

	// HardMaxLimit bounds the page size even when no cap is configured.
	HardMaxLimit = 10000
)

// ErrInvalidQuery wraps every malformed-parameter error from the builder.
var ErrInvalidQuery = errors.New("invalid query")

var (
	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	bracketRe = regexp.MustCompile(`^([^\[\]]+)\[([A-Za-z]+)\]$`)
)

// ValidField reports whether name can be used as a field identifier.
func ValidField(name string) bool { return identRe.MatchString(name) }

// Params flattens url.Values keeping the first value of each key.
func Params(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// Features applies request parameters to a base Query. Every stage returns
// the builder so stages can be chained in any order; the first error is
// kept and reported by Query.
type Features struct {
	query    *Query
	params   map[string]string
	maxLimit int
	err      error
}

// NewFeatures wraps q with the request's parameters.
func NewFeatures(q *Query, params map[string]string) *Features {
	if params == nil {
		params = map[string]string{}
	}
	return &Features{query: q, params: params}
}

// WithMaxLimit caps the page size. n <= 0 leaves only HardMaxLimit.
func (f *Features) WithMaxLimit(n int) *Features {
	f.maxLimit = n
	return f
}

// Filter turns every non-reserved parameter into a condition.
// "year[gte]=2000" becomes year >= 2000; "genre=Action" becomes equality.
func (f *Features) Filter() *Features {
	if f.err != nil {
		return f
	}
	keys := make([]string, 0, len(f.params))
	for k := range f.params {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic condition order
	for _, key := range keys {
		if isReserved(key) {
			continue
		}
		field, op := key, OpEq
		if m := bracketRe.FindStringSubmatch(key); m != nil {
			field, op = m[1], Op(strings.ToLower(m[2]))
			if !operators[op] {
				f.err = fmt.Errorf("%w: unknown operator %q on %s", ErrInvalidQuery, m[2], field)
				return f
			}
		}
		if !ValidField(field) {
			f.err = fmt.Errorf("%w: invalid field %q", ErrInvalidQuery, field)
			return f
		}
		f.query.Where(field, op, coerce(f.params[key], op))
	}
	return f
}

// Sort applies the comma separated sort list, "-" prefix for descending.
func (f *Features) Sort() *Features {
	if f.err != nil {
		return f
	}
	raw, ok := f.params[ParamSort]
	if !ok || strings.TrimSpace(raw) == "" {
		raw = DefaultSort
	}
	keys, err := ParseSort(raw)
	if err != nil {
		f.err = err
		return f
	}
	f.query.Sort = keys
	return f
}

// LimitFields applies the projection. Without a "fields" parameter only the
// version field is hidden.
func (f *Features) LimitFields() *Features {
	if f.err != nil {
		return f
	}
	raw, ok := f.params[ParamFields]
	if !ok || strings.TrimSpace(raw) == "" {
		f.query.Fields = nil
		f.query.Exclude = []string{VersionField}
		return f
	}
	var fields []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !ValidField(name) {
			f.err = fmt.Errorf("%w: invalid field %q", ErrInvalidQuery, name)
			return f
		}
		fields = append(fields, name)
	}
	f.query.Fields = fields
	f.query.Exclude = nil
	return f
}

// Paginate converts page/limit into skip/limit.
func (f *Features) Paginate() *Features {
	if f.err != nil {
		return f
	}
	page, limit := ParsePage(f.params, DefaultLimit, f.maxLimit)
	f.query.Skip = (page - 1) * limit
	f.query.Limit = limit
	return f
}

// Query returns the composed query or the first stage error.
func (f *Features) Query() (*Query, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.query, nil
}

// ParseSort parses "a,-b" into sort keys.
func ParseSort(raw string) ([]SortKey, error) {
	var keys []SortKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(strings.TrimPrefix(part, "-"), "+")
		if !ValidField(name) {
			return nil, fmt.Errorf("%w: invalid sort field %q", ErrInvalidQuery, name)
		}
		keys = append(keys, SortKey{Field: name, Desc: desc})
	}
	return keys, nil
}

// ParsePage reads page and limit. Missing, non-numeric or non-positive values
// fall back to page 1 and defLimit; maxLimit > 0 caps the limit and
// HardMaxLimit always does. A page whose offset would overflow is treated
// as invalid and reset to page 1.
func ParsePage(params map[string]string, defLimit, maxLimit int) (page, limit int) {
	page = atoiDefault(params[ParamPage], DefaultPage)
	limit = atoiDefault(params[ParamLimit], defLimit)
	if maxLimit <= 0 || maxLimit > HardMaxLimit {
		maxLimit = HardMaxLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if page > math.MaxInt/limit {
		page = DefaultPage
	}
	return page, limit
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func isReserved(key string) bool {
	switch key {
	case ParamPage, ParamLimit, ParamSort, ParamFields:
		return true
	}
	return false
}

// coerce converts query-string text into a typed value. Booleans are always
// converted; numbers only for range operators so that equality on text
// columns keeps comparing text.
func coerce(v string, op Op) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if op != OpEq && op != OpNe {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return v
}
