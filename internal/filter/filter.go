// Package filter normalizes list filters posted by clients.
//
// Clients send diagram filters in two historical shapes and both must keep
// working:
//
//	[["status", "=", "draft"], ["is_public", "=", 1]]      // array form
//	[{"status": ["=", "draft"]}, {"owner": ["in", [..]]}]  // object form
//	{"status": "draft"}                                     // plain map, op "="
//
// Normalize turns any of them into a flat []Condition the repository can
// translate into parameterized SQL.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
)

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLike Op = "like"
	OpIn   Op = "in"
)

// Fields lists the filterable diagram fields.
var Fields = map[string]bool{
	"status":       true,
	"diagram_type": true,
	"is_public":    true,
	"folder":       true,
	"owner":        true,
}

// Condition is one normalized filter clause. For OpIn, Value is a []any.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Normalize parses raw JSON filters. Empty input yields no conditions.
func Normalize(raw string) ([]Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, apperror.ValidationFailed("filters", "filters must be valid JSON")
	}

	switch v := decoded.(type) {
	case map[string]any:
		return fromMap(v)
	case []any:
		var out []Condition
		for _, item := range v {
			conds, err := fromItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, conds...)
		}
		return out, nil
	}
	return nil, apperror.ValidationFailed("filters", "filters must be a list or an object")
}

func fromItem(item any) ([]Condition, error) {
	switch v := item.(type) {
	case []any:
		// ["field", "op", value] or the two-element shorthand ["field", value].
		switch len(v) {
		case 2:
			field, ok := v[0].(string)
			if !ok {
				return nil, apperror.ValidationFailed("filters", "filter field must be a string")
			}
			c, err := build(field, string(OpEq), v[1])
			if err != nil {
				return nil, err
			}
			return []Condition{c}, nil
		case 3:
			field, ok := v[0].(string)
			op, ok2 := v[1].(string)
			if !ok || !ok2 {
				return nil, apperror.ValidationFailed("filters", "filter field and operator must be strings")
			}
			c, err := build(field, op, v[2])
			if err != nil {
				return nil, err
			}
			return []Condition{c}, nil
		}
		return nil, apperror.ValidationFailed("filters", "array filters need 2 or 3 elements")
	case map[string]any:
		return fromMap(v)
	}
	return nil, apperror.ValidationFailed("filters", "unsupported filter entry")
}

// fromMap handles {"field": ["op", value]} and {"field": value}.
// Keys are visited in sorted order so the output is deterministic.
func fromMap(m map[string]any) ([]Condition, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Condition, 0, len(keys))
	for _, field := range keys {
		val := m[field]
		op := string(OpEq)
		if pair, ok := val.([]any); ok && len(pair) == 2 {
			if s, ok := pair[0].(string); ok {
				op = s
				val = pair[1]
			}
		}
		c, err := build(field, op, val)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func build(field, op string, value any) (Condition, error) {
	if !Fields[field] {
		return Condition{}, apperror.ValidationFailed("filters", fmt.Sprintf("unknown filter field %q", field))
	}
	o := Op(strings.ToLower(strings.TrimSpace(op)))
	switch o {
	case OpEq, OpNe, OpLike:
		if !isScalar(value) {
			return Condition{}, apperror.ValidationFailed("filters", fmt.Sprintf("operator %q needs a single value", o))
		}
	case OpIn:
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return Condition{}, apperror.ValidationFailed("filters", `operator "in" needs a non-empty list`)
		}
		for _, e := range list {
			if !isScalar(e) {
				return Condition{}, apperror.ValidationFailed("filters", `operator "in" needs a list of plain values`)
			}
		}
	default:
		return Condition{}, apperror.ValidationFailed("filters", fmt.Sprintf("unsupported operator %q", op))
	}
	return Condition{Field: field, Op: o, Value: normalizeValue(value)}, nil
}

// isScalar reports whether v is a JSON string, number, boolean or null.
func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool:
		return true
	}
	return false
}

// normalizeValue converts JSON booleans to 0/1 so they compare against
// SQLite integer columns, and whole floats to int64.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}
