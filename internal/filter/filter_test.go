package filter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
)

func TestNormalize_Forms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Condition
	}{
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
		{
			name: "array form",
			raw:  `[["status","=","draft"],["is_public","=",true]]`,
			want: []Condition{
				{Field: "status", Op: OpEq, Value: "draft"},
				{Field: "is_public", Op: OpEq, Value: 1},
			},
		},
		{
			name: "object form",
			raw:  `[{"diagram_type":["!=","pie"]},{"owner":["in",["u1","u2"]]}]`,
			want: []Condition{
				{Field: "diagram_type", Op: OpNe, Value: "pie"},
				{Field: "owner", Op: OpIn, Value: []any{"u1", "u2"}},
			},
		},
		{
			name: "plain map",
			raw:  `{"status":"published","folder":"f1"}`,
			want: []Condition{
				{Field: "folder", Op: OpEq, Value: "f1"},
				{Field: "status", Op: OpEq, Value: "published"},
			},
		},
		{
			name: "two element shorthand",
			raw:  `[["owner","u1"]]`,
			want: []Condition{{Field: "owner", Op: OpEq, Value: "u1"}},
		},
		{
			name: "like upper case",
			raw:  `[["status","LIKE","dr%"]]`,
			want: []Condition{{Field: "status", Op: OpLike, Value: "dr%"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad json", `[[`},
		{"unknown field", `[["diagram_code","=","x"]]`},
		{"unknown op", `[["status",">","a"]]`},
		{"in without list", `[["owner","in","u1"]]`},
		{"empty in list", `[["owner","in",[]]]`},
		{"eq with list", `[["owner","=",["a"]]]`},
		{"eq with object", `[["status","=",{"a":1}]]`},
		{"map with object", `{"status":{"a":1}}`},
		{"nested in list", `[["owner","in",[[1]]]]`},
		{"object in list", `{"owner":["in",[{"a":1}]]}`},
		{"wrong arity", `[["status"]]`},
		{"scalar", `"status"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Normalize(%s) error = %v, want ErrValidation", tt.raw, err)
			}
		})
	}
}
