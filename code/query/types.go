// Package query describes analytics queries as plain values and compiles them to DuckDB SQL.
//
// A Query never touches the engine: Build is a pure function from a Query to SQL text and
// positional parameters, and Merge combines two queries without mutating either. The chart
// layer uses Merge to lay range and bucket constraints over a saved base definition.
package query

// FieldType is the declared type of a field
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldBoolean   FieldType = "boolean"
	FieldTimestamp FieldType = "timestamp"
	FieldJSON      FieldType = "json"
)

// Field names either a fixed column of the events table or a property stored in its
// properties JSON column.
type Field struct {
	Name       string    `json:"name" yaml:"name"`
	Type       FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	IsProperty bool      `json:"is_property,omitempty" yaml:"is_property,omitempty"`
}

// Operator is a comparison used by a FieldFilter
type Operator string

const (
	OpEq   Operator = "="
	OpGt   Operator = ">"
	OpLt   Operator = "<"
	OpGte  Operator = ">="
	OpLte  Operator = "<="
	OpNeq  Operator = "<>"
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
)

// FieldFilter restricts rows by comparing a field with a value
type FieldFilter struct {
	Field    Field    `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// AggregateFunc is an SQL aggregate function
type AggregateFunc string

const (
	Count AggregateFunc = "COUNT"
	Sum   AggregateFunc = "SUM"
	Avg   AggregateFunc = "AVG"
	Min   AggregateFunc = "MIN"
	Max   AggregateFunc = "MAX"
)

// Aggregation computes one aggregate column
type Aggregation struct {
	Function AggregateFunc `json:"function" yaml:"function"`
	Field    Field         `json:"field" yaml:"field"`
	Alias    string        `json:"alias,omitempty" yaml:"alias,omitempty"`
	Distinct bool          `json:"distinct,omitempty" yaml:"distinct,omitempty"`
}

// Bucket truncates a timestamp to a fixed interval
type Bucket string

const (
	NoBucket    Bucket = ""
	BucketHour  Bucket = "hour"
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// GroupBy groups rows by a field, optionally truncated to a time bucket
type GroupBy struct {
	Field  Field  `json:"field" yaml:"field"`
	Bucket Bucket `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Alias  string `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Query is an immutable query descriptor. Array fields concatenate on Merge; Limit and
// Offset do not merge.
type Query struct {
	Select       []Field       `json:"select,omitempty" yaml:"select,omitempty"`
	Filters      []FieldFilter `json:"filters,omitempty" yaml:"filters,omitempty"`
	GroupBy      []GroupBy     `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	OrderBy      []string      `json:"order_by,omitempty" yaml:"order_by,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty" yaml:"aggregations,omitempty"`
	Limit        *int          `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset       *int          `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// Merge returns base with every array field of override appended. Limit and Offset come
// from base only. Neither argument is modified.
func Merge(base, override Query) Query {
	return Query{
		Select:       concat(base.Select, override.Select),
		Filters:      concat(base.Filters, override.Filters),
		GroupBy:      concat(base.GroupBy, override.GroupBy),
		OrderBy:      concat(base.OrderBy, override.OrderBy),
		Aggregations: concat(base.Aggregations, override.Aggregations),
		Limit:        base.Limit,
		Offset:       base.Offset,
	}
}

func concat[T any](a, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
