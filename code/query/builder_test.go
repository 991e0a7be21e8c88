package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBuildEmptyQuerySelectsStar(t *testing.T) {
	sql, params := Build(Query{})
	assert.Equal(t, "SELECT * FROM events", sql)
	assert.Empty(t, params)
}

func TestBuildDailyCount(t *testing.T) {
	q := Query{
		Aggregations: []Aggregation{{Function: Count, Field: Field{Name: "id"}, Alias: "count"}},
		GroupBy:      []GroupBy{{Field: Field{Name: "timestamp"}, Bucket: BucketDay}},
	}
	sql, params := Build(q)
	assert.Equal(t, `SELECT COUNT(id) AS "count", date_trunc('day', timestamp) AS "bucket_0" FROM events GROUP BY "bucket_0"`, sql)
	assert.Empty(t, params)
}

func TestBuildAggregations(t *testing.T) {
	q := Query{
		Aggregations: []Aggregation{
			{Function: Count},
			{Function: Count, Field: Field{Name: "distinct_id"}, Distinct: true, Alias: "users"},
			{Function: Sum, Field: Field{Name: "$.order.total"}, Alias: "revenue"},
			{Function: Avg, Field: Field{Name: "duration", IsProperty: true, Type: FieldNumber}},
		},
	}
	sql, _ := Build(q)
	assert.Equal(t, `SELECT COUNT(*), COUNT(DISTINCT distinct_id) AS "users", `+
		`SUM(CAST(json_extract_string(properties, '$.order.total') AS DOUBLE)) AS "revenue", `+
		`AVG(CAST(json_extract_string(properties, '$.duration') AS DOUBLE)) FROM events`, sql)
}

func TestBuildSelectFields(t *testing.T) {
	q := Query{
		Select: []Field{
			{Name: "event_type"},
			{Name: "plan", IsProperty: true},
			{Name: "page title", IsProperty: true},
			{Name: "$.items[0].sku"},
			{Name: "properties", Type: FieldJSON},
		},
	}
	sql, _ := Build(q)
	assert.Equal(t, `SELECT event_type, `+
		`CAST(json_extract_string(properties, '$.plan') AS VARCHAR) AS "plan", `+
		`CAST(json_extract_string(properties, '$."page title"') AS VARCHAR) AS "page title", `+
		`CAST(json_extract_string(properties, '$.items[0].sku') AS VARCHAR) AS "$.items[0].sku", `+
		`properties FROM events`, sql)
}

func TestBuildFiltersAlignWithParams(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q := Query{
		Filters: []FieldFilter{
			{Field: Field{Name: "event_type"}, Operator: OpEq, Value: "signup"},
			{Field: Field{Name: "timestamp"}, Operator: OpGte, Value: since},
			{Field: Field{Name: "plan", IsProperty: true}, Operator: OpIn, Value: []string{"pro", "team"}},
			{Field: Field{Name: "amount", IsProperty: true, Type: FieldNumber}, Operator: OpGt, Value: 10},
			{Field: Field{Name: "timestamp"}, Operator: OpLt, Value: "2024-03-08T00:00:00Z"},
			{Field: Field{Name: "url", IsProperty: true}, Operator: "like", Value: "%/pricing%"},
		},
	}
	sql, params := Build(q)
	assert.Equal(t, `SELECT * FROM events WHERE event_type = ? AND `+
		`timestamp >= epoch_ms(CAST(? AS BIGINT)) AND `+
		`CAST(json_extract_string(properties, '$.plan') AS VARCHAR) IN (SELECT unnest(from_json(?, '["VARCHAR"]'))) AND `+
		`CAST(json_extract_string(properties, '$.amount') AS DOUBLE) > CAST(? AS DOUBLE) AND `+
		`timestamp < epoch_ms(CAST(? AS BIGINT)) AND `+
		`CAST(json_extract_string(properties, '$.url') AS VARCHAR) LIKE ?`, sql)

	require.Len(t, params, len(q.Filters))
	assert.Equal(t, "signup", params[0])
	assert.Equal(t, since.UnixMilli(), params[1])
	assert.Equal(t, `["pro","team"]`, params[2])
	assert.Equal(t, 10, params[3])
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC).UnixMilli(), params[4])
	assert.Equal(t, "%/pricing%", params[5])
}

func TestBuildNumericInList(t *testing.T) {
	q := Query{Filters: []FieldFilter{{Field: Field{Name: "level", IsProperty: true, Type: FieldNumber}, Operator: OpIn, Value: []any{1.0, 2.0}}}}
	sql, params := Build(q)
	assert.Contains(t, sql, `IN (SELECT unnest(from_json(?, '["DOUBLE"]')))`)
	assert.Equal(t, []any{"[1,2]"}, params)
}

func TestBuildGroupByOrderLimitOffset(t *testing.T) {
	q := Query{
		Aggregations: []Aggregation{{Function: Count, Alias: "n"}},
		GroupBy: []GroupBy{
			{Field: Field{Name: "timestamp"}, Bucket: BucketWeek, Alias: "week"},
			{Field: Field{Name: "event_type"}},
		},
		OrderBy: []string{"week ASC", "n DESC"},
		Limit:   intPtr(10),
		Offset:  intPtr(5),
	}
	sql, _ := Build(q)
	assert.Equal(t, `SELECT COUNT(*) AS "n", date_trunc('week', timestamp) AS "week", event_type AS "bucket_1" FROM events `+
		`GROUP BY "week", "bucket_1" ORDER BY week ASC, n DESC LIMIT 10 OFFSET 5`, sql)
}

func TestBuildIsDeterministic(t *testing.T) {
	q := Query{
		Filters: []FieldFilter{
			{Field: Field{Name: "event_type"}, Operator: OpNeq, Value: "pageview"},
			{Field: Field{Name: "$.browser"}, Operator: OpEq, Value: "firefox"},
		},
		Aggregations: []Aggregation{{Function: Max, Field: Field{Name: "$.load_ms", Type: FieldNumber}}},
		GroupBy:      []GroupBy{{Field: Field{Name: "timestamp"}, Bucket: BucketHour}},
	}
	sql1, params1 := Build(q)
	sql2, params2 := Build(q)
	assert.Equal(t, sql1, sql2)
	assert.Equal(t, params1, params2)
}

func TestMerge(t *testing.T) {
	base := Query{
		Filters:      []FieldFilter{{Field: Field{Name: "event_type"}, Operator: OpEq, Value: "signup"}},
		Aggregations: []Aggregation{{Function: Count, Alias: "value"}},
		Limit:        intPtr(10),
	}
	override := Query{
		Filters: []FieldFilter{{Field: Field{Name: "timestamp"}, Operator: OpGte, Value: "2024-01-01T00:00:00Z"}},
		GroupBy: []GroupBy{{Field: Field{Name: "timestamp"}, Bucket: BucketDay}},
		OrderBy: []string{"bucket_0"},
		Limit:   intPtr(99),
		Offset:  intPtr(3),
	}

	merged := Merge(base, override)
	require.Len(t, merged.Filters, 2)
	assert.Equal(t, "event_type", merged.Filters[0].Field.Name)
	assert.Equal(t, "timestamp", merged.Filters[1].Field.Name)
	assert.Len(t, merged.GroupBy, 1)
	assert.Equal(t, []string{"bucket_0"}, merged.OrderBy)
	assert.Len(t, merged.Aggregations, 1)
	require.NotNil(t, merged.Limit)
	assert.Equal(t, 10, *merged.Limit)
	assert.Nil(t, merged.Offset)

	// inputs untouched
	merged.Filters[0].Value = "changed"
	assert.Equal(t, "signup", base.Filters[0].Value)
	assert.Len(t, base.Filters, 1)
	assert.Len(t, override.Filters, 1)
	assert.Nil(t, base.GroupBy)
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(Query{}, Query{})
	assert.Nil(t, merged.Filters)
	sql, _ := Build(merged)
	assert.Equal(t, "SELECT * FROM events", sql)
}
