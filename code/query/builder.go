package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Table is the only table queries read from
const Table = "events"

// Build compiles q into SQL text and positional parameters. The result depends only on q,
// and params holds exactly one value per filter, in filter order.
func Build(q Query) (string, []any) {
	var sel []string
	for _, a := range q.Aggregations {
		sel = append(sel, aggregationExpr(a))
	}
	for _, f := range q.Select {
		sel = append(sel, selectExpr(f))
	}
	groupAliases := make([]string, 0, len(q.GroupBy))
	for i, g := range q.GroupBy {
		alias := quoteIdent(GroupAlias(g, i))
		sel = append(sel, groupExpr(g)+" AS "+alias)
		groupAliases = append(groupAliases, alias)
	}
	if len(sel) == 0 {
		sel = []string{"*"}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(sel, ", "))
	b.WriteString(" FROM ")
	b.WriteString(Table)

	params := make([]any, 0, len(q.Filters))
	if len(q.Filters) > 0 {
		conds := make([]string, 0, len(q.Filters))
		for _, f := range q.Filters {
			cond, param := filterExpr(f)
			conds = append(conds, cond)
			params = append(params, param)
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if len(groupAliases) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groupAliases, ", "))
	}
	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.OrderBy, ", "))
	}
	if q.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.Limit)
	}
	if q.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.Offset)
	}
	return b.String(), params
}

// GroupAlias returns the column name the i-th groupBy entry is selected as
func GroupAlias(g GroupBy, i int) string {
	if g.Alias != "" {
		return g.Alias
	}
	return fmt.Sprintf("bucket_%d", i)
}

func aggregationExpr(a Aggregation) string {
	expr := aggregationCall(a)
	if a.Alias != "" {
		expr += " AS " + quoteIdent(a.Alias)
	}
	return expr
}

func aggregationCall(a Aggregation) string {
	fn := strings.ToUpper(string(a.Function))
	if fn == "" {
		fn = string(Count)
	}
	if AggregateFunc(fn) == Count && (a.Field.Name == "" || a.Field.Name == "*") {
		return "COUNT(*)"
	}
	var operand string
	if AggregateFunc(fn) == Count {
		operand = resolveField(a.Field)
	} else {
		operand = resolveAs(a.Field, FieldNumber)
	}
	if a.Distinct {
		operand = "DISTINCT " + operand
	}
	return fmt.Sprintf("%s(%s)", fn, operand)
}

func selectExpr(f Field) string {
	expr := resolveField(f)
	if expr == f.Name {
		return expr
	}
	return expr + " AS " + quoteIdent(f.Name)
}

func groupExpr(g GroupBy) string {
	if g.Bucket == NoBucket {
		return resolveField(g.Field)
	}
	t := g.Field.Type
	if t == "" {
		t = FieldTimestamp
	}
	return fmt.Sprintf("date_trunc(%s, %s)", literal(string(g.Bucket)), resolveAs(g.Field, t))
}

// filterExpr returns "expr op placeholder" and the value bound to the placeholder
func filterExpr(f FieldFilter) (string, any) {
	expr := resolveField(f.Field)
	op := strings.ToUpper(string(f.Operator))
	if Operator(op) == OpIn {
		list, elemType := inList(f.Value)
		return fmt.Sprintf("%s IN (SELECT unnest(from_json(?, '[\"%s\"]')))", expr, elemType), list
	}
	placeholder, param := bindValue(f.Field, f.Value)
	return fmt.Sprintf("%s %s %s", expr, op, placeholder), param
}

// bindValue casts numeric values to DOUBLE and sends dates as epoch milliseconds, turned back
// into a TIMESTAMP in SQL, so no locale or zone dependent date text reaches the engine.
func bindValue(field Field, v any) (string, any) {
	switch val := v.(type) {
	case time.Time:
		return "epoch_ms(CAST(? AS BIGINT))", val.UnixMilli()
	case *time.Time:
		if val != nil {
			return "epoch_ms(CAST(? AS BIGINT))", val.UnixMilli()
		}
	case string:
		if effectiveType(field) == FieldTimestamp {
			if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
				return "epoch_ms(CAST(? AS BIGINT))", t.UnixMilli()
			}
		}
	case json.Number:
		if n, err := val.Float64(); err == nil {
			return "CAST(? AS DOUBLE)", n
		}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "CAST(? AS DOUBLE)", val
	}
	return "?", v
}

// inList encodes an IN operand as one JSON array parameter
func inList(v any) (string, string) {
	elemType := "VARCHAR"
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		v = []any{v}
		rv = reflect.ValueOf(v)
	}
	if rv.Len() > 0 {
		numeric := true
		for i := 0; i < rv.Len(); i++ {
			if !isNumber(rv.Index(i).Interface()) {
				numeric = false
				break
			}
		}
		if numeric {
			elemType = "DOUBLE"
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]", elemType
	}
	return string(b), elemType
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}
