package engine

import (
	"context"
	"fmt"
)

// property types reported by json_type, folded onto query field types
var jsonTypes = map[string]string{
	"VARCHAR": "string",
	"BIGINT":  "number",
	"UBIGINT": "number",
	"DOUBLE":  "number",
	"BOOLEAN": "boolean",
	"OBJECT":  "json",
	"ARRAY":   "json",
	"NULL":    "string",
}

const schemaQuery = `
SELECT event_type, key, MIN(json_type(json_extract(properties, '$."' || replace(key, '"', '\"') || '"'))) AS type
FROM (SELECT event_type, properties, unnest(json_keys(properties)) AS key FROM events)
GROUP BY event_type, key
ORDER BY event_type, key`

// Schema derives the property names and types seen per event type from the loaded events
func (e *Engine) Schema(ctx context.Context) (map[string]map[string]string, error) {
	rows, err := e.RunSQL(ctx, schemaQuery)
	if err != nil {
		return nil, fmt.Errorf("derive schema: %w", err)
	}
	out := make(map[string]map[string]string)
	for _, r := range rows {
		eventType, key, jt := asString(r["event_type"]), asString(r["key"]), asString(r["type"])
		props, ok := out[eventType]
		if !ok {
			props = make(map[string]string)
			out[eventType] = props
		}
		t, ok := jsonTypes[jt]
		if !ok {
			t = "string"
		}
		props[key] = t
	}
	return out, nil
}
