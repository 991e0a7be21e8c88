package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// PropertiesColumn holds the schema-less event attributes as JSON
const PropertiesColumn = "properties"

// jsonPathMarker prefixes field names that address into the properties column directly
const jsonPathMarker = "$"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// native types of the fixed events columns
var columnTypes = map[string]FieldType{
	"id":             FieldString,
	"timestamp":      FieldTimestamp,
	"event_type":     FieldString,
	"distinct_id":    FieldString,
	"person_id":      FieldString,
	PropertiesColumn: FieldJSON,
}

func sqlType(t FieldType) string {
	switch t {
	case FieldNumber:
		return "DOUBLE"
	case FieldBoolean:
		return "BOOLEAN"
	case FieldTimestamp:
		return "TIMESTAMP"
	case FieldJSON:
		return "JSON"
	default:
		return "VARCHAR"
	}
}

func isPropertyField(f Field) bool {
	return f.IsProperty || strings.HasPrefix(f.Name, jsonPathMarker)
}

// effectiveType is the type resolveField produces for f
func effectiveType(f Field) FieldType {
	if f.Type != "" {
		return f.Type
	}
	if isPropertyField(f) {
		return FieldString
	}
	return columnTypes[f.Name]
}

// resolveField compiles a field to an SQL expression of the field's declared type.
func resolveField(f Field) string {
	return resolveAs(f, f.Type)
}

// resolveAs compiles a field to an SQL expression of type t. An empty t means string for
// properties and the native type for columns.
func resolveAs(f Field, t FieldType) string {
	if isPropertyField(f) {
		path := literal(jsonPath(f.Name))
		if t == FieldJSON {
			return fmt.Sprintf("json_extract(%s, %s)", PropertiesColumn, path)
		}
		if t == "" {
			t = FieldString
		}
		return fmt.Sprintf("CAST(json_extract_string(%s, %s) AS %s)", PropertiesColumn, path, sqlType(t))
	}
	if t == "" || columnTypes[f.Name] == t {
		return f.Name
	}
	return fmt.Sprintf("CAST(%s AS %s)", f.Name, sqlType(t))
}

// jsonPath converts a property name or a $-marked JSONPath into DuckDB's JSON path syntax.
// Only child and index steps are supported; anything else is passed through unchanged and
// left for the engine to reject.
func jsonPath(name string) string {
	if !strings.HasPrefix(name, jsonPathMarker) {
		return "$" + pathKey(name)
	}
	x, err := jp.ParseString(name)
	if err != nil {
		return name
	}
	var b strings.Builder
	for _, frag := range x {
		switch f := frag.(type) {
		case jp.Root:
			b.WriteString("$")
		case jp.Bracket:
		case jp.Child:
			b.WriteString(pathKey(string(f)))
		case jp.Nth:
			fmt.Fprintf(&b, "[%d]", int(f))
		default:
			return name
		}
	}
	return b.String()
}

func pathKey(key string) string {
	if identPattern.MatchString(key) {
		return "." + key
	}
	return `."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

// literal renders s as an SQL string literal
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent renders s as a quoted SQL identifier
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
