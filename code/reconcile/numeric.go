package reconcile

import (
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
)

// ToFloat64 coerces an engine value to float64. HUGEINT arrives as *big.Int and DECIMAL as
// duckdb.Decimal; both lose precision beyond 2^53.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *big.Int:
		if n == nil {
			return 0, false
		}
		return decimal.NewFromBigInt(n, 0).InexactFloat64(), true
	case duckdb.Decimal:
		if n.Value == nil {
			return 0, false
		}
		return decimal.NewFromBigInt(n.Value, -int32(n.Scale)).InexactFloat64(), true
	case *duckdb.Decimal:
		if n == nil {
			return 0, false
		}
		return ToFloat64(*n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
