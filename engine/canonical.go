package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// floatPrecision is how many decimal digits survive normalization. Inputs that
// differ only past this precision hash identically.
const floatPrecision = 10

// Normalize converts value into its canonical in-memory form:
// nil and booleans pass through; floats are rounded to 10 decimal digits
// (NaN becomes 0, ±Inf clamps to the float64 extremes); integers pass through
// as int64; strings are trimmed; slices are normalized element-wise in order;
// maps are normalized per value (encoding/json emits map keys in sorted order,
// which is what makes the encoding byte-stable); everything else is converted
// to a key-value form through a JSON round-trip first.
func Normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		return v
	case string:
		return strings.TrimSpace(v)
	case float64:
		return normalizeFloat(v)
	case float32:
		return normalizeFloat(float64(v))
	case decimal.Decimal:
		// Already a normalized float; keep it so Normalize is idempotent.
		return v.Round(floatPrecision)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, err := v.Float64()
		if err != nil {
			return strings.TrimSpace(v.String())
		}
		return normalizeFloat(f)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = Normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	default:
		return Normalize(toJSONValue(v))
	}
}

func normalizeFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) {
		return decimal.Zero
	}
	if math.IsInf(f, 1) {
		f = math.MaxFloat64
	}
	if math.IsInf(f, -1) {
		f = -math.MaxFloat64
	}
	return decimal.NewFromFloat(f).Round(floatPrecision)
}

// toJSONValue flattens structs, typed maps and typed slices into the
// map[string]interface{} / []interface{} shapes Normalize understands.
func toJSONValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// Canonicalize serializes Normalize(data) to its byte-stable encoding. Two
// structurally equal inputs always produce identical bytes regardless of map
// insertion order.
func Canonicalize(data interface{}) ([]byte, error) {
	return json.Marshal(Normalize(data))
}

// GenerateHash returns the SHA-256 hex digest of the canonical encoding.
func GenerateHash(data interface{}) (string, error) {
	canonical, err := Canonicalize(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// AreEqual reports whether a and b have identical canonical encodings.
func AreEqual(a, b interface{}) (bool, error) {
	ca, err := Canonicalize(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonicalize(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
