package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToNumber converts numeric values, numeric strings and booleans to float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

// LooseEqual compares two JSON values with JavaScript-style loose equality:
// numbers by value, numeric strings against numbers, nil only equal to nil.
// Objects and arrays never compare equal.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	}
	if isNumeric(a) || isNumeric(b) {
		an, aok := ToNumber(a)
		bn, bok := ToNumber(b)
		return aok && bok && an == bn
	}
	return false
}

// Compare orders two values. Two strings compare lexically; otherwise both
// sides must convert to numbers. ok is false when the values are not ordered.
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	an, aok := ToNumber(a)
	bn, bok := ToNumber(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case an < bn:
		return -1, true
	case an > bn:
		return 1, true
	default:
		return 0, true
	}
}

// Truthy mirrors JavaScript truthiness for JSON values.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		if n, ok := ToNumber(v); ok && isNumeric(v) {
			return n != 0
		}
		return true
	}
}
