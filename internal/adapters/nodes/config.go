package nodes

import (
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Node configs arrive as decoded JSON and are validated here, lazily, when
// the node is dispatched.

func stringValue(cfg map[string]interface{}, key string) string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func stringValueOr(cfg map[string]interface{}, key, fallback string) string {
	if s := stringValue(cfg, key); s != "" {
		return s
	}
	return fallback
}

// toNumber converts JSON numbers, Go numeric types and numeric strings.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func numberValue(cfg map[string]interface{}, key string) (float64, bool) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return 0, false
	}
	return toNumber(v)
}

func numberValueOr(cfg map[string]interface{}, key string, fallback float64) float64 {
	if n, ok := numberValue(cfg, key); ok {
		return n
	}
	return fallback
}

func mapValue(cfg map[string]interface{}, key string) map[string]interface{} {
	if m, ok := cfg[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}
