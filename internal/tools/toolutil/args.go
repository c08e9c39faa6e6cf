// Package toolutil holds argument helpers shared by the local tools.
// Tool arguments arrive as map[string]any from JSON decoding or textual
// coercion, so numbers may be float64, int, or string.
package toolutil

import (
	"fmt"
	"strconv"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

// String returns the named string argument.
func String(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

// RequiredString returns the named string argument or a parameter error.
func RequiredString(args map[string]any, key string) (string, error) {
	v, ok := String(args, key)
	if !ok || v == "" {
		return "", errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			fmt.Sprintf("missing required parameter %q", key))
	}
	return v, nil
}

// Int returns the named argument as an int, accepting float64, int, and
// numeric strings.
func Int(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Float returns the named argument as a float64, accepting float64,
// int, and numeric strings.
func Float(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// IntOr returns the named int argument or a default.
func IntOr(args map[string]any, key string, def int) int {
	if v, ok := Int(args, key); ok {
		return v
	}
	return def
}

// Bool returns the named argument as a bool, accepting bool and the
// strings "true"/"false".
func Bool(args map[string]any, key string) (bool, bool) {
	switch v := args[key].(type) {
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, true
		}
	}
	return false, false
}

// BoolOr returns the named bool argument or a default.
func BoolOr(args map[string]any, key string, def bool) bool {
	if v, ok := Bool(args, key); ok {
		return v
	}
	return def
}

// StringSlice returns the named argument as a string slice, accepting
// []string and []any of strings.
func StringSlice(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
