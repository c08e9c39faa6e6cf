package agent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// recognizer matches one textual tool-call form. The list is
// data-driven so new forms can be added without touching the agent.
type recognizer struct {
	name    string
	pattern *regexp.Regexp
	// knownOnly restricts matches to registered tool names. The bare
	// Name(args) form would otherwise swallow ordinary prose like
	// "Print(x)".
	knownOnly bool
}

var defaultRecognizers = []recognizer{
	{
		name:    "function_call",
		pattern: regexp.MustCompile(`(?s)<function_call>\s*(\w+)\s*\((.*?)\)\s*</function_call>`),
	},
	{
		name:      "bare",
		pattern:   regexp.MustCompile(`\b([A-Z][A-Za-z_]*)\(([^()]*)\)`),
		knownOnly: true,
	},
}

// ExtractToolCalls parses tool invocations out of the model's visible
// text. Recognizers run in order; once one form matches, later forms
// are not tried. known is the set of registered tool names used by the
// restricted recognizers.
func ExtractToolCalls(text string, known map[string]bool) []models.ToolCall {
	for _, rec := range defaultRecognizers {
		matches := rec.pattern.FindAllStringSubmatch(text, -1)
		var calls []models.ToolCall
		for _, match := range matches {
			name := match[1]
			if rec.knownOnly && !known[name] {
				continue
			}
			calls = append(calls, models.ToolCall{
				ID:        uuid.NewString(),
				Name:      name,
				Arguments: ParseArguments(match[2]),
			})
		}
		if len(calls) > 0 {
			return calls
		}
	}
	return nil
}

// ParseArguments parses a tool argument string. Input starting with
// "{" parses as JSON; anything else parses as comma-separated
// key=value pairs with scalar type coercion.
func ParseArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	if strings.HasPrefix(raw, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(raw), &args); err == nil {
			return args
		}
		// Fall through to key=value parsing on malformed JSON.
	}

	args := map[string]any{}
	for _, pair := range splitArgs(raw) {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		args[strings.TrimSpace(key)] = coerceScalar(strings.TrimSpace(value))
	}
	return args
}

// splitArgs splits on commas outside of quotes.
func splitArgs(raw string) []string {
	var parts []string
	var sb strings.Builder
	var quote rune
	for _, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			sb.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			sb.WriteRune(r)
		case r == ',':
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return parts
}

// coerceScalar converts a textual value to bool, int, or float when it
// parses as one; quoted strings lose their quotes.
func coerceScalar(value string) any {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
