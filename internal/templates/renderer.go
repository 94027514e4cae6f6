// Package templates renders customer-facing messages. Templates may use
// {{var}} or the older {var} placeholder syntax, dotted paths such as
// {{ticket.number}}, and {{if cond}}...{{else}}...{{endif}} blocks.
package templates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const pathExpr = `[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*|\[\d+\])*`

var (
	// {{if condition}}...{{else}}...{{endif}} or {{if condition}}...{{endif}}
	ifElsePattern = regexp.MustCompile(`\{\{if\s+([^}]+)\}\}([\s\S]*?)\{\{endif\}\}`)

	// {{variable}}, {{ variable }} or {variable}, then any other {{...}} left
	// over (free text, stray if/else/endif), which always renders empty. One
	// pass, so substituted values are never rescanned.
	placeholderPattern = regexp.MustCompile(`\{\{\s*(` + pathExpr + `)\s*\}\}|\{(` + pathExpr + `)\}|\{\{[^{}]*\}\}`)

	// variable, variable == 'value', variable > 100, etc.
	conditionPattern = regexp.MustCompile(`^(\w+(?:\.\w+)*)\s*(==|!=|>=|<=|>|<)?\s*(.*)$`)
)

// Render substitutes data into tmpl. Placeholders with no value are removed.
func Render(tmpl string, data map[string]interface{}) string {
	if data == nil {
		data = make(map[string]interface{})
	}
	result := processConditionals(tmpl, data)
	return processVariables(result, data)
}

func processConditionals(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for {
		match := ifElsePattern.FindStringSubmatchIndex(result)
		if match == nil {
			break
		}

		condition := strings.TrimSpace(result[match[2]:match[3]])
		body := result[match[4]:match[5]]

		ifPart := body
		elsePart := ""
		if idx := strings.Index(body, "{{else}}"); idx != -1 {
			ifPart = body[:idx]
			elsePart = body[idx+len("{{else}}"):]
		}

		output := elsePart
		if evaluateCondition(condition, data) {
			output = ifPart
		}

		result = result[:match[0]] + output + result[match[1]:]
	}

	return result
}

func processVariables(tmpl string, data map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		path := sub[1]
		if path == "" {
			path = sub[2]
		}
		if path == "" {
			return ""
		}
		return formatValue(getNestedValue(data, path))
	})
}

// getNestedValue resolves "name", "ticket.number" or "items[0].name" in data.
func getNestedValue(data map[string]interface{}, path string) interface{} {
	if data == nil || path == "" {
		return nil
	}

	var current interface{} = data
	for _, part := range splitPath(path) {
		if current == nil {
			return nil
		}

		field, index := part, -1
		if i := strings.Index(part, "["); i != -1 {
			n, err := strconv.Atoi(part[i+1 : len(part)-1])
			if err != nil {
				return nil
			}
			field, index = part[:i], n
		}

		if field != "" {
			m, ok := asMap(current)
			if !ok {
				return nil
			}
			current = m[field]
		}

		if index >= 0 {
			arr, ok := current.([]interface{})
			if !ok || index >= len(arr) {
				return nil
			}
			current = arr[index]
		}
	}

	return current
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func splitPath(path string) []string {
	var parts []string
	var current strings.Builder

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		case '[':
			current.WriteByte(ch)
			for i++; i < len(path) && path[i] != ']'; i++ {
				current.WriteByte(path[i])
			}
			current.WriteByte(']')
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func evaluateCondition(condition string, data map[string]interface{}) bool {
	matches := conditionPattern.FindStringSubmatch(strings.TrimSpace(condition))
	if matches == nil {
		return false
	}

	value := getNestedValue(data, matches[1])
	operator := matches[2]
	compareValue := strings.TrimSpace(matches[3])

	if operator == "" {
		return isTruthy(value)
	}

	if len(compareValue) >= 2 {
		first, last := compareValue[0], compareValue[len(compareValue)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			compareValue = compareValue[1 : len(compareValue)-1]
		}
	}

	switch operator {
	case "==":
		return formatValue(value) == compareValue
	case "!=":
		return formatValue(value) != compareValue
	case ">":
		return compareNumeric(value, compareValue) > 0
	case "<":
		return compareNumeric(value, compareValue) < 0
	case ">=":
		return compareNumeric(value, compareValue) >= 0
	case "<=":
		return compareNumeric(value, compareValue) <= 0
	}
	return false
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	}
	return true
}

// compareNumeric returns -1, 0 or 1. Non-numeric operands compare equal.
func compareNumeric(value interface{}, compareValue string) int {
	left, err := strconv.ParseFloat(formatValue(value), 64)
	if err != nil {
		return 0
	}
	right, err := strconv.ParseFloat(compareValue, 64)
	if err != nil {
		return 0
	}
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	}
	return 0
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", value)
}
