package backend

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// interpolate replaces every ${path} placeholder with the value found at the
// dot-separated path in vars. Missing paths render empty.
func interpolate(expr string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(expr, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])

		value, ok := lookup(vars, path)
		if !ok || value == nil {
			return ""
		}

		return fmt.Sprintf("%v", value)
	})
}

func lookup(vars map[string]any, path string) (any, bool) {
	var current any = vars

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// evaluateCondition interpolates a connection condition and decides whether
// the edge is taken. Supports "left == right" and "left != right" after
// interpolation; anything else is judged by truthiness of the rendered text.
// Empty conditions are always taken.
func evaluateCondition(condition string, vars map[string]any) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true
	}

	rendered := strings.TrimSpace(interpolate(condition, vars))

	if left, right, found := strings.Cut(rendered, "!="); found {
		return strings.TrimSpace(left) != strings.TrimSpace(right)
	}

	if left, right, found := strings.Cut(rendered, "=="); found {
		return strings.TrimSpace(left) == strings.TrimSpace(right)
	}

	return truthy(rendered)
}

func truthy(value string) bool {
	switch strings.ToLower(value) {
	case "", "false", "0", "no", "<nil>", "null":
		return false
	default:
		return true
	}
}
