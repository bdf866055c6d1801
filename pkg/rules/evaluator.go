// Package rules implements the business-rule engine: condition evaluation,
// action translation and per-trigger rule coordination.
package rules

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/helixflow/helixflow/pkg/models"
)

// ErrUnknownOperator indicates a rule with an operator outside the supported
// set. This is a configuration error that validation should have caught; it
// is raised, never silently treated as false.
var ErrUnknownOperator = errors.New("unknown condition operator")

// Evaluator evaluates condition trees against data records. It is stateless
// and pure: it never mutates the record.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns true when every condition in the group holds (implicit
// AND). An empty group evaluates to true.
func (e *Evaluator) Evaluate(conditions models.ConditionGroup, record map[string]any) (bool, error) {
	for _, condition := range conditions {
		ok, err := e.evaluateOne(condition, record)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func (e *Evaluator) evaluateOne(condition models.Condition, record map[string]any) (bool, error) {
	fieldValue, present := lookupField(record, condition.Field)

	switch condition.Operator {
	case models.OpEquals:
		return deepEqual(fieldValue, condition.Value), nil
	case models.OpNotEquals:
		return !deepEqual(fieldValue, condition.Value), nil
	case models.OpGreaterThan:
		return compare(fieldValue, condition.Value) > 0, nil
	case models.OpLessThan:
		return compare(fieldValue, condition.Value) < 0, nil
	case models.OpGreaterThanOrEqual:
		return compare(fieldValue, condition.Value) >= 0, nil
	case models.OpLessThanOrEqual:
		return compare(fieldValue, condition.Value) <= 0, nil
	case models.OpContains:
		return contains(fieldValue, condition.Value), nil
	case models.OpStartsWith:
		return hasAffix(fieldValue, condition.Value, strings.HasPrefix), nil
	case models.OpEndsWith:
		return hasAffix(fieldValue, condition.Value, strings.HasSuffix), nil
	case models.OpIn:
		return member(condition.Value, fieldValue), nil
	case models.OpNotIn:
		return !member(condition.Value, fieldValue), nil
	case models.OpIsNull:
		return !present || fieldValue == nil, nil
	case models.OpIsNotNull:
		return present && fieldValue != nil, nil
	case models.OpMatchesRegex:
		return matchesRegex(fieldValue, condition.Value)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, condition.Operator)
	}
}

// lookupField walks a dot-separated path into nested records. Missing
// intermediate nodes short-circuit to "no value" instead of erroring.
func lookupField(record map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = record

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

// deepEqual compares values structurally, treating all numeric types through
// their decimal representation so 5 equals 5.0. nil equals nil.
func deepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, aok := toDecimal(a); aok {
		if bn, bok := toDecimal(b); bok {
			return an.Cmp(bn) == 0
		}
	}

	return reflect.DeepEqual(a, b)
}

// compare orders two values: arbitrary-precision decimal comparison when both
// sides are numeric, lexicographic string comparison otherwise. It never
// fails on type mismatch.
func compare(a, b any) int {
	if an, aok := toDecimal(a); aok {
		if bn, bok := toDecimal(b); bok {
			return an.Cmp(bn)
		}
	}

	return strings.Compare(stringify(a), stringify(b))
}

// toDecimal converts numeric values (and numeric strings) to big.Float.
func toDecimal(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case int:
		return big.NewFloat(0).SetInt64(int64(n)), true
	case int32:
		return big.NewFloat(0).SetInt64(int64(n)), true
	case int64:
		return big.NewFloat(0).SetInt64(n), true
	case float32:
		return big.NewFloat(float64(n)), true
	case float64:
		return big.NewFloat(n), true
	case string:
		parsed, _, err := big.ParseFloat(strings.TrimSpace(n), 10, 128, big.ToNearestEven)
		if err != nil {
			return nil, false
		}

		return parsed, true
	default:
		return nil, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}

// contains is case-insensitive substring match for strings and membership for
// array-valued fields.
func contains(fieldValue, value any) bool {
	switch field := fieldValue.(type) {
	case string:
		return strings.Contains(strings.ToLower(field), strings.ToLower(stringify(value)))
	case []any:
		for _, item := range field {
			if deepEqual(item, value) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func hasAffix(fieldValue, value any, affix func(string, string) bool) bool {
	field, ok := fieldValue.(string)
	if !ok {
		return false
	}

	return affix(strings.ToLower(field), strings.ToLower(stringify(value)))
}

// member checks fieldValue's membership in an array-valued condition value.
func member(conditionValue, fieldValue any) bool {
	list, ok := conditionValue.([]any)
	if !ok {
		return false
	}

	for _, item := range list {
		if deepEqual(item, fieldValue) {
			return true
		}
	}

	return false
}

func matchesRegex(fieldValue, pattern any) (bool, error) {
	patternStr, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("matches_regex requires a string pattern, got %T", pattern)
	}

	re, err := regexp.Compile(patternStr)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern %q: %w", patternStr, err)
	}

	field, ok := fieldValue.(string)
	if !ok {
		return false, nil
	}

	return re.MatchString(field), nil
}
