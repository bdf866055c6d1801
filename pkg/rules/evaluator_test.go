package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/models"
)

func TestEvaluator_Evaluate_EmptyGroupMatches(t *testing.T) {
	evaluator := NewEvaluator()

	matched, err := evaluator.Evaluate(models.ConditionGroup{}, map[string]any{"status": "open"})

	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluator_Evaluate_ImplicitAnd(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{"status": "open", "amount": 150.0}

	matched, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "status", Operator: models.OpEquals, Value: "open"},
		{Field: "amount", Operator: models.OpGreaterThan, Value: 100},
	}, record)

	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = evaluator.Evaluate(models.ConditionGroup{
		{Field: "status", Operator: models.OpEquals, Value: "open"},
		{Field: "amount", Operator: models.OpGreaterThan, Value: 200},
	}, record)

	require.NoError(t, err)
	assert.False(t, matched)
}

func TestEvaluator_Evaluate_NumericEqualityAcrossTypes(t *testing.T) {
	evaluator := NewEvaluator()

	// JSON decoding yields float64; rule authors often write integers.
	matched, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "count", Operator: models.OpEquals, Value: 5},
	}, map[string]any{"count": 5.0})

	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluator_Evaluate_NestedFieldPath(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{
		"customer": map[string]any{
			"address": map[string]any{"country": "BR"},
		},
	}

	matched, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "customer.address.country", Operator: models.OpEquals, Value: "BR"},
	}, record)

	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluator_Evaluate_MissingPathIsNull(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{"customer": map[string]any{}}

	matched, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "customer.address.country", Operator: models.OpIsNull},
	}, record)

	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = evaluator.Evaluate(models.ConditionGroup{
		{Field: "customer.address.country", Operator: models.OpIsNotNull},
	}, record)

	require.NoError(t, err)
	assert.False(t, matched)

	// A missing field never equals anything.
	matched, err = evaluator.Evaluate(models.ConditionGroup{
		{Field: "customer.address.country", Operator: models.OpEquals, Value: "BR"},
	}, record)

	require.NoError(t, err)
	assert.False(t, matched)
}

func TestEvaluator_Evaluate_StringOperators(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{"email": "Ana.Silva@Example.com"}

	cases := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{"contains is case-insensitive", models.Condition{Field: "email", Operator: models.OpContains, Value: "silva"}, true},
		{"starts_with", models.Condition{Field: "email", Operator: models.OpStartsWith, Value: "ana."}, true},
		{"ends_with", models.Condition{Field: "email", Operator: models.OpEndsWith, Value: "@example.com"}, true},
		{"contains miss", models.Condition{Field: "email", Operator: models.OpContains, Value: "souza"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			matched, err := evaluator.Evaluate(models.ConditionGroup{tc.condition}, record)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, matched)
		})
	}
}

func TestEvaluator_Evaluate_MembershipOperators(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{"status": "open", "tags": []any{"vip", "priority"}}

	matched, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "status", Operator: models.OpIn, Value: []any{"open", "pending"}},
	}, record)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = evaluator.Evaluate(models.ConditionGroup{
		{Field: "status", Operator: models.OpNotIn, Value: []any{"closed", "archived"}},
	}, record)
	require.NoError(t, err)
	assert.True(t, matched)

	// contains on an array-valued field checks membership.
	matched, err = evaluator.Evaluate(models.ConditionGroup{
		{Field: "tags", Operator: models.OpContains, Value: "vip"},
	}, record)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluator_Evaluate_MatchesRegex(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{"sku": "AB-1234"}

	matched, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "sku", Operator: models.OpMatchesRegex, Value: `^[A-Z]{2}-\d{4}$`},
	}, record)
	require.NoError(t, err)
	assert.True(t, matched)

	_, err = evaluator.Evaluate(models.ConditionGroup{
		{Field: "sku", Operator: models.OpMatchesRegex, Value: `([`},
	}, record)
	assert.Error(t, err)
}

func TestEvaluator_Evaluate_UnknownOperatorErrors(t *testing.T) {
	evaluator := NewEvaluator()

	_, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "status", Operator: "approximately", Value: "open"},
	}, map[string]any{"status": "open"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestEvaluator_Evaluate_DoesNotMutateRecord(t *testing.T) {
	evaluator := NewEvaluator()
	record := map[string]any{"status": "open", "amount": 10.0}

	_, err := evaluator.Evaluate(models.ConditionGroup{
		{Field: "status", Operator: models.OpEquals, Value: "open"},
		{Field: "amount", Operator: models.OpLessThanOrEqual, Value: 10},
	}, record)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "open", "amount": 10.0}, record)
}
