// Package validation statically verifies workflow definitions before they can
// be published or executed.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/helixflow/helixflow/pkg/models"
)

var (
	versionPattern      = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
	variableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	interpolationOpen   = "${"
)

// Error aggregates every violation found in one validation pass so callers
// can fix a definition without iterating.
type Error struct {
	Violations []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("definition validation failed with %d violation(s): %s",
		len(e.Violations), strings.Join(e.Violations, "; "))
}

// AsValidationError returns the aggregated violations when err came from this
// package.
func AsValidationError(err error) (*Error, bool) {
	validationErr, ok := err.(*Error)

	return validationErr, ok
}

// Validator checks the static shape of a workflow definition. It never
// mutates its input and has no runtime dependencies.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs all checks and returns nil or an *Error listing every
// violation found: structure, steps, flow, connectivity, then variables.
func (v *Validator) Validate(def *models.WorkflowDefinition) error {
	var violations []string

	violations = append(violations, v.checkStructure(def)...)
	violations = append(violations, v.checkSteps(&def.Graph)...)
	violations = append(violations, v.checkFlow(&def.Graph)...)
	violations = append(violations, v.checkConnectivity(&def.Graph)...)
	violations = append(violations, v.checkVariables(&def.Graph)...)

	if len(violations) > 0 {
		return &Error{Violations: violations}
	}

	return nil
}

func (v *Validator) checkStructure(def *models.WorkflowDefinition) []string {
	var violations []string

	if strings.TrimSpace(def.Name) == "" {
		violations = append(violations, "definition name must not be empty")
	}

	if def.Version != "" && !versionPattern.MatchString(def.Version) {
		violations = append(violations, fmt.Sprintf("version %q does not match major.minor[.patch]", def.Version))
	}

	if len(def.Graph.Steps) == 0 {
		violations = append(violations, "definition must contain at least one step")
	}

	return violations
}

func (v *Validator) checkSteps(graph *models.Graph) []string {
	var violations []string

	seen := make(map[string]bool, len(graph.Steps))

	for i, step := range graph.Steps {
		label := step.ID
		if label == "" {
			label = fmt.Sprintf("at index %d", i)
		}

		if step.ID == "" {
			violations = append(violations, fmt.Sprintf("step %s is missing an id", label))
		} else if seen[step.ID] {
			violations = append(violations, fmt.Sprintf("duplicate step id %q", step.ID))
		} else {
			seen[step.ID] = true
		}

		if step.Name == "" {
			violations = append(violations, fmt.Sprintf("step %s is missing a name", label))
		}

		if step.Type == "" {
			violations = append(violations, fmt.Sprintf("step %s is missing a type", label))
		} else if !validStepType(step.Type) {
			violations = append(violations, fmt.Sprintf("step %s has unknown type %q", label, step.Type))
		}

		violations = append(violations, v.checkStepConfig(step, label)...)
	}

	return violations
}

// checkStepConfig enforces type-specific required fields.
func (v *Validator) checkStepConfig(step *models.Step, label string) []string {
	var violations []string

	switch step.Type {
	case models.StepTypeScript:
		if s, _ := step.Config["script"].(string); strings.TrimSpace(s) == "" {
			violations = append(violations, fmt.Sprintf("script step %s must declare a script body", label))
		}

		if f, _ := step.Config["format"].(string); strings.TrimSpace(f) == "" {
			violations = append(violations, fmt.Sprintf("script step %s must declare a script format", label))
		}
	case models.StepTypeGateway:
		kind, _ := step.Config["gateway_kind"].(string)
		if !validGatewayKind(models.GatewayKind(kind)) {
			violations = append(violations,
				fmt.Sprintf("gateway step %s must declare a gateway_kind from %v, got %q", label, models.GatewayKinds, kind))
		}
	}

	return violations
}

func (v *Validator) checkFlow(graph *models.Graph) []string {
	var violations []string

	var startCount, endCount int

	stepIDs := make(map[string]bool, len(graph.Steps))

	for _, step := range graph.Steps {
		stepIDs[step.ID] = true

		switch step.Role() {
		case models.StepKindStart:
			startCount++
		case models.StepKindEnd:
			endCount++
		}
	}

	if startCount == 0 {
		violations = append(violations, "definition must declare a start step")
	}

	if endCount == 0 {
		violations = append(violations, "definition must declare at least one end step")
	}

	for _, conn := range graph.Connections {
		if !stepIDs[conn.From] {
			violations = append(violations, fmt.Sprintf("connection %s references unknown source step %q", conn.ID, conn.From))
		}

		if !stepIDs[conn.To] {
			violations = append(violations, fmt.Sprintf("connection %s references unknown target step %q", conn.ID, conn.To))
		}

		if conn.Condition != "" && !wellFormedCondition(conn.Condition) {
			violations = append(violations,
				fmt.Sprintf("connection %s has a malformed condition expression %q", conn.ID, conn.Condition))
		}
	}

	return violations
}

// checkConnectivity computes the forward-reachable set from all start steps by
// iterative closure over connections. Cycles are legal; unreachable steps are
// violations. Skipped when step or flow errors already make it meaningless.
func (v *Validator) checkConnectivity(graph *models.Graph) []string {
	starts := graph.StartSteps()
	if len(starts) == 0 || len(graph.Steps) == 0 {
		return nil
	}

	adjacency := make(map[string][]string, len(graph.Steps))
	for _, conn := range graph.Connections {
		adjacency[conn.From] = append(adjacency[conn.From], conn.To)
	}

	reachable := make(map[string]bool, len(graph.Steps))
	queue := make([]string, 0, len(starts))

	for _, start := range starts {
		reachable[start.ID] = true
		queue = append(queue, start.ID)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[current] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	var violations []string

	for _, step := range graph.Steps {
		if step.ID != "" && !reachable[step.ID] {
			violations = append(violations, fmt.Sprintf("step %q is not reachable from any start step", step.ID))
		}
	}

	return violations
}

func (v *Validator) checkVariables(graph *models.Graph) []string {
	var violations []string

	for _, variable := range graph.Variables {
		if !variableNamePattern.MatchString(variable.Name) {
			violations = append(violations, fmt.Sprintf("variable name %q is not a valid identifier", variable.Name))
		}

		if !validVariableType(variable.Type) {
			violations = append(violations,
				fmt.Sprintf("variable %q declares unknown type %q", variable.Name, variable.Type))
		}
	}

	return violations
}

func validStepType(t models.StepType) bool {
	for _, known := range models.StepTypes {
		if t == known {
			return true
		}
	}

	return false
}

func validGatewayKind(k models.GatewayKind) bool {
	for _, known := range models.GatewayKinds {
		if k == known {
			return true
		}
	}

	return false
}

func validVariableType(t models.VariableType) bool {
	for _, known := range models.VariableTypes {
		if t == known {
			return true
		}
	}

	return false
}

// wellFormedCondition accepts non-empty expressions using the recognized
// interpolation syntax: every "${" must have a matching "}".
func wellFormedCondition(expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}

	rest := expr
	for {
		idx := strings.Index(rest, interpolationOpen)
		if idx < 0 {
			return true
		}

		closing := strings.Index(rest[idx:], "}")
		if closing < 0 {
			return false
		}

		rest = rest[idx+closing+1:]
	}
}
