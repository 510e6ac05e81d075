package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
)

// =============================================================================
// EXCLUSION CONDITIONS - CEL over the situation
// =============================================================================

// conditionSet holds compiled exclusion programs. Programs are compiled once
// at engine construction so a malformed expression fails at startup.
type conditionSet struct {
	conditions []Condition
	programs   []cel.Program
}

func compileConditions(conditions []Condition) (*conditionSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("situation", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	set := &conditionSet{conditions: conditions}
	for _, c := range conditions {
		ast, issues := env.Compile(c.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("condition %s: compile: %w", c.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
			return nil, fmt.Errorf("condition %s: expression must be boolean", c.ID)
		}
		prg, err := env.Program(ast, cel.CostLimit(10000))
		if err != nil {
			return nil, fmt.Errorf("condition %s: program: %w", c.ID, err)
		}
		set.programs = append(set.programs, prg)
	}
	return set, nil
}

// excluded returns the first condition that holds for the situation.
func (s *conditionSet) excluded(situation generic.Situation) (*Condition, error) {
	if len(s.programs) == 0 {
		return nil, nil
	}
	input := map[string]any{"situation": celSituation(situation)}
	for i, prg := range s.programs {
		out, _, err := prg.Eval(input)
		if err != nil {
			return nil, fmt.Errorf("condition %s: eval: %w", s.conditions[i].ID, err)
		}
		holds, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("condition %s: result not bool", s.conditions[i].ID)
		}
		if holds {
			return &s.conditions[i], nil
		}
	}
	return nil, nil
}

// celSituation converts situation values to types CEL understands natively.
func celSituation(situation generic.Situation) map[string]any {
	out := make(map[string]any, len(situation))
	for k, v := range situation {
		switch val := v.(type) {
		case decimal.Decimal:
			f, _ := val.Float64()
			out[string(k)] = f
		case []decimal.Decimal:
			list := make([]any, len(val))
			for i, d := range val {
				list[i], _ = d.Float64()
			}
			out[string(k)] = list
		case int:
			out[string(k)] = int64(val)
		default:
			out[string(k)] = v
		}
	}
	return out
}
