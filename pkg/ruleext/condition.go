// Package ruleext supplements the policy engine's literal-or-"*" pattern
// matching with an optional CEL expression condition a rule may declare.
// This is additive: a rule document with no Condition fields behaves
// exactly as the engine's base pattern matching describes. When a
// condition is present, the rule only matches once its action/resource
// patterns match AND the condition evaluates to true against the policy
// context.
package ruleext

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

// Evaluator holds one compiled CEL program per rule ID that declares a
// Condition. Programs are compiled once, at construction time, from the
// full rule set — never per-evaluation — so the policy engine's hot path
// stays I/O-free and allocation-light.
type Evaluator struct {
	env      *cel.Env
	programs map[string]cel.Program
}

// NewEvaluator compiles the Condition expression of every rule in rules
// that declares one. A rule with an empty Condition has no entry and is
// always treated as matching (see Matches). A compile error for any one
// rule's condition is returned immediately — a malformed condition is a
// configuration error, caught at load time rather than masked at
// evaluation time.
func NewEvaluator(rules []contracts.PolicyRule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("agent_id", cel.StringType),
		cel.Variable("execution_id", cel.StringType),
		cel.Variable("current_phase", cel.StringType),
		cel.Variable("capabilities", cel.ListType(cel.StringType)),
		cel.Variable("metadata", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("ruleext: create CEL environment: %w", err)
	}

	programs := make(map[string]cel.Program)
	for _, rule := range rules {
		if rule.Condition == "" {
			continue
		}

		ast, issues := env.Compile(rule.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("ruleext: compile condition for rule %q: %w", rule.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("ruleext: condition for rule %q must evaluate to bool, got %s", rule.ID, ast.OutputType())
		}

		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("ruleext: build program for rule %q: %w", rule.ID, err)
		}
		programs[rule.ID] = prg
	}

	return &Evaluator{env: env, programs: programs}, nil
}

// Matches reports whether rule's condition (if any) holds for ctx. A rule
// with no Condition always matches. A compile-time error can't reach this
// point (NewEvaluator already rejected it); a runtime evaluation error is
// treated as fail-closed — the rule is skipped, never treated as a match.
func (e *Evaluator) Matches(rule contracts.PolicyRule, ctx contracts.PolicyContext) bool {
	if rule.Condition == "" {
		return true
	}

	prg, ok := e.programs[rule.ID]
	if !ok {
		return true
	}

	metadata, err := decodeMetadata(ctx.Metadata)
	if err != nil {
		return false
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"action":        ctx.Action,
		"resource":      ctx.Resource,
		"agent_id":      ctx.AgentId,
		"execution_id":  ctx.ExecutionId,
		"current_phase": ctx.CurrentPhase,
		"capabilities":  ctx.Capabilities,
		"metadata":      metadata,
	})
	if err != nil {
		return false
	}

	matched, ok := out.Value().(bool)
	return ok && matched
}
