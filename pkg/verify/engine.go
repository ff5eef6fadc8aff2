// Package verify implements the output verifier: the trusted subsystem that
// checks an agent's proposed output against structural and semantic rules
// before the executor will act on it. Verification runs in two phases —
// JSON Schema structural validation, then an ordered list of semantic
// rules — and accumulates every failure rather than stopping at the first,
// so operators see the complete picture in one report.
package verify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

// CustomRuleFunc is a caller-supplied verification function. It receives
// the decoded AgentOutput payload and returns a non-empty failure message
// on failure, or "" on success.
type CustomRuleFunc func(payload interface{}) string

// Verifier combines JSON Schema structural validation with a registry of
// semantic rules. Custom rules are registered by the hosting application at
// startup — this keeps domain-specific knowledge out of the trusted core.
type Verifier struct {
	mu          sync.RWMutex
	customRules map[string]CustomRuleFunc
	logger      *slog.Logger
}

// New returns a verifier with no custom rules registered.
func New() *Verifier {
	return &Verifier{customRules: make(map[string]CustomRuleFunc), logger: slog.Default()}
}

// RegisterRule registers fn under name. The name must match the
// FunctionName field used by VerificationRuleType Custom rules. Registering
// the same name twice replaces the previous function — last write wins.
func (v *Verifier) RegisterRule(name string, fn CustomRuleFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.customRules[name] = fn
}

// Verify checks output against schema and returns the accumulated report.
func (v *Verifier) Verify(output contracts.AgentOutput, schema contracts.OutputSchema) (contracts.VerificationReport, error) {
	var failures []contracts.VerificationFailure

	var payload interface{}
	if len(output.Payload) > 0 {
		if err := json.Unmarshal(output.Payload, &payload); err != nil {
			return contracts.VerificationReport{}, fmt.Errorf("verify: decode output payload: %w", err)
		}
	}

	failures = append(failures, v.validateStructural(schema, payload)...)
	failures = append(failures, v.evaluateSemanticRules(schema, payload)...)

	passed := len(failures) == 0
	v.logger.Debug("verification complete", "schema_id", schema.SchemaID, "passed", passed, "failure_count", len(failures))

	return contracts.VerificationReport{Passed: passed, Failures: failures}, nil
}

// validateStructural runs phase 1: JSON Schema structural validation. An
// empty JSONSchema means "no structural constraint" and is skipped.
func (v *Verifier) validateStructural(schema contracts.OutputSchema, payload interface{}) []contracts.VerificationFailure {
	if len(schema.JSONSchema) == 0 || string(schema.JSONSchema) == "null" {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://stepguard.internal/schemas/%s.json", schema.SchemaID)
	if err := compiler.AddResource(schemaURL, strings.NewReader(string(schema.JSONSchema))); err != nil {
		return []contracts.VerificationFailure{{
			RuleID:  "json-schema",
			Message: fmt.Sprintf("invalid JSON Schema document: %v", err),
		}}
	}

	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		v.logger.Warn("schema compilation failure", "schema_id", schema.SchemaID, "error", err)
		return []contracts.VerificationFailure{{
			RuleID:  "json-schema",
			Message: fmt.Sprintf("invalid JSON Schema document: %v", err),
		}}
	}

	if err := compiled.Validate(payload); err != nil {
		var failures []contracts.VerificationFailure
		for _, msg := range flattenSchemaErrors(err) {
			v.logger.Warn("structural validation failure", "schema_id", schema.SchemaID, "message", msg)
			failures = append(failures, contracts.VerificationFailure{RuleID: "json-schema", Message: msg})
		}
		return failures
	}

	return nil
}

// flattenSchemaErrors walks a jsonschema.ValidationError tree and returns
// one human-readable message per leaf cause, so a single structural
// validation failure can surface every individual violation rather than
// only the outermost wrapper error.
func flattenSchemaErrors(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	if len(ve.Causes) == 0 {
		return []string{fmt.Sprintf("JSON Schema violation at %s: %s", ve.InstanceLocation, ve.Message)}
	}

	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenSchemaErrors(cause)...)
	}
	return out
}

// evaluateSemanticRules runs phase 2: the ordered semantic rule list.
func (v *Verifier) evaluateSemanticRules(schema contracts.OutputSchema, payload interface{}) []contracts.VerificationFailure {
	var failures []contracts.VerificationFailure

	for _, rule := range schema.Rules {
		v.logger.Debug("evaluating verification rule", "rule_id", rule.RuleID, "description", rule.Description)

		message := v.evaluateRule(rule, payload)
		if message != "" {
			v.logger.Warn("semantic rule failed", "rule_id", rule.RuleID, "message", message)
			failures = append(failures, contracts.VerificationFailure{RuleID: rule.RuleID, Message: message})
		}
	}

	return failures
}

func (v *Verifier) evaluateRule(rule contracts.VerificationRule, payload interface{}) string {
	switch rule.Type {
	case contracts.RuleTypeRequiredField:
		if _, ok := resolvePath(payload, rule.FieldPath); !ok {
			return fmt.Sprintf("required field '%s' is missing or null", rule.FieldPath)
		}
		return ""

	case contracts.RuleTypeAllowedValues:
		actual, ok := resolvePath(payload, rule.FieldPath)
		if !ok {
			return fmt.Sprintf("field '%s' is missing; cannot check allowed values", rule.FieldPath)
		}
		if valueInAllowedSet(actual, rule.Allowed) {
			return ""
		}
		return fmt.Sprintf("field '%s' has value %v which is not in the allowed set", rule.FieldPath, actual)

	case contracts.RuleTypeForbiddenPattern:
		actual, ok := resolvePath(payload, rule.FieldPath)
		if !ok {
			return "" // field absent — nothing to check
		}
		s, ok := actual.(string)
		if !ok {
			return "" // non-string value — rule does not apply
		}
		if strings.Contains(s, rule.Pattern) {
			return fmt.Sprintf("field '%s' contains forbidden pattern '%s'", rule.FieldPath, rule.Pattern)
		}
		return ""

	case contracts.RuleTypeCustom:
		v.mu.RLock()
		fn, ok := v.customRules[rule.FunctionName]
		v.mu.RUnlock()
		if !ok {
			return fmt.Sprintf("no custom rule registered for function name '%s'", rule.FunctionName)
		}
		return fn(payload)

	default:
		return fmt.Sprintf("unknown verification rule type '%s'", rule.Type)
	}
}

// resolvePath resolves a dot-separated field path (e.g. "patient.id")
// against a decoded JSON value. Returns ok=false when any segment is
// missing, the current value is not an object, or the resolved value is
// JSON null.
func resolvePath(value interface{}, path string) (interface{}, bool) {
	current := value
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, present := obj[segment]
		if !present || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

func valueInAllowedSet(actual interface{}, allowed []json.RawMessage) bool {
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if jsonEqual(actualJSON, a) {
			return true
		}
	}
	return false
}

// jsonEqual compares two JSON byte slices by decoding both and comparing
// the decoded values with reflect-free structural equality (deepEqual), so
// e.g. `1` and `1.0` compare equal and key order in object values never
// matters.
func jsonEqual(a, b []byte) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return deepEqual(av, bv)
}

func deepEqual(a, b interface{}) bool {
	switch at := a.(type) {
	case map[string]interface{}:
		bt, ok := b.(map[string]interface{})
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, v := range at {
			bv, ok := bt[k]
			if !ok || !deepEqual(v, bv) {
				return false
			}
		}
		return true
	case []interface{}:
		bt, ok := b.([]interface{})
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !deepEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
