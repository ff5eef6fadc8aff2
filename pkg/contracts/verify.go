package contracts

import "encoding/json"

// VerificationRuleType discriminates the kind of semantic check a
// VerificationRule performs.
type VerificationRuleType string

const (
	RuleTypeRequiredField    VerificationRuleType = "required_field"
	RuleTypeAllowedValues    VerificationRuleType = "allowed_values"
	RuleTypeForbiddenPattern VerificationRuleType = "forbidden_pattern"
	RuleTypeCustom           VerificationRuleType = "custom"
)

// VerificationRule is a single check applied to an agent output, run after
// structural JSON-Schema validation.
type VerificationRule struct {
	RuleID      string               `json:"rule_id"`
	Description string               `json:"description"`
	Type        VerificationRuleType `json:"rule_type"`

	// FieldPath is used by RequiredField, AllowedValues, and ForbiddenPattern.
	// Dot-separated, e.g. "patient.id".
	FieldPath string `json:"field_path,omitempty"`

	// Allowed is used by AllowedValues: the exhaustive set of permitted values.
	Allowed []json.RawMessage `json:"allowed,omitempty"`

	// Pattern is used by ForbiddenPattern: a substring that must not appear.
	Pattern string `json:"pattern,omitempty"`

	// FunctionName is used by Custom: the name of a host-registered function.
	FunctionName string `json:"function_name,omitempty"`
}

// OutputSchema is the full specification the verifier checks agent outputs
// against: a JSON Schema document for structural validation, plus an
// ordered list of semantic rules.
type OutputSchema struct {
	SchemaID   string             `json:"schema_id"`
	JSONSchema json.RawMessage    `json:"json_schema,omitempty"`
	Rules      []VerificationRule `json:"rules"`
}

// VerificationFailure is a single rule failure within a VerificationReport.
type VerificationFailure struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// VerificationReport is the result of running all rules in an OutputSchema
// against an output. Passed is true iff Failures is empty.
type VerificationReport struct {
	Passed   bool                  `json:"passed"`
	Failures []VerificationFailure `json:"failures"`
}
