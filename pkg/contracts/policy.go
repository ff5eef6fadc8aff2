package contracts

import "encoding/json"

// PolicyVerdictKind discriminates the four PolicyVerdict variants.
type PolicyVerdictKind string

const (
	VerdictAllow               PolicyVerdictKind = "allow"
	VerdictDeny                PolicyVerdictKind = "deny"
	VerdictRequireApproval     PolicyVerdictKind = "require-approval"
	VerdictRequireVerification PolicyVerdictKind = "require-verification"
)

// PolicyVerdict is the decision the policy engine emits for a single agent
// action. Deny and RequireApproval prevent Agent.Propose from being
// called — this is the core security guarantee of the runtime. Allow and
// RequireVerification both let the step proceed to the capability check
// and then to Propose.
//
// Exactly one of the variant-specific field groups is populated, selected
// by Kind. Modeled as a single struct (rather than an interface hierarchy)
// so it serializes as a plain JSON object with the invariant that
// marshal-then-unmarshal round-trips to an equal value.
type PolicyVerdict struct {
	Kind PolicyVerdictKind `json:"kind"`

	// Reason is set for Deny and RequireApproval.
	Reason string `json:"reason,omitempty"`

	// ApproverRole is set for RequireApproval.
	ApproverRole string `json:"approver_role,omitempty"`

	// CheckID is set for RequireVerification.
	CheckID string `json:"check_id,omitempty"`
}

// Allow returns the Allow verdict.
func Allow() PolicyVerdict { return PolicyVerdict{Kind: VerdictAllow} }

// Deny returns a Deny verdict with the given reason.
func Deny(reason string) PolicyVerdict {
	return PolicyVerdict{Kind: VerdictDeny, Reason: reason}
}

// RequireApproval returns a RequireApproval verdict.
func RequireApproval(reason, approverRole string) PolicyVerdict {
	return PolicyVerdict{Kind: VerdictRequireApproval, Reason: reason, ApproverRole: approverRole}
}

// RequireVerification returns a RequireVerification verdict.
func RequireVerification(checkID string) PolicyVerdict {
	return PolicyVerdict{Kind: VerdictRequireVerification, CheckID: checkID}
}

// PolicyContext is everything the policy engine needs to make a decision.
// Built by the executor from agent metadata and the current step's inputs.
// Fields are primitive strings so rule evaluation does not depend on the
// full value model.
type PolicyContext struct {
	AgentId      string          `json:"agent_id"`
	ExecutionId  string          `json:"execution_id"`
	CurrentPhase string          `json:"current_phase"`
	Action       string          `json:"action"`
	Resource     string          `json:"resource"`
	Capabilities []string        `json:"capabilities"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// RuleVerdict is the kebab-case discriminant a PolicyRule declares in its
// source document.
type RuleVerdict string

const (
	RuleAllow               RuleVerdict = "allow"
	RuleDeny                RuleVerdict = "deny"
	RuleRequireApproval     RuleVerdict = "require-approval"
	RuleRequireVerification RuleVerdict = "require-verification"
)

// PolicyRule is a single declarative rule entry. Action and Resource
// support the literal value or the wildcard "*", which matches anything.
type PolicyRule struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Action      string `yaml:"action" json:"action"`
	Resource    string `yaml:"resource" json:"resource"`

	// RequiredCapabilities lists capability names the agent MUST hold for
	// this rule to produce its Verdict. Defaults to empty.
	RequiredCapabilities []string `yaml:"required_capabilities,omitempty" json:"required_capabilities,omitempty"`

	Verdict RuleVerdict `yaml:"verdict" json:"verdict"`

	// Decoration fields — populated according to Verdict.
	DenyReason          string `yaml:"deny_reason,omitempty" json:"deny_reason,omitempty"`
	ApprovalReason      string `yaml:"approval_reason,omitempty" json:"approval_reason,omitempty"`
	ApproverRole        string `yaml:"approver_role,omitempty" json:"approver_role,omitempty"`
	VerificationCheckID string `yaml:"verification_check_id,omitempty" json:"verification_check_id,omitempty"`

	// Condition is an optional CEL expression supplementing the
	// action/resource pattern match (see pkg/ruleext). Empty means no
	// additional condition.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Matches reports whether this rule's action/resource patterns match the
// given action and resource. "*" matches anything; otherwise the match is
// an exact, case-sensitive string comparison.
func (r PolicyRule) Matches(action, resource string) bool {
	actionMatches := r.Action == "*" || r.Action == action
	resourceMatches := r.Resource == "*" || r.Resource == resource
	return actionMatches && resourceMatches
}

// PolicyConfig is the top-level structure a rule document deserializes
// into: an ordered list of rules, evaluated first-match-wins.
type PolicyConfig struct {
	// MinEngineVersion, if set, is a semver constraint the loader checks
	// against the engine's own version before accepting the document.
	MinEngineVersion string       `yaml:"min_engine_version,omitempty" json:"min_engine_version,omitempty"`
	Rules            []PolicyRule `yaml:"rules" json:"rules"`
}
