// Package policy implements the declarative, deny-by-default policy engine:
// an ordered list of rules loaded from a YAML document, evaluated
// first-match-wins with a defense-in-depth capability check layered on top
// of whatever verdict the matching rule declares.
package policy

import (
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

// ConditionMatcher supplements action/resource pattern matching with an
// additional per-rule condition (see pkg/ruleext for the CEL-based
// implementation). A rule only matches once both the pattern and the
// condition hold.
type ConditionMatcher interface {
	Matches(rule contracts.PolicyRule, ctx contracts.PolicyContext) bool
}

// Engine evaluates PolicyContext values against an ordered rule set.
// Immutable after construction — safe to share across goroutines without
// synchronization, since Evaluate only reads config and, if present, the
// (itself immutable) condition matcher.
type Engine struct {
	config     *contracts.PolicyConfig
	conditions ConditionMatcher
	logger     *slog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConditionMatcher attaches a ConditionMatcher, e.g. ruleext.Evaluator,
// so rules carrying a Condition expression are consulted in addition to
// their action/resource pattern.
func WithConditionMatcher(m ConditionMatcher) Option {
	return func(e *Engine) {
		e.conditions = m
	}
}

// NewEngine wraps an already-loaded PolicyConfig. Use LoadFile or LoadString
// to build a PolicyConfig from YAML.
func NewEngine(config *contracts.PolicyConfig, opts ...Option) *Engine {
	e := &Engine{config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the loaded policy configuration.
func (e *Engine) Config() *contracts.PolicyConfig {
	return e.config
}

// Evaluate runs ctx against the rule set in declaration order. The first
// rule whose action/resource patterns match ctx is applied:
//
//  1. If the rule lists RequiredCapabilities, every one of them must be
//     present in ctx.Capabilities, or the engine returns Deny regardless of
//     the rule's own verdict (defense-in-depth — a missing capability always
//     overrides an allow rule).
//  2. Otherwise the rule's RuleVerdict is translated to a PolicyVerdict and
//     returned.
//
// If no rule matches, Evaluate returns Deny with a message explaining that
// no rule matched (deny-by-default).
func (e *Engine) Evaluate(ctx contracts.PolicyContext) (contracts.PolicyVerdict, error) {
	e.logger.Debug("evaluating policy",
		"agent_id", ctx.AgentId, "action", ctx.Action, "resource", ctx.Resource)

	for _, rule := range e.config.Rules {
		if !rule.Matches(ctx.Action, ctx.Resource) {
			continue
		}
		if e.conditions != nil && !e.conditions.Matches(rule, ctx) {
			e.logger.Debug("rule pattern matched but condition did not", "rule_id", rule.ID)
			continue
		}

		e.logger.Debug("rule matched", "rule_id", rule.ID, "action", ctx.Action, "resource", ctx.Resource)

		if missing, ok := firstMissingCapability(rule.RequiredCapabilities, ctx.Capabilities); !ok {
			e.logger.Warn("matched rule requires capability agent does not hold",
				"rule_id", rule.ID, "capability", missing, "agent_id", ctx.AgentId)
			return contracts.Deny(fmt.Sprintf(
				"rule '%s' requires capability '%s' which is not granted to agent '%s'",
				rule.ID, missing, ctx.AgentId,
			)), nil
		}

		return ruleVerdict(rule), nil
	}

	e.logger.Warn("no policy rule matched; denying by default",
		"action", ctx.Action, "resource", ctx.Resource, "agent_id", ctx.AgentId)

	return contracts.Deny(fmt.Sprintf(
		"denied by default: no policy rule matched action '%s' on resource '%s'",
		ctx.Action, ctx.Resource,
	)), nil
}

func firstMissingCapability(required, held []string) (string, bool) {
	heldSet := make(map[string]struct{}, len(held))
	for _, h := range held {
		heldSet[h] = struct{}{}
	}
	for _, r := range required {
		if _, ok := heldSet[r]; !ok {
			return r, false
		}
	}
	return "", true
}

func ruleVerdict(rule contracts.PolicyRule) contracts.PolicyVerdict {
	switch rule.Verdict {
	case contracts.RuleDeny:
		reason := rule.DenyReason
		if reason == "" {
			reason = fmt.Sprintf("denied by rule '%s'", rule.ID)
		}
		return contracts.Deny(reason)

	case contracts.RuleRequireApproval:
		reason := rule.ApprovalReason
		if reason == "" {
			reason = fmt.Sprintf("approval required by rule '%s'", rule.ID)
		}
		approverRole := rule.ApproverRole
		if approverRole == "" {
			approverRole = "unspecified"
		}
		return contracts.RequireApproval(reason, approverRole)

	case contracts.RuleRequireVerification:
		checkID := rule.VerificationCheckID
		if checkID == "" {
			checkID = fmt.Sprintf("check-%s", rule.ID)
		}
		return contracts.RequireVerification(checkID)

	default: // contracts.RuleAllow — loader validation rejects any other value
		return contracts.Allow()
	}
}
