package ruleext_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/ruleext"
)

func TestNoConditionAlwaysMatches(t *testing.T) {
	rule := contracts.PolicyRule{ID: "r1", Action: "*", Resource: "*", Verdict: contracts.RuleAllow}
	ev, err := ruleext.NewEvaluator([]contracts.PolicyRule{rule})
	require.NoError(t, err)

	require.True(t, ev.Matches(rule, contracts.PolicyContext{}))
}

func TestConditionMustEvaluateTrue(t *testing.T) {
	rule := contracts.PolicyRule{
		ID: "r1", Action: "*", Resource: "*", Verdict: contracts.RuleAllow,
		Condition: `action == "read"`,
	}
	ev, err := ruleext.NewEvaluator([]contracts.PolicyRule{rule})
	require.NoError(t, err)

	require.True(t, ev.Matches(rule, contracts.PolicyContext{Action: "read"}))
	require.False(t, ev.Matches(rule, contracts.PolicyContext{Action: "write"}))
}

func TestConditionOverMetadataAndCapabilities(t *testing.T) {
	rule := contracts.PolicyRule{
		ID: "r1", Action: "*", Resource: "*", Verdict: contracts.RuleAllow,
		Condition: `"phi:read" in capabilities && metadata.tier == "gold"`,
	}
	ev, err := ruleext.NewEvaluator([]contracts.PolicyRule{rule})
	require.NoError(t, err)

	ctxOK := contracts.PolicyContext{
		Capabilities: []string{"phi:read"},
		Metadata:     []byte(`{"tier":"gold"}`),
	}
	require.True(t, ev.Matches(rule, ctxOK))

	ctxMissingCap := contracts.PolicyContext{
		Metadata: []byte(`{"tier":"gold"}`),
	}
	require.False(t, ev.Matches(rule, ctxMissingCap))
}

func TestNonBoolConditionRejectedAtConstruction(t *testing.T) {
	rule := contracts.PolicyRule{
		ID: "r1", Action: "*", Resource: "*", Verdict: contracts.RuleAllow,
		Condition: `action + resource`,
	}
	_, err := ruleext.NewEvaluator([]contracts.PolicyRule{rule})
	require.Error(t, err)
}

func TestMalformedConditionRejectedAtConstruction(t *testing.T) {
	rule := contracts.PolicyRule{
		ID: "r1", Action: "*", Resource: "*", Verdict: contracts.RuleAllow,
		Condition: `this is not ( valid cel`,
	}
	_, err := ruleext.NewEvaluator([]contracts.PolicyRule{rule})
	require.Error(t, err)
}
