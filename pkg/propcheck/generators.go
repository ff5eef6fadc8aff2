// Package propcheck hosts gopter generators for the wire-shaped value
// types in pkg/contracts and the round-trip properties that exercise
// them: marshalling any generated instance to JSON and back must yield an
// equal value, for every variant of every tagged union in the model.
package propcheck

import (
	"reflect"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

type approvalFields struct {
	Reason string
	Role   string
}

type failureFields struct {
	RuleID  string
	Message string
}

type ruleFields struct {
	RuleID       string
	Description  string
	FieldPath    string
	Pattern      string
	FunctionName string
}

// GenPolicyVerdict produces PolicyVerdict values spanning all four
// variants, each only populating the fields that variant defines.
func GenPolicyVerdict() gopter.Gen {
	return gen.OneGenOf(
		gen.Const(contracts.Allow()),
		gen.AlphaString().Map(func(reason string) contracts.PolicyVerdict {
			return contracts.Deny(reason)
		}),
		gen.Struct(reflect.TypeOf(approvalFields{}), map[string]gopter.Gen{
			"Reason": gen.AlphaString(),
			"Role":   gen.AlphaString(),
		}).Map(func(v approvalFields) contracts.PolicyVerdict {
			return contracts.RequireApproval(v.Reason, v.Role)
		}),
		gen.AlphaString().Map(func(checkID string) contracts.PolicyVerdict {
			return contracts.RequireVerification(checkID)
		}),
	)
}

// GenVerificationFailure produces a single VerificationFailure.
func GenVerificationFailure() gopter.Gen {
	return gen.Struct(reflect.TypeOf(failureFields{}), map[string]gopter.Gen{
		"RuleID":  gen.AlphaString(),
		"Message": gen.AlphaString(),
	}).Map(func(v failureFields) contracts.VerificationFailure {
		return contracts.VerificationFailure{RuleID: v.RuleID, Message: v.Message}
	})
}

// GenVerificationReport produces a VerificationReport with Passed derived
// from whether Failures is empty, matching the model's own invariant
// (passed == failures.empty()) rather than generating an inconsistent pair.
func GenVerificationReport() gopter.Gen {
	return gen.SliceOf(GenVerificationFailure()).Map(func(failures []contracts.VerificationFailure) contracts.VerificationReport {
		return contracts.VerificationReport{
			Passed:   len(failures) == 0,
			Failures: failures,
		}
	})
}

// GenVerificationRule produces a single semantic VerificationRule. Type is
// restricted to the four known discriminants so a round-trip comparison
// never has to reason about an unknown kind.
func GenVerificationRule() gopter.Gen {
	ruleTypes := []interface{}{
		contracts.RuleTypeRequiredField,
		contracts.RuleTypeAllowedValues,
		contracts.RuleTypeForbiddenPattern,
		contracts.RuleTypeCustom,
	}

	fields := gen.Struct(reflect.TypeOf(ruleFields{}), map[string]gopter.Gen{
		"RuleID":       gen.AlphaString(),
		"Description":  gen.AlphaString(),
		"FieldPath":    gen.AlphaString(),
		"Pattern":      gen.AlphaString(),
		"FunctionName": gen.AlphaString(),
	})

	return gopter.CombineGens(fields, gen.OneConstOf(ruleTypes...)).Map(func(values []interface{}) contracts.VerificationRule {
		f := values[0].(ruleFields)
		kind := values[1].(contracts.VerificationRuleType)
		return contracts.VerificationRule{
			RuleID:       f.RuleID,
			Description:  f.Description,
			Type:         kind,
			FieldPath:    f.FieldPath,
			Pattern:      f.Pattern,
			FunctionName: f.FunctionName,
		}
	})
}

// GenOutputSchema produces an OutputSchema with a nil JSONSchema (structural
// validation is exercised directly by pkg/verify's own tests; this
// generator's purpose is the round-trip property over the envelope shape)
// and a handful of semantic rules.
func GenOutputSchema() gopter.Gen {
	return gen.SliceOfN(3, GenVerificationRule()).Map(func(rules []contracts.VerificationRule) contracts.OutputSchema {
		return contracts.OutputSchema{SchemaID: "generated-schema", Rules: rules}
	})
}
