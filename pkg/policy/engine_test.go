package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/stepguarderr"
)

func ctx(action, resource string, capabilities ...string) contracts.PolicyContext {
	return contracts.PolicyContext{
		AgentId:      "test-agent",
		ExecutionId:  "exec-001",
		CurrentPhase: "active",
		Action:       action,
		Resource:     resource,
		Capabilities: capabilities,
	}
}

func TestDenyByDefault(t *testing.T) {
	cfg, err := LoadString(`rules: []`)
	require.NoError(t, err)

	verdict, err := NewEngine(cfg).Evaluate(ctx("read_record", "patient/42"))
	require.NoError(t, err)
	require.Equal(t, contracts.VerdictDeny, verdict.Kind)
	require.Contains(t, verdict.Reason, "denied by default")
}

func TestExplicitAllow(t *testing.T) {
	cfg, err := LoadString(`
rules:
  - id: allow-read
    description: Allow reading patient records
    action: read_record
    resource: patient/42
    verdict: allow
`)
	require.NoError(t, err)

	verdict, err := NewEngine(cfg).Evaluate(ctx("read_record", "patient/42"))
	require.NoError(t, err)
	require.Equal(t, contracts.Allow(), verdict)
}

func TestExplicitDeny(t *testing.T) {
	cfg, err := LoadString(`
rules:
  - id: deny-delete
    description: Agents may not delete patient records
    action: delete_record
    resource: "*"
    verdict: deny
    deny_reason: deletion of patient records is prohibited
`)
	require.NoError(t, err)

	verdict, err := NewEngine(cfg).Evaluate(ctx("delete_record", "patient/99"))
	require.NoError(t, err)
	require.Equal(t, contracts.VerdictDeny, verdict.Kind)
	require.Contains(t, verdict.Reason, "deletion of patient records is prohibited")
}

func TestRequireApproval(t *testing.T) {
	cfg, err := LoadString(`
rules:
  - id: approve-prescribe
    description: Prescriptions require physician approval
    action: prescribe_medication
    resource: "*"
    verdict: require-approval
    approval_reason: high-risk prescription requires sign-off
    approver_role: attending_physician
`)
	require.NoError(t, err)

	verdict, err := NewEngine(cfg).Evaluate(ctx("prescribe_medication", "patient/7"))
	require.NoError(t, err)
	require.Equal(t, contracts.VerdictRequireApproval, verdict.Kind)
	require.Contains(t, verdict.Reason, "high-risk prescription")
	require.Equal(t, "attending_physician", verdict.ApproverRole)
}

func TestWildcardMatching(t *testing.T) {
	cfg, err := LoadString(`
rules:
  - id: allow-all-reads
    description: Any read on any resource is allowed
    action: read_record
    resource: "*"
    verdict: allow
  - id: deny-all-writes
    description: Any write action on any resource is denied
    action: "*"
    resource: "*"
    verdict: deny
    deny_reason: write operations are not permitted
`)
	require.NoError(t, err)
	engine := NewEngine(cfg)

	v1, err := engine.Evaluate(ctx("read_record", "patient/1"))
	require.NoError(t, err)
	require.Equal(t, contracts.Allow(), v1)

	v2, err := engine.Evaluate(ctx("read_record", "some/other/resource"))
	require.NoError(t, err)
	require.Equal(t, contracts.Allow(), v2)

	v3, err := engine.Evaluate(ctx("update_record", "patient/1"))
	require.NoError(t, err)
	require.Equal(t, contracts.VerdictDeny, v3.Kind)
	require.Contains(t, v3.Reason, "write operations are not permitted")
}

func TestFirstMatchWins(t *testing.T) {
	cfg, err := LoadString(`
rules:
  - id: first-allow
    description: "First rule: allow"
    action: read_record
    resource: "*"
    verdict: allow
  - id: second-deny
    description: "Second rule: deny (must never be reached)"
    action: read_record
    resource: "*"
    verdict: deny
    deny_reason: this rule should never fire
`)
	require.NoError(t, err)

	verdict, err := NewEngine(cfg).Evaluate(ctx("read_record", "patient/5"))
	require.NoError(t, err)
	require.Equal(t, contracts.Allow(), verdict)
}

func TestCapabilityMismatchOverridesAllow(t *testing.T) {
	cfg, err := LoadString(`
rules:
  - id: phi-read-allow
    description: Allow PHI reads for agents with phi:read capability
    action: read_phi
    resource: "*"
    required_capabilities: ["phi:read"]
    verdict: allow
`)
	require.NoError(t, err)
	engine := NewEngine(cfg)

	denied, err := engine.Evaluate(ctx("read_phi", "patient/33"))
	require.NoError(t, err)
	require.Equal(t, contracts.VerdictDeny, denied.Kind)
	require.Contains(t, denied.Reason, "phi:read")

	allowed, err := engine.Evaluate(ctx("read_phi", "patient/33", "phi:read"))
	require.NoError(t, err)
	require.Equal(t, contracts.Allow(), allowed)
}

func TestMalformedYAMLIsConfigError(t *testing.T) {
	_, err := LoadString("this is not: valid: yaml: [[[")
	require.Error(t, err)

	var sgErr *stepguarderr.Error
	require.ErrorAs(t, err, &sgErr)
	require.Equal(t, stepguarderr.KindConfigError, sgErr.Kind)
}

func TestMinEngineVersionRejectsUnsupportedDocument(t *testing.T) {
	_, err := LoadString(`
min_engine_version: ">=99.0.0"
rules: []
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires engine version")
}
