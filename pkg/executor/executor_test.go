package executor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/stepguard/pkg/capability"
	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/stepguarderr"
	"github.com/Mindburn-Labs/stepguard/pkg/telemetry"
)

// ── Fixtures ─────────────────────────────────────────────────────────────

func makeState(phase string) contracts.AgentState {
	return contracts.AgentState{
		AgentId:     "test-agent",
		ExecutionId: contracts.NewExecutionId(),
		Phase:       phase,
		Step:        0,
	}
}

func makeInput() contracts.AgentInput {
	return contracts.AgentInput{Kind: "user_message", Payload: json.RawMessage(`{"text":"hello"}`)}
}

func makeTestSchema() contracts.OutputSchema {
	return contracts.OutputSchema{SchemaID: "test-schema-v1"}
}

// mockPolicy always returns a preconfigured verdict.
type mockPolicy struct{ verdict contracts.PolicyVerdict }

func (m mockPolicy) Evaluate(contracts.PolicyContext) (contracts.PolicyVerdict, error) {
	return m.verdict, nil
}

// mockAudit records every call for later inspection.
type mockAudit struct {
	mu         sync.Mutex
	records    []contracts.StepRecord
	finalized  int
}

func (m *mockAudit) Write(record contracts.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockAudit) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized++
	return nil
}

// mockVerifier can be configured to pass or fail.
type mockVerifier struct{ pass bool }

func (m mockVerifier) Verify(contracts.AgentOutput, contracts.OutputSchema) (contracts.VerificationReport, error) {
	if m.pass {
		return contracts.VerificationReport{Passed: true}, nil
	}
	return contracts.VerificationReport{
		Passed: false,
		Failures: []contracts.VerificationFailure{
			{RuleID: "required-field", Message: "field 'patient_id' is missing"},
		},
	}, nil
}

// mockAgent tracks how many times Propose was called.
type mockAgent struct {
	mu           sync.Mutex
	proposeCount int
	terminal     bool
}

func (a *mockAgent) Propose(contracts.AgentState, contracts.AgentInput) (contracts.AgentOutput, error) {
	a.mu.Lock()
	a.proposeCount++
	a.mu.Unlock()
	return contracts.AgentOutput{Kind: "response", Payload: json.RawMessage(`{"text":"ok"}`)}, nil
}

func (a *mockAgent) Transition(state contracts.AgentState, _ contracts.AgentOutput) (contracts.AgentState, error) {
	state.Step++
	state.Phase = "next"
	return state, nil
}

func (a *mockAgent) RequiredCapabilities(contracts.AgentState, contracts.AgentInput) []string {
	return nil
}

func (a *mockAgent) DescribeAction(contracts.AgentState, contracts.AgentInput) (string, string) {
	return "respond", "user"
}

func (a *mockAgent) IsTerminal(contracts.AgentState) bool {
	return a.terminal
}

func (a *mockAgent) proposeCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.proposeCount
}

// capRequiringAgent requires a specific capability and panics if Propose is
// ever called, since the test asserts the executor must never reach it.
type capRequiringAgent struct{ required string }

func (a *capRequiringAgent) Propose(contracts.AgentState, contracts.AgentInput) (contracts.AgentOutput, error) {
	panic("propose must not be called when capability is missing")
}

func (a *capRequiringAgent) Transition(state contracts.AgentState, _ contracts.AgentOutput) (contracts.AgentState, error) {
	state.Step++
	return state, nil
}

func (a *capRequiringAgent) RequiredCapabilities(contracts.AgentState, contracts.AgentInput) []string {
	return []string{a.required}
}

func (a *capRequiringAgent) DescribeAction(contracts.AgentState, contracts.AgentInput) (string, string) {
	return "read_phi", "patient_record"
}

func (a *capRequiringAgent) IsTerminal(contracts.AgentState) bool { return false }

// ── Tests ────────────────────────────────────────────────────────────────

func TestPolicyDenyBlocksAgent(t *testing.T) {
	agent := &mockAgent{}
	audit := &mockAudit{}
	exec := New(mockPolicy{verdict: contracts.Deny("not allowed")}, audit, mockVerifier{pass: true}, makeTestSchema())

	result, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.NoError(t, err)

	require.Equal(t, 0, agent.proposeCalls(), "propose() must not be called on Deny")
	require.Equal(t, contracts.ResultDenied, result.Kind)
	require.Len(t, audit.records, 1)
}

func TestRequireApprovalSuspends(t *testing.T) {
	agent := &mockAgent{}
	exec := New(
		mockPolicy{verdict: contracts.RequireApproval("high risk action", "attending_physician")},
		&mockAudit{}, mockVerifier{pass: true}, makeTestSchema(),
	)

	result, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.NoError(t, err)

	require.Equal(t, 0, agent.proposeCalls(), "propose() must not be called on RequireApproval")
	require.Equal(t, contracts.ResultAwaitingApproval, result.Kind)
	require.Equal(t, "high risk action", result.Reason)
	require.Equal(t, "attending_physician", result.ApproverRole)
}

func TestCapabilityMissingBlocks(t *testing.T) {
	agent := &capRequiringAgent{required: "phi:read"}
	exec := New(mockPolicy{verdict: contracts.Allow()}, &mockAudit{}, mockVerifier{pass: true}, makeTestSchema())

	_, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.Error(t, err)

	var sgErr *stepguarderr.Error
	require.ErrorAs(t, err, &sgErr)
	require.Equal(t, stepguarderr.KindCapabilityMissing, sgErr.Kind)
	require.Equal(t, "phi:read", sgErr.Capability)
}

func TestSuccessfulStep(t *testing.T) {
	agent := &mockAgent{}
	audit := &mockAudit{}
	exec := New(mockPolicy{verdict: contracts.Allow()}, audit, mockVerifier{pass: true}, makeTestSchema())

	result, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.NoError(t, err)

	require.Equal(t, 1, agent.proposeCalls())
	require.Len(t, audit.records, 1)
	require.Equal(t, contracts.ResultTransitioned, result.Kind)
	require.Equal(t, uint64(1), result.NextState.Step)
	require.Equal(t, "next", result.NextState.Phase)
	require.Equal(t, "response", result.Output.Kind)
}

func TestTerminalState(t *testing.T) {
	agent := &mockAgent{terminal: true}
	audit := &mockAudit{}
	exec := New(mockPolicy{verdict: contracts.Allow()}, audit, mockVerifier{pass: true}, makeTestSchema())

	result, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.NoError(t, err)

	require.Equal(t, contracts.ResultComplete, result.Kind)
	require.Equal(t, "response", result.Output.Kind)
	require.Equal(t, uint64(1), result.FinalState.Step)
	require.Equal(t, 1, audit.finalized, "audit must be finalized on Complete")
}

func TestVerificationFailure(t *testing.T) {
	agent := &mockAgent{}
	exec := New(mockPolicy{verdict: contracts.Allow()}, &mockAudit{}, mockVerifier{pass: false}, makeTestSchema())

	_, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.Error(t, err)

	require.Equal(t, 1, agent.proposeCalls(), "propose is called before verification runs")

	var sgErr *stepguarderr.Error
	require.ErrorAs(t, err, &sgErr)
	require.Equal(t, stepguarderr.KindVerificationFailed, sgErr.Kind)
	require.Contains(t, sgErr.Reason, "patient_id")
}

func TestStepRecordsTelemetry(t *testing.T) {
	recorder, err := telemetry.New()
	require.NoError(t, err)
	defer recorder.Shutdown(context.Background())

	provider := telemetry.NewTracerProvider()
	defer provider.Shutdown(context.Background())
	tracer := telemetry.Tracer(provider)

	agent := &mockAgent{}
	exec := New(mockPolicy{verdict: contracts.Allow()}, &mockAudit{}, mockVerifier{pass: true}, makeTestSchema(),
		WithRecorder(recorder), WithTracer(tracer))

	result, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.NoError(t, err)
	require.Equal(t, contracts.ResultTransitioned, result.Kind)
}

func TestStepRecordsTelemetryOnDenial(t *testing.T) {
	recorder, err := telemetry.New()
	require.NoError(t, err)
	defer recorder.Shutdown(context.Background())

	provider := telemetry.NewTracerProvider()
	defer provider.Shutdown(context.Background())
	tracer := telemetry.Tracer(provider)

	agent := &mockAgent{}
	exec := New(mockPolicy{verdict: contracts.Deny("no")}, &mockAudit{}, mockVerifier{pass: true}, makeTestSchema(),
		WithRecorder(recorder), WithTracer(tracer))

	result, err := exec.Step(context.Background(), agent, makeState("active"), makeInput(), capability.NewSet())
	require.NoError(t, err)
	require.Equal(t, contracts.ResultDenied, result.Kind)
}
