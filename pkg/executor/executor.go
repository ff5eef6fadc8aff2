package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/stepguard/pkg/capability"
	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/stepguarderr"
	"github.com/Mindburn-Labs/stepguard/pkg/telemetry"
)

// Executor is the central runner that drives a single agent execution.
// Construct one per ExecutionId. It owns the trusted components — policy,
// audit, verifier — and enforces pipeline ordering on every call to Step.
type Executor struct {
	policy   PolicyEngine
	audit    AuditWriter
	verifier Verifier
	schema   contracts.OutputSchema

	limiter  *rate.Limiter
	logger   *slog.Logger
	recorder *telemetry.Recorder
	tracer   trace.Tracer
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithRateLimit bounds how often Step may run, e.g. to cap the rate of
// agent invocations against a downstream LLM provider. Step blocks on
// ctx until the limiter admits it or ctx is cancelled.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(e *Executor) {
		e.limiter = limiter
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRecorder attaches a telemetry.Recorder so every Step call increments
// the step/verdict/verification-failure counters it exposes.
func WithRecorder(recorder *telemetry.Recorder) Option {
	return func(e *Executor) {
		e.recorder = recorder
	}
}

// WithTracer wraps every Step call in a "stepguard.step" span from tracer,
// carrying the execution_id and step attributes; the span records the
// returned error, or else the result kind as a result_kind attribute. See
// telemetry.Tracer for a ready-made tracer
// backed by an exporter-less SDK TracerProvider.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// New creates an Executor with the given trusted components and output schema.
func New(policy PolicyEngine, audit AuditWriter, verifier Verifier, schema contracts.OutputSchema, opts ...Option) *Executor {
	e := &Executor{
		policy:   policy,
		audit:    audit,
		verifier: verifier,
		schema:   schema,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step executes one step of the agent's state machine.
//
// Pipeline:
//
//  1. Build a PolicyContext from agent.DescribeAction.
//  2. Call policy.Evaluate:
//     - Deny            → audit the denial, return a Denied result.
//     - RequireApproval  → audit, return an AwaitingApproval result.
//     - RequireVerification / Allow → continue.
//  3. Check the agent holds every RequiredCapabilities entry; if not, audit
//     a synthetic denial and return CapabilityMissing.
//  4. Call agent.Propose — only reachable after steps 2 and 3 pass.
//  5. Call verifier.Verify; on failure return VerificationFailed.
//  6. Call agent.Transition to advance state.
//  7. Audit the completed step.
//  8. If agent.IsTerminal, finalize the audit and return a Complete result.
//  9. Otherwise return a Transitioned result.
//
// Policy Deny and RequireApproval are not errors — they are valid
// StepResult values. Capability failures, verification failures, audit
// write failures, and agent state-machine errors are all returned as error.
func (e *Executor) Step(ctx context.Context, agent Agent, state contracts.AgentState, input contracts.AgentInput, capabilities *capability.Set) (result contracts.StepResult, err error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return contracts.StepResult{}, stepguarderr.StateMachineError("rate limiter wait: " + err.Error())
		}
	}

	executionID := string(state.ExecutionId)
	stepNum := state.Step
	logger := telemetry.StepLogger(e.logger, executionID, stepNum)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "stepguard.step",
			trace.WithAttributes(attribute.String("execution_id", executionID), attribute.Int64("step", int64(stepNum))))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.String("result_kind", string(result.Kind)))
			}
			span.End()
		}()
	}
	if e.recorder != nil {
		e.recorder.RecordStep(ctx, executionID)
	}

	logger.Debug("executor step starting", "phase", state.Phase, "input_kind", input.Kind)

	// ── Step 1: Describe the action the agent wants to take ──────────────
	action, resource := agent.DescribeAction(state, input)

	policyCtx := contracts.PolicyContext{
		AgentId:      string(state.AgentId),
		ExecutionId:  executionID,
		CurrentPhase: state.Phase,
		Action:       action,
		Resource:     resource,
		Capabilities: capabilities.All(),
	}

	// ── Step 2: Policy evaluation ─────────────────────────────────────────
	// This is the primary trust gate. No agent logic runs until Allow.
	verdict, err := e.policy.Evaluate(policyCtx)
	if err != nil {
		return contracts.StepResult{}, err
	}

	if e.recorder != nil {
		e.recorder.RecordVerdict(ctx, string(verdict.Kind))
	}

	switch verdict.Kind {
	case contracts.VerdictDeny:
		logger.Warn("policy denied action", "reason", verdict.Reason)

		if err := e.writeRecord(stepNum, input, verdict, nil); err != nil {
			return contracts.StepResult{}, err
		}

		return contracts.StepResult{
			Kind:       contracts.ResultDenied,
			Reason:     verdict.Reason,
			FinalState: state,
		}, nil

	case contracts.VerdictRequireApproval:
		logger.Info("execution suspended awaiting approval", "approver_role", verdict.ApproverRole)

		if err := e.writeRecord(stepNum, input, verdict, nil); err != nil {
			return contracts.StepResult{}, err
		}

		return contracts.StepResult{
			Kind:         contracts.ResultAwaitingApproval,
			Reason:       verdict.Reason,
			ApproverRole: verdict.ApproverRole,
			FinalState:   state,
		}, nil

	case contracts.VerdictAllow, contracts.VerdictRequireVerification:
		logger.Debug("policy allowed action, checking capabilities")

	default:
		return contracts.StepResult{}, stepguarderr.StateMachineError(fmt.Sprintf("unknown policy verdict kind %q", verdict.Kind))
	}

	// ── Step 3: Capability check ───────────────────────────────────────────
	// Even after Allow, the agent must hold every declared capability —
	// principle of least privilege enforced at the runtime level.
	required := agent.RequiredCapabilities(state, input)
	for _, capName := range required {
		if capabilities.Has(capName) {
			continue
		}

		logger.Warn("capability missing, step denied", "capability", capName, "action", action)

		denialVerdict := contracts.Deny(fmt.Sprintf(
			"capability '%s' required for action '%s' is not granted", capName, action,
		))
		if err := e.writeRecord(stepNum, input, denialVerdict, nil); err != nil {
			return contracts.StepResult{}, err
		}

		return contracts.StepResult{}, stepguarderr.CapabilityMissing(capName, action)
	}

	// ── Step 4: Agent proposal ──────────────────────────────────────────────
	// Only reachable if policy returned Allow/RequireVerification AND every
	// capability is present. This is the only call site for Agent.Propose
	// in the runtime.
	logger.Debug("capabilities verified, calling agent.Propose")
	output, err := agent.Propose(state, input)
	if err != nil {
		return contracts.StepResult{}, err
	}

	// ── Step 5: Output verification ─────────────────────────────────────────
	report, err := e.verifier.Verify(output, e.schema)
	if err != nil {
		return contracts.StepResult{}, err
	}
	if !report.Passed {
		failureSummary := summarizeFailures(report)
		logger.Warn("output verification failed", "failures", failureSummary)
		if e.recorder != nil {
			e.recorder.RecordVerificationFailure(ctx, e.schema.SchemaID)
		}
		return contracts.StepResult{}, stepguarderr.VerificationFailed(failureSummary)
	}

	// ── Step 6: State transition ────────────────────────────────────────────
	nextState, err := agent.Transition(state, output)
	if err != nil {
		return contracts.StepResult{}, err
	}

	// ── Step 7: Audit the completed step ────────────────────────────────────
	if err := e.writeRecord(stepNum, input, verdict, &output); err != nil {
		return contracts.StepResult{}, err
	}

	// ── Steps 8 & 9: Terminal check ─────────────────────────────────────────
	if agent.IsTerminal(nextState) {
		logger.Info("agent reached terminal state, finalizing audit")
		if err := e.audit.Finalize(); err != nil {
			return contracts.StepResult{}, stepguarderr.AuditWriteFailed("finalize audit chain", err)
		}
		return contracts.StepResult{
			Kind:       contracts.ResultComplete,
			FinalState: nextState,
			Output:     output,
		}, nil
	}

	return contracts.StepResult{
		Kind:      contracts.ResultTransitioned,
		NextState: nextState,
		Output:    output,
	}, nil
}

func (e *Executor) writeRecord(step uint64, input contracts.AgentInput, verdict contracts.PolicyVerdict, output *contracts.AgentOutput) error {
	record := contracts.StepRecord{
		Step:      step,
		Input:     input,
		Verdict:   verdict,
		Output:    output,
		Timestamp: time.Now(),
	}
	if err := e.audit.Write(record); err != nil {
		return stepguarderr.AuditWriteFailed("write step record", err)
	}
	return nil
}

func summarizeFailures(report contracts.VerificationReport) string {
	parts := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		parts = append(parts, fmt.Sprintf("[%s] %s", f.RuleID, f.Message))
	}
	return strings.Join(parts, "; ")
}
