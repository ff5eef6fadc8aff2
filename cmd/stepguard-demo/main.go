// Command stepguard-demo is a minimal host binary that wires policy, audit,
// verification, and the executor together against two toy healthcare
// agents, illustrating the enforcement pipeline end to end:
//
//	[1] Policy engine evaluates (action, resource) → Allow / Deny / RequireApproval
//	[2] Capability check: agent must hold all declared capabilities
//	[3] Agent.Propose is called — only after steps 1 & 2 pass
//	[4] Verifier checks output against JSON Schema + semantic rules
//	[5] State transitions; an immutable audit record is appended to the
//	    SHA-256 hash chain
//
// It is a usage example, not a deployment — applications embed the pkg/
// packages directly rather than shelling out to this binary.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/stepguard/pkg/audit"
	"github.com/Mindburn-Labs/stepguard/pkg/capability"
	"github.com/Mindburn-Labs/stepguard/pkg/config"
	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/executor"
	"github.com/Mindburn-Labs/stepguard/pkg/policy"
	"github.com/Mindburn-Labs/stepguard/pkg/stepguarderr"
	"github.com/Mindburn-Labs/stepguard/pkg/telemetry"
	"github.com/Mindburn-Labs/stepguard/pkg/verify"

	otrace "go.opentelemetry.io/otel/trace"
)

//go:embed policy.yaml
var builtinPolicy string

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatcher, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	initLogging(cfg.LogLevel, stderr)

	cmd := "run-all"
	if len(args) > 1 {
		cmd = args[1]
	}

	cfgDoc, err := loadPolicy(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "stepguard-demo: %v\n", err)
		return 1
	}
	engine := policy.NewEngine(cfgDoc)

	recorder, err := telemetry.New()
	if err != nil {
		fmt.Fprintf(stderr, "stepguard-demo: telemetry: %v\n", err)
		return 1
	}
	defer recorder.Shutdown(context.Background())

	tracerProvider := telemetry.NewTracerProvider()
	defer tracerProvider.Shutdown(context.Background())
	tracer := telemetry.Tracer(tracerProvider)

	switch cmd {
	case "run-all":
		runPatientQuery(stdout, engine, recorder, tracer)
		runNoteSummarizer(stdout, engine, recorder, tracer)
	case "patient-query":
		runPatientQuery(stdout, engine, recorder, tracer)
	case "note-summarizer":
		runNoteSummarizer(stdout, engine, recorder, tracer)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "stepguard-demo: unknown command %q\n", cmd)
		printUsage(stderr)
		return 2
	}

	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: stepguard-demo [run-all|patient-query|note-summarizer]")
}

func loadPolicy(cfg *config.Config) (*contracts.PolicyConfig, error) {
	if cfg.PolicyFile != "" {
		return policy.LoadFile(cfg.PolicyFile)
	}
	return policy.LoadString(builtinPolicy)
}

func initLogging(level string, w io.Writer) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// runPatientQuery exercises three enforcement outcomes for the same agent
// shape, each caught by a different layer of the pipeline:
//
//	A: capability + consent      → policy allows, capability present, step completes
//	B: no capability, open rule  → policy allows, executor's own capability
//	                                check blocks the step before Propose runs
//	C: capability, no consent    → policy denies before the capability check
func runPatientQuery(out io.Writer, engine *policy.Engine, recorder *telemetry.Recorder, tracer otrace.Tracer) {
	fmt.Fprintln(out, "=== Patient Data Query ===")

	// Sub-case A: capability granted, consent on record.
	runPatientQueryCase(out, "A", "patient-101", true, engine, recorder, tracer)

	// Sub-case B: no capability granted; agent targets the capability-open
	// resource so the policy layer allows it and the executor's own
	// least-privilege check is what fires.
	runPatientQueryCase(out, "B", "patient-101", false, engine, recorder, tracer)

	// Sub-case C: capability granted, but the patient ID routes to the
	// no-consent resource, so the policy engine denies the step outright.
	runPatientQueryCase(out, "C", "patient-201nc", true, engine, recorder, tracer)

	fmt.Fprintln(out)
}

func runPatientQueryCase(out io.Writer, label, patientID string, grantCapability bool, engine *policy.Engine, recorder *telemetry.Recorder, tracer otrace.Tracer) {
	fmt.Fprintf(out, "  --- Sub-case %s (patient %s, capability granted: %v) ---\n", label, patientID, grantCapability)

	executionID := contracts.NewExecutionId()
	auditWriter := audit.NewInMemoryWriter(executionID)
	verifier := verify.New()

	caps := capability.NewSet()
	if grantCapability {
		caps.Grant("patient-records.read")
	}

	agent := patientQueryAgent{patientID: patientID, openMode: !grantCapability}

	state := contracts.AgentState{
		AgentId:     "patient-query-agent",
		ExecutionId: executionID,
		Phase:       "active",
		Step:        0,
	}
	input := contracts.AgentInput{
		Kind:    "patient-query",
		Payload: mustJSON(map[string]string{"patient_id": patientID}),
	}

	exec := executor.New(engine, auditWriter, verifier, patientQuerySchema(),
		executor.WithRecorder(recorder), executor.WithTracer(tracer))
	result, err := exec.Step(context.Background(), agent, state, input, caps)
	reportResult(out, result, err, auditWriter)
}

// runNoteSummarizer exercises the custom-rule verifier path: the agent's
// summary is checked against a registered "no-pii-labels" function that
// lives in this demo binary, not in the trusted verify core.
func runNoteSummarizer(out io.Writer, engine *policy.Engine, recorder *telemetry.Recorder, tracer otrace.Tracer) {
	fmt.Fprintln(out, "=== Clinical Note Summarizer ===")

	executionID := contracts.NewExecutionId()
	auditWriter := audit.NewInMemoryWriter(executionID)
	verifier := verify.New()
	verifier.RegisterRule("no-pii-labels", noPIILabels)

	caps := capability.NewSet()
	caps.Grant("clinical-notes.read")

	state := contracts.AgentState{
		AgentId:     "note-summarizer-agent",
		ExecutionId: executionID,
		Phase:       "active",
		Step:        0,
	}
	input := contracts.AgentInput{
		Kind:    "summarize-request",
		Payload: mustJSON(map[string]string{"patient_id": "patient-042"}),
	}

	exec := executor.New(engine, auditWriter, verifier, noteSummarizerSchema(),
		executor.WithRecorder(recorder), executor.WithTracer(tracer))
	result, err := exec.Step(context.Background(), noteSummarizerAgent{}, state, input, caps)
	reportResult(out, result, err, auditWriter)

	fmt.Fprintln(out)
}

func reportResult(out io.Writer, result contracts.StepResult, err error, auditWriter *audit.InMemoryWriter) {
	switch {
	case err != nil:
		var sgErr *stepguarderr.Error
		if errors.As(err, &sgErr) {
			fmt.Fprintf(out, "  result: %s — %v\n", sgErr.Kind, sgErr)
		} else {
			fmt.Fprintf(out, "  result: error — %v\n", err)
		}

	case result.Kind == contracts.ResultDenied:
		fmt.Fprintf(out, "  result: Denied — %s\n", result.Reason)

	case result.Kind == contracts.ResultAwaitingApproval:
		fmt.Fprintf(out, "  result: AwaitingApproval — %s (approver: %s)\n", result.Reason, result.ApproverRole)

	default:
		fmt.Fprintf(out, "  result: %s — output: %s\n", result.Kind, result.Output.Payload)
	}

	log := auditWriter.ExportLog()
	fmt.Fprintf(out, "  audit chain: %d event(s), integrity verified: %v\n", len(log.Events), auditWriter.VerifyIntegrity())
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
