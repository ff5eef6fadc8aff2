package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

// patientQueryAgent looks up a patient record. describeAction routes to a
// different resource name depending on the record's consent flag, so the
// policy engine's rule set — not the agent — is what enforces consent.
//
// When openMode is set, describeAction always reports the capability-free
// "patient-records-open" resource, regardless of consent. This isolates the
// executor's own capability check (distinct from the policy engine's
// required_capabilities check) as the scenario that exercises it.
type patientQueryAgent struct {
	patientID string
	openMode  bool
}

func (a patientQueryAgent) DescribeAction(contracts.AgentState, contracts.AgentInput) (string, string) {
	if a.openMode {
		return "query", "patient-records-open"
	}
	record := getPatientRecord(a.patientID)
	if record.ConsentGiven {
		return "query", "patient-records"
	}
	return "query", "patient-records-no-consent"
}

func (a patientQueryAgent) RequiredCapabilities(contracts.AgentState, contracts.AgentInput) []string {
	return []string{"patient-records.read"}
}

func (a patientQueryAgent) Propose(state contracts.AgentState, input contracts.AgentInput) (contracts.AgentOutput, error) {
	record := getPatientRecord(a.patientID)
	payload, err := json.Marshal(record)
	if err != nil {
		return contracts.AgentOutput{}, fmt.Errorf("marshal patient record: %w", err)
	}
	return contracts.AgentOutput{Kind: "patient-record-result", Payload: payload}, nil
}

func (a patientQueryAgent) Transition(state contracts.AgentState, _ contracts.AgentOutput) (contracts.AgentState, error) {
	state.Step++
	state.Phase = "complete"
	return state, nil
}

func (a patientQueryAgent) IsTerminal(state contracts.AgentState) bool {
	return state.Phase == "complete"
}

func patientQuerySchema() contracts.OutputSchema {
	return contracts.OutputSchema{
		SchemaID: "patient-query-v1",
		Rules: []contracts.VerificationRule{
			{
				RuleID:      "req-patient-id",
				Description: "Output must contain the patient ID",
				Type:        contracts.RuleTypeRequiredField,
				FieldPath:   "patient_id",
			},
		},
	}
}

// noteSummarizerAgent simulates an LLM call that summarizes clinical notes.
// The summary text is deterministic, so the demo is reproducible; in
// production this would be actual model output and is exactly the kind of
// untrusted content the verifier's "no-pii-labels" custom rule exists to
// catch before it reaches a caller.
type noteSummarizerAgent struct{}

func (noteSummarizerAgent) DescribeAction(contracts.AgentState, contracts.AgentInput) (string, string) {
	return "summarize", "clinical-notes"
}

func (noteSummarizerAgent) RequiredCapabilities(contracts.AgentState, contracts.AgentInput) []string {
	return []string{"clinical-notes.read"}
}

func (noteSummarizerAgent) Propose(state contracts.AgentState, input contracts.AgentInput) (contracts.AgentOutput, error) {
	var in struct {
		PatientID string `json:"patient_id"`
	}
	if len(input.Payload) > 0 {
		if err := json.Unmarshal(input.Payload, &in); err != nil {
			return contracts.AgentOutput{}, fmt.Errorf("decode input payload: %w", err)
		}
	}

	noteCount := getPatientNoteCount(in.PatientID)
	payload, err := json.Marshal(struct {
		PatientID   string `json:"patient_id"`
		NoteCount   int    `json:"note_count"`
		Summary     string `json:"summary"`
		GeneratedBy string `json:"generated_by"`
	}{
		PatientID:   in.PatientID,
		NoteCount:   noteCount,
		Summary:     summarizeNotes(in.PatientID, noteCount),
		GeneratedBy: string(state.AgentId),
	})
	if err != nil {
		return contracts.AgentOutput{}, fmt.Errorf("marshal clinical summary: %w", err)
	}

	return contracts.AgentOutput{Kind: "clinical-summary", Payload: payload}, nil
}

func (noteSummarizerAgent) Transition(state contracts.AgentState, _ contracts.AgentOutput) (contracts.AgentState, error) {
	state.Step++
	state.Phase = "complete"
	return state, nil
}

func (noteSummarizerAgent) IsTerminal(state contracts.AgentState) bool {
	return state.Phase == "complete"
}

func noteSummarizerSchema() contracts.OutputSchema {
	return contracts.OutputSchema{
		SchemaID: "clinical-summary-v1",
		Rules: []contracts.VerificationRule{
			{
				RuleID:      "req-patient-id",
				Description: "Output must identify the patient",
				Type:        contracts.RuleTypeRequiredField,
				FieldPath:   "patient_id",
			},
			{
				RuleID:      "req-summary",
				Description: "Output must contain a summary text",
				Type:        contracts.RuleTypeRequiredField,
				FieldPath:   "summary",
			},
			{
				RuleID:       "no-pii-labels",
				Description:  "Summary must not contain PII labels such as DOB: or SSN:",
				Type:         contracts.RuleTypeCustom,
				FunctionName: "no-pii-labels",
			},
		},
	}
}

// noPIILabels is registered with the verifier under the name referenced by
// noteSummarizerSchema's Custom rule. Keeping it here, rather than in
// pkg/verify, is the point of the custom-rule registry: domain-specific
// PII knowledge stays out of the trusted core.
func noPIILabels(payload interface{}) string {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	summary, _ := obj["summary"].(string)

	for _, label := range []string{"DOB:", "SSN:", "MRN:", "Date of Birth:"} {
		if strings.Contains(summary, label) {
			return fmt.Sprintf("summary contains forbidden PII label %q; remove before delivery", label)
		}
	}
	return ""
}
