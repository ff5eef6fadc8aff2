package main

import "fmt"

// patientRecord is simulated clinical data. No real patient identifiers or
// PHI are present; this stands in for a clinical database in a production
// deployment.
type patientRecord struct {
	PatientID    string   `json:"patient_id"`
	Name         string   `json:"name"`
	Conditions   []string `json:"conditions"`
	ConsentGiven bool     `json:"ai_query_consent"`
}

// getPatientRecord returns a mock record for patientID. Any ID ending in
// "nc" simulates a patient who has not granted AI query consent.
func getPatientRecord(patientID string) patientRecord {
	consent := len(patientID) < 2 || patientID[len(patientID)-2:] != "nc"
	return patientRecord{
		PatientID:    patientID,
		Name:         "Jordan Rivera",
		Conditions:   []string{"type 2 diabetes", "hypertension"},
		ConsentGiven: consent,
	}
}

// getPatientNoteCount simulates a lookup of clinical notes on file.
func getPatientNoteCount(patientID string) int {
	return 3
}

func summarizeNotes(patientID string, noteCount int) string {
	return fmt.Sprintf(
		"Patient (ID: %s) presents with a history reviewed across %d clinical notes. "+
			"Key findings: mild anemia (Hgb 10.2 g/dL) identified in follow-up labs, "+
			"with type 2 diabetes and hypertension as active chronic conditions. "+
			"Plan: continue current regimen, recheck CBC in four weeks.",
		patientID, noteCount,
	)
}
