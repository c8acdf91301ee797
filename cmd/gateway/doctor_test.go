package main

import "testing"

func TestPrintDoctorResultJSONReportsFailure(t *testing.T) {
	doctorJSON = true
	defer func() { doctorJSON = false }()

	result := doctorResult{
		Checks: []doctorCheck{
			{Name: "configuration", Status: "ok", Message: "all required environment present"},
			{Name: "tracker", Status: "error", Message: "dial tcp: connection refused"},
		},
		OverallOK: false,
	}

	if err := printDoctorResult(result); err == nil {
		t.Fatalf("expected an error for a failing doctor result, got nil")
	}
}

func TestPrintDoctorResultTextOverallOK(t *testing.T) {
	doctorJSON = false

	result := doctorResult{
		Checks: []doctorCheck{
			{Name: "configuration", Status: "ok", Message: "all required environment present"},
			{Name: "tracker", Status: "ok", Message: "https://tracker.example.com"},
			{Name: "llm", Status: "ok", Message: "reachable"},
		},
		OverallOK: true,
	}

	if err := printDoctorResult(result); err != nil {
		t.Fatalf("expected nil error for a passing doctor result, got %v", err)
	}
}
