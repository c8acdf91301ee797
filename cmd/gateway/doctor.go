package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// doctorCheck is one named diagnostic result, matching the teacher's
// doctorCheck/doctorResult shape (cmd/bd/doctor.go) scaled down to the
// three checks a gateway process needs at startup.
type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok" or "error"
	Message string `json:"message"`
}

type doctorResult struct {
	Checks    []doctorCheck `json:"checks"`
	OverallOK bool          `json:"overall_ok"`
}

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "check configuration, tracker, and LLM reachability",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "machine-readable output")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	result := doctorResult{OverallOK: true}

	comps, err := buildComponents(ctx)
	if err != nil {
		result.Checks = append(result.Checks, doctorCheck{Name: "configuration", Status: "error", Message: err.Error()})
		result.OverallOK = false
		return printDoctorResult(result)
	}
	result.Checks = append(result.Checks, doctorCheck{Name: "configuration", Status: "ok", Message: "all required environment present"})

	if err := pingTracker(ctx, comps.tracker); err != nil {
		result.Checks = append(result.Checks, doctorCheck{Name: "tracker", Status: "error", Message: err.Error()})
		result.OverallOK = false
	} else {
		result.Checks = append(result.Checks, doctorCheck{Name: "tracker", Status: "ok", Message: comps.cfg.TrackerBaseURL})
	}

	if err := pingLLM(ctx, comps.llmc); err != nil {
		result.Checks = append(result.Checks, doctorCheck{Name: "llm", Status: "error", Message: err.Error()})
		result.OverallOK = false
	} else {
		result.Checks = append(result.Checks, doctorCheck{Name: "llm", Status: "ok", Message: "reachable"})
	}

	return printDoctorResult(result)
}

func printDoctorResult(result doctorResult) error {
	if doctorJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	ok := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()
	for _, c := range result.Checks {
		mark := ok("ok")
		if c.Status != "ok" {
			mark = fail("error")
		}
		fmt.Printf("[%s] %-14s %s\n", mark, c.Name, c.Message)
	}
	if !result.OverallOK {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	return nil
}

