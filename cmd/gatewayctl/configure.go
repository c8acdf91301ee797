package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var configureOutPath string

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "interactively write a gateway TOML config file",
	RunE:  runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureOutPath, "out", "gateway.toml", "config file path to write")
}

// configureFields mirrors the subset of internal/config.Config an
// operator is expected to hand-edit; the rest is environment-sourced.
type configureFields struct {
	TrackerBaseURL string `toml:"TRACKER_BASE_URL"`
	TrackerAPIKey  string `toml:"TRACKER_API_KEY"`
	AllowedOrigins string `toml:"ALLOWED_ORIGINS"`
}

func runConfigure(cmd *cobra.Command, args []string) error {
	var fields configureFields

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tracker base URL").
				Description("e.g. https://tracker.example.com").
				Value(&fields.TrackerBaseURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("tracker base URL is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Tracker API key").
				Description("X-Redmine-API-Key credential").
				EchoMode(huh.EchoModePassword).
				Value(&fields.TrackerAPIKey),
			huh.NewInput().
				Title("Allowed origins").
				Description("comma-separated CORS allowlist, e.g. https://app.example.com").
				Value(&fields.AllowedOrigins),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("gatewayctl configure: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fields); err != nil {
		return fmt.Errorf("gatewayctl configure: %w", err)
	}
	if err := os.WriteFile(configureOutPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("gatewayctl configure: %w", err)
	}

	fmt.Println(passStyle.Render("wrote " + configureOutPath))
	return nil
}
