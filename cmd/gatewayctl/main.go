// Command gatewayctl is the gateway's Operator CLI (SPEC_FULL §4.12): a
// small terminal client for inspecting and configuring a running gateway,
// grounded on the teacher's charm/lipgloss terminal-styling idiom (see
// cmd/bd-examples/main.go's AdaptiveColor style block) and
// cmd/bd/create_form.go's huh form usage.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	passStyle = newAdaptiveStyle("#86b300", "#c2d94c")
	failStyle = newAdaptiveStyle("#f07171", "#f07178")
	warnStyle = newAdaptiveStyle("#f2ae49", "#ffb454")
	muteStyle = newAdaptiveStyle("#828c99", "#6c7680")
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "gatewayctl - operator CLI for the tracker conversational gateway",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:3001", "gateway base URL")
	rootCmd.AddCommand(statusCmd, configureCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 30 * time.Second}
