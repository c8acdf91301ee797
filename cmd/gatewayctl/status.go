package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"charm.land/glamour/v2"
	"github.com/spf13/cobra"
)

var statusMarkdown bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the analytic cache's current state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusMarkdown, "markdown", false, "render the report as piped markdown instead of a styled table")
}

// cacheControlResponse mirrors internal/httpapi's wire shape for the
// status action; duplicated here rather than imported since gatewayctl
// talks to the gateway over HTTP, not in-process.
type cacheControlResponse struct {
	Success   bool   `json:"success"`
	CacheInfo *struct {
		Initialized    bool    `json:"initialized"`
		LastUpdated    string  `json:"last_updated"`
		AgeSeconds     float64 `json:"age_seconds"`
		Counts         struct {
			Issues   int `json:"issues"`
			Projects int `json:"projects"`
			Users    int `json:"users"`
			Versions int `json:"versions"`
		} `json:"counts"`
		EndpointErrors []struct {
			Endpoint string `json:"endpoint"`
			Status   int    `json:"status"`
		} `json:"endpoint_errors"`
	} `json:"cache_info"`
	Error string `json:"error"`
}

func fetchStatus() (*cacheControlResponse, error) {
	body, err := json.Marshal(map[string]string{"action": "status"})
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(addr+"/api/redmine-cache", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gatewayctl status: %w", err)
	}
	defer resp.Body.Close()

	var out cacheControlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gatewayctl status: %w", err)
	}
	return &out, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := fetchStatus()
	if err != nil {
		return err
	}
	if !status.Success {
		return fmt.Errorf("gatewayctl status: %s", status.Error)
	}

	if statusMarkdown {
		return renderStatusMarkdown(status)
	}
	renderStatusTable(status)
	return nil
}

func renderStatusTable(status *cacheControlResponse) {
	info := status.CacheInfo
	if info == nil {
		fmt.Println(muteStyle.Render("cache has no status yet"))
		return
	}

	state := passStyle.Render("initialized")
	if !info.Initialized {
		state = warnStyle.Render("not initialized")
	}
	fmt.Printf("cache: %s  age: %.0fs  last_updated: %s\n", state, info.AgeSeconds, info.LastUpdated)
	fmt.Printf("  issues=%d projects=%d users=%d versions=%d\n",
		info.Counts.Issues, info.Counts.Projects, info.Counts.Users, info.Counts.Versions)
	if len(info.EndpointErrors) > 0 {
		fmt.Println(failStyle.Render("endpoint errors:"))
		for _, e := range info.EndpointErrors {
			fmt.Printf("  %s -> %d\n", e.Endpoint, e.Status)
		}
	}
}

func renderStatusMarkdown(status *cacheControlResponse) error {
	info := status.CacheInfo
	var b strings.Builder
	b.WriteString("# Cache status\n\n")
	if info == nil {
		b.WriteString("_no status yet_\n")
	} else {
		fmt.Fprintf(&b, "- **initialized**: %v\n", info.Initialized)
		fmt.Fprintf(&b, "- **last updated**: %s\n", info.LastUpdated)
		fmt.Fprintf(&b, "- **age**: %.0fs\n", info.AgeSeconds)
		fmt.Fprintf(&b, "- **counts**: issues=%d projects=%d users=%d versions=%d\n",
			info.Counts.Issues, info.Counts.Projects, info.Counts.Users, info.Counts.Versions)
		if len(info.EndpointErrors) > 0 {
			b.WriteString("\n## Endpoint errors\n\n")
			for _, e := range info.EndpointErrors {
				fmt.Fprintf(&b, "- %s -> %d\n", e.Endpoint, e.Status)
			}
		}
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return fmt.Errorf("gatewayctl status: %w", err)
	}
	out, err := renderer.Render(b.String())
	if err != nil {
		return fmt.Errorf("gatewayctl status: %w", err)
	}
	fmt.Print(out)
	return nil
}
