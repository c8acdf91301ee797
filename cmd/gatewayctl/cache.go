package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:       "cache [on|off|refresh]",
	Short:     "enable, disable, or force-refresh the analytic cache",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"on", "off", "refresh"},
	RunE:      runCache,
}

func runCache(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{"action": args[0]})
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(addr+"/api/redmine-cache", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gatewayctl cache: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("gatewayctl cache: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("gatewayctl cache: %s", out.Error)
	}
	fmt.Println(passStyle.Render(fmt.Sprintf("cache %s: %s", args[0], out.Status)))
	return nil
}
