package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var cacheAddr string

var cacheCmd = &cobra.Command{
	Use:       "cache [on|off|refresh|status]",
	Short:     "control the analytic cache on a running gateway",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"on", "off", "refresh", "status"},
	RunE:      runCache,
}

func init() {
	cacheCmd.Flags().StringVar(&cacheAddr, "addr", "http://localhost:3001", "gateway base URL")
}

func runCache(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{"action": args[0]})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(cacheAddr+"/api/redmine-cache", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway cache: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway cache: %w", err)
	}
	fmt.Println(string(respBody))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway cache: request failed with status %d", resp.StatusCode)
	}
	return nil
}
