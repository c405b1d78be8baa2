// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/control"
)

// ProcessStatus holds the status information for the server process.
type ProcessStatus struct {
	Running       bool   `json:"running"`
	Health        string `json:"health,omitempty"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Version       string `json:"version,omitempty"`
	Error         string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running gatehouse server",
		Long:  `Queries the control socket and reports the server's health and uptime.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryProcessStatus()

	var output string
	var err error

	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryProcessStatus queries the control socket and returns the status.
func queryProcessStatus() ProcessStatus {
	var status ProcessStatus

	socketPath, err := control.SocketPath()
	if err != nil {
		status.Error = fmt.Sprintf("failed to get socket path: %v", err)
		return status
	}

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		status.Error = "socket not found"
		return status
	}

	client := createUnixHTTPClient(socketPath)

	healthResp, err := client.Get("http://localhost/health")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = healthResp.Body.Close() }()

	var health control.HealthResponse
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		status.Error = fmt.Sprintf("failed to decode health response: %v", err)
		return status
	}

	statusResp, err := client.Get("http://localhost/status")
	if err != nil {
		// Health succeeded but status failed - still consider running
		status.Running = true
		status.Health = health.Status
		return status
	}
	defer func() { _ = statusResp.Body.Close() }()

	var controlStatus control.StatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&controlStatus); err != nil {
		// Health succeeded but status decode failed - still consider running
		status.Running = true
		status.Health = health.Status
		return status
	}

	status.Running = controlStatus.Running
	status.Health = health.Status
	status.PID = controlStatus.PID
	status.UptimeSeconds = controlStatus.UptimeSeconds
	status.Version = controlStatus.Version

	return status
}

// createUnixHTTPClient creates an HTTP client that connects via Unix socket.
func createUnixHTTPClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 2 * time.Second,
	}
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProcessStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "STATUS\tHEALTH\tPID\tUPTIME\tVERSION")
	_, _ = fmt.Fprintln(w, "------\t------\t---\t------\t-------")

	if status.Running {
		uptime := formatUptime(status.UptimeSeconds)
		_, _ = fmt.Fprintf(w, "running\t%s\t%d\t%s\t%s\n",
			status.Health, status.PID, uptime, status.Version)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "stopped\t-\t-\t-\t%s\n", reason)
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
