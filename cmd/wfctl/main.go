// Package main implements the wfctl CLI for manual operations against the workflowd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the workflowd HTTP server
	serverURL string
	// version information
	version = "dev"

	submitScope     int
	submitMode      string
	submitDimension string
	submitHold      bool

	reportFailed    bool
	reportReason    string
	reportSuggested string
	reportMetrics   []string
	reportChecks    []string

	modeDimension string
	abortReason   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wfctl",
	Short: "CLI for workflowd HTTP server operations",
	Long: `wfctl is a command-line interface for interacting with the workflowd HTTP server.
It submits tasks, reports phase results, and inspects workflow state.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9790", "workflowd server URL")

	submitCmd.Flags().IntVar(&submitScope, "scope", 0, "estimated number of files touched")
	submitCmd.Flags().StringVar(&submitMode, "mode", "", "execution mode (standard, full_auto, single_focus)")
	submitCmd.Flags().StringVar(&submitDimension, "dimension", "", "focus dimension for single_focus mode")
	submitCmd.Flags().BoolVar(&submitHold, "hold", false, "create without starting")

	reportCmd.Flags().BoolVar(&reportFailed, "failed", false, "mark the phase execution as failed")
	reportCmd.Flags().StringVar(&reportReason, "reason", "", "failure reason")
	reportCmd.Flags().StringVar(&reportSuggested, "suggest-level", "", "suggested complexity level (L1-L4)")
	reportCmd.Flags().StringSliceVar(&reportMetrics, "metric", nil, "metric as name=value (repeatable)")
	reportCmd.Flags().StringSliceVar(&reportChecks, "check", nil, "check as name=true|false (repeatable)")

	modeCmd.Flags().StringVar(&modeDimension, "dimension", "", "focus dimension for single_focus mode")
	abortCmd.Flags().StringVar(&abortReason, "reason", "", "abort reason")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(healthCmd)
}

var submitCmd = &cobra.Command{
	Use:   "submit <description>",
	Short: "Submit a task for classification and planning",
	Long: `Submit a task to the workflowd server.

Examples:
  # Submit with an explicit scope estimate
  wfctl submit "add retry logic to the uploader" --scope 3

  # Submit in single-focus mode
  wfctl submit "raise branch coverage" --mode single_focus --dimension testing`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the current state of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	RunE:  runList,
}

var reportCmd = &cobra.Command{
	Use:   "report <task-id> <phase>",
	Short: "Report a phase result for a task",
	Long: `Report the outcome of the task's current phase.

Examples:
  # Report a passing implement phase
  wfctl report 1b9d6bcd implement --metric coverage=92 --metric complexity=4

  # Report a failed execution
  wfctl report 1b9d6bcd implement --failed --reason "tests did not compile"`,
	Args: cobra.ExactArgs(2),
	RunE: runReport,
}

var modeCmd = &cobra.Command{
	Use:   "mode <task-id> <mode>",
	Short: "Force the execution mode of a not-yet-started task",
	Args:  cobra.ExactArgs(2),
	RunE:  runMode,
}

var abortCmd = &cobra.Command{
	Use:   "abort <task-id>",
	Short: "Abort a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbort,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check workflowd server health",
	RunE:  runHealth,
}

// submitRequest matches internal/httpapi SubmitTaskRequest
type submitRequest struct {
	Description   string `json:"description"`
	ScopeEstimate int    `json:"scope_estimate"`
	Mode          string `json:"mode,omitempty"`
	Dimension     string `json:"dimension,omitempty"`
	Hold          bool   `json:"hold,omitempty"`
}

// phaseResult matches internal/workflow PhaseResult
type phaseResult struct {
	Phase          string             `json:"phase"`
	Succeeded      bool               `json:"succeeded"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	Checks         map[string]bool    `json:"checks,omitempty"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	SuggestedLevel int                `json:"suggested_level,omitempty"`
}

type modeRequest struct {
	Mode      string `json:"mode"`
	Dimension string `json:"dimension,omitempty"`
}

type abortRequest struct {
	Reason string `json:"reason,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	return postJSON("/api/v1/tasks", submitRequest{
		Description:   args[0],
		ScopeEstimate: submitScope,
		Mode:          submitMode,
		Dimension:     submitDimension,
		Hold:          submitHold,
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	return getJSON(fmt.Sprintf("/api/v1/tasks/%s", args[0]))
}

func runList(cmd *cobra.Command, args []string) error {
	return getJSON("/api/v1/tasks")
}

func runReport(cmd *cobra.Command, args []string) error {
	result := phaseResult{
		Phase:         args[1],
		Succeeded:     !reportFailed,
		FailureReason: reportReason,
	}

	if len(reportMetrics) > 0 {
		result.Metrics = make(map[string]float64, len(reportMetrics))
		for _, kv := range reportMetrics {
			name, value, err := splitPair(kv)
			if err != nil {
				return fmt.Errorf("invalid --metric %q: %w", kv, err)
			}
			var f float64
			if _, err := fmt.Sscanf(value, "%g", &f); err != nil {
				return fmt.Errorf("invalid --metric value %q: %w", kv, err)
			}
			result.Metrics[name] = f
		}
	}

	if len(reportChecks) > 0 {
		result.Checks = make(map[string]bool, len(reportChecks))
		for _, kv := range reportChecks {
			name, value, err := splitPair(kv)
			if err != nil {
				return fmt.Errorf("invalid --check %q: %w", kv, err)
			}
			result.Checks[name] = value == "true"
		}
	}

	if reportSuggested != "" {
		lvl, err := parseLevel(reportSuggested)
		if err != nil {
			return err
		}
		result.SuggestedLevel = lvl
	}

	return postJSON(fmt.Sprintf("/api/v1/tasks/%s/result", args[0]), result)
}

func runMode(cmd *cobra.Command, args []string) error {
	return postJSON(fmt.Sprintf("/api/v1/tasks/%s/mode", args[0]), modeRequest{
		Mode:      args[1],
		Dimension: modeDimension,
	})
}

func runAbort(cmd *cobra.Command, args []string) error {
	return postJSON(fmt.Sprintf("/api/v1/tasks/%s/abort", args[0]), abortRequest{
		Reason: abortReason,
	})
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// splitPair splits "name=value" into its parts.
func splitPair(kv string) (string, string, error) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			if i == 0 || i == len(kv)-1 {
				break
			}
			return kv[:i], kv[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected name=value")
}

// parseLevel maps "L1".."L4" (or bare digits) to the numeric level.
func parseLevel(s string) (int, error) {
	if len(s) == 2 && (s[0] == 'L' || s[0] == 'l') {
		s = s[1:]
	}
	switch s {
	case "1", "2", "3", "4":
		return int(s[0] - '0'), nil
	}
	return 0, fmt.Errorf("invalid level %q: expected L1-L4", s)
}

func postJSON(path string, body any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return printBody(resp)
}

func getJSON(path string) error {
	url := serverURL + path

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return printBody(resp)
}

// printBody re-indents the JSON response for the terminal.
func printBody(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
