// Package main implements the ideabank CLI for operations against the
// ideabankd HTTP server.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/run"
)

var (
	// serverURL is the base URL for the ideabankd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ideabank",
	Short: "CLI for ideabankd server operations",
	Long: `ideabank is a command-line interface for the ideabankd HTTP server.
It starts generation runs, streams their progress, and browses the
harmonized item library.`,
	Version: version,
}

var (
	runType        string
	runStart       string
	runEnd         string
	runCount       int
	runThreshold   float64
	runTemperature float64
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9180", "ideabankd server URL")

	runCmd.Flags().StringVar(&runType, "type", "idea", "item type to generate (idea, insight, use-case)")
	runCmd.Flags().StringVar(&runStart, "start", "", "window start (RFC 3339, default 7 days ago)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "window end (RFC 3339, default now)")
	runCmd.Flags().IntVar(&runCount, "count", 0, "number of items to generate (default from server)")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "dedup similarity threshold (default from server)")
	runCmd.Flags().Float64Var(&runTemperature, "temperature", -1, "generation temperature (default from server)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(healthCmd)
}

// runCmd starts a generation run and streams its progress
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a generation run and stream its progress",
	Long: `Start a generation run over a conversation time window and stream
progress events until the run finishes.

Examples:
  # Generate ideas from the last week
  ideabank run --type idea

  # Generate use-cases from a specific window
  ideabank run --type use-case --start 2026-08-01T00:00:00Z --end 2026-08-08T00:00:00Z

  # Tighter dedup, more candidates
  ideabank run --count 10 --threshold 0.9`,
	RunE: runRun,
}

// libraryCmd lists the harmonized library for a type
var libraryCmd = &cobra.Command{
	Use:   "library [type]",
	Short: "List harmonized library items for a type",
	Long: `List the harmonized library for an item type, sorted as stored.

Examples:
  # List all harmonized ideas
  ideabank library idea

  # List use-cases
  ideabank library use-case`,
	Args: cobra.ExactArgs(1),
	RunE: runLibrary,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ideabankd server health",
	RunE:  runHealth,
}

// startRunRequest matches internal/http/server.go StartRunRequest
type startRunRequest struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ItemType       string    `json:"itemType"`
	ItemCount      int       `json:"itemCount,omitempty"`
	DedupThreshold float64   `json:"dedupThreshold,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
}

// reconcileRequest matches internal/http/server.go ReconcileRequest
type reconcileRequest struct {
	ItemType   string `json:"itemType"`
	SizeBefore int    `json:"sizeBefore"`
	ItemsAdded int    `json:"itemsAdded"`
}

// libraryResponse matches internal/http/server.go LibraryResponse
type libraryResponse struct {
	Type  string       `json:"type"`
	Count int          `json:"count"`
	Items []*item.Item `json:"items"`
}

func runRun(cmd *cobra.Command, args []string) error {
	now := time.Now().UTC()
	req := startRunRequest{
		Start:          now.AddDate(0, 0, -7),
		End:            now,
		ItemType:       runType,
		ItemCount:      runCount,
		DedupThreshold: runThreshold,
	}
	if runStart != "" {
		t, err := time.Parse(time.RFC3339, runStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		req.Start = t
	}
	if runEnd != "" {
		t, err := time.Parse(time.RFC3339, runEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		req.End = t
	}
	if runTemperature >= 0 {
		req.Temperature = &runTemperature
	}

	var started run.Run
	if err := postJSON("/api/v1/runs", req, &started, http.StatusAccepted); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "run %s started\n", started.ID)

	events := make(chan run.Event, 16)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- streamEvents(cmd.Context(), started.ID, events)
	}()

	outcome, consumeErr := run.Consume(cmd.Context(), events, run.DefaultInactivityWindow, renderEvent)
	<-streamErr

	if consumeErr != nil && cmd.Context().Err() != nil {
		return consumeErr
	}
	if !outcome.SawComplete && !outcome.Terminal.IsTerminal() {
		// Stream dropped before the run resolved. Ask the server
		// whether the integration landed anyway.
		rec, err := reconcile(outcome)
		if err != nil {
			return fmt.Errorf("stream dropped and reconcile failed: %w", err)
		}
		if rec.Succeeded {
			fmt.Fprintf(os.Stderr, "stream dropped but library grew from %d to %d, run likely succeeded\n",
				rec.SizeBefore, rec.SizeNow)
			return nil
		}
		return fmt.Errorf("stream dropped before completion and library did not grow")
	}

	switch {
	case outcome.Terminal == run.PhaseError:
		return fmt.Errorf("run failed (%s): %s", outcome.ErrCategory, outcome.ErrMessage)
	case outcome.Terminal == run.PhaseStopped:
		fmt.Fprintln(os.Stderr, "run stopped")
	default:
		fmt.Fprintf(os.Stderr, "run complete: %d added, %d merged, library size %d, cost $%.4f\n",
			outcome.Stats.ItemsAdded, outcome.Stats.ItemsMerged, outcome.Stats.LibrarySize, outcome.Stats.Cost)
	}
	return nil
}

// renderEvent prints a single progress line per event.
func renderEvent(e run.Event) {
	switch e.Type {
	case run.EventPhase:
		fmt.Printf("phase: %s\n", e.Phase)
	case run.EventStat:
		fmt.Printf("  %s: %d\n", e.Key, e.Value)
	case run.EventWarning:
		fmt.Fprintf(os.Stderr, "  warning: %s\n", e.Message)
	case run.EventCost:
		if e.Cost != nil {
			fmt.Printf("  tokens: %d in / %d out, cost $%.4f\n",
				e.Cost.TokensIn, e.Cost.TokensOut, e.Cost.CumulativeCost)
		}
	case run.EventError:
		fmt.Fprintf(os.Stderr, "error (%s): %s\n", e.Category, e.Message)
	}
}

// streamEvents reads the run's SSE stream and forwards decoded events.
// The channel is closed when the stream ends.
func streamEvents(ctx context.Context, runID string, events chan<- run.Event) error {
	defer close(events)

	url := fmt.Sprintf("%s/api/v1/runs/%s/events", serverURL, runID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e run.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed event: %v\n", err)
			continue
		}
		select {
		case events <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// reconcile asks the server whether a dropped run's integration landed.
func reconcile(outcome *run.Outcome) (*run.Reconciliation, error) {
	req := reconcileRequest{
		ItemType:   runType,
		SizeBefore: outcome.SizeBefore,
		ItemsAdded: outcome.Stats.ItemsAdded,
	}
	var rec run.Reconciliation
	if err := postJSON("/api/v1/reconcile", req, &rec, http.StatusOK); err != nil {
		return nil, err
	}
	return &rec, nil
}

func runLibrary(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/library/%s", serverURL, args[0])

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var lib libraryResponse
	if err := json.NewDecoder(resp.Body).Decode(&lib); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("%s library: %d item(s)\n\n", lib.Type, lib.Count)
	for _, it := range lib.Items {
		fmt.Printf("%s  (hits: %d, first seen %s)\n", it.Title, it.Hits, it.FirstSeen.Format("2006-01-02"))
		fmt.Printf("  %s\n\n", it.Description)
	}
	return nil
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
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	return nil
}

// postJSON posts a JSON body and decodes the response when the status
// matches wantStatus.
func postJSON(path string, body, out any, wantStatus int) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
