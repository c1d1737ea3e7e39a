package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/floatdeck/boardlink/internal/transport/goble"
	"github.com/floatdeck/boardlink/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby boards",
	Long: `Scan for OneWheel-family boards in the vicinity.

Only devices that look like boards are shown: matching advertised name,
known address prefix, or the board service UUID, with usable signal
strength. Results include the model guess derived from the name.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAllowList []string
	scanBlockList []string
	scanWatch     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show boards with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide boards with these addresses")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update results")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", scanFormat)
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	s := scanner.New(goble.New(logger), logger)
	opts := &scanner.ScanOptions{
		Duration:  scanDuration,
		AllowList: scanAllowList,
		BlockList: scanBlockList,
	}

	if scanWatch {
		return runWatchMode(s, opts)
	}
	return runSingleScan(s, opts)
}

func runSingleScan(s *scanner.Scanner, opts *scanner.ScanOptions) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewCountdownProgressPrinter("Scanning for boards", "Scanning", opts.Duration)
	progress.Start()

	batch, err := s.Scan(ctx, opts)
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return displayCandidates(os.Stdout, batch)
}

func runWatchMode(s *scanner.Scanner, opts *scanner.ScanOptions) error {
	// Scan until interrupted by the user.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	// Indefinite batches; the event channel carries updates as they land.
	watchOpts := *opts
	watchOpts.Duration = 0

	scanErrCh := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, &watchOpts)
		scanErrCh <- err
	}()

	seen := make(map[string]scanner.Candidate)
	redraw := time.NewTicker(time.Second)
	defer redraw.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErrCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case ev := <-s.Events():
			seen[ev.Candidate.Address] = ev.Candidate
		case <-redraw.C:
			batch := make([]scanner.Candidate, 0, len(seen))
			for _, c := range seen {
				batch = append(batch, c)
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].RSSI > batch[j].RSSI })
			clearScreen()
			_ = displayCandidates(os.Stdout, batch)
		}
	}
}

func displayCandidates(out io.Writer, batch []scanner.Candidate) error {
	if len(batch) == 0 {
		fmt.Fprintln(out, "No boards discovered")
		return nil
	}

	if scanFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(batch)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := color.New(color.Bold).Sprint
	fmt.Fprintln(w, header("NAME\tADDRESS\tRSSI\tMODEL\tLAST SEEN"))
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, c := range batch {
		name := c.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		lastSeen := time.Since(c.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, c.Address, c.RSSI, c.ModelGuess.String(), lastSeen)
	}

	return w.Flush()
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}
