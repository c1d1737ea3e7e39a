package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/floatdeck/boardlink/internal/session"
	"github.com/floatdeck/boardlink/internal/transport/goble"
)

// rideCmd represents the ride command
var rideCmd = &cobra.Command{
	Use:   "ride <board-address>",
	Short: "Connect to a board and stream telemetry",
	Long: `Connect to a board, run the unlock sequence, and hold the session open.

The command dials the board, discovers the board service, unlocks it with
the model-appropriate strategy, subscribes to telemetry, and keeps the
session alive with heartbeat writes until Ctrl+C or the board drops.

Examples:
  # Connect and print a status line once per second
  boardlink ride 88:6b:0f:12:34:56

  # Print every decoded telemetry update as JSON
  boardlink ride 88:6b:0f:12:34:56 --stream --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runRide,
}

var (
	rideName   string
	rideStream bool
	rideFormat string
)

func init() {
	rideCmd.Flags().StringVar(&rideName, "name", "", "Advertised board name, improves the initial model guess")
	rideCmd.Flags().BoolVar(&rideStream, "stream", false, "Print every telemetry update instead of a periodic summary")
	rideCmd.Flags().StringVarP(&rideFormat, "format", "f", "text", "Output format (text, json)")
}

func runRide(cmd *cobra.Command, args []string) error {
	address := args[0]

	if rideFormat != "text" && rideFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be text or json", rideFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	engine := session.New(cfg, logger, goble.New(logger))
	defer engine.Disconnect()

	progress := NewProgressPrinter(fmt.Sprintf("Connecting to %s", address), "Dialing")
	progress.Start()

	// One goroutine owns the engine's state event stream for the whole
	// command: it drives the progress line while connecting and forwards
	// every change to streamSession, so a teardown event racing the end of
	// Connect is never lost between two consumers.
	connectDone := make(chan struct{})
	stateCh := make(chan session.StateChange, 16)
	go func() {
		for {
			change, ok := <-engine.StateEvents()
			if !ok {
				return
			}
			select {
			case <-connectDone:
			default:
				progress.SetPhase(change.To.String())
			}
			select {
			case stateCh <- change:
			default:
			}
		}
	}()

	connectErr := make(chan error, 1)
	go func() {
		connectErr <- engine.Connect(ctx, address, rideName)
		close(connectDone)
	}()

	select {
	case <-sigCh:
		progress.Stop()
		fmt.Println("\nCtrl+C pressed, disconnecting...")
		cancel()
		engine.Disconnect()
		return nil
	case err := <-connectErr:
		progress.Stop()
		if err != nil {
			return err
		}
	}

	diag := engine.Diagnostics()
	fmt.Fprintf(os.Stderr, "Unlocked %s (%s, %d characteristics). Press Ctrl+C to stop...\n",
		color.GreenString(diag.Model), diag.Layout, diag.Characteristics)

	return streamSession(engine, stateCh, sigCh)
}

// streamSession prints telemetry until the user interrupts or the session
// tears itself down.
func streamSession(engine *session.Engine, states <-chan session.StateChange, sigCh <-chan os.Signal) error {
	summary := time.NewTicker(time.Second)
	defer summary.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, disconnecting...")
			engine.Disconnect()
			return nil

		case change := <-states:
			if change.To == session.StateDisconnected {
				if change.Err != nil {
					return change.Err
				}
				diag := engine.Diagnostics()
				if diag.LastError != "" {
					return fmt.Errorf("%s", diag.LastError)
				}
				return nil
			}

		case ev := <-engine.TelemetryEvents():
			if rideStream {
				printTelemetryEvent(ev)
			}

		case <-summary.C:
			if !rideStream {
				printSummary(engine)
			}
		}
	}
}

func printTelemetryEvent(ev session.TelemetryEvent) {
	if rideFormat == "json" {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
			"field": ev.Field.String(),
			"value": ev.Value,
			"at":    ev.Snapshot.UpdatedAt,
		})
		return
	}
	fmt.Printf("%s %s = %.2f\n", ev.Snapshot.UpdatedAt.Format("15:04:05.000"), ev.Field.String(), ev.Value)
}

func printSummary(engine *session.Engine) {
	view := engine.Snapshot()
	if rideFormat == "json" {
		_ = json.NewEncoder(os.Stdout).Encode(view)
		return
	}
	fmt.Printf("\rbattery %5.1f%%  pitch %6.2f  roll %6.2f  rpm %5.0f  voltage %5.2fV  trip %7.3f   ",
		view.BatteryPercent, view.Pitch, view.Roll, view.RPM, view.Voltage, view.TripOdometer)
}
