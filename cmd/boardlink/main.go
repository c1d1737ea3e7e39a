package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boardlink",
	Short: "OneWheel board connection tool",
	Long: `Command-line tool for OneWheel-family electric boards:

- Scan for nearby boards and identify their model
- Connect, unlock, and hold a live telemetry session
- Stream decoded telemetry (battery, pitch, roll, speed, odometer)
- Keep the board awake with heartbeat and keepalive writes

Works with classic boards (Pint, XR) and the GT family.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rideCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
