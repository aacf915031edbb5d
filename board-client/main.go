// Command boardctl drives the board engine from a terminal.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "boardctl",
	Short:         "Work with collaborative task boards",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var (
	flagServer  string
	flagToken   string
	flagRedis   string
	flagUser    string
	flagName    string
	flagDebug   bool
	flagTimeout string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", envOr("BOARD_SERVER", "http://localhost:8080"), "Board API base URL")
	pf.StringVar(&flagToken, "token", os.Getenv("BOARD_TOKEN"), "Bearer token for the board API")
	pf.StringVar(&flagRedis, "redis", os.Getenv("BOARD_REDIS"), "Redis connection string for live updates")
	pf.StringVar(&flagUser, "user", os.Getenv("BOARD_USER"), "Member id recorded on activities")
	pf.StringVar(&flagName, "name", os.Getenv("BOARD_USER_NAME"), "Display name recorded on activities")
	pf.StringVar(&flagTimeout, "timeout", "15s", "Timeout for each board API call")
	pf.BoolVar(&flagDebug, "debug", false, "Log debug output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
