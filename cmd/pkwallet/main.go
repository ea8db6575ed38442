package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/brojonat/pkwallet/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "pkwallet",
		Usage: "Passkey smart-wallet client for Solana",
		Description: `A command-line client for a passkey-backed Solana smart wallet.

The credential ceremony runs on the portal service; transactions are
sponsored and submitted by the paymaster. This client manages the wallet
session, balance polling, and transfers.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			walletCommands(),
			balanceCommands(),
			transferCommands(),
			eventsCommands(),
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   fmt.Sprintf("Solana RPC endpoint (default: %s)", config.DefaultSolanaRPCURL),
			EnvVars: []string{"SOLANA_RPC_URL"},
		},
		&cli.StringFlag{
			Name:    "portal-url",
			Usage:   fmt.Sprintf("Portal (passkey ceremony) service URL (default: %s)", config.DefaultPortalURL),
			EnvVars: []string{"PORTAL_URL"},
		},
		&cli.StringFlag{
			Name:    "paymaster-url",
			Usage:   fmt.Sprintf("Paymaster (fee sponsor) service URL (default: %s)", config.DefaultPaymasterURL),
			EnvVars: []string{"PAYMASTER_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL (empty disables event publishing)",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "keystore",
			Usage:   "Path to the local credential keystore",
			EnvVars: []string{"KEYSTORE_PATH"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
	}
}

// newLogger builds a logger honoring the --log-level flag. Logs go to
// stderr so command output stays pipeable.
func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	switch c.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
