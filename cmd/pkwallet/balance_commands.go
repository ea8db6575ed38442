package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/pkwallet/service/balance"
	"github.com/brojonat/pkwallet/service/config"
	"github.com/brojonat/pkwallet/service/keystore"
	"github.com/brojonat/pkwallet/service/metrics"
	natspkg "github.com/brojonat/pkwallet/service/nats"
	"github.com/brojonat/pkwallet/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func balanceCommands() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Query wallet balances",
		Subcommands: []*cli.Command{
			balanceGetCommand(),
		},
	}
}

func balanceGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch the SOL balance for a wallet",
		ArgsUsage: "[address]",
		Description: `Fetch the balance for the given address, or for the cached wallet when
no address is provided.

With --watch the balance is polled on an interval and every change is
printed until interrupted.

Examples:
  pkwallet balance get
  pkwallet balance get DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK
  pkwallet balance get --watch --interval 10s --metrics-addr :9090`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep polling and print balance changes",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval for --watch",
				Value: balance.DefaultInterval,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while watching (e.g. :9090)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}

			address, err := resolveAddress(c, cfg.KeystorePath)
			if err != nil {
				return err
			}
			if !solana.IsValidAddress(address) {
				return fmt.Errorf("invalid address: %s", address)
			}

			logger := newLogger(c)

			var m *metrics.Metrics
			if addr := c.String("metrics-addr"); addr != "" && c.Bool("watch") {
				registry := prometheus.NewRegistry()
				m = metrics.NewMetrics(registry)
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
					if err := http.ListenAndServe(addr, mux); err != nil {
						logger.Error("metrics server failed", "addr", addr, "error", err)
					}
				}()
			}

			client := solana.NewClient(rpc.New(cfg.SolanaRPCURL), cfg.SolanaRPCURL, m, logger)

			if !c.Bool("watch") {
				return printBalanceOnce(c, client, address)
			}

			interval := cfg.BalancePollInterval
			if c.IsSet("interval") {
				interval = c.Duration("interval")
			}
			return watchBalance(c, cfg, client, address, interval, m, logger)
		},
	}
}

// resolveAddress takes the positional address argument, falling back to the
// cached smart wallet.
func resolveAddress(c *cli.Context, keystorePath string) (string, error) {
	if c.NArg() > 0 {
		return c.Args().Get(0), nil
	}

	keys, err := keystore.Open(keystorePath)
	if err != nil {
		return "", fmt.Errorf("failed to open keystore: %w", err)
	}
	defer keys.Close()

	address, err := keys.Get(context.Background(), keystore.KeySmartWallet)
	if err != nil {
		return "", fmt.Errorf("failed to read keystore: %w", err)
	}
	if address == "" {
		return "", fmt.Errorf("no address given and no cached wallet; log in or pass an address")
	}
	return address, nil
}

func printBalanceOnce(c *cli.Context, client *solana.Client, address string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lamports, err := client.GetBalance(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}

	if c.Bool("json") {
		data, _ := json.Marshal(map[string]any{
			"address":  address,
			"lamports": lamports,
			"sol":      solana.LamportsToSOL(lamports),
		})
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("%s: %s SOL (%d lamports)\n", address, solana.FormatLamports(lamports), lamports)
	return nil
}

func watchBalance(c *cli.Context, cfg *config.Config, client *solana.Client, address string, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) error {
	var events natspkg.Publisher
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Warn("failed to connect to NATS, events disabled", "error", err)
		} else {
			events = pub
			defer pub.Close()
		}
	}

	poller := balance.NewPoller(client, interval, events, m, logger)
	defer poller.Close()

	jsonOutput := c.Bool("json")
	poller.Notify(func(st balance.State) {
		if st.Loading || (st.Lamports == nil && st.Err == "") {
			return
		}
		if jsonOutput {
			out := map[string]any{"address": address}
			if st.Lamports != nil {
				out["lamports"] = *st.Lamports
				out["sol"] = *st.SOL
			}
			if st.Err != "" {
				out["error"] = st.Err
			}
			data, _ := json.Marshal(out)
			fmt.Println(string(data))
			return
		}
		if st.Err != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", st.Err)
			return
		}
		fmt.Printf("[%s] %s SOL (%d lamports)\n",
			time.Now().Format(time.RFC3339), solana.FormatLamports(*st.Lamports), *st.Lamports)
	})

	if !jsonOutput {
		fmt.Printf("Watching %s every %s... (Ctrl-C to exit)\n", address, interval)
	}
	poller.SetAddress(address)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	return nil
}
