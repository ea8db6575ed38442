package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/pkwallet/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

func eventsCommands() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Stream wallet events from NATS",
		Subcommands: []*cli.Command{
			eventsSubscribeCommand(),
			eventsInspectStreamCommand(),
		},
	}
}

func eventsSubscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to wallet events",
		ArgsUsage: "[wallet_address]",
		Description: `Stream wallet events published to NATS JetStream.

Events are published to the subject wallet.events.{address}. Without an
address the command streams events for every wallet.

Filters are jq expressions evaluated against each event; events where any
filter is not true are skipped.

Examples:
  pkwallet events subscribe DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK
  pkwallet events subscribe --filter '.type == "transfer_confirmed"'
  pkwallet events subscribe --filter '.amount > 1000000' --json`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq filter expression that must evaluate to true (repeatable, all must match)",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "pkwallet-cli",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			if natsURL == "" {
				return fmt.Errorf("NATS URL is required: set --nats-url or NATS_URL")
			}

			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = fmt.Sprintf("wallet.events.%s", c.Args().Get(0))
			}

			filters := c.StringSlice("filter")
			compiled := make([]*gojq.Code, len(filters))
			for i, filter := range filters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse filter %q: %w", filter, err)
				}
				compiled[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile filter %q: %w", filter, err)
				}
			}

			return streamEvents(c, natsURL, subject, compiled)
		},
	}
}

// streamEvents consumes the wallet event stream and prints each event that
// passes every filter.
func streamEvents(c *cli.Context, natsURL, subject string, filters []*gojq.Code) error {
	jsonOutput := c.Bool("json")
	logger := newLogger(c)

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if c.Bool("durable") {
		consumerConfig.Durable = c.String("consumer-name")
		consumerConfig.Name = c.String("consumer-name")
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("Subscribed to %s on %s. Waiting for events... (Ctrl-C to exit)\n\n", subject, natsURL)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.WalletEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				logger.Warn("failed to parse event", "error", err)
				msg.Ack()
				continue
			}

			if !matchesFilters(msg.Data(), filters, logger) {
				msg.Ack()
				continue
			}

			count++
			printEvent(&event, count, jsonOutput)
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\nReceived %d event(s)\n", count)
			}
			return nil
		}
	}
}

// matchesFilters evaluates every compiled jq filter against the raw event
// JSON. All filters must produce a truthy result.
func matchesFilters(raw []byte, filters []*gojq.Code, logger *slog.Logger) bool {
	if len(filters) == 0 {
		return true
	}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if err, isErr := v.(error); isErr {
			logger.Debug("filter error", "error", err)
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy follows jq semantics: nil and false are falsy, everything else is
// truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printEvent(event *natspkg.WalletEvent, count int, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(event)
		fmt.Println(string(data))
		return
	}

	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Event #%d: %s\n", count, event.Type)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Wallet:       %s\n", event.WalletAddress)
	if event.Lamports != nil {
		fmt.Printf("Balance:      %d lamports\n", *event.Lamports)
	}
	if event.Signature != "" {
		fmt.Printf("Signature:    %s\n", event.Signature)
	}
	if event.Recipient != "" {
		fmt.Printf("Recipient:    %s\n", event.Recipient)
		fmt.Printf("Amount:       %d lamports\n", event.Amount)
	}
	if event.Error != "" {
		fmt.Printf("Error:        %s (%s)\n", event.Error, event.ErrorCode)
	}
	fmt.Printf("Published:    %s\n\n", event.PublishedAt.Format(time.RFC3339))
}

func eventsInspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the WALLET_EVENTS JetStream stream",
		Description: `Show stream configuration and state: message count, consumers, storage.

Example:
  pkwallet events inspect-stream`,
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			if natsURL == "" {
				return fmt.Errorf("NATS URL is required: set --nats-url or NATS_URL")
			}

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Stream: %s\n", info.Config.Name)
			fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
			return nil
		},
	}
}
