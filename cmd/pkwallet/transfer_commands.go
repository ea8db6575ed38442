package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brojonat/pkwallet/service/transfer"
	"github.com/urfave/cli/v2"
)

func transferCommands() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Send SOL from the wallet",
		Subcommands: []*cli.Command{
			transferSendCommand(),
		},
	}
}

func transferSendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send SOL to a recipient",
		Description: `Log in with the cached passkey, then sign and submit a transfer through
the paymaster. The amount is given in SOL and floored to whole lamports.

Example:
  pkwallet transfer send --to DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK --amount 0.25`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient address (base58)",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Usage:    "Amount in SOL",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			d, err := buildSession(c, nil)
			if err != nil {
				return err
			}
			defer d.close()

			ctx := context.Background()
			if err := d.session.Login(ctx); err != nil {
				if snap := d.session.Snapshot(); snap.Err != "" {
					fmt.Println(snap.Err)
				}
				return err
			}

			sender := transfer.NewSender(d.session, d.store, d.events, d.metrics, newLogger(c))
			sendErr := sender.Send(ctx, c.String("to"), c.Float64("amount"))
			st := sender.State()

			if c.Bool("json") {
				data, _ := json.MarshalIndent(map[string]any{
					"status":    string(st.Status),
					"signature": st.Signature,
					"error":     st.Err,
				}, "", "  ")
				fmt.Println(string(data))
				return sendErr
			}

			if sendErr != nil {
				if st.Err != "" {
					fmt.Println(st.Err)
				}
				return sendErr
			}
			fmt.Printf("Transfer confirmed: %s\n", st.Signature)
			return nil
		},
	}
}
