package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brojonat/pkwallet/service/keystore"
	"github.com/brojonat/pkwallet/service/wallet"
	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Manage the passkey wallet session",
		Subcommands: []*cli.Command{
			walletCreateCommand(),
			walletLoginCommand(),
			walletLogoutCommand(),
			walletStatusCommand(),
		},
	}
}

func walletCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new wallet with a fresh passkey credential",
		Description: `Run a fresh credential ceremony against the portal service.

Any cached credential from a prior session is cleared first, so create
always produces a brand new wallet.

Example:
  pkwallet wallet create`,
		Action: func(c *cli.Context) error {
			return runSessionAction(c, "created", func(ctx context.Context, s *wallet.Session) error {
				return s.CreateWallet(ctx)
			})
		},
	}
}

func walletLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in with the existing passkey credential",
		Description: `Connect to the portal service using the cached passkey credential.

Example:
  pkwallet wallet login`,
		Action: func(c *cli.Context) error {
			return runSessionAction(c, "connected", func(ctx context.Context, s *wallet.Session) error {
				return s.Login(ctx)
			})
		},
	}
}

func walletLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Disconnect the active wallet session",
		Action: func(c *cli.Context) error {
			return runSessionAction(c, "disconnected", func(ctx context.Context, s *wallet.Session) error {
				return s.Logout(ctx)
			})
		},
	}
}

func walletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the cached credential and wallet address",
		Description: `Read the local keystore without running a passkey ceremony.

Example:
  pkwallet wallet status --json`,
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}
			keys, err := keystore.Open(cfg.KeystorePath)
			if err != nil {
				return fmt.Errorf("failed to open keystore: %w", err)
			}
			defer keys.Close()

			ctx := context.Background()
			credentialID, err := keys.Get(ctx, keystore.KeyCredentialID)
			if err != nil {
				return fmt.Errorf("failed to read keystore: %w", err)
			}
			smartWallet, err := keys.Get(ctx, keystore.KeySmartWallet)
			if err != nil {
				return fmt.Errorf("failed to read keystore: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(map[string]any{
					"credential_id": credentialID,
					"smart_wallet":  smartWallet,
					"has_passkey":   credentialID != "",
				}, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if credentialID == "" {
				fmt.Println("No passkey credential cached. Run 'pkwallet wallet create' to get started.")
				return nil
			}
			fmt.Printf("Credential ID: %s\n", credentialID)
			fmt.Printf("Smart Wallet:  %s\n", smartWallet)
			return nil
		},
	}
}

// runSessionAction wires the session stack, runs one wallet action, and
// prints the resulting state. Failures print the normalized message from the
// session state so CLI output matches what a UI would show.
func runSessionAction(c *cli.Context, verb string, op func(context.Context, *wallet.Session) error) error {
	d, err := buildSession(c, nil)
	if err != nil {
		return err
	}
	defer d.close()

	ctx := context.Background()
	actionErr := op(ctx, d.session)
	snap := d.session.Snapshot()

	if c.Bool("json") {
		data, _ := json.MarshalIndent(map[string]any{
			"address":   snap.Address,
			"connected": snap.Connected,
			"error":     snap.Err,
		}, "", "  ")
		fmt.Println(string(data))
		return actionErr
	}

	if actionErr != nil {
		if snap.Err != "" {
			fmt.Println(snap.Err)
		}
		return actionErr
	}

	if snap.Connected {
		fmt.Printf("Wallet %s: %s\n", verb, snap.Address)
	} else {
		fmt.Printf("Wallet %s\n", verb)
	}
	return nil
}
