package portal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// Client is the HTTP client for the portal (passkey ceremony host) and the
// paymaster (fee sponsor). The ceremony itself happens on the portal's side;
// this client only exchanges its inputs and outputs.
type Client struct {
	portalURL    string
	paymasterURL string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a new portal/paymaster client.
func NewClient(portalURL, paymasterURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		portalURL:    portalURL,
		paymasterURL: paymasterURL,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// ConnectResult is the portal's answer to a completed credential ceremony.
type ConnectResult struct {
	CredentialID        string `json:"credential_id"`
	CredentialPublicKey string `json:"credential_public_key"`
	SmartWallet         string `json:"smart_wallet"`
}

// Connect asks the portal to run the credential ceremony. A cached
// credential id, when present, lets the portal assert the existing passkey
// instead of creating a new one.
func (c *Client) Connect(ctx context.Context, credentialID string) (*ConnectResult, error) {
	reqBody := map[string]interface{}{}
	if credentialID != "" {
		reqBody["credential_id"] = credentialID
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.portalURL+"/api/v1/wallets/connect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result ConnectResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.SmartWallet == "" {
		return nil, fmt.Errorf("portal returned malformed credential data: missing smart wallet")
	}

	c.logger.Debug("wallet connected", "smart_wallet", result.SmartWallet)
	return &result, nil
}

// Disconnect tells the portal to end the credential session.
func (c *Client) Disconnect(ctx context.Context, credentialID string) error {
	body, err := json.Marshal(map[string]interface{}{"credential_id": credentialID})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.portalURL+"/api/v1/wallets/disconnect", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("wallet disconnected")
	return nil
}

// InstructionAccount is one account reference in a serialized instruction.
type InstructionAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Instruction is the wire form of a Solana instruction sent to the
// paymaster, which assembles, sponsors, and submits the transaction.
type Instruction struct {
	ProgramID string               `json:"program_id"`
	Accounts  []InstructionAccount `json:"accounts"`
	Data      string               `json:"data"` // base64
}

// SignAndSendRequest asks the paymaster to sponsor and submit instructions
// signed with the smart wallet's passkey credential.
type SignAndSendRequest struct {
	SmartWallet  string        `json:"smart_wallet"`
	CredentialID string        `json:"credential_id"`
	Instructions []Instruction `json:"instructions"`
}

// SignAndSend submits instructions through the paymaster and returns the
// resulting transaction signature.
func (c *Client) SignAndSend(ctx context.Context, request *SignAndSendRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.paymasterURL+"/api/v1/transactions/sign-and-send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var response struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("transaction submitted",
		"smart_wallet", request.SmartWallet,
		"signature", response.Signature,
	)
	return response.Signature, nil
}

// EncodeInstructions converts solana-go instructions to their wire form.
func EncodeInstructions(instructions []solanago.Instruction) ([]Instruction, error) {
	out := make([]Instruction, 0, len(instructions))
	for _, ix := range instructions {
		data, err := ix.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize instruction data: %w", err)
		}

		accounts := make([]InstructionAccount, 0, len(ix.Accounts()))
		for _, acct := range ix.Accounts() {
			accounts = append(accounts, InstructionAccount{
				Pubkey:     acct.PublicKey.String(),
				IsSigner:   acct.IsSigner,
				IsWritable: acct.IsWritable,
			})
		}

		out = append(out, Instruction{
			ProgramID: ix.ProgramID().String(),
			Accounts:  accounts,
			Data:      base64.StdEncoding.EncodeToString(data),
		})
	}
	return out, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
