package faults

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackMessage is returned when the input carries no usable message.
const FallbackMessage = "An unexpected error occurred."

// Rule maps raw failure text to a canonical user-facing message.
// Exactly one of Substring or Pattern is set. Substring matches are
// case-insensitive.
type Rule struct {
	Code      string
	Substring string
	Pattern   *regexp.Regexp
	Message   string
}

func (r Rule) matches(msg string) bool {
	if r.Pattern != nil {
		return r.Pattern.MatchString(msg)
	}
	return strings.Contains(strings.ToLower(msg), strings.ToLower(r.Substring))
}

// rules is an ordered priority list: the first matching rule wins.
// Credential-ceremony rules come before the generic network rules because
// WebAuthn error text can contain generic-sounding fragments (e.g.
// "operation either timed out or was not allowed" would otherwise hit the
// timeout rule).
var rules = []Rule{
	// Credential ceremony (WebAuthn DOMException names and portal phrasing).
	{Code: "ceremony_cancelled", Pattern: regexp.MustCompile(`NotAllowedError|timed out or was not allowed|ceremony was cancelled`), Message: "Passkey request was cancelled. Please try again."},
	{Code: "ceremony_duplicate", Pattern: regexp.MustCompile(`InvalidStateError|credential already registered|passkey already exists`), Message: "A passkey already exists for this device. Try logging in instead."},
	{Code: "ceremony_unsupported", Pattern: regexp.MustCompile(`NotSupportedError|passkeys? (?:are|is) not supported|webauthn not supported`), Message: "Passkeys are not supported on this device or browser."},
	{Code: "ceremony_insecure", Pattern: regexp.MustCompile(`SecurityError|insecure context|not a secure context`), Message: "Passkeys require a secure (HTTPS) connection."},
	{Code: "ceremony_aborted", Pattern: regexp.MustCompile(`AbortError|ceremony (?:was )?aborted`), Message: "The passkey request was interrupted. Please try again."},
	{Code: "ceremony_constraint", Substring: "ConstraintError", Message: "This device cannot satisfy the passkey requirements."},

	// Credential data coming back from the portal. Absent and malformed are
	// distinct: absent means create a new wallet, malformed means retry.
	{Code: "credential_absent", Pattern: regexp.MustCompile(`credential not found|no credential|unknown credential`), Message: "No wallet found for this passkey. Create a new wallet to continue."},
	{Code: "credential_malformed", Pattern: regexp.MustCompile(`malformed credential|invalid credential data|failed to (?:parse|decode) credential`), Message: "Your saved wallet data could not be read. Please try again."},

	// Session state.
	{Code: "session_expired", Substring: "session expired", Message: "Your session has expired. Please log in again."},
	{Code: "session_invalid", Substring: "invalid session", Message: "Your session is no longer valid. Please log in again."},

	// Sponsorship and smart-wallet services.
	{Code: "paymaster_unavailable", Pattern: regexp.MustCompile(`paymaster|fee sponsor`), Message: "The fee sponsorship service is temporarily unavailable. Please try again shortly."},
	{Code: "smart_wallet_failed", Substring: "smart wallet operation failed", Message: "The wallet service could not complete the operation. Please try again."},

	// Solana RPC failures.
	{Code: "rpc_blockhash_stale", Pattern: regexp.MustCompile(`[Bb]lockhash not found|blockhash expired`), Message: "Transaction expired. Please try again."},
	{Code: "rpc_insufficient_funds", Pattern: regexp.MustCompile(`insufficient funds|insufficient lamports`), Message: "Insufficient balance to complete this transaction."},
	{Code: "rpc_simulation_failed", Substring: "Transaction simulation failed", Message: "Transaction could not be processed. Please try again."},
	{Code: "rpc_account_not_found", Pattern: regexp.MustCompile(`AccountNotFound|could not find account`), Message: "Account not found on the network."},

	// Local validation and user decisions.
	{Code: "wallet_not_connected", Substring: "wallet not connected", Message: "Wallet not connected. Please log in first."},
	{Code: "invalid_recipient", Substring: "invalid recipient", Message: "Invalid recipient address."},
	{Code: "invalid_amount", Substring: "amount must be greater than 0", Message: "Amount must be greater than 0."},
	{Code: "user_rejected", Pattern: regexp.MustCompile(`user rejected|rejected the request|request was declined`), Message: "Request was declined."},

	// Generic network failures last so the specific rules above win.
	{Code: "network_timeout", Pattern: regexp.MustCompile(`timed? ?out|deadline exceeded`), Message: "The request timed out. Check your connection and try again."},
	{Code: "network_dns", Substring: "no such host", Message: "Could not reach the network service. Check your connection."},
	{Code: "network_cors", Substring: "CORS", Message: "The service rejected the request origin."},
	{Code: "network_failure", Pattern: regexp.MustCompile(`[Ff]ailed to fetch|network error|connection refused|connection reset|broken pipe|EOF`), Message: "A network error occurred. Check your connection and try again."},
}

// Rules returns the classification table in priority order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Normalize maps an arbitrary failure value to a canonical user-facing
// message. Pure and deterministic; the original value is untouched, so
// callers can still log it for diagnostics.
func Normalize(v any) string {
	_, msg := Classify(v)
	return msg
}

// Classify is Normalize plus the matched rule's stable code, for metric and
// event labels. The code is empty when no rule matched.
func Classify(v any) (string, string) {
	msg := extractMessage(v)
	if msg == "" {
		return "", FallbackMessage
	}
	for _, r := range rules {
		if r.matches(msg) {
			return r.Code, r.Message
		}
	}
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return "", FallbackMessage
	}
	return "", trimmed
}

// extractMessage pulls a message string out of whatever the collaborators
// hand us: errors, plain strings, values carrying a Message, or nil.
func extractMessage(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case error:
		return x.Error()
	case string:
		return x
	}
	if m, ok := v.(interface{ Message() string }); ok {
		return m.Message()
	}
	return fmt.Sprint(v)
}
