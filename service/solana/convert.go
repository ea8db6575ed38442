package solana

import (
	"math"
	"strconv"
	"strings"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// ToLamports converts a SOL amount to lamports, flooring the result so a
// transfer never exceeds what the caller authorized.
func ToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Floor(sol * LamportsPerSOL))
}

// LamportsToSOL converts lamports to a fractional SOL amount.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// FormatSOL renders a SOL amount for display: "0" for exactly zero,
// "< 0.0001" for any non-zero amount below that threshold, otherwise at most
// four decimal places with trailing zeros stripped.
func FormatSOL(sol float64) string {
	if sol == 0 {
		return "0"
	}
	if sol > 0 && sol < 0.0001 {
		return "< 0.0001"
	}
	truncated := math.Floor(sol*10_000) / 10_000
	s := strconv.FormatFloat(truncated, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

// FormatLamports is FormatSOL over a raw lamport balance.
func FormatLamports(lamports uint64) string {
	return FormatSOL(LamportsToSOL(lamports))
}
