package common

import "strings"

// Everyone is the view-address wildcard marking a record visible to any wallet.
const Everyone = "ALL"

// NormalizeAddress lower-cases a wallet address so all stored addresses
// compare case-insensitively.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress reports whether two wallet addresses are equal ignoring case.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
