// utils/validation.go
package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidAmount  = errors.New("amount must be positive")
)

// NormalizeAddress validates a 20-byte hex wallet address and returns it in
// the lower-case form every registry is keyed by.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}

// ValidateAmount accepts strictly positive amounts with at most two decimal
// places, the smallest RCN unit the ledger records.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}
