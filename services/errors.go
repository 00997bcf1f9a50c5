package services

import (
	"errors"
	"fmt"

	"repaircoin-backend/models"
	"repaircoin-backend/utils"
)

var (
	ErrInvalidAddress = utils.ErrInvalidAddress
	ErrInvalidAmount  = utils.ErrInvalidAmount
	ErrInvalidInput   = errors.New("rewards: invalid input")

	ErrCustomerNotFound   = errors.New("rewards: customer not found")
	ErrShopNotFound       = errors.New("rewards: shop not found")
	ErrEntryNotFound      = errors.New("rewards: ledger entry not found")
	ErrCustomerInactive   = errors.New("rewards: customer is deactivated")
	ErrShopInactive       = errors.New("rewards: shop is not active and verified")
	ErrAlreadyRegistered  = errors.New("rewards: address already registered")
	ErrShopExists         = errors.New("rewards: shop id already registered")
	ErrRoleConflict       = errors.New("rewards: address registered under another role")
	ErrTxRefReused        = errors.New("rewards: transaction reference already used for a different operation")
	ErrReservationExpired = errors.New("rewards: redemption reservation expired before settlement")

	// ErrTransient marks infrastructure failures callers may retry with backoff.
	ErrTransient          = errors.New("rewards: transient infrastructure failure")
	ErrBalanceUnavailable = fmt.Errorf("%w: chain balance unavailable", ErrTransient)
	ErrBusy               = fmt.Errorf("%w: customer has a redemption in flight", ErrTransient)
)

// RoleConflictError is a permanent rejection: the address already belongs to
// a different role.
type RoleConflictError struct {
	Address  string
	Existing models.Role
	Message  string
}

func (e *RoleConflictError) Error() string {
	return fmt.Sprintf("rewards: %s", e.Message)
}

func (e *RoleConflictError) Is(target error) bool { return target == ErrRoleConflict }

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

// IsRetryable reports whether err is an infrastructure failure rather than a
// validation error or business rejection.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func conflictMessage(existing, intended models.Role) string {
	article := "a"
	if existing == models.RoleAdmin {
		article = "an"
	}
	return fmt.Sprintf("this wallet address is already registered as %s %s and cannot be used for %s registration",
		article, existing, intended)
}
