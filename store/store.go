// Package store holds the repository interfaces the rewards services consume
// and their gorm and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"repaircoin-backend/models"
)

var (
	ErrNotFound       = errors.New("store: record not found")
	ErrDuplicateEntry = errors.New("store: duplicate ledger entry")
	ErrAddressClaimed = errors.New("store: address already claimed")
	ErrShopExists     = errors.New("store: shop already exists")
)

// DuplicateEntryError is returned by AppendEntry when an entry with the same
// transaction reference already exists.
type DuplicateEntryError struct {
	Existing models.LedgerEntry
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("store: ledger entry %s already recorded", e.Existing.TxRef)
}

func (e *DuplicateEntryError) Is(target error) bool { return target == ErrDuplicateEntry }

// ClaimError reports the role that already holds an address.
type ClaimError struct {
	Address string
	Role    models.Role
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("store: address %s already claimed as %s", e.Address, e.Role)
}

func (e *ClaimError) Is(target error) bool { return target == ErrAddressClaimed }

// EntryFilter narrows QueryEntries. Zero values match everything.
type EntryFilter struct {
	Kinds []models.Kind
	Since *time.Time
}

func (f EntryFilter) matches(e models.LedgerEntry) bool {
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// LedgerStore is the durable record of every mint, redeem and transfer.
type LedgerStore interface {
	// AppendEntry is idempotent on TxRef: a second append returns a
	// *DuplicateEntryError carrying the stored entry.
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) (uuid.UUID, error)
	// AppendEntries writes all entries or none.
	AppendEntries(ctx context.Context, entries []*models.LedgerEntry) error
	// QueryEntries returns the entries of one address ordered by timestamp,
	// read fresh on every call.
	QueryEntries(ctx context.Context, address string, filter EntryFilter) ([]models.LedgerEntry, error)
	QueryShopEntries(ctx context.Context, shopID string, limit int) ([]models.LedgerEntry, error)
	EntryByTxRef(ctx context.Context, txRef string) (*models.LedgerEntry, error)
	// TransitionEntry moves an entry from one status to another. It returns
	// the current entry and whether this call performed the transition.
	TransitionEntry(ctx context.Context, txRef string, from, to models.Status) (*models.LedgerEntry, bool, error)
	StalePending(ctx context.Context, kind models.Kind, before time.Time, limit int) ([]models.LedgerEntry, error)
}

// ChainBalanceSource reports the token balance held by an address on-chain.
type ChainBalanceSource interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

type CustomerRegistry interface {
	GetCustomer(ctx context.Context, address string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	CountHomeCustomers(ctx context.Context, shopID string) (int64, error)
}

type ShopRegistry interface {
	GetShop(ctx context.Context, shopID string) (*models.Shop, error)
	GetShopByWallet(ctx context.Context, wallet string) (*models.Shop, error)
	CreateShop(ctx context.Context, shop *models.Shop) error
	UpdateShop(ctx context.Context, shop *models.Shop) error
	AddShopRedemption(ctx context.Context, shopID string, amount decimal.Decimal) error
}

// AdminAllowList holds the pre-provisioned admin addresses.
type AdminAllowList interface {
	Contains(address string) bool
}

// RoleIndex is the single authoritative address -> role mapping every
// registration path claims before writing its registry row.
type RoleIndex interface {
	// Claim returns a *ClaimError when the address is already held, even by
	// the same role.
	Claim(ctx context.Context, address string, role models.Role) error
	Release(ctx context.Context, address string, role models.Role) error
	RoleOf(ctx context.Context, address string) (models.Role, error)
}

// StaticAllowList is an AdminAllowList backed by a fixed set of addresses.
type StaticAllowList map[string]struct{}

// NewStaticAllowList expects addresses that are already normalized.
func NewStaticAllowList(addresses ...string) StaticAllowList {
	list := make(StaticAllowList, len(addresses))
	for _, addr := range addresses {
		list[addr] = struct{}{}
	}
	return list
}

func (l StaticAllowList) Contains(address string) bool {
	_, ok := l[address]
	return ok
}

func (l StaticAllowList) Addresses() []string {
	out := make([]string, 0, len(l))
	for addr := range l {
		out = append(out, addr)
	}
	return out
}
