package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"repaircoin-backend/config"
	"repaircoin-backend/metrics"
	"repaircoin-backend/models"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

type EarnRequest struct {
	Address string
	ShopID  string
	Amount  decimal.Decimal
	Source  models.Source
	TxRef   string
}

type PurchaseRequest struct {
	Address string
	Amount  decimal.Decimal
	TxRef   string
}

type TransferRequest struct {
	From   string
	To     string
	Amount decimal.Decimal
	TxRef  string
}

type EarnResult struct {
	Entries         []models.LedgerEntry `json:"entries"`
	Customer        *models.Customer     `json:"customer,omitempty"`
	Tier            TierChange           `json:"tier"`
	CreatedCustomer bool                 `json:"createdCustomer,omitempty"`
	Replayed        bool                 `json:"replayed,omitempty"`
}

type EarningServiceConfig struct {
	Ledger        store.LedgerStore
	Customers     store.CustomerRegistry
	Shops         store.ShopRegistry
	Registrations *RegistrationService
	Tiers         *TierEngine
	Locks         *AddressLocker
	Policy        config.Policy
	Metrics       *metrics.Rewards
	Logger        *slog.Logger
}

// EarningService records credits and transfers in the ledger and keeps the
// customer's lifetime earnings and tier current.
type EarningService struct {
	ledger        store.LedgerStore
	customers     store.CustomerRegistry
	shops         store.ShopRegistry
	registrations *RegistrationService
	tiers         *TierEngine
	locks         *AddressLocker
	lockTimeout   time.Duration
	metrics       *metrics.Rewards
	logger        *slog.Logger
	now           func() time.Time
}

func NewEarningService(cfg EarningServiceConfig) *EarningService {
	s := &EarningService{
		ledger:        cfg.Ledger,
		customers:     cfg.Customers,
		shops:         cfg.Shops,
		registrations: cfg.Registrations,
		tiers:         cfg.Tiers,
		locks:         cfg.Locks,
		lockTimeout:   cfg.Policy.LockTimeout,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if s.tiers == nil {
		s.tiers = NewTierEngine(cfg.Policy)
	}
	if s.locks == nil {
		s.locks = NewAddressLocker()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RecordEarning credits an earning-type mint. Repair and referral earnings
// also carry a tier bonus computed from the tier held before this event.
func (s *EarningService) RecordEarning(ctx context.Context, req EarnRequest) (EarnResult, error) {
	addr, err := utils.NormalizeAddress(req.Address)
	if err != nil {
		return EarnResult{}, err
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return EarnResult{}, err
	}
	if !req.Source.IsEarning() || req.Source == models.SourceTierBonus {
		return EarnResult{}, invalid("source %q cannot be recorded as an earning", req.Source)
	}
	txRef := strings.TrimSpace(req.TxRef)
	if txRef == "" {
		return EarnResult{}, invalid("transaction reference is required")
	}
	var shopID *string
	if id := strings.TrimSpace(req.ShopID); id != "" {
		shop, err := s.registrations.lookupShop(ctx, id)
		if err != nil {
			return EarnResult{}, err
		}
		if !shop.CanRedeem() {
			return EarnResult{}, fmt.Errorf("%w: shop %s is not verified and active", ErrShopInactive, shop.ShopID)
		}
		shopID = &shop.ShopID
	} else if req.Source == models.SourceRepair {
		return EarnResult{}, invalid("repair earnings require a shop id")
	}

	unlock, err := s.locks.Lock(ctx, addr, s.lockTimeout)
	if err != nil {
		return EarnResult{}, err
	}
	defer unlock()

	if replay, ok, err := s.replay(ctx, txRef, addr, models.KindMint); err != nil || ok {
		return replay, err
	}

	customer, created, err := s.registrations.ensureCustomer(ctx, addr, shopID)
	if err != nil {
		return EarnResult{}, err
	}
	if !customer.IsActive {
		return EarnResult{}, fmt.Errorf("%w: %s", ErrCustomerInactive, addr)
	}

	now := s.now()
	entries := []*models.LedgerEntry{{
		TxRef:           txRef,
		CustomerAddress: addr,
		ShopID:          shopID,
		Amount:          req.Amount,
		Kind:            models.KindMint,
		Source:          req.Source,
		Status:          models.StatusConfirmed,
		Timestamp:       now,
	}}
	if req.Source == models.SourceRepair || req.Source == models.SourceReferralBonus {
		tier := customer.Tier
		if !tier.Valid() {
			tier = s.tiers.TierFor(customer.LifetimeEarnings)
		}
		if bonus := s.tiers.ApplyBonus(tier, req.Amount); bonus.Sign() > 0 {
			entries = append(entries, &models.LedgerEntry{
				TxRef:           txRef + ":tier_bonus",
				CustomerAddress: addr,
				ShopID:          shopID,
				Amount:          bonus,
				Kind:            models.KindMint,
				Source:          models.SourceTierBonus,
				Status:          models.StatusConfirmed,
				Timestamp:       now,
			})
		}
	}
	if err := s.ledger.AppendEntries(ctx, entries); err != nil {
		return EarnResult{}, appendError(txRef, err)
	}

	delta := decimal.Zero
	for _, entry := range entries {
		delta = delta.Add(entry.Amount)
	}
	change, err := s.tiers.Recompute(customer, delta)
	if err != nil {
		return EarnResult{}, err
	}
	if req.Source == models.SourceReferralBonus {
		customer.ReferralCount++
	}
	if err := s.customers.UpdateCustomer(ctx, customer); err != nil {
		s.logger.Error("failed to persist lifetime earnings",
			"address", addr, "txRef", txRef, "lifetime", change.Lifetime.String(), "error", err)
	}

	for _, entry := range entries {
		s.metrics.Earning(string(entry.Source))
	}
	if change.Changed {
		s.logger.Info("customer tier changed",
			"address", addr, "from", change.Previous, "to", change.Current, "lifetime", change.Lifetime.String())
	}
	return EarnResult{
		Entries:         derefEntries(entries),
		Customer:        customer,
		Tier:            change,
		CreatedCustomer: created,
	}, nil
}

// RecordPurchase records market-bought tokens. They raise the on-chain
// balance but never the earned balance or lifetime earnings.
func (s *EarningService) RecordPurchase(ctx context.Context, req PurchaseRequest) (EarnResult, error) {
	addr, err := utils.NormalizeAddress(req.Address)
	if err != nil {
		return EarnResult{}, err
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return EarnResult{}, err
	}
	txRef := strings.TrimSpace(req.TxRef)
	if txRef == "" {
		return EarnResult{}, invalid("transaction reference is required")
	}

	unlock, err := s.locks.Lock(ctx, addr, s.lockTimeout)
	if err != nil {
		return EarnResult{}, err
	}
	defer unlock()

	if replay, ok, err := s.replay(ctx, txRef, addr, models.KindMint); err != nil || ok {
		return replay, err
	}
	customer, err := s.registrations.lookupCustomer(ctx, addr)
	if err != nil {
		return EarnResult{}, err
	}

	entry := &models.LedgerEntry{
		TxRef:           txRef,
		CustomerAddress: addr,
		Amount:          req.Amount,
		Kind:            models.KindMint,
		Source:          models.SourcePurchase,
		Status:          models.StatusConfirmed,
		Timestamp:       s.now(),
	}
	if _, err := s.ledger.AppendEntry(ctx, entry); err != nil {
		return EarnResult{}, appendError(txRef, err)
	}
	s.metrics.Earning(string(models.SourcePurchase))
	return EarnResult{
		Entries:  []models.LedgerEntry{*entry},
		Customer: customer,
		Tier:     TierChange{Previous: customer.Tier, Current: customer.Tier, Lifetime: customer.LifetimeEarnings},
	}, nil
}

// RecordTransfer records a wallet-to-wallet transfer. The sender gets an
// outbound entry; the receiver gets an inbound one only if it is a customer.
func (s *EarningService) RecordTransfer(ctx context.Context, req TransferRequest) (EarnResult, error) {
	from, err := utils.NormalizeAddress(req.From)
	if err != nil {
		return EarnResult{}, err
	}
	to, err := utils.NormalizeAddress(req.To)
	if err != nil {
		return EarnResult{}, err
	}
	if from == to {
		return EarnResult{}, invalid("cannot transfer to the same address")
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return EarnResult{}, err
	}
	txRef := strings.TrimSpace(req.TxRef)
	if txRef == "" {
		return EarnResult{}, invalid("transaction reference is required")
	}

	unlock, err := s.locks.LockAll(ctx, []string{from, to}, s.lockTimeout)
	if err != nil {
		return EarnResult{}, err
	}
	defer unlock()

	if replay, ok, err := s.replay(ctx, txRef, from, models.KindTransfer); err != nil || ok {
		return replay, err
	}
	sender, err := s.registrations.lookupCustomer(ctx, from)
	if err != nil {
		return EarnResult{}, err
	}

	now := s.now()
	entries := []*models.LedgerEntry{{
		TxRef:           txRef,
		CustomerAddress: from,
		Counterparty:    to,
		Amount:          req.Amount,
		Kind:            models.KindTransfer,
		Source:          models.SourceTransfer,
		Status:          models.StatusConfirmed,
		Timestamp:       now,
	}}
	if _, err := s.customers.GetCustomer(ctx, to); err == nil {
		entries = append(entries, &models.LedgerEntry{
			TxRef:           txRef + ":in",
			CustomerAddress: to,
			Counterparty:    from,
			Amount:          req.Amount,
			Kind:            models.KindTransfer,
			Source:          models.SourceTransfer,
			Inbound:         true,
			Status:          models.StatusConfirmed,
			Timestamp:       now,
		})
	} else if !errors.Is(err, store.ErrNotFound) {
		return EarnResult{}, transient("lookup receiver", err)
	}
	if err := s.ledger.AppendEntries(ctx, entries); err != nil {
		return EarnResult{}, appendError(txRef, err)
	}
	return EarnResult{
		Entries:  derefEntries(entries),
		Customer: sender,
		Tier:     TierChange{Previous: sender.Tier, Current: sender.Tier, Lifetime: sender.LifetimeEarnings},
	}, nil
}

// replay returns the stored result for a transaction reference that was
// already recorded for the same address and kind.
func (s *EarningService) replay(ctx context.Context, txRef, addr string, kind models.Kind) (EarnResult, bool, error) {
	existing, err := s.ledger.EntryByTxRef(ctx, txRef)
	if errors.Is(err, store.ErrNotFound) {
		return EarnResult{}, false, nil
	} else if err != nil {
		return EarnResult{}, false, transient("lookup transaction reference", err)
	}
	if existing.CustomerAddress != addr || existing.Kind != kind {
		return EarnResult{}, false, fmt.Errorf("%w: %s", ErrTxRefReused, txRef)
	}
	result := EarnResult{Entries: []models.LedgerEntry{*existing}, Replayed: true}
	if customer, err := s.customers.GetCustomer(ctx, addr); err == nil {
		result.Customer = customer
		result.Tier = TierChange{Previous: customer.Tier, Current: customer.Tier, Lifetime: customer.LifetimeEarnings}
	}
	return result, true, nil
}

func appendError(txRef string, err error) error {
	if errors.Is(err, store.ErrDuplicateEntry) {
		return fmt.Errorf("%w: %s", ErrTxRefReused, txRef)
	}
	return transient("append ledger entry", err)
}

func derefEntries(entries []*models.LedgerEntry) []models.LedgerEntry {
	out := make([]models.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, *entry)
	}
	return out
}
