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

type DenialReason string

const (
	ReasonCustomerNotFound           DenialReason = "CustomerNotFound"
	ReasonCustomerInactive           DenialReason = "CustomerInactive"
	ReasonShopNotFound               DenialReason = "ShopNotFound"
	ReasonShopInactive               DenialReason = "ShopInactive"
	ReasonInsufficientOnChainBalance DenialReason = "InsufficientOnChainBalance"
	ReasonExceedsEarnedCap           DenialReason = "ExceedsEarnedCap"
	ReasonExceedsCrossShopCap        DenialReason = "ExceedsCrossShopCap"
	ReasonBalanceUnavailable         DenialReason = "BalanceUnavailable"
)

// Decision is the result of evaluating a redemption. Denials are values, not
// errors; only infrastructure failures come back as errors.
type Decision struct {
	Approved      bool            `json:"approved"`
	Reason        DenialReason    `json:"reason,omitempty"`
	Message       string          `json:"message,omitempty"`
	Retryable     bool            `json:"retryable,omitempty"`
	MaxRedeemable decimal.Decimal `json:"maxRedeemable"`
	IsHomeShop    bool            `json:"isHomeShop"`
	Tier          models.Tier     `json:"tier,omitempty"`
	Balances      *Balances       `json:"balances,omitempty"`
}

type CommitOutcome string

const (
	OutcomeCommitting CommitOutcome = "Committing"
	OutcomeConfirmed  CommitOutcome = "Confirmed"
	OutcomeRolledBack CommitOutcome = "RolledBack"
)

type CommitRequest struct {
	Address string
	ShopID  string
	Amount  decimal.Decimal
	TxRef   string
	// ConfirmImmediately records a burn the caller has already performed.
	ConfirmImmediately bool
}

type CommitResult struct {
	Outcome  CommitOutcome       `json:"outcome"`
	Entry    *models.LedgerEntry `json:"entry,omitempty"`
	Decision Decision            `json:"decision"`
	Replayed bool                `json:"replayed,omitempty"`
}

type RedemptionEngineConfig struct {
	Ledger    store.LedgerStore
	Customers store.CustomerRegistry
	Shops     store.ShopRegistry
	Chain     store.ChainBalanceSource
	// Balances is built from Ledger and Chain when nil.
	Balances *BalanceTracker
	Tiers    *TierEngine
	Locks    *AddressLocker
	Policy   config.Policy
	Metrics  *metrics.Rewards
	Logger   *slog.Logger
	Now      func() time.Time
}

// RedemptionEngine decides whether a customer may redeem at a shop and
// records approved redemptions under the customer's lock.
type RedemptionEngine struct {
	ledger    store.LedgerStore
	customers store.CustomerRegistry
	shops     store.ShopRegistry
	balances  *BalanceTracker
	tiers     *TierEngine
	locks     *AddressLocker
	policy    config.Policy
	metrics   *metrics.Rewards
	logger    *slog.Logger
	now       func() time.Time
}

func NewRedemptionEngine(cfg RedemptionEngineConfig) *RedemptionEngine {
	e := &RedemptionEngine{
		ledger:    cfg.Ledger,
		customers: cfg.Customers,
		shops:     cfg.Shops,
		balances:  cfg.Balances,
		tiers:     cfg.Tiers,
		locks:     cfg.Locks,
		policy:    cfg.Policy,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if e.balances == nil {
		e.balances = NewBalanceTracker(cfg.Ledger, cfg.Chain, cfg.Policy)
	}
	if e.tiers == nil {
		e.tiers = NewTierEngine(cfg.Policy)
	}
	if e.locks == nil {
		e.locks = NewAddressLocker()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Evaluate is advisory: nothing is reserved and the result may be stale by
// the time the caller acts on it. Commit repeats the same checks under lock.
func (e *RedemptionEngine) Evaluate(ctx context.Context, address, shopID string, amount decimal.Decimal) (Decision, error) {
	addr, shopID, err := validateRedemption(address, shopID, amount)
	if err != nil {
		return Decision{}, err
	}
	decision, err := e.evaluate(ctx, addr, shopID, amount)
	if err != nil {
		return Decision{}, err
	}
	e.metrics.Decision(decision.Approved, string(decision.Reason))
	return decision, nil
}

func validateRedemption(address, shopID string, amount decimal.Decimal) (string, string, error) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return "", "", err
	}
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return "", "", invalid("shop id is required")
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return "", "", err
	}
	return addr, shopID, nil
}

func (e *RedemptionEngine) evaluate(ctx context.Context, addr, shopID string, amount decimal.Decimal) (Decision, error) {
	customer, err := e.customers.GetCustomer(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return deny(ReasonCustomerNotFound, "customer is not registered"), nil
	} else if err != nil {
		return Decision{}, transient("lookup customer", err)
	}
	if !customer.IsActive {
		return deny(ReasonCustomerInactive, "customer account is deactivated"), nil
	}

	shop, err := e.shops.GetShop(ctx, shopID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(ReasonShopNotFound, "shop is not registered"), nil
	} else if err != nil {
		return Decision{}, transient("lookup shop", err)
	}
	if !shop.CanRedeem() {
		return deny(ReasonShopInactive, "shop is not active or not verified"), nil
	}

	balances, err := e.balances.balancesFor(ctx, addr)
	if errors.Is(err, ErrBalanceUnavailable) {
		e.logger.Warn("chain balance unavailable", "address", addr, "error", err)
		d := deny(ReasonBalanceUnavailable, "on-chain balance could not be verified, try again shortly")
		d.Retryable = true
		return d, nil
	} else if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		IsHomeShop:    customer.IsHomeShop(shopID),
		Tier:          e.tiers.TierFor(customer.LifetimeEarnings),
		Balances:      &balances,
		MaxRedeemable: decimal.Zero,
	}
	if balances.OnChain.LessThan(amount) {
		decision.Reason = ReasonInsufficientOnChainBalance
		decision.Message = fmt.Sprintf("wallet holds %s RCN, %s requested", balances.OnChain.StringFixed(2), amount.StringFixed(2))
		return decision, nil
	}

	if decision.IsHomeShop {
		decision.MaxRedeemable = balances.Earned
		if amount.GreaterThan(decision.MaxRedeemable) {
			decision.Reason = ReasonExceedsEarnedCap
			decision.Message = fmt.Sprintf("only %s earned RCN can be redeemed at the home shop", decision.MaxRedeemable.StringFixed(2))
			return decision, nil
		}
	} else {
		if !shop.CrossShopEnabled {
			decision.Reason = ReasonExceedsCrossShopCap
			decision.Message = "this shop does not accept redemptions from customers of other shops"
			return decision, nil
		}
		decision.MaxRedeemable = e.crossShopCap(shopID, balances.Earned)
		if amount.GreaterThan(decision.MaxRedeemable) {
			decision.Reason = ReasonExceedsCrossShopCap
			decision.Message = fmt.Sprintf("at most %s RCN can be redeemed outside the home shop", decision.MaxRedeemable.StringFixed(2))
			return decision, nil
		}
	}

	decision.Approved = true
	return decision, nil
}

// crossShopCap is not rounded so that exactly pct% of earned stays redeemable.
func (e *RedemptionEngine) crossShopCap(shopID string, earned decimal.Decimal) decimal.Decimal {
	limit := earned.Mul(e.policy.CrossShopCapPercent).Div(hundred)
	if ceiling, ok := e.policy.CrossShopCeilings[shopID]; ok && ceiling.LessThan(limit) {
		limit = ceiling
	}
	return limit
}

func deny(reason DenialReason, message string) Decision {
	return Decision{Reason: reason, Message: message, MaxRedeemable: decimal.Zero}
}

// Commit re-validates under the customer's lock and appends one redeem entry.
// The entry is pending until Settle unless ConfirmImmediately is set; a
// pending redeem already counts against the earned balance.
func (e *RedemptionEngine) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	addr, shopID, err := validateRedemption(req.Address, req.ShopID, req.Amount)
	if err != nil {
		return CommitResult{}, err
	}
	txRef := strings.TrimSpace(req.TxRef)
	if txRef == "" {
		return CommitResult{}, invalid("transaction reference is required")
	}

	start := time.Now()
	unlock, err := e.locks.Lock(ctx, addr, e.policy.LockTimeout)
	e.metrics.LockWait(time.Since(start))
	if err != nil {
		e.metrics.Commit("Busy")
		return CommitResult{}, err
	}
	defer unlock()

	existing, err := e.ledger.EntryByTxRef(ctx, txRef)
	switch {
	case err == nil:
		return e.replay(existing, addr, shopID, req.Amount)
	case !errors.Is(err, store.ErrNotFound):
		return CommitResult{}, transient("lookup transaction reference", err)
	}

	decision, err := e.evaluate(ctx, addr, shopID, req.Amount)
	if err != nil {
		return CommitResult{}, err
	}
	e.metrics.Decision(decision.Approved, string(decision.Reason))
	if !decision.Approved {
		e.metrics.Commit(string(OutcomeRolledBack))
		e.logger.Info("redemption rolled back at commit",
			"address", addr, "shopId", shopID, "txRef", txRef, "reason", decision.Reason)
		return CommitResult{Outcome: OutcomeRolledBack, Decision: decision}, nil
	}

	status := models.StatusPending
	if req.ConfirmImmediately {
		status = models.StatusConfirmed
	}
	entry := &models.LedgerEntry{
		TxRef:           txRef,
		CustomerAddress: addr,
		ShopID:          &shopID,
		Counterparty:    shopID,
		Amount:          req.Amount,
		Kind:            models.KindRedeem,
		Source:          models.SourceRedemption,
		Status:          status,
		Timestamp:       e.now(),
	}
	if _, err := e.ledger.AppendEntry(ctx, entry); err != nil {
		var dup *store.DuplicateEntryError
		if errors.As(err, &dup) {
			return e.replay(&dup.Existing, addr, shopID, req.Amount)
		}
		return CommitResult{}, transient("append redeem entry", err)
	}

	outcome := OutcomeCommitting
	if status == models.StatusConfirmed {
		outcome = OutcomeConfirmed
		e.creditShop(ctx, shopID, req.Amount, txRef)
	}
	e.metrics.Commit(string(outcome))
	e.logger.Info("redemption committed",
		"address", addr, "shopId", shopID, "amount", req.Amount.String(), "txRef", txRef, "outcome", outcome)
	return CommitResult{Outcome: outcome, Entry: entry, Decision: decision}, nil
}

func (e *RedemptionEngine) replay(existing *models.LedgerEntry, addr, shopID string, amount decimal.Decimal) (CommitResult, error) {
	sameShop := existing.ShopID != nil && *existing.ShopID == shopID
	if existing.Kind != models.KindRedeem || existing.CustomerAddress != addr || !sameShop || !existing.Amount.Equal(amount) {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrTxRefReused, existing.TxRef)
	}
	return CommitResult{
		Outcome:  outcomeFor(existing.Status),
		Entry:    existing,
		Decision: Decision{Approved: existing.Status != models.StatusFailed, MaxRedeemable: decimal.Zero},
		Replayed: true,
	}, nil
}

// Settle completes a pending redemption once the caller knows whether the
// burn succeeded. A nil burnErr confirms the entry; anything else fails it.
func (e *RedemptionEngine) Settle(ctx context.Context, txRef string, burnErr error) (CommitResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return CommitResult{}, invalid("transaction reference is required")
	}
	entry, err := e.ledger.EntryByTxRef(ctx, txRef)
	if errors.Is(err, store.ErrNotFound) {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrEntryNotFound, txRef)
	} else if err != nil {
		return CommitResult{}, transient("lookup transaction reference", err)
	}
	if entry.Kind != models.KindRedeem {
		return CommitResult{}, invalid("transaction %s is not a redemption", txRef)
	}

	target := models.StatusConfirmed
	if burnErr != nil {
		target = models.StatusFailed
	}
	current, changed, err := e.ledger.TransitionEntry(ctx, txRef, models.StatusPending, target)
	if err != nil {
		return CommitResult{}, transient("settle redeem entry", err)
	}

	outcome := outcomeFor(current.Status)
	if !changed {
		if burnErr == nil && current.Status == models.StatusFailed {
			e.logger.Error("burn reported after reservation was released",
				"txRef", txRef, "address", current.CustomerAddress)
		}
		return CommitResult{Outcome: outcome, Entry: current, Replayed: true}, nil
	}

	if current.Status == models.StatusConfirmed && current.ShopID != nil {
		e.creditShop(ctx, *current.ShopID, current.Amount, txRef)
	}
	if burnErr != nil {
		e.logger.Warn("redemption burn failed, reservation released",
			"txRef", txRef, "address", current.CustomerAddress, "error", burnErr)
	}
	e.metrics.Commit(string(outcome))
	return CommitResult{Outcome: outcome, Entry: current}, nil
}

// creditShop runs after the ledger write; a failure here leaves the ledger
// authoritative and is only logged.
func (e *RedemptionEngine) creditShop(ctx context.Context, shopID string, amount decimal.Decimal, txRef string) {
	if err := e.shops.AddShopRedemption(ctx, shopID, amount); err != nil {
		e.logger.Error("failed to update shop redemption total",
			"shopId", shopID, "txRef", txRef, "error", err)
	}
}

func outcomeFor(status models.Status) CommitOutcome {
	switch status {
	case models.StatusConfirmed:
		return OutcomeConfirmed
	case models.StatusFailed:
		return OutcomeRolledBack
	default:
		return OutcomeCommitting
	}
}
