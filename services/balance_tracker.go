package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"repaircoin-backend/config"
	"repaircoin-backend/models"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

// Balances is a customer's holdings split by provenance.
type Balances struct {
	// OnChain is what the wallet holds; no redemption may exceed it.
	OnChain decimal.Decimal `json:"onChainBalance"`
	// Earned is the redeemable share, always within [0, OnChain].
	Earned decimal.Decimal `json:"earnedBalance"`

	EarnedCredits decimal.Decimal `json:"earnedCredits"`
	Debits        decimal.Decimal `json:"debits"`
	Purchased     decimal.Decimal `json:"purchased"`
}

// BalanceTracker derives earned and on-chain balances from the ledger and
// the chain. Tokens are fungible on-chain, so the earned figure is an
// approximation: the ledger sum clamped to what the wallet actually holds.
type BalanceTracker struct {
	ledger       store.LedgerStore
	chain        store.ChainBalanceSource
	chainTimeout time.Duration
}

func NewBalanceTracker(ledger store.LedgerStore, chain store.ChainBalanceSource, policy config.Policy) *BalanceTracker {
	return &BalanceTracker{ledger: ledger, chain: chain, chainTimeout: policy.ChainTimeout}
}

// GetBalances fails closed: if the chain cannot be read the result is an
// ErrBalanceUnavailable error, never a ledger-only figure.
func (t *BalanceTracker) GetBalances(ctx context.Context, address string) (Balances, error) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return Balances{}, err
	}
	return t.balancesFor(ctx, addr)
}

func (t *BalanceTracker) balancesFor(ctx context.Context, addr string) (Balances, error) {
	entries, err := t.ledger.QueryEntries(ctx, addr, store.EntryFilter{})
	if err != nil {
		return Balances{}, transient("query ledger", err)
	}

	chainCtx := ctx
	if t.chainTimeout > 0 {
		var cancel context.CancelFunc
		chainCtx, cancel = context.WithTimeout(ctx, t.chainTimeout)
		defer cancel()
	}
	onChain, err := t.chain.GetBalance(chainCtx, addr)
	if err != nil {
		return Balances{}, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	return Summarize(entries, onChain), nil
}

// Summarize computes balances from one address's ledger entries. Mints only
// count once confirmed; redeems and outbound transfers count while pending
// so an in-flight redemption reserves its amount. Failed entries are ignored.
func Summarize(entries []models.LedgerEntry, onChain decimal.Decimal) Balances {
	if onChain.Sign() < 0 {
		onChain = decimal.Zero
	}
	b := Balances{
		OnChain:       onChain,
		EarnedCredits: decimal.Zero,
		Debits:        decimal.Zero,
		Purchased:     decimal.Zero,
	}
	for _, entry := range entries {
		if entry.Status == models.StatusFailed {
			continue
		}
		switch entry.Kind {
		case models.KindMint:
			if entry.Status != models.StatusConfirmed {
				continue
			}
			if entry.Source.IsEarning() {
				b.EarnedCredits = b.EarnedCredits.Add(entry.Amount)
			} else if entry.Source == models.SourcePurchase {
				b.Purchased = b.Purchased.Add(entry.Amount)
			}
		case models.KindRedeem:
			b.Debits = b.Debits.Add(entry.Amount)
		case models.KindTransfer:
			if !entry.Inbound {
				b.Debits = b.Debits.Add(entry.Amount)
			}
		}
	}
	b.Earned = clamp(b.EarnedCredits.Sub(b.Debits), decimal.Zero, onChain)
	return b
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
