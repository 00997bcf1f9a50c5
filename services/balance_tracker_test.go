package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"repaircoin-backend/chain"
	"repaircoin-backend/config"
	"repaircoin-backend/models"
	"repaircoin-backend/store"
)

func entry(kind models.Kind, source models.Source, status models.Status, amount string) models.LedgerEntry {
	return models.LedgerEntry{
		CustomerAddress: customerAddr,
		Amount:          dec(amount),
		Kind:            kind,
		Source:          source,
		Status:          status,
	}
}

func TestSummarizeProvenance(t *testing.T) {
	inbound := entry(models.KindTransfer, models.SourceTransfer, models.StatusConfirmed, "40")
	inbound.Inbound = true

	entries := []models.LedgerEntry{
		entry(models.KindMint, models.SourceRepair, models.StatusConfirmed, "80"),
		entry(models.KindMint, models.SourceTierBonus, models.StatusConfirmed, "8"),
		entry(models.KindMint, models.SourcePurchase, models.StatusConfirmed, "20"),
		entry(models.KindMint, models.SourceRepair, models.StatusPending, "500"),
		entry(models.KindRedeem, models.SourceRedemption, models.StatusConfirmed, "10"),
		entry(models.KindRedeem, models.SourceRedemption, models.StatusPending, "5"),
		entry(models.KindRedeem, models.SourceRedemption, models.StatusFailed, "60"),
		entry(models.KindTransfer, models.SourceTransfer, models.StatusConfirmed, "3"),
		inbound,
	}

	b := Summarize(entries, dec("1000"))
	requireDecimal(t, "88", b.EarnedCredits)
	requireDecimal(t, "18", b.Debits)
	requireDecimal(t, "20", b.Purchased)
	requireDecimal(t, "70", b.Earned)
	requireDecimal(t, "1000", b.OnChain)
}

func TestSummarizeClampsToOnChain(t *testing.T) {
	entries := []models.LedgerEntry{
		entry(models.KindMint, models.SourceRepair, models.StatusConfirmed, "100"),
	}
	requireDecimal(t, "30", Summarize(entries, dec("30")).Earned)

	entries = append(entries, entry(models.KindRedeem, models.SourceRedemption, models.StatusConfirmed, "150"))
	requireDecimal(t, "0", Summarize(entries, dec("30")).Earned)

	b := Summarize(nil, dec("-5"))
	requireDecimal(t, "0", b.OnChain)
	requireDecimal(t, "0", b.Earned)
}

func TestSummarizeNeverLeavesBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	kinds := []models.Kind{models.KindMint, models.KindRedeem, models.KindTransfer}
	sources := []models.Source{models.SourceRepair, models.SourcePurchase, models.SourcePromotion, models.SourceAdminMint}
	statuses := []models.Status{models.StatusPending, models.StatusConfirmed, models.StatusFailed}

	for i := 0; i < 500; i++ {
		var entries []models.LedgerEntry
		for n := rng.Intn(20); n > 0; n-- {
			e := entry(kinds[rng.Intn(len(kinds))], sources[rng.Intn(len(sources))],
				statuses[rng.Intn(len(statuses))], decimal.New(int64(rng.Intn(100000)+1), -2).String())
			e.Inbound = rng.Intn(2) == 0
			entries = append(entries, e)
		}
		onChain := decimal.New(int64(rng.Intn(200000)), -2)

		b := Summarize(entries, onChain)
		require.True(t, b.Earned.Sign() >= 0, "earned %s below zero", b.Earned)
		require.True(t, b.Earned.LessThanOrEqual(b.OnChain), "earned %s above on-chain %s", b.Earned, b.OnChain)
	}
}

func TestGetBalancesReadsLedgerAndChain(t *testing.T) {
	f := newFixture(t)
	f.scenario(t)

	tracker := NewBalanceTracker(f.store, f.chain, f.policy)
	b, err := tracker.GetBalances(context.Background(), "0x0000000000000000000000000000000000000ABC")
	require.NoError(t, err)
	requireDecimal(t, "100", b.OnChain)
	requireDecimal(t, "80", b.Earned)
	requireDecimal(t, "20", b.Purchased)
}

func TestGetBalancesFailsClosed(t *testing.T) {
	ms := store.NewMemoryStore()
	down := chain.BalanceFunc(func(ctx context.Context, address string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("rpc unreachable")
	})
	tracker := NewBalanceTracker(ms, down, config.DefaultPolicy())

	_, err := tracker.GetBalances(context.Background(), customerAddr)
	require.ErrorIs(t, err, ErrBalanceUnavailable)
	require.True(t, IsRetryable(err))

	_, err = tracker.GetBalances(context.Background(), "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
	require.False(t, IsRetryable(err))
}

func TestGetBalancesAppliesChainTimeout(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.ChainTimeout = 20 * time.Millisecond
	slow := chain.BalanceFunc(func(ctx context.Context, address string) (decimal.Decimal, error) {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	})
	tracker := NewBalanceTracker(store.NewMemoryStore(), slow, policy)

	start := time.Now()
	_, err := tracker.GetBalances(context.Background(), customerAddr)
	require.ErrorIs(t, err, ErrBalanceUnavailable)
	require.Less(t, time.Since(start), time.Second)
}
