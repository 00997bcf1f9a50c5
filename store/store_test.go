package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"repaircoin-backend/config"
	"repaircoin-backend/models"
)

const (
	addrA = "0x00000000000000000000000000000000000000a1"
	addrB = "0x00000000000000000000000000000000000000b2"
)

type backend interface {
	LedgerStore
	CustomerRegistry
	ShopRegistry
	RoleIndex
}

// eachStore runs fn against the in-memory store and a gorm store on a
// private in-memory sqlite database.
func eachStore(t *testing.T, fn func(t *testing.T, s backend)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("gorm", func(t *testing.T) {
		db, err := config.ConnectDB("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
		require.NoError(t, err)
		require.NoError(t, models.AutoMigrate(db))
		t.Cleanup(func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		})
		fn(t, NewGormStore(db))
	})
}

func mint(txRef, addr string, amount int64, status models.Status, at time.Time) *models.LedgerEntry {
	return &models.LedgerEntry{
		TxRef:           txRef,
		CustomerAddress: addr,
		Amount:          decimal.NewFromInt(amount),
		Kind:            models.KindMint,
		Source:          models.SourceRepair,
		Status:          status,
		Timestamp:       at,
	}
}

func TestAppendEntryIsIdempotentOnTxRef(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		now := time.Now().UTC()

		id, err := s.AppendEntry(ctx, mint("tx-1", addrA, 10, models.StatusConfirmed, now))
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)

		_, err = s.AppendEntry(ctx, mint("tx-1", addrA, 99, models.StatusConfirmed, now))
		require.ErrorIs(t, err, ErrDuplicateEntry)
		var dup *DuplicateEntryError
		require.True(t, errors.As(err, &dup))
		require.True(t, dup.Existing.Amount.Equal(decimal.NewFromInt(10)))

		entries, err := s.QueryEntries(ctx, addrA, EntryFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestAppendEntriesIsAllOrNothing(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		now := time.Now().UTC()
		_, err := s.AppendEntry(ctx, mint("tx-1", addrA, 10, models.StatusConfirmed, now))
		require.NoError(t, err)

		err = s.AppendEntries(ctx, []*models.LedgerEntry{
			mint("tx-2", addrA, 5, models.StatusConfirmed, now),
			mint("tx-1", addrA, 5, models.StatusConfirmed, now),
		})
		require.ErrorIs(t, err, ErrDuplicateEntry)
		_, err = s.EntryByTxRef(ctx, "tx-2")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.AppendEntries(ctx, []*models.LedgerEntry{
			mint("tx-2", addrA, 5, models.StatusConfirmed, now),
			mint("tx-2:tier_bonus", addrA, 1, models.StatusConfirmed, now),
		}))
		entries, err := s.QueryEntries(ctx, addrA, EntryFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
	})
}

func TestQueryEntriesFilters(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		shop := "home"

		_, err := s.AppendEntry(ctx, mint("m-1", addrA, 10, models.StatusConfirmed, base))
		require.NoError(t, err)
		_, err = s.AppendEntry(ctx, &models.LedgerEntry{
			TxRef: "r-1", CustomerAddress: addrA, ShopID: &shop, Amount: decimal.NewFromInt(3),
			Kind: models.KindRedeem, Source: models.SourceRedemption, Status: models.StatusPending,
			Timestamp: base.Add(30 * time.Minute),
		})
		require.NoError(t, err)
		_, err = s.AppendEntry(ctx, mint("m-2", addrB, 7, models.StatusConfirmed, base))
		require.NoError(t, err)

		redeems, err := s.QueryEntries(ctx, addrA, EntryFilter{Kinds: []models.Kind{models.KindRedeem}})
		require.NoError(t, err)
		require.Len(t, redeems, 1)
		require.Equal(t, "r-1", redeems[0].TxRef)

		since := base.Add(10 * time.Minute)
		recent, err := s.QueryEntries(ctx, addrA, EntryFilter{Since: &since})
		require.NoError(t, err)
		require.Len(t, recent, 1)

		all, err := s.QueryEntries(ctx, addrA, EntryFilter{})
		require.NoError(t, err)
		require.Equal(t, []string{"m-1", "r-1"}, []string{all[0].TxRef, all[1].TxRef})

		shopEntries, err := s.QueryShopEntries(ctx, shop, 10)
		require.NoError(t, err)
		require.Len(t, shopEntries, 1)
	})
}

func TestTransitionEntryIsConditional(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		_, err := s.AppendEntry(ctx, mint("tx-1", addrA, 10, models.StatusPending, time.Now().UTC()))
		require.NoError(t, err)

		entry, changed, err := s.TransitionEntry(ctx, "tx-1", models.StatusPending, models.StatusConfirmed)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, models.StatusConfirmed, entry.Status)

		entry, changed, err = s.TransitionEntry(ctx, "tx-1", models.StatusPending, models.StatusFailed)
		require.NoError(t, err)
		require.False(t, changed)
		require.Equal(t, models.StatusConfirmed, entry.Status)

		_, _, err = s.TransitionEntry(ctx, "missing", models.StatusPending, models.StatusFailed)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStalePendingReturnsOldestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		now := time.Now().UTC()
		for i, age := range []time.Duration{time.Hour, 2 * time.Hour, time.Minute} {
			entry := mint(string(rune('a'+i)), addrA, 1, models.StatusPending, now.Add(-age))
			entry.Kind = models.KindRedeem
			entry.Source = models.SourceRedemption
			_, err := s.AppendEntry(ctx, entry)
			require.NoError(t, err)
		}

		stale, err := s.StalePending(ctx, models.KindRedeem, now.Add(-30*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		require.Equal(t, "b", stale[0].TxRef)
		require.Equal(t, "a", stale[1].TxRef)

		limited, err := s.StalePending(ctx, models.KindRedeem, now, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
	})
}

func TestClaimKeepsRolesDisjoint(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.Claim(ctx, addrA, models.RoleShop))

		err := s.Claim(ctx, addrA, models.RoleCustomer)
		require.ErrorIs(t, err, ErrAddressClaimed)
		var claimErr *ClaimError
		require.True(t, errors.As(err, &claimErr))
		require.Equal(t, models.RoleShop, claimErr.Role)

		require.NoError(t, s.Release(ctx, addrA, models.RoleCustomer), "releasing another role is a no-op")
		role, err := s.RoleOf(ctx, addrA)
		require.NoError(t, err)
		require.Equal(t, models.RoleShop, role)

		require.NoError(t, s.Release(ctx, addrA, models.RoleShop))
		_, err = s.RoleOf(ctx, addrA)
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.Claim(ctx, addrA, models.RoleCustomer))
	})
}

func TestShopRegistry(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		shop := &models.Shop{
			ShopID: "home", Name: "Home Repairs", WalletAddress: addrB,
			ReimbursementAddress: addrB, TotalRedemptions: decimal.Zero,
		}
		require.NoError(t, s.CreateShop(ctx, shop))
		require.ErrorIs(t, s.CreateShop(ctx, &models.Shop{ShopID: "home", Name: "x", WalletAddress: addrA}), ErrShopExists)

		byWallet, err := s.GetShopByWallet(ctx, addrB)
		require.NoError(t, err)
		require.Equal(t, "home", byWallet.ShopID)

		require.NoError(t, s.AddShopRedemption(ctx, "home", decimal.RequireFromString("12.5")))
		require.NoError(t, s.AddShopRedemption(ctx, "home", decimal.NewFromInt(2)))
		require.ErrorIs(t, s.AddShopRedemption(ctx, "nowhere", decimal.NewFromInt(1)), ErrNotFound)

		got, err := s.GetShop(ctx, "home")
		require.NoError(t, err)
		require.True(t, got.TotalRedemptions.Equal(decimal.RequireFromString("14.5")), got.TotalRedemptions.String())
	})
}

func TestCustomerRegistry(t *testing.T) {
	eachStore(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		home := "home"
		customer := &models.Customer{
			Address: addrA, Tier: models.TierBronze, LifetimeEarnings: decimal.Zero,
			HomeShopID: &home, IsActive: true,
		}
		require.NoError(t, s.CreateCustomer(ctx, customer))
		require.NoError(t, s.CreateCustomer(ctx, &models.Customer{
			Address: addrB, Tier: models.TierBronze, LifetimeEarnings: decimal.Zero, IsActive: true,
		}))

		count, err := s.CountHomeCustomers(ctx, home)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)

		customer.LifetimeEarnings = decimal.NewFromInt(250)
		customer.Tier = models.TierSilver
		require.NoError(t, s.UpdateCustomer(ctx, customer))

		got, err := s.GetCustomer(ctx, addrA)
		require.NoError(t, err)
		require.Equal(t, models.TierSilver, got.Tier)
		require.True(t, got.LifetimeEarnings.Equal(decimal.NewFromInt(250)))

		_, err = s.GetCustomer(ctx, "0x000000000000000000000000000000000000dead")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
