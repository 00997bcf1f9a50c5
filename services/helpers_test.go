package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"repaircoin-backend/chain"
	"repaircoin-backend/config"
	"repaircoin-backend/metrics"
	"repaircoin-backend/models"
	"repaircoin-backend/store"
)

const (
	adminAddr    = "0x00000000000000000000000000000000000000ad"
	customerAddr = "0x0000000000000000000000000000000000000abc"
	otherAddr    = "0x0000000000000000000000000000000000000def"
	homeWallet   = "0x1000000000000000000000000000000000000001"
	awayWallet   = "0x2000000000000000000000000000000000000002"
	closedWallet = "0x3000000000000000000000000000000000000003"
)

type fixture struct {
	store         *store.MemoryStore
	chain         *chain.StaticBalanceSource
	policy        config.Policy
	locks         *AddressLocker
	tiers         *TierEngine
	registrations *RegistrationService
	earnings      *EarningService
	engine        *RedemptionEngine
	logger        *slog.Logger
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, config.DefaultPolicy())
}

func newFixtureWithPolicy(t *testing.T, policy config.Policy) *fixture {
	t.Helper()
	policy.LockTimeout = 200 * time.Millisecond
	ms := store.NewMemoryStore()
	src := chain.NewStaticBalanceSource()
	logger := quietLogger()
	locks := NewAddressLocker()
	tiers := NewTierEngine(policy)
	m := metrics.New(nil)

	admins, err := SeedAdmins(context.Background(), ms, []string{adminAddr}, logger)
	require.NoError(t, err)
	validator := NewRoleValidator(store.NewStaticAllowList(admins...), ms, ms)
	registrations := NewRegistrationService(validator, ms, ms, ms, m, logger)

	f := &fixture{
		store:         ms,
		chain:         src,
		policy:        policy,
		locks:         locks,
		tiers:         tiers,
		registrations: registrations,
		logger:        logger,
	}
	f.earnings = NewEarningService(EarningServiceConfig{
		Ledger:        ms,
		Customers:     ms,
		Shops:         ms,
		Registrations: registrations,
		Tiers:         tiers,
		Locks:         locks,
		Policy:        policy,
		Metrics:       m,
		Logger:        logger,
	})
	f.engine = NewRedemptionEngine(RedemptionEngineConfig{
		Ledger:    ms,
		Customers: ms,
		Shops:     ms,
		Chain:     src,
		Tiers:     tiers,
		Locks:     locks,
		Policy:    policy,
		Metrics:   m,
		Logger:    logger,
	})
	return f
}

// shop registers and verifies a shop.
func (f *fixture) shop(t *testing.T, id, wallet string, crossShop bool) *models.Shop {
	t.Helper()
	ctx := context.Background()
	_, err := f.registrations.RegisterShop(ctx, ShopRegistration{
		ShopID:           id,
		Name:             id + " repairs",
		WalletAddress:    wallet,
		CrossShopEnabled: crossShop,
	})
	require.NoError(t, err)
	shop, err := f.registrations.VerifyShop(ctx, id)
	require.NoError(t, err)
	return shop
}

func (f *fixture) customer(t *testing.T, address, homeShop string) *models.Customer {
	t.Helper()
	customer, err := f.registrations.RegisterCustomer(context.Background(), CustomerRegistration{
		Address:    address,
		Name:       "Test Customer",
		HomeShopID: homeShop,
	})
	require.NoError(t, err)
	return customer
}

func (f *fixture) earn(t *testing.T, address, shopID, amount string, txRef string) EarnResult {
	t.Helper()
	result, err := f.earnings.RecordEarning(context.Background(), EarnRequest{
		Address: address,
		ShopID:  shopID,
		Amount:  dec(amount),
		Source:  models.SourceRepair,
		TxRef:   txRef,
	})
	require.NoError(t, err)
	return result
}

// scenario builds a customer homed at "home" who earned 80 from repairs and
// bought 20 on the market, holding 100 on-chain.
func (f *fixture) scenario(t *testing.T) {
	t.Helper()
	f.shop(t, "home", homeWallet, true)
	f.shop(t, "away", awayWallet, true)
	f.customer(t, customerAddr, "home")
	f.earn(t, customerAddr, "home", "80", "repair-1")
	_, err := f.earnings.RecordPurchase(context.Background(), PurchaseRequest{
		Address: customerAddr,
		Amount:  dec("20"),
		TxRef:   "purchase-1",
	})
	require.NoError(t, err)
	f.chain.Set(customerAddr, dec("100"))
}
