package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"repaircoin-backend/metrics"
	"repaircoin-backend/models"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

type CustomerRegistration struct {
	Address    string
	Name       string
	HomeShopID string
}

type ShopRegistration struct {
	ShopID               string
	Name                 string
	WalletAddress        string
	ReimbursementAddress string
	CrossShopEnabled     bool
}

// RegistrationService creates customers and shops while keeping every wallet
// address bound to a single role.
type RegistrationService struct {
	validator *RoleValidator
	roles     store.RoleIndex
	customers store.CustomerRegistry
	shops     store.ShopRegistry
	metrics   *metrics.Rewards
	logger    *slog.Logger
	now       func() time.Time
}

func NewRegistrationService(validator *RoleValidator, roles store.RoleIndex, customers store.CustomerRegistry,
	shops store.ShopRegistry, m *metrics.Rewards, logger *slog.Logger) *RegistrationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{
		validator: validator,
		roles:     roles,
		customers: customers,
		shops:     shops,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *RegistrationService) RegisterCustomer(ctx context.Context, req CustomerRegistration) (*models.Customer, error) {
	addr, err := utils.NormalizeAddress(req.Address)
	if err != nil {
		return nil, err
	}
	var homeShop *string
	if id := strings.TrimSpace(req.HomeShopID); id != "" {
		if _, err := s.lookupShop(ctx, id); err != nil {
			return nil, err
		}
		homeShop = &id
	}

	if err := s.claim(ctx, addr, models.RoleCustomer); err != nil {
		return nil, err
	}
	customer := &models.Customer{
		Address:          addr,
		Name:             strings.TrimSpace(req.Name),
		Tier:             models.TierBronze,
		LifetimeEarnings: decimal.Zero,
		HomeShopID:       homeShop,
		IsActive:         true,
	}
	if err := s.customers.CreateCustomer(ctx, customer); err != nil {
		s.release(ctx, addr, models.RoleCustomer)
		s.metrics.Registration(string(models.RoleCustomer), "error")
		return nil, transient("create customer", err)
	}
	s.metrics.Registration(string(models.RoleCustomer), "ok")
	s.logger.Info("customer registered", "address", addr)
	return customer, nil
}

func (s *RegistrationService) RegisterShop(ctx context.Context, req ShopRegistration) (*models.Shop, error) {
	shopID := strings.TrimSpace(req.ShopID)
	if shopID == "" {
		return nil, invalid("shop id is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("shop name is required")
	}
	wallet, err := utils.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, err
	}
	reimbursement := wallet
	if strings.TrimSpace(req.ReimbursementAddress) != "" {
		if reimbursement, err = utils.NormalizeAddress(req.ReimbursementAddress); err != nil {
			return nil, err
		}
	}

	if _, err := s.shops.GetShop(ctx, shopID); err == nil {
		s.metrics.Registration(string(models.RoleShop), "duplicate")
		return nil, fmt.Errorf("%w: %s", ErrShopExists, shopID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, transient("lookup shop", err)
	}

	if err := s.claim(ctx, wallet, models.RoleShop); err != nil {
		return nil, err
	}
	shop := &models.Shop{
		ShopID:               shopID,
		Name:                 name,
		WalletAddress:        wallet,
		ReimbursementAddress: reimbursement,
		CrossShopEnabled:     req.CrossShopEnabled,
		TotalRedemptions:     decimal.Zero,
	}
	if err := s.shops.CreateShop(ctx, shop); err != nil {
		s.release(ctx, wallet, models.RoleShop)
		if errors.Is(err, store.ErrShopExists) {
			s.metrics.Registration(string(models.RoleShop), "duplicate")
			return nil, fmt.Errorf("%w: %s", ErrShopExists, shopID)
		}
		s.metrics.Registration(string(models.RoleShop), "error")
		return nil, transient("create shop", err)
	}
	s.metrics.Registration(string(models.RoleShop), "ok")
	s.logger.Info("shop registered", "shopId", shopID, "wallet", wallet)
	return shop, nil
}

// claim runs the registry scan first and then takes the address in the role
// index. Only the claim is authoritative.
func (s *RegistrationService) claim(ctx context.Context, addr string, role models.Role) error {
	check, err := s.validator.CheckRegistration(ctx, addr, role)
	if err != nil {
		return err
	}
	if !check.OK {
		return s.reject(addr, role, check)
	}
	if err := s.roles.Claim(ctx, addr, role); err != nil {
		var claimErr *store.ClaimError
		if errors.As(err, &claimErr) {
			return s.reject(addr, role, found(claimErr.Role, role))
		}
		return transient("claim address", err)
	}
	return nil
}

func (s *RegistrationService) reject(addr string, role models.Role, check RegistrationCheck) error {
	if check.Duplicate {
		s.metrics.Registration(string(role), "duplicate")
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, check.Message)
	}
	s.metrics.Registration(string(role), "conflict")
	s.logger.Warn("registration role conflict", "address", addr, "intended", role, "existing", check.Conflict)
	return &RoleConflictError{Address: addr, Existing: check.Conflict, Message: check.Message}
}

func (s *RegistrationService) release(ctx context.Context, addr string, role models.Role) {
	if err := s.roles.Release(context.WithoutCancel(ctx), addr, role); err != nil {
		s.logger.Error("failed to release role claim", "address", addr, "role", role, "error", err)
	}
}

// ensureCustomer returns the customer at addr, registering it on first use.
// A customer without a home shop is homed at the earning shop.
func (s *RegistrationService) ensureCustomer(ctx context.Context, addr string, shopID *string) (*models.Customer, bool, error) {
	customer, err := s.customers.GetCustomer(ctx, addr)
	if err == nil {
		if customer.HomeShopID == nil && shopID != nil {
			home := *shopID
			customer.HomeShopID = &home
			s.logger.Info("home shop assigned on first earning", "address", addr, "shopId", home)
		}
		return customer, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, transient("lookup customer", err)
	}
	req := CustomerRegistration{Address: addr}
	if shopID != nil {
		req.HomeShopID = *shopID
	}
	customer, err = s.RegisterCustomer(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return customer, true, nil
}

// VerifyShop marks a shop verified and active so it can take redemptions.
func (s *RegistrationService) VerifyShop(ctx context.Context, shopID string) (*models.Shop, error) {
	shop, err := s.lookupShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop.Verified && shop.Active {
		return shop, nil
	}
	now := s.now()
	shop.Verified = true
	shop.Active = true
	shop.VerifiedAt = &now
	if err := s.shops.UpdateShop(ctx, shop); err != nil {
		return nil, transient("update shop", err)
	}
	s.logger.Info("shop verified", "shopId", shop.ShopID)
	return shop, nil
}

func (s *RegistrationService) SetShopActive(ctx context.Context, shopID string, active bool) (*models.Shop, error) {
	shop, err := s.lookupShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if active && !shop.Verified {
		return nil, fmt.Errorf("%w: shop %s must be verified before activation", ErrShopInactive, shop.ShopID)
	}
	shop.Active = active
	if err := s.shops.UpdateShop(ctx, shop); err != nil {
		return nil, transient("update shop", err)
	}
	return shop, nil
}

// DeactivateCustomer keeps the row and the role claim; the address stays
// bound to the customer role.
func (s *RegistrationService) DeactivateCustomer(ctx context.Context, address string) (*models.Customer, error) {
	customer, err := s.lookupCustomer(ctx, address)
	if err != nil {
		return nil, err
	}
	if !customer.IsActive {
		return customer, nil
	}
	customer.IsActive = false
	if err := s.customers.UpdateCustomer(ctx, customer); err != nil {
		return nil, transient("update customer", err)
	}
	s.logger.Info("customer deactivated", "address", customer.Address)
	return customer, nil
}

// AssignHomeShop replaces the customer's single home shop. Only admins reach
// this path.
func (s *RegistrationService) AssignHomeShop(ctx context.Context, address, shopID string) (*models.Customer, error) {
	customer, err := s.lookupCustomer(ctx, address)
	if err != nil {
		return nil, err
	}
	shop, err := s.lookupShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	previous := ""
	if customer.HomeShopID != nil {
		previous = *customer.HomeShopID
	}
	customer.HomeShopID = &shop.ShopID
	if err := s.customers.UpdateCustomer(ctx, customer); err != nil {
		return nil, transient("update customer", err)
	}
	s.logger.Info("home shop assigned", "address", customer.Address, "shopId", shop.ShopID, "previous", previous)
	return customer, nil
}

// SeedAdmins claims each configured admin address in the role index and
// returns the addresses that ended up held by the admin role. An address
// already held by another role is reported and left out, so the allow-list
// built from the result never overlaps a shop or customer.
func SeedAdmins(ctx context.Context, roles store.RoleIndex, addresses []string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	accepted := make([]string, 0, len(addresses))
	for _, raw := range addresses {
		addr, err := utils.NormalizeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("admin address %q: %w", raw, err)
		}
		err = roles.Claim(ctx, addr, models.RoleAdmin)
		var claimErr *store.ClaimError
		switch {
		case err == nil:
			logger.Info("admin address seeded", "address", addr)
		case errors.As(err, &claimErr) && claimErr.Role == models.RoleAdmin:
		case errors.As(err, &claimErr):
			logger.Warn("admin address already registered under another role, skipping",
				"address", addr, "role", claimErr.Role)
			continue
		default:
			return nil, transient("seed admin", err)
		}
		accepted = append(accepted, addr)
	}
	return accepted, nil
}

func (s *RegistrationService) lookupCustomer(ctx context.Context, address string) (*models.Customer, error) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.GetCustomer(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, addr)
	} else if err != nil {
		return nil, transient("lookup customer", err)
	}
	return customer, nil
}

func (s *RegistrationService) lookupShop(ctx context.Context, shopID string) (*models.Shop, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, invalid("shop id is required")
	}
	shop, err := s.shops.GetShop(ctx, shopID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrShopNotFound, shopID)
	} else if err != nil {
		return nil, transient("lookup shop", err)
	}
	return shop, nil
}
