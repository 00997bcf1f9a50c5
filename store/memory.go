package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"repaircoin-backend/models"
)

// MemoryStore keeps every registry and the ledger in process memory. It is
// used for local development and by the service tests.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]models.Customer
	shops     map[string]models.Shop
	wallets   map[string]string
	roles     map[string]models.Role
	entries   []models.LedgerEntry
	byTxRef   map[string]int
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]models.Customer),
		shops:     make(map[string]models.Shop),
		wallets:   make(map[string]string),
		roles:     make(map[string]models.Role),
		byTxRef:   make(map[string]int),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (s *MemoryStore) AppendEntry(ctx context.Context, entry *models.LedgerEntry) (uuid.UUID, error) {
	if err := checkContext(ctx); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byTxRef[entry.TxRef]; ok {
		existing := s.entries[idx]
		return existing.ID, &DuplicateEntryError{Existing: existing}
	}
	s.appendLocked(entry)
	return entry.ID, nil
}

func (s *MemoryStore) AppendEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if idx, ok := s.byTxRef[entry.TxRef]; ok {
			return &DuplicateEntryError{Existing: s.entries[idx]}
		}
		if _, ok := seen[entry.TxRef]; ok {
			return &DuplicateEntryError{Existing: *entry}
		}
		seen[entry.TxRef] = struct{}{}
	}
	for _, entry := range entries {
		s.appendLocked(entry)
	}
	return nil
}

func (s *MemoryStore) appendLocked(entry *models.LedgerEntry) {
	now := s.now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.byTxRef[entry.TxRef] = len(s.entries)
	s.entries = append(s.entries, *entry)
}

func (s *MemoryStore) QueryEntries(ctx context.Context, address string, filter EntryFilter) ([]models.LedgerEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.LedgerEntry
	for _, entry := range s.entries {
		if entry.CustomerAddress == address && filter.matches(entry) {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *MemoryStore) QueryShopEntries(ctx context.Context, shopID string, limit int) ([]models.LedgerEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.LedgerEntry
	for _, entry := range s.entries {
		if entry.ShopID != nil && *entry.ShopID == shopID {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) EntryByTxRef(ctx context.Context, txRef string) (*models.LedgerEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byTxRef[txRef]
	if !ok {
		return nil, ErrNotFound
	}
	entry := s.entries[idx]
	return &entry, nil
}

func (s *MemoryStore) TransitionEntry(ctx context.Context, txRef string, from, to models.Status) (*models.LedgerEntry, bool, error) {
	if err := checkContext(ctx); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byTxRef[txRef]
	if !ok {
		return nil, false, ErrNotFound
	}
	changed := false
	if s.entries[idx].Status == from {
		s.entries[idx].Status = to
		s.entries[idx].UpdatedAt = s.now()
		changed = true
	}
	entry := s.entries[idx]
	return &entry, changed, nil
}

func (s *MemoryStore) StalePending(ctx context.Context, kind models.Kind, before time.Time, limit int) ([]models.LedgerEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.LedgerEntry
	for _, entry := range s.entries {
		if entry.Kind == kind && entry.Status == models.StatusPending && entry.Timestamp.Before(before) {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) GetCustomer(ctx context.Context, address string) (*models.Customer, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[address]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCustomer(customer), nil
}

func (s *MemoryStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customer.Address]; ok {
		return ErrAddressClaimed
	}
	now := s.now()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customers[customer.Address] = *cloneCustomer(*customer)
	return nil
}

func (s *MemoryStore) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customer.Address]; !ok {
		return ErrNotFound
	}
	customer.UpdatedAt = s.now()
	s.customers[customer.Address] = *cloneCustomer(*customer)
	return nil
}

func (s *MemoryStore) CountHomeCustomers(ctx context.Context, shopID string) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, customer := range s.customers {
		if customer.IsActive && customer.IsHomeShop(shopID) {
			count++
		}
	}
	return count, nil
}

func cloneCustomer(c models.Customer) *models.Customer {
	if c.HomeShopID != nil {
		home := *c.HomeShopID
		c.HomeShopID = &home
	}
	return &c
}

func (s *MemoryStore) GetShop(ctx context.Context, shopID string) (*models.Shop, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	shop, ok := s.shops[shopID]
	if !ok {
		return nil, ErrNotFound
	}
	return &shop, nil
}

func (s *MemoryStore) GetShopByWallet(ctx context.Context, wallet string) (*models.Shop, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	shopID, ok := s.wallets[wallet]
	if !ok {
		return nil, ErrNotFound
	}
	shop := s.shops[shopID]
	return &shop, nil
}

func (s *MemoryStore) CreateShop(ctx context.Context, shop *models.Shop) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shops[shop.ShopID]; ok {
		return ErrShopExists
	}
	if _, ok := s.wallets[shop.WalletAddress]; ok {
		return ErrAddressClaimed
	}
	now := s.now()
	shop.CreatedAt = now
	shop.UpdatedAt = now
	s.shops[shop.ShopID] = *shop
	s.wallets[shop.WalletAddress] = shop.ShopID
	return nil
}

func (s *MemoryStore) UpdateShop(ctx context.Context, shop *models.Shop) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.shops[shop.ShopID]
	if !ok {
		return ErrNotFound
	}
	if current.WalletAddress != shop.WalletAddress {
		delete(s.wallets, current.WalletAddress)
		s.wallets[shop.WalletAddress] = shop.ShopID
	}
	shop.UpdatedAt = s.now()
	s.shops[shop.ShopID] = *shop
	return nil
}

func (s *MemoryStore) AddShopRedemption(ctx context.Context, shopID string, amount decimal.Decimal) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	shop, ok := s.shops[shopID]
	if !ok {
		return ErrNotFound
	}
	shop.TotalRedemptions = shop.TotalRedemptions.Add(amount)
	s.shops[shopID] = shop
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, address string, role models.Role) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.roles[address]; ok {
		return &ClaimError{Address: address, Role: existing}
	}
	s.roles[address] = role
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, address string, role models.Role) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[address] == role {
		delete(s.roles, address)
	}
	return nil
}

func (s *MemoryStore) RoleOf(ctx context.Context, address string) (models.Role, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[address]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}
