package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"repaircoin-backend/models"
)

func (s *GormStore) GetCustomer(ctx context.Context, address string) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *GormStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.db.WithContext(ctx).Create(customer).Error
}

func (s *GormStore) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.db.WithContext(ctx).Save(customer).Error
}

func (s *GormStore) CountHomeCustomers(ctx context.Context, shopID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("home_shop_id = ? AND is_active = ?", shopID, true).
		Count(&count).Error
	return count, err
}

func (s *GormStore) GetShop(ctx context.Context, shopID string) (*models.Shop, error) {
	var shop models.Shop
	if err := s.db.WithContext(ctx).Where("shop_id = ?", shopID).First(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &shop, nil
}

func (s *GormStore) GetShopByWallet(ctx context.Context, wallet string) (*models.Shop, error) {
	var shop models.Shop
	if err := s.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &shop, nil
}

func (s *GormStore) CreateShop(ctx context.Context, shop *models.Shop) error {
	if _, err := s.GetShop(ctx, shop.ShopID); err == nil {
		return ErrShopExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(shop).Error
}

func (s *GormStore) UpdateShop(ctx context.Context, shop *models.Shop) error {
	return s.db.WithContext(ctx).Save(shop).Error
}

func (s *GormStore) AddShopRedemption(ctx context.Context, shopID string, amount decimal.Decimal) error {
	result := s.db.WithContext(ctx).Model(&models.Shop{}).Where("shop_id = ?", shopID).
		UpdateColumn("total_redemptions", gorm.Expr("total_redemptions + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Claim(ctx context.Context, address string, role models.Role) error {
	claim := models.AddressRole{Address: address, Role: role}
	if err := s.db.WithContext(ctx).Create(&claim).Error; err != nil {
		existing, lookupErr := s.RoleOf(ctx, address)
		if lookupErr == nil {
			return &ClaimError{Address: address, Role: existing}
		}
		return err
	}
	return nil
}

func (s *GormStore) Release(ctx context.Context, address string, role models.Role) error {
	return s.db.WithContext(ctx).
		Where("address = ? AND role = ?", address, role).
		Delete(&models.AddressRole{}).Error
}

func (s *GormStore) RoleOf(ctx context.Context, address string) (models.Role, error) {
	var claim models.AddressRole
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&claim).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return claim.Role, nil
}
