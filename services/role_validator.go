package services

import (
	"context"
	"errors"

	"repaircoin-backend/models"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

// RegistrationCheck is the outcome of a role-exclusivity check. The zero
// value with OK set means the address is free.
type RegistrationCheck struct {
	OK        bool        `json:"ok"`
	Duplicate bool        `json:"duplicate,omitempty"`
	Conflict  models.Role `json:"conflict,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// RoleValidator scans the admin allow-list and both registries for an
// address. It is an early rejection in front of the RoleIndex claim, not the
// enforcement point.
type RoleValidator struct {
	admins    store.AdminAllowList
	shops     store.ShopRegistry
	customers store.CustomerRegistry
}

func NewRoleValidator(admins store.AdminAllowList, shops store.ShopRegistry, customers store.CustomerRegistry) *RoleValidator {
	return &RoleValidator{admins: admins, shops: shops, customers: customers}
}

func (v *RoleValidator) CheckRegistration(ctx context.Context, address string, intended models.Role) (RegistrationCheck, error) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return RegistrationCheck{}, err
	}
	if intended != models.RoleShop && intended != models.RoleCustomer {
		return RegistrationCheck{}, invalid("role %q cannot self-register", intended)
	}

	if v.admins != nil && v.admins.Contains(addr) {
		return found(models.RoleAdmin, intended), nil
	}

	if _, err := v.shops.GetShopByWallet(ctx, addr); err == nil {
		return found(models.RoleShop, intended), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return RegistrationCheck{}, transient("lookup shop wallet", err)
	}

	if _, err := v.customers.GetCustomer(ctx, addr); err == nil {
		return found(models.RoleCustomer, intended), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return RegistrationCheck{}, transient("lookup customer", err)
	}

	return RegistrationCheck{OK: true}, nil
}

func found(existing, intended models.Role) RegistrationCheck {
	if existing == intended {
		return RegistrationCheck{
			Duplicate: true,
			Message:   "this wallet address is already registered as a " + string(existing),
		}
	}
	return RegistrationCheck{Conflict: existing, Message: conflictMessage(existing, intended)}
}
