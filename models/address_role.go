package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleShop     Role = "shop"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleShop || r == RoleCustomer
}

// AddressRole is the authoritative address -> role index. The primary key on
// the normalized address is what keeps the admin, shop and customer sets
// disjoint when registrations race.
type AddressRole struct {
	Address   string `gorm:"primaryKey;size:42"`
	Role      Role   `gorm:"size:16;not null"`
	CreatedAt time.Time
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AddressRole{},
		&Customer{},
		&Shop{},
		&LedgerEntry{},
	)
}
