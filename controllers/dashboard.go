package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"repaircoin-backend/models"
	"repaircoin-backend/services"
	"repaircoin-backend/store"
)

const recentEntryLimit = 10

type DashboardOverview struct {
	ShopID             string               `json:"shopId"`
	HomeCustomers      int64                `json:"homeCustomers"`
	RewardsIssued      decimal.Decimal      `json:"rewardsIssued"`
	TotalRedemptions   decimal.Decimal      `json:"totalRedemptions"`
	PendingRedemptions decimal.Decimal      `json:"pendingRedemptions"`
	CrossShopEnabled   bool                 `json:"crossShopEnabled"`
	RecentEntries      []models.LedgerEntry `json:"recentEntries"`
}

type DashboardController struct {
	Shops     store.ShopRegistry
	Customers store.CustomerRegistry
	Ledger    store.LedgerStore
}

func (dc *DashboardController) GetDashboardOverview(c *gin.Context) {
	shopID, ok := shopFromToken(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	shop, err := dc.Shops.GetShop(ctx, shopID)
	if err != nil {
		respondError(c, services.ErrTransient)
		return
	}
	homeCustomers, err := dc.Customers.CountHomeCustomers(ctx, shopID)
	if err != nil {
		respondError(c, services.ErrTransient)
		return
	}
	entries, err := dc.Ledger.QueryShopEntries(ctx, shopID, 0)
	if err != nil {
		respondError(c, services.ErrTransient)
		return
	}

	overview := DashboardOverview{
		ShopID:             shop.ShopID,
		HomeCustomers:      homeCustomers,
		RewardsIssued:      decimal.Zero,
		TotalRedemptions:   shop.TotalRedemptions,
		PendingRedemptions: decimal.Zero,
		CrossShopEnabled:   shop.CrossShopEnabled,
		RecentEntries:      []models.LedgerEntry{},
	}
	for _, entry := range entries {
		switch {
		case entry.Kind == models.KindMint && entry.Status == models.StatusConfirmed:
			overview.RewardsIssued = overview.RewardsIssued.Add(entry.Amount)
		case entry.Kind == models.KindRedeem && entry.Status == models.StatusPending:
			overview.PendingRedemptions = overview.PendingRedemptions.Add(entry.Amount)
		}
	}
	if len(entries) > recentEntryLimit {
		entries = entries[:recentEntryLimit]
	}
	overview.RecentEntries = append(overview.RecentEntries, entries...)

	c.JSON(http.StatusOK, overview)
}
