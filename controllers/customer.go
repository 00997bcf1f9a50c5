package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"repaircoin-backend/models"
	"repaircoin-backend/services"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

type CustomerController struct {
	Customers store.CustomerRegistry
	Ledger    store.LedgerStore
	Balances  *services.BalanceTracker
}

// GetCustomer returns the customer profile, tier and lifetime earnings.
func (cc *CustomerController) GetCustomer(c *gin.Context) {
	address, ok := customerParam(c)
	if !ok {
		return
	}

	customer, err := cc.Customers.GetCustomer(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(c, http.StatusNotFound, "Customer not found")
		} else {
			respondError(c, services.ErrTransient)
		}
		return
	}

	c.JSON(http.StatusOK, customer)
}

func (cc *CustomerController) GetBalances(c *gin.Context) {
	address, ok := customerParam(c)
	if !ok {
		return
	}

	balances, err := cc.Balances.GetBalances(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  address,
		"balances": balances,
	})
}

// GetTransactions lists ledger entries for the customer. Optional query
// parameters: kind (mint, redeem, transfer) and since (RFC 3339).
func (cc *CustomerController) GetTransactions(c *gin.Context) {
	address, ok := customerParam(c)
	if !ok {
		return
	}

	var filter store.EntryFilter
	if kind := c.Query("kind"); kind != "" {
		switch k := models.Kind(kind); k {
		case models.KindMint, models.KindRedeem, models.KindTransfer:
			filter.Kinds = []models.Kind{k}
		default:
			utils.RespondWithError(c, http.StatusBadRequest, "Invalid kind filter")
			return
		}
	}
	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "Invalid since timestamp, expected RFC 3339")
			return
		}
		filter.Since = &ts
	}

	entries, err := cc.Ledger.QueryEntries(c.Request.Context(), address, filter)
	if err != nil {
		respondError(c, services.ErrTransient)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      address,
		"transactions": entries,
	})
}

// customerParam normalizes the :address path parameter. Customers may only
// read their own records; shops and admins may read any.
func customerParam(c *gin.Context) (string, bool) {
	address, err := utils.NormalizeAddress(c.Param("address"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid wallet address")
		return "", false
	}
	if c.GetString(utils.ContextRole) == string(models.RoleCustomer) &&
		c.GetString(utils.ContextAddress) != address {
		utils.RespondWithError(c, http.StatusForbidden, "Customers may only access their own records")
		return "", false
	}
	return address, true
}
