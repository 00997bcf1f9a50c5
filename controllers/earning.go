package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"repaircoin-backend/models"
	"repaircoin-backend/services"
	"repaircoin-backend/utils"
)

type RepairRewardInput struct {
	CustomerAddress string          `json:"customerAddress" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	TxRef           string          `json:"txRef" binding:"required"`
}

type AdminMintInput struct {
	CustomerAddress string          `json:"customerAddress" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	TxRef           string          `json:"txRef" binding:"required"`
	Source          string          `json:"source" binding:"required,oneof=admin_mint promotion referral_bonus"`
	ShopID          string          `json:"shopId"`
}

type PurchaseInput struct {
	CustomerAddress string          `json:"customerAddress" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	TxRef           string          `json:"txRef" binding:"required"`
}

type TransferInput struct {
	From   string          `json:"from" binding:"required"`
	To     string          `json:"to" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	TxRef  string          `json:"txRef" binding:"required"`
}

type EarningController struct {
	Earnings *services.EarningService
}

// RecordRepair credits a customer for a completed repair at the caller's shop.
func (ec *EarningController) RecordRepair(c *gin.Context) {
	shopID, ok := shopFromToken(c)
	if !ok {
		return
	}
	var input RepairRewardInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	result, err := ec.Earnings.RecordEarning(c.Request.Context(), services.EarnRequest{
		Address: input.CustomerAddress,
		ShopID:  shopID,
		Amount:  input.Amount,
		Source:  models.SourceRepair,
		TxRef:   input.TxRef,
	})
	respondEarning(c, result, err)
}

func (ec *EarningController) Mint(c *gin.Context) {
	var input AdminMintInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	result, err := ec.Earnings.RecordEarning(c.Request.Context(), services.EarnRequest{
		Address: input.CustomerAddress,
		ShopID:  input.ShopID,
		Amount:  input.Amount,
		Source:  models.Source(input.Source),
		TxRef:   input.TxRef,
	})
	respondEarning(c, result, err)
}

func (ec *EarningController) RecordPurchase(c *gin.Context) {
	var input PurchaseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	result, err := ec.Earnings.RecordPurchase(c.Request.Context(), services.PurchaseRequest{
		Address: input.CustomerAddress,
		Amount:  input.Amount,
		TxRef:   input.TxRef,
	})
	respondEarning(c, result, err)
}

func (ec *EarningController) RecordTransfer(c *gin.Context) {
	var input TransferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	result, err := ec.Earnings.RecordTransfer(c.Request.Context(), services.TransferRequest{
		From:   input.From,
		To:     input.To,
		Amount: input.Amount,
		TxRef:  input.TxRef,
	})
	respondEarning(c, result, err)
}

func respondEarning(c *gin.Context, result services.EarnResult, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Replayed {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}
