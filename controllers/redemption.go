package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"repaircoin-backend/services"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

type EvaluateRedemptionInput struct {
	CustomerAddress string          `json:"customerAddress" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
}

type CommitRedemptionInput struct {
	CustomerAddress    string          `json:"customerAddress" binding:"required"`
	Amount             decimal.Decimal `json:"amount"`
	TxRef              string          `json:"txRef" binding:"required"`
	ConfirmImmediately bool            `json:"confirmImmediately"`
}

type SettleRedemptionInput struct {
	Success *bool  `json:"success" binding:"required"`
	Error   string `json:"error"`
}

// RedemptionController serves the shop-side redemption flow. The shop is
// always the one named in the caller's token.
type RedemptionController struct {
	Engine *services.RedemptionEngine
	Ledger store.LedgerStore
}

func (rc *RedemptionController) Evaluate(c *gin.Context) {
	shopID, ok := shopFromToken(c)
	if !ok {
		return
	}
	var input EvaluateRedemptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	decision, err := rc.Engine.Evaluate(c.Request.Context(), input.CustomerAddress, shopID, input.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	if !decision.Approved {
		respondDenied(c, decision)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (rc *RedemptionController) Commit(c *gin.Context) {
	shopID, ok := shopFromToken(c)
	if !ok {
		return
	}
	var input CommitRedemptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	result, err := rc.Engine.Commit(c.Request.Context(), services.CommitRequest{
		Address:            input.CustomerAddress,
		ShopID:             shopID,
		Amount:             input.Amount,
		TxRef:              input.TxRef,
		ConfirmImmediately: input.ConfirmImmediately,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	switch {
	case result.Replayed:
		c.JSON(http.StatusOK, result)
	case result.Outcome == services.OutcomeRolledBack:
		respondDenied(c, result.Decision)
	case result.Outcome == services.OutcomeConfirmed:
		c.JSON(http.StatusCreated, result)
	default:
		c.JSON(http.StatusAccepted, result)
	}
}

// Settle reports the on-chain burn result for a pending redemption.
func (rc *RedemptionController) Settle(c *gin.Context) {
	shopID, ok := shopFromToken(c)
	if !ok {
		return
	}
	txRef := strings.TrimSpace(c.Param("txRef"))
	var input SettleRedemptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	entry, err := rc.Ledger.EntryByTxRef(c.Request.Context(), txRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(c, http.StatusNotFound, "Redemption not found")
		} else {
			respondError(c, services.ErrTransient)
		}
		return
	}
	if entry.ShopID == nil || *entry.ShopID != shopID {
		utils.RespondWithError(c, http.StatusNotFound, "Redemption not found")
		return
	}

	var burnErr error
	if !*input.Success {
		msg := strings.TrimSpace(input.Error)
		if msg == "" {
			msg = "burn failed"
		}
		burnErr = errors.New(msg)
	}

	result, err := rc.Engine.Settle(c.Request.Context(), txRef, burnErr)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func shopFromToken(c *gin.Context) (string, bool) {
	shopID := c.GetString(utils.ContextShopID)
	if shopID == "" {
		utils.RespondWithError(c, http.StatusForbidden, "Shop ID not found in token")
		return "", false
	}
	return shopID, true
}
