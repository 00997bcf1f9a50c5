package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"repaircoin-backend/services"
	"repaircoin-backend/utils"
)

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var conflict *services.RoleConflictError
	switch {
	case errors.As(err, &conflict):
		utils.RespondWithCode(c, http.StatusConflict, "role_conflict", conflict.Message,
			gin.H{"existingRole": conflict.Existing})
	case errors.Is(err, services.ErrAlreadyRegistered):
		utils.RespondWithCode(c, http.StatusConflict, "already_registered", err.Error(), nil)
	case errors.Is(err, services.ErrShopExists):
		utils.RespondWithCode(c, http.StatusConflict, "shop_exists", err.Error(), nil)
	case errors.Is(err, services.ErrTxRefReused):
		utils.RespondWithCode(c, http.StatusConflict, "tx_ref_reused", err.Error(), nil)
	case errors.Is(err, services.ErrBusy):
		c.Header("Retry-After", "1")
		utils.RespondWithCode(c, http.StatusConflict, "busy", "Another redemption for this customer is in progress", nil)
	case errors.Is(err, services.ErrInvalidAddress),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidInput):
		utils.RespondWithCode(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, services.ErrCustomerNotFound),
		errors.Is(err, services.ErrShopNotFound),
		errors.Is(err, services.ErrEntryNotFound):
		utils.RespondWithCode(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, services.ErrCustomerInactive), errors.Is(err, services.ErrShopInactive):
		utils.RespondWithCode(c, http.StatusUnprocessableEntity, "inactive", err.Error(), nil)
	case errors.Is(err, services.ErrTransient):
		slog.Error("transient failure", "path", c.FullPath(), "error", err)
		c.Header("Retry-After", "5")
		utils.RespondWithCode(c, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable, retry shortly", nil)
	default:
		slog.Error("unhandled error", "path", c.FullPath(), "error", err)
		utils.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// respondDenied reports a non-approved decision with its reason code.
func respondDenied(c *gin.Context, decision services.Decision) {
	status := http.StatusUnprocessableEntity
	if decision.Retryable {
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "5")
	}
	utils.RespondWithCode(c, status, string(decision.Reason), decision.Message, gin.H{"decision": decision})
}
