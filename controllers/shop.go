package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"repaircoin-backend/services"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

type SetShopActiveInput struct {
	Active *bool `json:"active" binding:"required"`
}

type AssignHomeShopInput struct {
	ShopID string `json:"shopId" binding:"required"`
}

// ShopController covers the shop's own profile and the admin lifecycle
// operations on shops and customers.
type ShopController struct {
	Shops         store.ShopRegistry
	Registrations *services.RegistrationService
}

func (sc *ShopController) GetMyShop(c *gin.Context) {
	shopID, ok := shopFromToken(c)
	if !ok {
		return
	}

	shop, err := sc.Shops.GetShop(c.Request.Context(), shopID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(c, http.StatusNotFound, "Shop not found")
		} else {
			respondError(c, services.ErrTransient)
		}
		return
	}

	c.JSON(http.StatusOK, shop)
}

func (sc *ShopController) VerifyShop(c *gin.Context) {
	shop, err := sc.Registrations.VerifyShop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shop)
}

func (sc *ShopController) SetShopActive(c *gin.Context) {
	var input SetShopActiveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input")
		return
	}

	shop, err := sc.Registrations.SetShopActive(c.Request.Context(), c.Param("id"), *input.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shop)
}

func (sc *ShopController) AssignHomeShop(c *gin.Context) {
	var input AssignHomeShopInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input")
		return
	}

	customer, err := sc.Registrations.AssignHomeShop(c.Request.Context(), c.Param("address"), input.ShopID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (sc *ShopController) DeactivateCustomer(c *gin.Context) {
	customer, err := sc.Registrations.DeactivateCustomer(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}
