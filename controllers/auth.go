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

type ChallengeInput struct {
	Address string `json:"address" binding:"required"`
}

type LoginInput struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type RegisterCustomerInput struct {
	Address    string `json:"address" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
	Name       string `json:"name"`
	HomeShopID string `json:"homeShopId"`
}

type RegisterShopInput struct {
	ShopID               string `json:"shopId" binding:"required"`
	Name                 string `json:"name" binding:"required"`
	WalletAddress        string `json:"walletAddress" binding:"required"`
	Signature            string `json:"signature" binding:"required"`
	ReimbursementAddress string `json:"reimbursementAddress"`
	CrossShopEnabled     bool   `json:"crossShopEnabled"`
}

// AuthController handles wallet sign-in and self-registration. Every call
// that binds an address needs a signature over a fresh challenge.
type AuthController struct {
	Challenges    *utils.ChallengeStore
	Roles         store.RoleIndex
	Shops         store.ShopRegistry
	Registrations *services.RegistrationService
	SessionTTL    time.Duration
}

func (ac *AuthController) Challenge(c *gin.Context) {
	var input ChallengeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	address, err := utils.NormalizeAddress(input.Address)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid wallet address")
		return
	}
	message, expires := ac.Challenges.Issue(address)
	c.JSON(http.StatusOK, gin.H{
		"address":   address,
		"message":   message,
		"expiresAt": expires.UTC(),
	})
}

func (ac *AuthController) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input")
		return
	}
	address, ok := ac.verify(c, input.Address, input.Signature)
	if !ok {
		return
	}

	role, err := ac.Roles.RoleOf(c.Request.Context(), address)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(c, http.StatusNotFound, "Wallet is not registered")
		return
	} else if err != nil {
		respondError(c, services.ErrTransient)
		return
	}

	shopID := ""
	if role == models.RoleShop {
		shop, err := ac.Shops.GetShopByWallet(c.Request.Context(), address)
		if err != nil {
			respondError(c, services.ErrTransient)
			return
		}
		shopID = shop.ShopID
	}
	ac.issueSession(c, http.StatusOK, address, role, shopID)
}

func (ac *AuthController) RegisterCustomer(c *gin.Context) {
	var input RegisterCustomerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	address, ok := ac.verify(c, input.Address, input.Signature)
	if !ok {
		return
	}

	customer, err := ac.Registrations.RegisterCustomer(c.Request.Context(), services.CustomerRegistration{
		Address:    address,
		Name:       input.Name,
		HomeShopID: input.HomeShopID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ac.issueSession(c, http.StatusCreated, customer.Address, models.RoleCustomer, "")
}

func (ac *AuthController) RegisterShop(c *gin.Context) {
	var input RegisterShopInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	wallet, ok := ac.verify(c, input.WalletAddress, input.Signature)
	if !ok {
		return
	}

	shop, err := ac.Registrations.RegisterShop(c.Request.Context(), services.ShopRegistration{
		ShopID:               input.ShopID,
		Name:                 input.Name,
		WalletAddress:        wallet,
		ReimbursementAddress: input.ReimbursementAddress,
		CrossShopEnabled:     input.CrossShopEnabled,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ac.issueSession(c, http.StatusCreated, shop.WalletAddress, models.RoleShop, shop.ShopID)
}

// verify consumes the address's challenge and checks the signature over it.
func (ac *AuthController) verify(c *gin.Context, rawAddress, signature string) (string, bool) {
	address, err := utils.NormalizeAddress(rawAddress)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid wallet address")
		return "", false
	}
	message, ok := ac.Challenges.Consume(address)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "No active challenge for this wallet, request a new one")
		return "", false
	}
	if err := utils.VerifySignature(address, message, signature); err != nil {
		utils.RespondWithError(c, http.StatusUnauthorized, "Invalid signature")
		return "", false
	}
	return address, true
}

func (ac *AuthController) issueSession(c *gin.Context, status int, address string, role models.Role, shopID string) {
	token, err := utils.GenerateToken(address, string(role), shopID)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	maxAge := int(ac.SessionTTL.Seconds())
	if maxAge <= 0 {
		maxAge = 24 * 3600
	}
	c.SetCookie("token", token, maxAge, "/", "", true, true)

	body := gin.H{
		"token":   token,
		"address": address,
		"role":    role,
	}
	if shopID != "" {
		body["shopId"] = shopID
	}
	c.JSON(status, body)
}
