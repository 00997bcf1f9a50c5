package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"repaircoin-backend/models"
	"repaircoin-backend/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"role conflict", &services.RoleConflictError{Address: "0xabc", Existing: models.RoleShop, Message: "taken"}, http.StatusConflict, "role_conflict", ""},
		{"duplicate", fmt.Errorf("%w: 0xabc", services.ErrAlreadyRegistered), http.StatusConflict, "already_registered", ""},
		{"busy before transient", services.ErrBusy, http.StatusConflict, "busy", "1"},
		{"invalid amount", services.ErrInvalidAmount, http.StatusBadRequest, "invalid_input", ""},
		{"missing shop", fmt.Errorf("%w: nowhere", services.ErrShopNotFound), http.StatusNotFound, "not_found", ""},
		{"inactive", services.ErrCustomerInactive, http.StatusUnprocessableEntity, "inactive", ""},
		{"chain down", services.ErrBalanceUnavailable, http.StatusServiceUnavailable, "unavailable", "5"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tc.err)

			require.Equal(t, tc.status, w.Code)
			require.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tc.code != "" {
				require.Equal(t, tc.code, body["code"])
			}
		})
	}
}

func TestRespondDeniedUsesReasonCode(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondDenied(c, services.Decision{Reason: services.ReasonExceedsEarnedCap, Message: "too much"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respondDenied(c, services.Decision{Reason: services.ReasonBalanceUnavailable, Retryable: true})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "5", w.Header().Get("Retry-After"))
}
