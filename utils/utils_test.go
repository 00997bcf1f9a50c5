package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("  0xABCDEFabcdef0123456789ABCDEFabcdef012345 ")
	require.NoError(t, err)
	require.Equal(t, "0xabcdefabcdef0123456789abcdefabcdef012345", got)

	for _, bad := range []string{"", "0x123", "abcdefabcdef0123456789abcdefabcdef012345", "0xZZcdefabcdef0123456789abcdefabcdef012345"} {
		_, err := NormalizeAddress(bad)
		require.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestValidateAmount(t *testing.T) {
	require.NoError(t, ValidateAmount(decimal.RequireFromString("0.01")))
	require.NoError(t, ValidateAmount(decimal.NewFromInt(80)))
	require.ErrorIs(t, ValidateAmount(decimal.Zero), ErrInvalidAmount)
	require.ErrorIs(t, ValidateAmount(decimal.NewFromInt(-3)), ErrInvalidAmount)
	require.ErrorIs(t, ValidateAmount(decimal.RequireFromString("1.005")), ErrInvalidAmount)
}

func TestVerifySignature(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(gethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	message := LoginMessage(address, "nonce-1")

	sig, err := gethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[gethcrypto.RecoveryIDOffset] += 27

	require.NoError(t, VerifySignature(address, message, hexutil.Encode(sig)))
	require.ErrorIs(t, VerifySignature(address, message+"x", hexutil.Encode(sig)), ErrSignatureMismatch)
	require.Error(t, VerifySignature(address, message, "0x1234"))
}

func TestAuthMiddlewareRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateToken("0xabc", "shop", "shop-1")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(), RequireRole("shop"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"address": c.GetString(ContextAddress),
			"shopId":  c.GetString(ContextShopID),
		})
	})
	r.GET("/admin", AuthMiddleware(), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"shopId":"shop-1"`)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(1, 2)
	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"), "keys are independent")
}

func TestChallengeStoreIsSingleUse(t *testing.T) {
	store := NewChallengeStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	message, expires := store.Issue("0xabc")
	require.Contains(t, message, "Address: 0xabc")
	require.Equal(t, now.Add(time.Minute), expires)

	got, ok := store.Consume("0xabc")
	require.True(t, ok)
	require.Equal(t, message, got)
	_, ok = store.Consume("0xabc")
	require.False(t, ok)

	store.Issue("0xabc")
	now = now.Add(2 * time.Minute)
	_, ok = store.Consume("0xabc")
	require.False(t, ok, "expired challenges are rejected")
}
