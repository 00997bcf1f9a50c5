package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port       string
	Env        string
	Store      string
	DBDriver   string
	DBURL      string
	PolicyFile string

	AdminAddresses []string
	CORSOrigins    []string

	ChainRPCURL   string
	TokenAddress  string
	TokenDecimals int32

	JWTSecret string
	JWTExpiry time.Duration

	RateLimit rate.Limit
	RateBurst int
}

// FromEnv loads configuration from environment variables, falling back to
// development defaults where it is safe to do so.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:         getEnvDefault("PORT", "8080"),
		Env:          getEnvDefault("APP_ENV", "development"),
		Store:        getEnvDefault("STORE", "gorm"),
		DBDriver:     getEnvDefault("DB_DRIVER", "postgres"),
		DBURL:        os.Getenv("DB_URL"),
		PolicyFile:   os.Getenv("REWARDS_POLICY_FILE"),
		ChainRPCURL:  strings.TrimSpace(os.Getenv("CHAIN_RPC_URL")),
		TokenAddress: strings.TrimSpace(os.Getenv("RCN_TOKEN_ADDRESS")),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}
	cfg.AdminAddresses = splitList(os.Getenv("ADMIN_ADDRESSES"))
	cfg.CORSOrigins = splitList(getEnvDefault("CORS_ORIGINS", "http://localhost:3000"))

	decimals, err := strconv.Atoi(getEnvDefault("RCN_TOKEN_DECIMALS", "18"))
	if err != nil || decimals < 0 || decimals > 36 {
		return nil, fmt.Errorf("RCN_TOKEN_DECIMALS must be an integer in [0,36]")
	}
	cfg.TokenDecimals = int32(decimals)

	expiryHours, err := strconv.Atoi(getEnvDefault("JWT_EXPIRY_HOURS", "24"))
	if err != nil || expiryHours <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRY_HOURS must be a positive integer")
	}
	cfg.JWTExpiry = time.Duration(expiryHours) * time.Hour

	perSecond, err := strconv.ParseFloat(getEnvDefault("RATE_LIMIT_PER_SECOND", "10"), 64)
	if err != nil || perSecond <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_SECOND must be a positive number")
	}
	cfg.RateLimit = rate.Limit(perSecond)
	burst, err := strconv.Atoi(getEnvDefault("RATE_LIMIT_BURST", "20"))
	if err != nil || burst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be a positive integer")
	}
	cfg.RateBurst = burst

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.Store {
	case "memory":
	case "gorm":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE=gorm")
		}
	default:
		return nil, fmt.Errorf("STORE must be gorm or memory, got %q", cfg.Store)
	}
	if cfg.ChainRPCURL != "" && cfg.TokenAddress == "" {
		return nil, fmt.Errorf("RCN_TOKEN_ADDRESS is required when CHAIN_RPC_URL is set")
	}
	return cfg, nil
}

func getEnvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
