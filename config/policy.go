package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"repaircoin-backend/models"
)

// Policy carries every tunable of the rewards rules. It is loaded once and
// passed by value into the services that need it.
type Policy struct {
	SilverThreshold decimal.Decimal
	GoldThreshold   decimal.Decimal
	TierBonus       map[models.Tier]decimal.Decimal

	// CrossShopCapPercent is the share of the earned balance redeemable at a
	// shop other than the customer's home shop.
	CrossShopCapPercent decimal.Decimal
	// CrossShopCeilings caps cross-shop redemptions per shop id.
	CrossShopCeilings map[string]decimal.Decimal

	LockTimeout    time.Duration
	ChainTimeout   time.Duration
	ReservationTTL time.Duration
	ExpirySchedule string
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		SilverThreshold: decimal.NewFromInt(200),
		GoldThreshold:   decimal.NewFromInt(1000),
		TierBonus: map[models.Tier]decimal.Decimal{
			models.TierBronze: decimal.Zero,
			models.TierSilver: decimal.NewFromInt(10),
			models.TierGold:   decimal.NewFromInt(20),
		},
		CrossShopCapPercent: decimal.NewFromInt(20),
		CrossShopCeilings:   map[string]decimal.Decimal{},
		LockTimeout:         5 * time.Second,
		ChainTimeout:        3 * time.Second,
		ReservationTTL:      15 * time.Minute,
		ExpirySchedule:      "@every 1m",
	}
}

// policyFile is the on-disk shape, YAML or TOML. Values stay strings so
// amounts are parsed as exact decimals.
type policyFile struct {
	Tiers struct {
		SilverThreshold string            `yaml:"silverThreshold" toml:"silverThreshold"`
		GoldThreshold   string            `yaml:"goldThreshold" toml:"goldThreshold"`
		BonusPercent    map[string]string `yaml:"bonusPercent" toml:"bonusPercent"`
	} `yaml:"tiers" toml:"tiers"`
	CrossShop struct {
		CapPercent string            `yaml:"capPercent" toml:"capPercent"`
		Ceilings   map[string]string `yaml:"ceilings" toml:"ceilings"`
	} `yaml:"crossShop" toml:"crossShop"`
	LockTimeout    string `yaml:"lockTimeout" toml:"lockTimeout"`
	ChainTimeout   string `yaml:"chainTimeout" toml:"chainTimeout"`
	ReservationTTL string `yaml:"reservationTTL" toml:"reservationTTL"`
	ExpirySchedule string `yaml:"expirySchedule" toml:"expirySchedule"`
}

// LoadPolicy starts from DefaultPolicy, applies the file at path when one is
// given (TOML for a .toml extension, YAML otherwise), then applies
// environment overrides and validates the result.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file: %w", err)
		}
		if err := policy.applyFile(raw, strings.EqualFold(filepath.Ext(path), ".toml")); err != nil {
			return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
		}
	}
	if err := policy.applyEnv(); err != nil {
		return Policy{}, err
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p *Policy) applyFile(raw []byte, isTOML bool) error {
	var file policyFile
	unmarshal := yaml.Unmarshal
	if isTOML {
		unmarshal = toml.Unmarshal
	}
	if err := unmarshal(raw, &file); err != nil {
		return err
	}
	var err error
	if p.SilverThreshold, err = decimalOr(file.Tiers.SilverThreshold, p.SilverThreshold); err != nil {
		return fmt.Errorf("tiers.silverThreshold: %w", err)
	}
	if p.GoldThreshold, err = decimalOr(file.Tiers.GoldThreshold, p.GoldThreshold); err != nil {
		return fmt.Errorf("tiers.goldThreshold: %w", err)
	}
	for name, value := range file.Tiers.BonusPercent {
		tier := models.Tier(strings.ToUpper(strings.TrimSpace(name)))
		if !tier.Valid() {
			return fmt.Errorf("tiers.bonusPercent: unknown tier %q", name)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("tiers.bonusPercent.%s: %w", name, err)
		}
		p.TierBonus[tier] = pct
	}
	if p.CrossShopCapPercent, err = decimalOr(file.CrossShop.CapPercent, p.CrossShopCapPercent); err != nil {
		return fmt.Errorf("crossShop.capPercent: %w", err)
	}
	for shopID, value := range file.CrossShop.Ceilings {
		ceiling, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("crossShop.ceilings.%s: %w", shopID, err)
		}
		p.CrossShopCeilings[strings.TrimSpace(shopID)] = ceiling
	}
	if p.LockTimeout, err = durationOr(file.LockTimeout, p.LockTimeout); err != nil {
		return fmt.Errorf("lockTimeout: %w", err)
	}
	if p.ChainTimeout, err = durationOr(file.ChainTimeout, p.ChainTimeout); err != nil {
		return fmt.Errorf("chainTimeout: %w", err)
	}
	if p.ReservationTTL, err = durationOr(file.ReservationTTL, p.ReservationTTL); err != nil {
		return fmt.Errorf("reservationTTL: %w", err)
	}
	if s := strings.TrimSpace(file.ExpirySchedule); s != "" {
		p.ExpirySchedule = s
	}
	return nil
}

func (p *Policy) applyEnv() error {
	var err error
	if p.SilverThreshold, err = decimalOr(os.Getenv("TIER_SILVER_THRESHOLD"), p.SilverThreshold); err != nil {
		return fmt.Errorf("TIER_SILVER_THRESHOLD: %w", err)
	}
	if p.GoldThreshold, err = decimalOr(os.Getenv("TIER_GOLD_THRESHOLD"), p.GoldThreshold); err != nil {
		return fmt.Errorf("TIER_GOLD_THRESHOLD: %w", err)
	}
	for _, tier := range []models.Tier{models.TierBronze, models.TierSilver, models.TierGold} {
		key := "TIER_" + string(tier) + "_BONUS_PERCENT"
		if p.TierBonus[tier], err = decimalOr(os.Getenv(key), p.TierBonus[tier]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if p.CrossShopCapPercent, err = decimalOr(os.Getenv("CROSS_SHOP_CAP_PERCENT"), p.CrossShopCapPercent); err != nil {
		return fmt.Errorf("CROSS_SHOP_CAP_PERCENT: %w", err)
	}
	if raw := strings.TrimSpace(os.Getenv("CROSS_SHOP_CEILINGS")); raw != "" {
		ceilings, err := parseCeilings(raw)
		if err != nil {
			return fmt.Errorf("CROSS_SHOP_CEILINGS: %w", err)
		}
		for shopID, ceiling := range ceilings {
			p.CrossShopCeilings[shopID] = ceiling
		}
	}
	if p.LockTimeout, err = durationOr(os.Getenv("LOCK_TIMEOUT"), p.LockTimeout); err != nil {
		return fmt.Errorf("LOCK_TIMEOUT: %w", err)
	}
	if p.ChainTimeout, err = durationOr(os.Getenv("CHAIN_TIMEOUT"), p.ChainTimeout); err != nil {
		return fmt.Errorf("CHAIN_TIMEOUT: %w", err)
	}
	if p.ReservationTTL, err = durationOr(os.Getenv("RESERVATION_TTL"), p.ReservationTTL); err != nil {
		return fmt.Errorf("RESERVATION_TTL: %w", err)
	}
	if s := strings.TrimSpace(os.Getenv("RESERVATION_EXPIRY_SCHEDULE")); s != "" {
		p.ExpirySchedule = s
	}
	return nil
}

// parseCeilings reads "shop-a=50,shop-b=12.5".
func parseCeilings(raw string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		shopID, value, ok := strings.Cut(pair, "=")
		shopID = strings.TrimSpace(shopID)
		if !ok || shopID == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		ceiling, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		out[shopID] = ceiling
	}
	return out, nil
}

// Validate rejects policies the engines cannot work with.
func (p Policy) Validate() error {
	if p.SilverThreshold.Sign() <= 0 {
		return fmt.Errorf("policy: silver threshold must be positive")
	}
	if !p.GoldThreshold.GreaterThan(p.SilverThreshold) {
		return fmt.Errorf("policy: gold threshold %s must exceed silver threshold %s", p.GoldThreshold, p.SilverThreshold)
	}
	for tier, pct := range p.TierBonus {
		if !validPercent(pct) {
			return fmt.Errorf("policy: %s bonus percent %s outside [0,100]", tier, pct)
		}
	}
	if !validPercent(p.CrossShopCapPercent) {
		return fmt.Errorf("policy: cross-shop cap percent %s outside [0,100]", p.CrossShopCapPercent)
	}
	for shopID, ceiling := range p.CrossShopCeilings {
		if ceiling.Sign() < 0 {
			return fmt.Errorf("policy: cross-shop ceiling for %s is negative", shopID)
		}
	}
	if p.LockTimeout <= 0 {
		return fmt.Errorf("policy: lock timeout must be positive")
	}
	if p.ChainTimeout <= 0 {
		return fmt.Errorf("policy: chain timeout must be positive")
	}
	if p.ReservationTTL <= 0 {
		return fmt.Errorf("policy: reservation ttl must be positive")
	}
	return nil
}

func validPercent(pct decimal.Decimal) bool {
	return pct.Sign() >= 0 && pct.LessThanOrEqual(decimal.NewFromInt(100))
}

func decimalOr(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return decimal.NewFromString(raw)
}

func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
