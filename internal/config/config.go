package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Cache     CacheConfig     `yaml:"cache"`
	Comps     CompsConfig     `yaml:"comps"`
	FX        FXConfig        `yaml:"fx"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Scan      ScanConfig      `yaml:"scan"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	HTTP      HTTPConfig      `yaml:"http"`
	LogLevel  string          `yaml:"log_level"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type FetchConfig struct {
	AppID          string        `yaml:"app_id"` // structured mode credential; empty disables API mode
	APIEnabled     bool          `yaml:"api_enabled"`
	RequestBudget  int64         `yaml:"request_budget"` // per sweep
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	FallbackDelay  bool          `yaml:"fallback_delay"` // randomized inter-request delay in fallback mode
	ResultsPerPage int           `yaml:"results_per_page"`

	BlockedKeywords        []string `yaml:"blocked_keywords"`
	MinSellerFeedbackPct   float64  `yaml:"min_seller_feedback_pct"`
	MinSellerFeedbackScore int64    `yaml:"min_seller_feedback_score"`
}

type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"` // empty selects the in-memory backend
}

type CompsConfig struct {
	Marketplaces []string      `yaml:"marketplaces"`
	Limit        int           `yaml:"limit"`
	TTL          time.Duration `yaml:"ttl"`
}

type FXConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Reference       string        `yaml:"reference"` // reference currency for all statistics
	FallbackUSDRate float64       `yaml:"fallback_usd_rate"`
	CacheFor        time.Duration `yaml:"cache_for"`
}

type ScoringConfig struct {
	TargetProfit        float64 `yaml:"target_profit"`
	MinROI              float64 `yaml:"min_roi"`
	MinConfidence       float64 `yaml:"min_confidence"`
	ConfidenceFloor     float64 `yaml:"confidence_floor"`
	MarketplaceFeePct   float64 `yaml:"marketplace_fee_pct"`
	PaymentFeePct       float64 `yaml:"payment_fee_pct"`
	PaymentFeeFixed     float64 `yaml:"payment_fee_fixed"`
	ReturnReservePct    float64 `yaml:"return_reserve_pct"`
	VATReservePct       float64 `yaml:"vat_reserve_pct"`
	Packaging           float64 `yaml:"packaging"`
	Labour              float64 `yaml:"labour"`
	ExtraFixedCosts     float64 `yaml:"extra_fixed_costs"`
	ShippingOut         float64 `yaml:"shipping_out"`
	BufferFixed         float64 `yaml:"buffer_fixed"`
	BufferPctOfBuy      float64 `yaml:"buffer_pct_of_buy"`
	ConservatismBlend   float64 `yaml:"conservatism_blend"` // 0 = pure median, 1 = pure p25
	NegotiationDiscount float64 `yaml:"negotiation_discount"`
}

type ScanConfig struct {
	Workers           int           `yaml:"workers"`
	Interval          time.Duration `yaml:"interval"`
	TargetCeiling     time.Duration `yaml:"target_ceiling"` // per-target wall clock; 0 disables
	ListingMaxAge     time.Duration `yaml:"listing_max_age"`
	DiscoveryEnabled  bool          `yaml:"discovery_enabled"`
	DiscoveryCap      int           `yaml:"discovery_cap"` // new targets per sweep
	PerCategorySeeds  int           `yaml:"per_category_seeds"`
	ListingsPerTarget int           `yaml:"listings_per_target"`
}

type AlertsConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	BearerToken     string        `yaml:"bearer_token"`
	TriggerInterval time.Duration `yaml:"trigger_interval"`
}

type ArtifactsConfig struct {
	Dir        string `yaml:"dir"`
	Screenshot bool   `yaml:"screenshot"` // capture a rendered screenshot on challenge detection
}

// Load reads configuration from a YAML file, applies defaults, then lets
// environment variables override the secret-bearing fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:          "postgres://localhost:5432/keyflip?sslmode=disable",
			QueryTimeout: 5 * time.Second,
		},
		Fetch: FetchConfig{
			APIEnabled:     true,
			RequestBudget:  40,
			RPS:            1.0,
			Burst:          2,
			Timeout:        20 * time.Second,
			MaxAttempts:    3,
			FallbackDelay:  true,
			ResultsPerPage: 50,
			BlockedKeywords: []string{
				"broken", "faulty", "spares", "repair", "cracked",
				"damaged", "parts only", "not working", "read description",
			},
			MinSellerFeedbackPct:   90,
			MinSellerFeedbackScore: 10,
		},
		Cache: CacheConfig{TTL: 5 * time.Minute},
		Comps: CompsConfig{
			Marketplaces: []string{"ebay"},
			Limit:        25,
			TTL:          6 * time.Hour,
		},
		FX: FXConfig{
			Enabled:         true,
			Reference:       "GBP",
			FallbackUSDRate: 0.78,
			CacheFor:        6 * time.Hour,
		},
		Scoring: ScoringConfig{
			TargetProfit:        10.0,
			MinROI:              0.25,
			MinConfidence:       0.55,
			ConfidenceFloor:     0.35,
			MarketplaceFeePct:   0.128,
			ShippingOut:         4.0,
			BufferFixed:         2.0,
			BufferPctOfBuy:      0.05,
			NegotiationDiscount: 0.1,
		},
		Scan: ScanConfig{
			Workers:           4,
			Interval:          15 * time.Minute,
			ListingMaxAge:     14 * 24 * time.Hour,
			DiscoveryEnabled:  true,
			DiscoveryCap:      5,
			PerCategorySeeds:  3,
			ListingsPerTarget: 20,
		},
		Alerts:   AlertsConfig{Timeout: 15 * time.Second},
		HTTP:     HTTPConfig{Addr: ":8787", TriggerInterval: 5 * time.Minute},
		LogLevel: "info",
		Artifacts: ArtifactsConfig{
			Dir: "artifacts/diagnostics",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KEYFLIP_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("KEYFLIP_APP_ID"); v != "" {
		cfg.Fetch.AppID = v
	}
	if v := os.Getenv("KEYFLIP_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}
	if v := os.Getenv("KEYFLIP_BEARER_TOKEN"); v != "" {
		cfg.HTTP.BearerToken = v
	}
	if v := os.Getenv("KEYFLIP_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Fetch.RequestBudget <= 0 {
		return fmt.Errorf("fetch.request_budget must be positive, got %d", c.Fetch.RequestBudget)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be positive, got %d", c.Fetch.MaxAttempts)
	}
	if c.Scoring.ConservatismBlend < 0 || c.Scoring.ConservatismBlend > 1 {
		return fmt.Errorf("scoring.conservatism_blend must be in [0,1], got %f", c.Scoring.ConservatismBlend)
	}
	if c.HTTP.Enabled && c.HTTP.BearerToken == "" {
		return fmt.Errorf("http.bearer_token is required when the HTTP surface is enabled")
	}
	return nil
}
