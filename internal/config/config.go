// Package config defines the top-level configuration for the marketplace
// daemon and provides validation helpers.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NFTMARKETD_* environment variables.
type Config struct {
	Network    string           `toml:"network"`
	Wallet     WalletConfig     `toml:"wallet"`
	ChainIndex ChainIndexConfig `toml:"chainindex"`
	Contract   ContractConfig   `toml:"contract"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the operator wallet credentials.
type WalletConfig struct {
	SigningKey       string `toml:"signing_key"` // hex ed25519 seed
	StakeKeyHash     string `toml:"stake_key_hash"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainIndexConfig holds the chain index API endpoint and credentials.
type ChainIndexConfig struct {
	BaseURL    string `toml:"base_url"`
	ProjectKey string `toml:"project_key"`
}

// ContractConfig holds the deployed marketplace script parameters.
type ContractConfig struct {
	TradeScriptHash     string `toml:"trade_script_hash"`
	MintPolicyID        string `toml:"mint_policy_id"`
	PolicyReferenceTime string `toml:"policy_reference_time"` // RFC3339
	TradeValidatorRef   string `toml:"trade_validator_ref"`   // "txhash#index"
	MintPolicyRef       string `toml:"mint_policy_ref"`       // "txhash#index"

	RoyaltyTokenUnit    string `toml:"royalty_token_unit"`
	RoyaltyAdminKeyHash string `toml:"royalty_admin_key_hash"`

	ProtocolFundAddress  string `toml:"protocol_fund_address"`
	ProtocolFundLovelace int64  `toml:"protocol_fund_lovelace"`

	// FundProtocol overrides the network default when set. Absent means the
	// mainnet default applies.
	FundProtocol *bool `toml:"fund_protocol"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds activity archival parameters.
type ArchiveConfig struct {
	RetentionDays int  `toml:"retention_days"`
	PruneAfter    bool `toml:"prune_after"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Network: "preprod",
		ChainIndex: ChainIndexConfig{
			BaseURL: "https://cardano-preprod.blockfrost.io/api/v0",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nftmarketd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			PruneAfter:    false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   20,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"bought", "sold", "listed", "bid_placed"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validNetworks enumerates the accepted values for Config.Network.
var validNetworks = map[string]bool{
	"mainnet": true,
	"preprod": true,
	"preview": true,
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// isHexHash reports whether s is a hex string of exactly n bytes.
func isHexHash(s string, n int) bool {
	raw, err := hex.DecodeString(s)
	return err == nil && len(raw) == n
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Network
	if !validNetworks[strings.ToLower(c.Network)] {
		errs = append(errs, fmt.Sprintf("unknown network %q (valid: mainnet, preprod, preview)", c.Network))
	}

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: required for serve mode, which signs transactions.
	if strings.ToLower(c.Mode) == "serve" {
		if c.Wallet.SigningKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either signing_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Wallet.StakeKeyHash != "" && !isHexHash(c.Wallet.StakeKeyHash, 28) {
			errs = append(errs, "wallet: stake_key_hash must be a 28-byte hex hash")
		}
	}

	// Chain index
	if c.ChainIndex.BaseURL == "" {
		errs = append(errs, "chainindex: base_url must not be empty")
	}

	// Contract
	if !isHexHash(c.Contract.TradeScriptHash, 28) {
		errs = append(errs, "contract: trade_script_hash must be a 28-byte hex hash")
	}
	if !isHexHash(c.Contract.MintPolicyID, 28) {
		errs = append(errs, "contract: mint_policy_id must be a 28-byte hex hash")
	}
	if c.Contract.PolicyReferenceTime != "" {
		if _, err := time.Parse(time.RFC3339, c.Contract.PolicyReferenceTime); err != nil {
			errs = append(errs, "contract: policy_reference_time must be RFC3339: "+err.Error())
		}
	}
	if c.Contract.RoyaltyAdminKeyHash != "" && !isHexHash(c.Contract.RoyaltyAdminKeyHash, 28) {
		errs = append(errs, "contract: royalty_admin_key_hash must be a 28-byte hex hash")
	}
	if c.Contract.ProtocolFundLovelace < 0 {
		errs = append(errs, "contract: protocol_fund_lovelace must be >= 0")
	}
	for _, ref := range []struct{ name, val string }{
		{"trade_validator_ref", c.Contract.TradeValidatorRef},
		{"mint_policy_ref", c.Contract.MintPolicyRef},
	} {
		if ref.val == "" {
			continue
		}
		if _, _, err := SplitRef(ref.val); err != nil {
			errs = append(errs, "contract: "+ref.name+": "+err.Error())
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: required for archive mode only.
	if strings.ToLower(c.Mode) == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SplitRef parses a "txhash#index" script reference string.
func SplitRef(s string) (txHash string, index uint64, err error) {
	hash, idx, ok := strings.Cut(s, "#")
	if !ok || hash == "" {
		return "", 0, fmt.Errorf("expected txhash#index, got %q", s)
	}
	if !isHexHash(hash, 32) {
		return "", 0, fmt.Errorf("tx hash must be a 32-byte hex hash, got %q", hash)
	}
	var n uint64
	if _, err := fmt.Sscanf(idx, "%d", &n); err != nil {
		return "", 0, fmt.Errorf("invalid output index %q", idx)
	}
	return hash, n, nil
}
