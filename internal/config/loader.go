package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NFTMARKETD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NFTMARKETD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.SigningKey, "NFTMARKETD_WALLET_SIGNING_KEY")
	setStr(&cfg.Wallet.StakeKeyHash, "NFTMARKETD_WALLET_STAKE_KEY_HASH")
	setStr(&cfg.Wallet.EncryptedKeyPath, "NFTMARKETD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "NFTMARKETD_WALLET_KEY_PASSWORD")

	// ── Chain index ──
	setStr(&cfg.ChainIndex.BaseURL, "NFTMARKETD_CHAININDEX_BASE_URL")
	setStr(&cfg.ChainIndex.ProjectKey, "NFTMARKETD_CHAININDEX_PROJECT_KEY")

	// ── Contract ──
	setStr(&cfg.Contract.TradeScriptHash, "NFTMARKETD_CONTRACT_TRADE_SCRIPT_HASH")
	setStr(&cfg.Contract.MintPolicyID, "NFTMARKETD_CONTRACT_MINT_POLICY_ID")
	setStr(&cfg.Contract.PolicyReferenceTime, "NFTMARKETD_CONTRACT_POLICY_REFERENCE_TIME")
	setStr(&cfg.Contract.TradeValidatorRef, "NFTMARKETD_CONTRACT_TRADE_VALIDATOR_REF")
	setStr(&cfg.Contract.MintPolicyRef, "NFTMARKETD_CONTRACT_MINT_POLICY_REF")
	setStr(&cfg.Contract.RoyaltyTokenUnit, "NFTMARKETD_CONTRACT_ROYALTY_TOKEN_UNIT")
	setStr(&cfg.Contract.RoyaltyAdminKeyHash, "NFTMARKETD_CONTRACT_ROYALTY_ADMIN_KEY_HASH")
	setStr(&cfg.Contract.ProtocolFundAddress, "NFTMARKETD_CONTRACT_PROTOCOL_FUND_ADDRESS")
	setInt64(&cfg.Contract.ProtocolFundLovelace, "NFTMARKETD_CONTRACT_PROTOCOL_FUND_LOVELACE")
	setBoolPtr(&cfg.Contract.FundProtocol, "NFTMARKETD_CONTRACT_FUND_PROTOCOL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "NFTMARKETD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NFTMARKETD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NFTMARKETD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NFTMARKETD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NFTMARKETD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NFTMARKETD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NFTMARKETD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NFTMARKETD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NFTMARKETD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NFTMARKETD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "NFTMARKETD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NFTMARKETD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NFTMARKETD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NFTMARKETD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NFTMARKETD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NFTMARKETD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "NFTMARKETD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NFTMARKETD_S3_REGION")
	setStr(&cfg.S3.Bucket, "NFTMARKETD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NFTMARKETD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NFTMARKETD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NFTMARKETD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NFTMARKETD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "NFTMARKETD_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.PruneAfter, "NFTMARKETD_ARCHIVE_PRUNE_AFTER")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "NFTMARKETD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "NFTMARKETD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NFTMARKETD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "NFTMARKETD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "NFTMARKETD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "NFTMARKETD_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NFTMARKETD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NFTMARKETD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NFTMARKETD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NFTMARKETD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Network, "NFTMARKETD_NETWORK")
	setStr(&cfg.Mode, "NFTMARKETD_MODE")
	setStr(&cfg.LogLevel, "NFTMARKETD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setBoolPtr distinguishes "unset" from "explicitly false": the pointer stays
// nil unless the variable is present and parses.
func setBoolPtr(dst **bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = &b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
