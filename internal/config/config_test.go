package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.SigningKey = strings.Repeat("01", 32)
	cfg.ChainIndex.ProjectKey = "preprodKey"
	cfg.Contract.TradeScriptHash = strings.Repeat("ab", 28)
	cfg.Contract.MintPolicyID = strings.Repeat("cd", 28)
	cfg.Contract.PolicyReferenceTime = "2024-01-01T00:00:00Z"
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownNetwork(t *testing.T) {
	cfg := validConfig()
	cfg.Network = "devnet"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown network")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "monitor"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
}

func TestValidateServeModeRequiresWallet(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.SigningKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "signing_key or encrypted_key_path")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.SigningKey = ""
	cfg.Wallet.EncryptedKeyPath = "/tmp/key.json"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "key_password")
}

func TestValidateRejectsShortScriptHash(t *testing.T) {
	cfg := validConfig()
	cfg.Contract.TradeScriptHash = "abcd"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "trade_script_hash")
}

func TestValidateRejectsBadReferenceTime(t *testing.T) {
	cfg := validConfig()
	cfg.Contract.PolicyReferenceTime = "yesterday"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "policy_reference_time")
}

func TestValidateRejectsBadScriptRef(t *testing.T) {
	cfg := validConfig()
	cfg.Contract.TradeValidatorRef = "nothash#0"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "trade_validator_ref")
}

func TestValidateArchiveModeRequiresS3(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Network = "devnet"
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown network")
	require.Contains(t, err.Error(), "redis")
	require.Contains(t, err.Error(), "server")
}

func TestSplitRef(t *testing.T) {
	hash := strings.Repeat("0a", 32)

	gotHash, gotIndex, err := SplitRef(hash + "#3")
	require.NoError(t, err)
	require.Equal(t, hash, gotHash)
	require.Equal(t, uint64(3), gotIndex)
}

func TestSplitRefRejectsMalformed(t *testing.T) {
	hash := strings.Repeat("0a", 32)

	for _, bad := range []string{
		"",
		"nohash",
		"#0",
		hash,
		hash + "#",
		hash + "#abc",
		"shorthash#0",
	} {
		_, _, err := SplitRef(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestLoadAppliesDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
network = "preview"

[server]
port = 9999
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "preview", cfg.Network)
	require.Equal(t, 9999, cfg.Server.Port)
	// Untouched values keep their defaults.
	require.Equal(t, "serve", cfg.Mode)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
[server]
rate_window = "30s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NFTMARKETD_NETWORK", "mainnet")
	t.Setenv("NFTMARKETD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("NFTMARKETD_SERVER_PORT", "8443")
	t.Setenv("NFTMARKETD_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	path := writeConfig(t, `network = "preprod"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "mainnet", cfg.Network)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, 8443, cfg.Server.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadFundProtocolTriState(t *testing.T) {
	path := writeConfig(t, `network = "preprod"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Nil(t, cfg.Contract.FundProtocol, "unset flag stays nil")

	t.Setenv("NFTMARKETD_CONTRACT_FUND_PROTOCOL", "false")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Contract.FundProtocol)
	require.False(t, *cfg.Contract.FundProtocol)
}
