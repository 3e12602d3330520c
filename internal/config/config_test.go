package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[operator]
private_key = "deadbeef"

[chain]
rpc_url = "http://localhost:8545"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.True(t, cfg.Postgres.RunMigrations)
	require.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
[operator]
private_key = "deadbeef"

[server]
port = 9000
`)

	t.Setenv("ESCROWD_SERVER_PORT", "9100")
	t.Setenv("ESCROWD_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.True(t, cfg.Redis.Enabled())
}

func TestValidateRejectsMissingKey(t *testing.T) {
	cfg := Defaults()
	require.Error(t, cfg.Validate())

	cfg.Operator.PrivateKey = "deadbeef"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPaymentToken(t *testing.T) {
	cfg := Defaults()
	cfg.Operator.PrivateKey = "deadbeef"
	cfg.Chain.PaymentToken = "not-an-address"
	require.Error(t, cfg.Validate())

	cfg.Chain.PaymentToken = "0x1111111111111111111111111111111111111111"
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Operator.PrivateKey = "secret"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Operator.PrivateKey)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Server.APIKey)

	// Original untouched.
	require.Equal(t, "secret", cfg.Operator.PrivateKey)
}
