package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "escrow_engine", cfg.Database.DBName)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, int64(10), cfg.Fee.BasisPoints)
	assert.False(t, cfg.Fee.RequireFullProceeds)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, "escrow-settlement-engine", cfg.JWT.Issuer)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
fee:
  basis_points: 100
  require_full_proceeds: true
  admin_account: "2d2c9716-6b94-4c6e-8a6b-ff2f1db7b01e"
swap:
  rates:
    SOL/USDC: "0.001"
    BONK/USDC: "0.00002"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(100), cfg.Fee.BasisPoints)
	assert.True(t, cfg.Fee.RequireFullProceeds)
	assert.Equal(t, "2d2c9716-6b94-4c6e-8a6b-ff2f1db7b01e", cfg.Fee.AdminAccount)
	// viper lowercases map keys read from files; the swap venue re-uppercases
	// them when it builds its rate table.
	assert.Equal(t, "0.001", cfg.Swap.Rates["sol/usdc"])
	assert.Equal(t, "0.00002", cfg.Swap.Rates["bonk/usdc"])
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ESE_DATABASE_HOST", "db.internal")
	t.Setenv("ESE_FEE_BASIS_POINTS", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, int64(25), cfg.Fee.BasisPoints)
}

func TestLoad_RejectsOutOfRangeFee(t *testing.T) {
	t.Setenv("ESE_FEE_BASIS_POINTS", "10001")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "basis_points")
}

func TestDSN_Format(t *testing.T) {
	d := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p",
		DBName: "escrow_engine", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@localhost:5432/escrow_engine?sslmode=disable", d.DSN())
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "localhost", Port: 6379}
	assert.Equal(t, "localhost:6379", r.Addr())
}
