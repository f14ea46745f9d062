package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminHex = "0x00000000000000000000000000000000000Ad000"

func TestLoad_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clamm.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
admin: "`+adminHex+`"
jwt-secret: from-file
http-addr: ":9000"
protocol-fee: "0"
`), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http-addr", ":8080", "")
	require.NoError(t, flags.Parse([]string{"--http-addr=:7000"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, common.HexToAddress(adminHex), cfg.Admin)
	assert.True(t, cfg.ProtocolFee.IsZero())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CLAMM_ADMIN", adminHex)
	t.Setenv("CLAMM_JWT_SECRET", "s3cret")
	t.Setenv("CLAMM_PROTOCOL_FEE", "20000000000")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "0.020000000000", cfg.ProtocolFee.String())
	assert.Equal(t, "@every 15s", cfg.GaugeSchedule)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CLAMM_JWT_SECRET", "s3cret")

	t.Setenv("CLAMM_ADMIN", "nope")
	_, err := Load("", nil)
	assert.ErrorContains(t, err, "admin")

	t.Setenv("CLAMM_ADMIN", adminHex)
	t.Setenv("CLAMM_PROTOCOL_FEE", "-1")
	_, err = Load("", nil)
	assert.ErrorContains(t, err, "protocol-fee")
}
