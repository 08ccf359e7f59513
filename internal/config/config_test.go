package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/engine"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	def := engine.DefaultConfig()
	assert.True(t, cfg.Engine.EnforceDeterminism)
	assert.Equal(t, 7, cfg.Engine.Detection.Duplicate.TimeWindowDays)
	assert.Equal(t, 3, cfg.Engine.Detection.Recurring.IntervalToleranceDays)
	assert.True(t, def.Scoring.HighThreshold.Equal(cfg.Engine.Scoring.HighThreshold))
	assert.True(t, def.Scoring.MaterialityThreshold.Equal(cfg.Engine.Scoring.MaterialityThreshold))
	assert.True(t, def.Ranking.Weights.Volatility.Equal(cfg.Engine.Ranking.Weights.Volatility))
	assert.Equal(t, def.Scoring.Version, cfg.Engine.Scoring.Version)
	assert.Equal(t, time.UTC, cfg.Ingest.Location)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
engine:
  enforce_determinism: false
detection:
  duplicate:
    time_window_days: 14
    min_amount: "25.50"
  recurring:
    interval_tolerance_days: 5
scoring:
  high_threshold: "50000"
  materiality_escalation_threshold: "0.25"
ranking:
  weights:
    recurring: "3"
ingest:
  timezone: America/New_York
server:
  addr: "127.0.0.1:9000"
`)))

	cfg, err := Load(v)
	require.NoError(t, err)

	e := cfg.Engine
	assert.False(t, e.EnforceDeterminism)
	assert.Equal(t, 14, e.Detection.Duplicate.TimeWindowDays)
	assert.True(t, decimal.RequireFromString("25.5").Equal(e.Detection.Duplicate.MinAmount))
	assert.Equal(t, 5, e.Detection.Recurring.IntervalToleranceDays)
	assert.True(t, decimal.NewFromInt(50000).Equal(e.Scoring.HighThreshold))
	assert.True(t, decimal.NewFromInt(1000).Equal(e.Scoring.MediumThreshold))
	assert.True(t, decimal.RequireFromString("0.25").Equal(e.Scoring.MaterialityThreshold))
	assert.True(t, decimal.NewFromInt(3).Equal(e.Ranking.Weights.Recurring))
	assert.Equal(t, "America/New_York", cfg.Ingest.Location.String())
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		value any
		name  string
		key   string
	}{
		{name: "negative window", key: KeyDuplicateWindowDays, value: -1},
		{name: "negative min amount", key: KeyDuplicateMinAmount, value: "-5"},
		{name: "negative tolerance", key: KeyRecurringToleranceDays, value: -2},
		{name: "non decimal threshold", key: KeyMediumThreshold, value: "lots"},
		{name: "zero medium threshold", key: KeyMediumThreshold, value: "0"},
		{name: "high below medium", key: KeyHighThreshold, value: "500"},
		{name: "materiality above one", key: KeyMaterialityThreshold, value: "1.5"},
		{name: "zero materiality", key: KeyMaterialityThreshold, value: "0"},
		{name: "negative floor", key: KeyMinMateriality, value: "-0.01"},
		{name: "negative weight", key: KeyWeightVolatility, value: "-1"},
		{name: "unknown timezone", key: KeyIngestTimezone, value: "Mars/Olympus"},
		{name: "bad log level", key: KeyLogLevel, value: "loud"},
		{name: "bad log format", key: KeyLogFormat, value: "xml"},
		{name: "zero body limit", key: KeyServerMaxBodyBytes, value: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LEAKSCAN_SCORING_MEDIUM_THRESHOLD", "2500")

	v := viper.New()
	v.SetEnvPrefix("LEAKSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2500).Equal(cfg.Engine.Scoring.MediumThreshold))
}

func TestLoadSheetsConfig(t *testing.T) {
	for _, env := range []string{
		"GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET", "GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "GOOGLE_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_SPREADSHEET_NAME",
	} {
		t.Setenv(env, "")
	}

	t.Run("missing auth", func(t *testing.T) {
		_, err := LoadSheetsConfig(viper.New())
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("viper values", func(t *testing.T) {
		v := viper.New()
		v.Set("sheets.service_account_path", "$LEAKSCAN_TEST_DIR/key.json")
		v.Set("sheets.spreadsheet_id", "sheet-1")
		v.Set("sheets.batch_size", 50)
		t.Setenv("LEAKSCAN_TEST_DIR", "/keys")

		cfg, err := LoadSheetsConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "/keys/key.json", cfg.ServiceAccountPath)
		assert.Equal(t, "sheet-1", cfg.SpreadsheetID)
		assert.Equal(t, 50, cfg.BatchSize)
		assert.Equal(t, 3, cfg.RetryAttempts)
		assert.Equal(t, time.Second, cfg.RetryDelay)
		assert.Equal(t, "Vendor Leak Report", cfg.SpreadsheetName)
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "id")
		t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "secret")
		t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "refresh")
		t.Setenv("GOOGLE_SHEETS_SPREADSHEET_NAME", "From Env")

		cfg, err := LoadSheetsConfig(viper.New())
		require.NoError(t, err)
		assert.Equal(t, "id", cfg.ClientID)
		assert.Equal(t, "From Env", cfg.SpreadsheetName)
	})
}

func TestLoadPlaidConfig(t *testing.T) {
	for _, env := range []string{"PLAID_CLIENT_ID", "PLAID_SECRET", "PLAID_ENV", "PLAID_ACCESS_TOKEN"} {
		t.Setenv(env, "")
	}

	_, err := LoadPlaidConfig(viper.New())
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	t.Setenv("PLAID_CLIENT_ID", "client")
	t.Setenv("PLAID_SECRET", "secret")
	v := viper.New()
	v.Set("plaid.access_token", "access")

	cfg, err := LoadPlaidConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "client", cfg.ClientID)
	assert.Equal(t, "access", cfg.AccessToken)
	assert.Equal(t, "sandbox", cfg.Environment)

	v.Set("plaid.environment", "staging")
	_, err = LoadPlaidConfig(v)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("LEAKSCAN_TEST_VAR", "value")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "tilde", in: "~", want: home},
		{name: "tilde prefix", in: "~/.config/leakscan", want: filepath.Join(home, ".config/leakscan")},
		{name: "env var", in: "/tmp/$LEAKSCAN_TEST_VAR/x", want: "/tmp/value/x"},
		{name: "tilde in middle untouched", in: "/a/~/b", want: "/a/~/b"},
		{name: "absolute", in: "/etc/leakscan.yaml", want: "/etc/leakscan.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestLoadSimpleFINConfig(t *testing.T) {
	t.Setenv("SIMPLEFIN_TOKEN", "from-env")
	t.Setenv("HOME", "/home/tester")

	cfg := LoadSimpleFINConfig(viper.New())
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, "/home/tester/.local/share/leakscan/simplefin_auth.json", cfg.StateFile)

	v := viper.New()
	v.Set("simplefin.token", "from-config")
	v.Set("simplefin.state_file", "/tmp/sf.json")
	cfg = LoadSimpleFINConfig(v)
	assert.Equal(t, "from-config", cfg.Token)
	assert.Equal(t, "/tmp/sf.json", cfg.StateFile)
}
