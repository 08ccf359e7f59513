package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/leakscan/internal/common"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		errMsg  string
		config  Config
	}{
		{
			name: "valid oauth config",
			config: Config{
				ClientID:      "test-client",
				ClientSecret:  "test-secret",
				RefreshToken:  "test-token",
				BatchSize:     100,
				RetryAttempts: 3,
				RetryDelay:    time.Second,
			},
		},
		{
			name: "oauth with token file",
			config: Config{
				ClientID:     "test-client",
				ClientSecret: "test-secret",
				TokenFile:    "/tmp/token.json",
				BatchSize:    100,
			},
		},
		{
			name: "valid service account config",
			config: Config{
				ServiceAccountPath: "/path/to/key.json",
				BatchSize:          100,
				RetryAttempts:      3,
				RetryDelay:         time.Second,
			},
		},
		{
			name:    "missing auth",
			config:  Config{BatchSize: 100},
			wantErr: common.ErrMissingConfig,
			errMsg:  "no authentication method configured",
		},
		{
			name: "partial oauth credentials",
			config: Config{
				ClientID:     "test-client",
				RefreshToken: "test-token",
				BatchSize:    100,
			},
			wantErr: common.ErrMissingConfig,
			errMsg:  "no authentication method configured",
		},
		{
			name: "multiple auth methods",
			config: Config{
				ClientID:           "test-client",
				ClientSecret:       "test-secret",
				RefreshToken:       "test-token",
				ServiceAccountPath: "/path/to/key.json",
				BatchSize:          100,
			},
			wantErr: common.ErrInvalidConfig,
			errMsg:  "multiple authentication methods configured",
		},
		{
			name:    "invalid batch size",
			config:  Config{ServiceAccountPath: "/k.json"},
			wantErr: common.ErrInvalidConfig,
			errMsg:  "batch size must be positive",
		},
		{
			name:    "negative retry attempts",
			config:  Config{ServiceAccountPath: "/k.json", BatchSize: 1, RetryAttempts: -1},
			wantErr: common.ErrInvalidConfig,
			errMsg:  "retry attempts cannot be negative",
		},
		{
			name:    "negative retry delay",
			config:  Config{ServiceAccountPath: "/k.json", BatchSize: 1, RetryDelay: -time.Second},
			wantErr: common.ErrInvalidConfig,
			errMsg:  "retry delay cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "env-secret")
	t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "env-token")
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "env-sheet")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_NAME", "")

	cfg := Config{ClientID: "configured-client"}
	cfg.LoadFromEnv()

	assert.Equal(t, "configured-client", cfg.ClientID, "explicit values win")
	assert.Equal(t, "env-secret", cfg.ClientSecret)
	assert.Equal(t, "env-token", cfg.RefreshToken)
	assert.Equal(t, "env-sheet", cfg.SpreadsheetID)
	assert.Equal(t, DefaultSpreadsheetName, cfg.SpreadsheetName)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.EnableFormatting)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, DefaultSpreadsheetName, cfg.SpreadsheetName)
}
