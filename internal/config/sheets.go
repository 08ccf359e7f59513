package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/sheets"
)

func setSheetsDefaults(v *viper.Viper) {
	def := sheets.DefaultConfig()
	v.SetDefault("sheets.spreadsheet_name", def.SpreadsheetName)
	v.SetDefault("sheets.timezone", def.TimeZone)
	v.SetDefault("sheets.batch_size", def.BatchSize)
	v.SetDefault("sheets.retry_attempts", def.RetryAttempts)
	v.SetDefault("sheets.retry_delay", def.RetryDelay)
	v.SetDefault("sheets.enable_formatting", def.EnableFormatting)
}

// LoadSheetsConfig loads Google Sheets configuration. It follows this precedence:
// 1. Viper configuration (config file, LEAKSCAN_ env vars or flags)
// 2. Direct environment variables (GOOGLE_SHEETS_*)
// 3. Default values
func LoadSheetsConfig(v *viper.Viper) (*sheets.Config, error) {
	setSheetsDefaults(v)

	cfg := sheets.Config{
		ClientID:           v.GetString("sheets.client_id"),
		ClientSecret:       v.GetString("sheets.client_secret"),
		RefreshToken:       v.GetString("sheets.refresh_token"),
		TokenFile:          ExpandPath(v.GetString("sheets.token_file")),
		ServiceAccountPath: ExpandPath(v.GetString("sheets.service_account_path")),
		SpreadsheetID:      v.GetString("sheets.spreadsheet_id"),
		TimeZone:           v.GetString("sheets.timezone"),
		BatchSize:          v.GetInt("sheets.batch_size"),
		RetryAttempts:      v.GetInt("sheets.retry_attempts"),
		RetryDelay:         v.GetDuration("sheets.retry_delay"),
		EnableFormatting:   v.GetBool("sheets.enable_formatting"),
	}
	// GOOGLE_SHEETS_SPREADSHEET_NAME may still replace the default name.
	if name := v.GetString("sheets.spreadsheet_name"); name != sheets.DefaultSpreadsheetName {
		cfg.SpreadsheetName = name
	}

	cfg.LoadFromEnv()
	cfg.ServiceAccountPath = ExpandPath(cfg.ServiceAccountPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultTokenFile is where the interactive Sheets login stores its token.
func DefaultTokenFile() string {
	return ExpandPath("~/.config/leakscan/sheets-token.json")
}

// envOr returns the first non-empty value.
func envOr(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}
