package config

import (
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/plaid"
)

const defaultPlaidEnvironment = "sandbox"

// LoadPlaidConfig loads Plaid credentials from viper, falling back to the
// PLAID_CLIENT_ID, PLAID_SECRET, PLAID_ENV and PLAID_ACCESS_TOKEN variables.
func LoadPlaidConfig(v *viper.Viper) (plaid.Config, error) {
	cfg := plaid.Config{
		ClientID:    envOr(v.GetString("plaid.client_id"), "PLAID_CLIENT_ID"),
		Secret:      envOr(v.GetString("plaid.secret"), "PLAID_SECRET"),
		AccessToken: envOr(v.GetString("plaid.access_token"), "PLAID_ACCESS_TOKEN"),
		Environment: envOr(v.GetString("plaid.environment"), "PLAID_ENV"),
	}
	if cfg.Environment == "" {
		cfg.Environment = defaultPlaidEnvironment
	}

	if err := cfg.Validate(); err != nil {
		return plaid.Config{}, err
	}
	return cfg, nil
}
