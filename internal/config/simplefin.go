package config

import (
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/simplefin"
)

const defaultSimpleFINStateFile = "~/.local/share/leakscan/simplefin_auth.json"

// LoadSimpleFINConfig loads the SimpleFIN setup token and state file location,
// falling back to SIMPLEFIN_TOKEN for the token.
func LoadSimpleFINConfig(v *viper.Viper) simplefin.Config {
	state := v.GetString("simplefin.state_file")
	if state == "" {
		state = defaultSimpleFINStateFile
	}
	return simplefin.Config{
		Token:     envOr(v.GetString("simplefin.token"), "SIMPLEFIN_TOKEN"),
		StateFile: ExpandPath(state),
	}
}
