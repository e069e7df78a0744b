package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// AppName is the name clay registers the root command under.
const AppName = "plotchat"

const EnvPrefix = "PLOTCHAT"

// BindEnv makes the nested settings keys reachable from the environment,
// e.g. transport.query-path as PLOTCHAT_TRANSPORT_QUERY_PATH.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// InitViper prepares v to read the config file and PLOTCHAT_* variables.
// Without configPath, ./, $HOME/.plotchat and the user config dir are
// searched and a missing file is not an error.
func InitViper(v *viper.Viper, configPath string) error {
	BindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/." + AppName)

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(xdgConfigPath, AppName))
		}
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "could not read config file")
	}

	log.Debug().Str("config", v.ConfigFileUsed()).Msg("Loaded configuration")
	return nil
}
