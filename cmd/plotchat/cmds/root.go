package cmds

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/plotchat/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultTUILogFile keeps logs off the screen while the chat UI owns the
// terminal.
const defaultTUILogFile = "plotchat.log"

// flagKeys maps persistent flags to their settings keys.
var flagKeys = map[string]string{
	"endpoint":       "transport.endpoint",
	"query-path":     "transport.query-path",
	"timeout":        "transport.timeout",
	"lookback":       "lookback",
	"mode":           "ui.mode",
	"token-encoding": "ui.token-encoding",
	"redis-enabled":  "redis.enabled",
	"redis-addr":     "redis.addr",
	"redis-group":    "redis.group",
	"redis-consumer": "redis.consumer",
	"mirror-addr":    "mirror.addr",
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "plotchat",
		Short:         "plotchat is a terminal client for a chart-producing chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if err := config.InitViper(viper.GetViper(), configPath); err != nil {
				return err
			}
			s, err := loadSettings()
			if err != nil {
				return err
			}

			if cmd.Name() == "chat" && resolveMode(s.UI.Mode) == modeTUI {
				if f := cmd.Flags().Lookup("log-file"); f != nil && f.Value.String() == "" {
					if err := cmd.Flags().Set("log-file", defaultTUILogFile); err != nil {
						return errors.Wrap(err, "could not redirect logs")
					}
				}
			}
			// reinitialize the logger because we can now parse --log-level and co
			// from the command line flag
			return logging.InitLoggerFromCobra(cmd)
		},
	}

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.String("endpoint", d.Transport.Endpoint, "Chat backend base URL")
	flags.String("query-path", d.Transport.QueryPath, "Path of the chat query endpoint")
	flags.Duration("timeout", d.Transport.Timeout, "Timeout for one chat request (0 disables)")
	flags.Int("lookback", d.Lookback, "How many trailing reply entries to search for the submitted message")
	flags.String("mode", d.UI.Mode, "Chat mode: auto, tui or line")
	flags.String("token-encoding", d.UI.TokenEncoding, "Tokenizer encoding for the token meter")
	flags.Bool("redis-enabled", d.Redis.Enabled, "Publish conversation events over Redis Streams")
	flags.String("redis-addr", d.Redis.Addr, "Redis address host:port")
	flags.String("redis-group", d.Redis.Group, "Redis consumer group")
	flags.String("redis-consumer", d.Redis.Consumer, "Redis consumer name")
	flags.String("mirror-addr", d.Mirror.Addr, "Serve the live conversation mirror on this address (e.g. :8090)")

	// registers the log-level, log-file, log-format and with-caller flags
	err := clay.InitGlazed(config.AppName, rootCmd)
	cobra.CheckErr(err)
	if flags.Lookup("config") == nil {
		flags.String("config", "", "Config file (default $HOME/.plotchat/config.yaml)")
	}

	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			cobra.CheckErr(errors.Wrapf(err, "could not bind flag %s", flag))
		}
	}

	rootCmd.AddCommand(NewChatCommand())
	rootCmd.AddCommand(NewSendCommand())
	rootCmd.AddCommand(newConfigCobraCommand())
	rootCmd.AddCommand(NewTokensCommand())
	rootCmd.AddCommand(newWatchCobraCommand())

	return rootCmd
}

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}
