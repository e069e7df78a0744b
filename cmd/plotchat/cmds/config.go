package cmds

import (
	"context"
	"io"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/plotchat/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type ConfigCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ConfigCommand)(nil)

func NewConfigCommand() (*ConfigCommand, error) {
	return &ConfigCommand{
		CommandDescription: cmds.NewCommandDescription(
			"config",
			cmds.WithShort("Print the effective configuration as YAML"),
			cmds.WithLong("Print the settings plotchat runs with, after merging defaults, the config file, PLOTCHAT_* variables and flags."),
		),
	}, nil
}

func (c *ConfigCommand) RunIntoWriter(ctx context.Context, _ *values.Values, w io.Writer) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	return writeSettings(w, s, viper.ConfigFileUsed())
}

func writeSettings(w io.Writer, s *config.Settings, configFile string) error {
	if configFile != "" {
		if _, err := io.WriteString(w, "# "+configFile+"\n"); err != nil {
			return err
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "could not encode settings")
	}
	return enc.Close()
}

func newConfigCobraCommand() *cobra.Command {
	configCmd, err := NewConfigCommand()
	cobra.CheckErr(err)
	command, err := cli.BuildCobraCommand(configCmd)
	cobra.CheckErr(err)
	return command
}
