package config

import (
	"time"

	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/redisstream"
	"github.com/go-go-golems/plotchat/pkg/tokens"
	"github.com/go-go-golems/plotchat/pkg/transport"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type TransportSettings struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	QueryPath string        `mapstructure:"query-path" yaml:"query-path"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type UISettings struct {
	// Mode is one of auto, tui or line.
	Mode          string `mapstructure:"mode" yaml:"mode"`
	TokenEncoding string `mapstructure:"token-encoding" yaml:"token-encoding"`
}

type MirrorSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Settings are the chat settings. Logging is configured through the
// log-* flags clay registers on the root command.
type Settings struct {
	Transport TransportSettings    `mapstructure:"transport" yaml:"transport"`
	Lookback  int                  `mapstructure:"lookback" yaml:"lookback"`
	UI        UISettings           `mapstructure:"ui" yaml:"ui"`
	Redis     redisstream.Settings `mapstructure:"redis" yaml:"redis"`
	Mirror    MirrorSettings       `mapstructure:"mirror" yaml:"mirror"`
}

const (
	ModeAuto = "auto"
	ModeTUI  = "tui"
	ModeLine = "line"
)

func Default() Settings {
	return Settings{
		Transport: TransportSettings{
			Endpoint:  transport.DefaultEndpoint,
			QueryPath: transport.DefaultQueryPath,
			Timeout:   transport.DefaultTimeout,
		},
		Lookback: conversation.DefaultLookback,
		UI: UISettings{
			Mode:          ModeAuto,
			TokenEncoding: tokens.DefaultEncoding,
		},
		Redis: redisstream.DefaultSettings(),
	}
}

// SetDefaults registers the defaults under their dotted keys so that env
// variables and the config file can override each one individually.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("transport.endpoint", d.Transport.Endpoint)
	v.SetDefault("transport.query-path", d.Transport.QueryPath)
	v.SetDefault("transport.timeout", d.Transport.Timeout)
	v.SetDefault("lookback", d.Lookback)
	v.SetDefault("ui.mode", d.UI.Mode)
	v.SetDefault("ui.token-encoding", d.UI.TokenEncoding)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.group", d.Redis.Group)
	v.SetDefault("redis.consumer", d.Redis.Consumer)
	v.SetDefault("mirror.addr", d.Mirror.Addr)
}

// Load decodes the effective settings out of v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Transport.Endpoint == "" {
		return errors.New("transport.endpoint must not be empty")
	}
	if s.Transport.Timeout < 0 {
		return errors.Errorf("transport.timeout must not be negative, got %s", s.Transport.Timeout)
	}
	if s.Lookback < 1 {
		return errors.Errorf("lookback must be at least 1, got %d", s.Lookback)
	}
	switch s.UI.Mode {
	case ModeAuto, ModeTUI, ModeLine:
	default:
		return errors.Errorf("invalid ui.mode %q (auto, tui or line)", s.UI.Mode)
	}
	if s.Redis.Enabled && s.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
