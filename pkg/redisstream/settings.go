package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

// SectionSlug is the slug of the glazed section holding Settings.
const SectionSlug = "redis"

// Settings holds Redis Streams transport configuration for the event router.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled" mapstructure:"enabled" yaml:"enabled"`
	Addr     string `glazed:"redis-addr" mapstructure:"addr" yaml:"addr"`
	Group    string `glazed:"redis-group" mapstructure:"group" yaml:"group"`
	Consumer string `glazed:"redis-consumer" mapstructure:"consumer" yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "plotchat-ui",
		Consumer: "ui-1",
	}
}

// NewSection returns the glazed section for Settings with d as defaults, for
// commands that are not driven by the root viper configuration.
func NewSection(d Settings) (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Redis Streams transport for conversation events",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool,
				fields.WithHelp("Read conversation events from Redis Streams"),
				fields.WithDefault(d.Enabled)),
			fields.New("redis-addr", fields.TypeString,
				fields.WithHelp("Redis address host:port"),
				fields.WithDefault(d.Addr)),
			fields.New("redis-group", fields.TypeString,
				fields.WithHelp("Redis consumer group"),
				fields.WithDefault(d.Group)),
			fields.New("redis-consumer", fields.TypeString,
				fields.WithHelp("Redis consumer name"),
				fields.WithDefault(d.Consumer)),
		),
	)
}
