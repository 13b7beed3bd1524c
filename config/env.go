package config

import (
	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// Settings mirrors the known keys as environment variables. Zero values
// mean "not set" and are left out of the resulting Values.
type Settings struct {
	LogLevel   string `config:"HAKO_LOG_LEVEL"`
	ChunkSize  int    `config:"HAKO_ECS_CHUNK_SIZE"`
	ExpandSize int    `config:"HAKO_ECS_EXPAND_SIZE"`
	Workers    int    `config:"HAKO_TASK_WORKERS"`
}

// FromEnv loads Settings from the process environment.
func FromEnv() (Values, error) {
	var s Settings
	if err := jlconfig.FromEnv().To(&s); err != nil {
		return nil, eris.Wrap(err, "config: read environment")
	}
	return s.Values(), nil
}

// Values converts the non-zero settings to dotted keys.
func (s Settings) Values() Values {
	v := Values{}
	if s.ChunkSize != 0 {
		v[KeyChunkSize] = s.ChunkSize
	}
	if s.ExpandSize != 0 {
		v[KeyExpandSize] = s.ExpandSize
	}
	if s.Workers != 0 {
		v[KeyWorkers] = s.Workers
	}
	if s.LogLevel != "" {
		v[KeyLogLevel] = s.LogLevel
	}
	return v
}
