// Command profile drives hako worlds under pkg/profile.
//
//	go build ./profile
//	./profile entities --mode mem
//	go tool pprof -http=":8000" -nodefraction=0.001 ./profile mem.pprof
package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edwinsyarief/hako"
	"github.com/edwinsyarief/hako/config"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

type options struct {
	configPath string
	mode       string
	out        string
	rounds     int
	iters      int
	entities   int
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile hako entity and query workloads",
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "settings file (toml or yaml)")
	cmd.PersistentFlags().StringVar(&opts.mode, "mode", "cpu", "profile mode: cpu, mem or none")
	cmd.PersistentFlags().StringVar(&opts.out, "out", ".", "profile output directory")
	cmd.PersistentFlags().IntVar(&opts.rounds, "rounds", 10, "number of fresh worlds")
	cmd.PersistentFlags().IntVar(&opts.iters, "iters", 1000, "iterations per world")
	cmd.PersistentFlags().IntVar(&opts.entities, "entities", 1000, "entities per iteration")

	cmd.AddCommand(entitiesCmd(opts), queryCmd(opts), parallelCmd(opts))
	return cmd
}

// settings merges the config file, if any, with the environment.
func (o *options) settings() (config.Values, error) {
	env, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if o.configPath == "" {
		return env, nil
	}
	file, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return config.Merge(file, env), nil
}

func (o *options) logger(src config.Values) zerolog.Logger {
	level, err := zerolog.ParseLevel(src.GetString(config.KeyLogLevel, "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// profiled runs fn between profile.Start and Stop according to --mode.
func (o *options) profiled(fn func()) error {
	var mode func(*profile.Profile)
	switch o.mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	case "none":
		fn()
		return nil
	default:
		return eris.Errorf("unknown profile mode %q", o.mode)
	}
	p := profile.Start(mode, profile.ProfilePath(o.out), profile.NoShutdownHook, profile.Quiet)
	fn()
	p.Stop()
	return nil
}

// newWorld builds a registry and world from the merged settings.
func (o *options) newWorld(src config.Values, logger zerolog.Logger) (w *hako.World, c1, c2 hako.ComponentID) {
	reg := hako.NewRegistry(src, hako.WithRegistryLogger(logger))
	c1 = hako.RegisterComponent[comp1](reg)
	c2 = hako.RegisterComponent[comp2](reg)
	return hako.NewWorld(reg, hako.WithLogger(logger)), c1, c2
}
