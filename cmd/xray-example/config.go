package main

import (
	"flag"
	"time"

	"github.com/arloliu/fuda"
)

// Config holds the example server's CLI configuration.
// Uses fuda struct tags for defaults and env var binding.
type Config struct {
	Addr            string        `yaml:"addr" default:":8080" env:"XRAY_EXAMPLE_ADDR"`
	Framework       string        `yaml:"framework" default:"http" env:"XRAY_EXAMPLE_FRAMEWORK"`
	ConfigFile      string        `yaml:"configFile" env:"XRAY_EXAMPLE_CONFIG"`
	SegmentName     string        `yaml:"segmentName" env:"XRAY_SEGMENT_NAME"`
	Manual          bool          `yaml:"manual" default:"false"`
	Debug           bool          `yaml:"debug" default:"false" env:"XRAY_EXAMPLE_DEBUG"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

func newConfig() *Config {
	cfg := &Config{}
	_ = fuda.SetDefaults(cfg)

	return cfg
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "Listen address")
	fs.StringVar(&c.Framework, "framework", c.Framework, "Server framework: http or gin")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "otxray YAML/JSON config file")
	fs.StringVar(&c.SegmentName, "segment-name", c.SegmentName, "Fixed segment name")
	fs.BoolVar(&c.Manual, "manual", c.Manual, "Use manual context mode")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Graceful shutdown timeout")
}

func (c *Config) applyEnvOverrides() {
	_ = fuda.LoadEnv(c)
}
