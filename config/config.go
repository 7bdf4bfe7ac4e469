package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Service struct {
	URL string `yaml:"url"`
}
type Services struct {
	Sink Service `yaml:"sink"`
}
type Audio struct {
	// SampleRate resamples input to this rate; 0 keeps the file's rate.
	SampleRate int `yaml:"sample_rate"`
	// Channels set to 1 mixes input down to mono; 0 keeps every channel.
	Channels int `yaml:"channels"`
}
type Framing struct {
	BlockSize int `yaml:"block_size"`
	StepSize  int `yaml:"step_size"`
}
type Root struct {
	Pipeline struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		LogLvl    string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"pipeline"`
	Audio    Audio    `yaml:"audio"`
	Framing  Framing  `yaml:"framing"`
	Services Services `yaml:"services"`
	Paths    struct {
		Outputs string `yaml:"outputs"`
	} `yaml:"paths"`
	Output struct {
		Format string `yaml:"format"`
	} `yaml:"output"`
}

// Default is the configuration used when no file is found.
func Default() *Root {
	var c Root
	c.Pipeline.Name = "vamphost"
	c.Pipeline.LogLvl = "info"
	c.Pipeline.LogFormat = "text"
	c.Paths.Outputs = "outputs"
	c.Output.Format = "json"
	return &c
}

// Load reads the configuration at path over the defaults. With an empty
// path it tries config/<CONFIG_ENV>/config.yaml and then config.yaml,
// falling back to the defaults when neither exists.
func Load(path string) (*Root, error) {
	if path != "" {
		return loadFile(path)
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	guess := []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	}
	for _, p := range guess {
		cfg, err := loadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

func loadFile(path string) (*Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Override applies every key set in v (flags or VAMPHOST_ environment
// variables) on top of the file configuration.
func (c *Root) Override(v *viper.Viper) {
	strs := map[string]*string{
		"pipeline.log_level":  &c.Pipeline.LogLvl,
		"pipeline.log_format": &c.Pipeline.LogFormat,
		"services.sink.url":   &c.Services.Sink.URL,
		"paths.outputs":       &c.Paths.Outputs,
		"output.format":       &c.Output.Format,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	ints := map[string]*int{
		"audio.sample_rate":  &c.Audio.SampleRate,
		"audio.channels":     &c.Audio.Channels,
		"framing.block_size": &c.Framing.BlockSize,
		"framing.step_size":  &c.Framing.StepSize,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
}

// Validate reports the first invalid setting.
func (c *Root) Validate() error {
	switch {
	case c.Audio.SampleRate < 0:
		return fmt.Errorf("audio.sample_rate must not be negative, got %d", c.Audio.SampleRate)
	case c.Audio.Channels < 0:
		return fmt.Errorf("audio.channels must not be negative, got %d", c.Audio.Channels)
	case c.Framing.BlockSize < 0 || c.Framing.StepSize < 0:
		return fmt.Errorf("framing sizes must not be negative, got %+v", c.Framing)
	}
	switch c.Output.Format {
	case "json", "yaml", "msgpack":
	default:
		return fmt.Errorf("output.format must be json, yaml or msgpack, got %q", c.Output.Format)
	}
	switch c.Pipeline.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("pipeline.log_format must be text or json, got %q", c.Pipeline.LogFormat)
	}
	return nil
}
