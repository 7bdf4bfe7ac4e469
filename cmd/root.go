// Package cmd is the vamphost command line.
package cmd

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maastricht-university/vamphost/config"
	"github.com/maastricht-university/vamphost/logging"
	"github.com/maastricht-university/vamphost/orchestrator"
	"github.com/maastricht-university/vamphost/plugins"
	"github.com/maastricht-university/vamphost/service"
)

// app is what every subcommand runs against, built before it runs.
type app struct {
	cfg      *config.Root
	log      *logrus.Logger
	registry *prometheus.Registry
	svc      *service.Service
	client   *orchestrator.Client
}

// RootCommand creates the vamphost command tree.
func RootCommand() *cobra.Command {
	a := &app{}
	v := viper.New()
	v.SetEnvPrefix("VAMPHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configPath string
	rootCmd := &cobra.Command{
		Use:           "vamphost",
		Short:         "Run audio feature extractors over audio files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to config.yaml (default: search config/<CONFIG_ENV>/config.yaml, config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("format", "json", "result encoding (json, yaml, msgpack)")
	flags.String("outputs", "outputs", "directory persisted results are written under")
	flags.String("sink-url", "", "base URL of the service results are published to")
	flags.Int("block-size", 0, "block size in frames (default: extractor preference)")
	flags.Int("step-size", 0, "step size in frames (default: extractor preference)")
	flags.Int("sample-rate", 0, "resample input to this rate (default: keep)")
	flags.Int("channels", 0, "set to 1 to mix input down to mono")

	bindings := map[string]string{
		"pipeline.log_level":  "log-level",
		"pipeline.log_format": "log-format",
		"output.format":       "format",
		"paths.outputs":       "outputs",
		"services.sink.url":   "sink-url",
		"framing.block_size":  "block-size",
		"framing.step_size":   "step-size",
		"audio.sample_rate":   "sample-rate",
		"audio.channels":      "channels",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.init(configPath, v)
	}
	rootCmd.AddCommand(a.listCommand(), a.processCommand(), a.collectCommand())
	return rootCmd
}

func (a *app) init(configPath string, v *viper.Viper) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Override(v)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.Pipeline.LogLvl, cfg.Pipeline.LogFormat)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	monitor, err := service.NewMonitor(registry)
	if err != nil {
		return err
	}
	svc, err := service.New(plugins.Default(),
		service.WithLogger(logrus.NewEntry(log)),
		service.WithMonitor(monitor))
	if err != nil {
		return err
	}

	a.cfg, a.log, a.registry, a.svc = cfg, log, registry, svc
	a.client = orchestrator.NewClient(svc, orchestrator.WithLogger(logrus.NewEntry(log)))
	return nil
}

// logMetrics writes the service counters at debug level.
func (a *app) logMetrics() {
	if !a.log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.log.WithError(err).Debug("could not gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := logrus.Fields{"metric": mf.GetName()}
			for _, l := range m.GetLabel() {
				fields[l.GetName()] = l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				fields["value"] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				fields["value"] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				fields["count"] = m.GetHistogram().GetSampleCount()
				fields["sum"] = m.GetHistogram().GetSampleSum()
			}
			logging.Component(a.log, "cli").WithFields(fields).Debug("metric")
		}
	}
}
