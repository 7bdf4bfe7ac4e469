package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/vamphost/audiofile"
	"github.com/maastricht-university/vamphost/clients"
	"github.com/maastricht-university/vamphost/logging"
	"github.com/maastricht-university/vamphost/orchestrator"
)

func (a *app) processCommand() *cobra.Command {
	var key, outputID string
	var params map[string]string
	cmd := &cobra.Command{
		Use:   "process <audio.wav>",
		Short: "Run one extractor and print the features of one output as a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.logMetrics()
			req, err := a.request(args[0], key, outputID, params)
			if err != nil {
				return err
			}
			resp, err := a.client.Process(cmd.Context(), req)
			if err != nil {
				return err
			}
			return orchestrator.Encode(cmd.OutOrStdout(), orchestrator.Format(a.cfg.Output.Format), resp)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "extractor key, e.g. example:zerocrossings")
	cmd.Flags().StringVarP(&outputID, "output", "o", "", "output identifier (default: the first output)")
	cmd.Flags().StringToStringVar(&params, "param", nil, "parameter values, e.g. --param decibels=1")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func (a *app) collectCommand() *cobra.Command {
	var extracts []string
	var params map[string]string
	var persist bool
	cmd := &cobra.Command{
		Use:   "collect <audio.wav>",
		Short: "Run extractors and print their outputs reshaped into vectors, matrices or tracks",
		Long: "Each --extract names an extractor key, optionally followed by /output.\n" +
			"Extractors run concurrently, each on its own handle.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.logMetrics()
			ctx := cmd.Context()
			reqs := make([]orchestrator.Request, 0, len(extracts))
			for _, e := range extracts {
				key, outputID, _ := strings.Cut(e, "/")
				req, err := a.request(args[0], key, outputID, params)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}
			resps, err := a.client.CollectAll(ctx, reqs)
			if err != nil {
				return err
			}
			results := make([]orchestrator.Result, 0, len(resps))
			for i, resp := range resps {
				results = append(results, orchestrator.Result{
					Key:      reqs[i].Key,
					OutputID: resp.OutputDescriptor.Basic.Identifier,
					Response: resp,
				})
			}
			bundle := orchestrator.NewBundle(args[0], results)
			return a.deliver(ctx, cmd, bundle, persist)
		},
	}
	cmd.Flags().StringSliceVarP(&extracts, "extract", "e", nil, "key[/output] to collect, repeatable")
	cmd.Flags().StringToStringVar(&params, "param", nil, "parameter values applied to every extractor")
	cmd.Flags().BoolVar(&persist, "persist", false, "write the results under the outputs directory")
	_ = cmd.MarkFlagRequired("extract")
	return cmd
}

// deliver prints, persists and publishes a bundle as configured.
func (a *app) deliver(ctx context.Context, cmd *cobra.Command, bundle orchestrator.Bundle, persist bool) error {
	log := logging.Component(a.log, "cli").WithField("bundle", bundle.ID)
	format := orchestrator.Format(a.cfg.Output.Format)

	var path string
	if persist {
		sid, p, err := orchestrator.Persist(a.cfg.Paths.Outputs, bundle, format)
		if err != nil {
			return err
		}
		path = p
		log.WithFields(logrus.Fields{"session": sid, "path": path}).Info("results persisted")
	} else if err := orchestrator.Encode(cmd.OutOrStdout(), format, bundle); err != nil {
		return err
	}

	url := a.cfg.Services.Sink.URL
	if url == "" {
		return nil
	}
	http := clients.NewHTTP()
	var (
		resp *clients.SinkResp
		err  error
	)
	if path != "" {
		resp, err = http.Upload(ctx, url, path)
	} else {
		resp, err = http.Publish(ctx, url, bundle)
	}
	if err != nil {
		return fmt.Errorf("deliver to sink: %w", err)
	}
	log.WithFields(logrus.Fields{"status": resp.Status, "sink_id": resp.ID}).Info("results delivered")
	return nil
}

// request reads the audio file and prepares it per the audio settings.
func (a *app) request(path, key, outputID string, params map[string]string) (orchestrator.Request, error) {
	values, err := parseParams(params)
	if err != nil {
		return orchestrator.Request{}, err
	}
	audio, err := audiofile.Read(path)
	if err != nil {
		return orchestrator.Request{}, err
	}
	if a.cfg.Audio.Channels == 1 {
		audio = audiofile.Mono(audio)
	}
	if rate := a.cfg.Audio.SampleRate; rate > 0 {
		if audio, err = audiofile.Resample(audio, float64(rate)); err != nil {
			return orchestrator.Request{}, err
		}
	}
	logging.Component(a.log, "cli").WithFields(logrus.Fields{
		"file":        path,
		"channels":    audio.ChannelCount(),
		"sample_rate": audio.SampleRate,
		"seconds":     audio.Duration(),
	}).Debug("audio loaded")

	format := orchestrator.AudioFormat{
		ChannelCount: audio.ChannelCount(),
		SampleRate:   audio.SampleRate,
		Length:       audio.Length(),
	}
	return orchestrator.Request{
		Audio:           audio.Channels,
		Format:          format,
		Key:             key,
		OutputID:        outputID,
		ParameterValues: values,
		BlockSize:       a.cfg.Framing.BlockSize,
		StepSize:        a.cfg.Framing.StepSize,
	}, nil
}

func parseParams(params map[string]string) (map[string]float64, error) {
	if len(params) == 0 {
		return nil, nil
	}
	values := make(map[string]float64, len(params))
	for id, raw := range params {
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", id, err)
		}
		values[id] = v
	}
	return values, nil
}
