package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/verify"
)

// readBrokers decodes a JSON array of brokers, or a single broker object,
// from path. "-" reads stdin.
func readBrokers(path string, stdin io.Reader) ([]model.Broker, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read brokers %s", path)
	}
	return decodeBrokers(raw)
}

func decodeBrokers(raw []byte) ([]model.Broker, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, eris.New("brokers input is empty")
	}
	if raw[0] == '{' {
		var b model.Broker
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, eris.Wrap(err, "decode broker")
		}
		return []model.Broker{b}, nil
	}
	var brokers []model.Broker
	if err := json.Unmarshal(raw, &brokers); err != nil {
		return nil, eris.Wrap(err, "decode brokers")
	}
	return brokers, nil
}

// runFlags are the per-run overrides shared by verify and batch.
type runFlags struct {
	fields         []string
	maxSources     int
	threshold      float64
	skipRegulatory bool
	noSave         bool
	noAlerts       bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.fields, "fields", nil, "fields to check (default from config)")
	cmd.Flags().IntVar(&f.maxSources, "max-sources", 0, "max web sources per broker (default from config)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "confidence threshold (default from config)")
	cmd.Flags().BoolVar(&f.skipRegulatory, "skip-regulatory", false, "skip regulator register checks")
	cmd.Flags().BoolVar(&f.noSave, "no-save", false, "do not persist discrepancies")
	cmd.Flags().BoolVar(&f.noAlerts, "no-alerts", false, "do not send alerts")
}

// options layers explicitly set flags over the configured defaults.
func (f *runFlags) options(cmd *cobra.Command, base verify.Options) verify.Options {
	opts := base
	if cmd.Flags().Changed("fields") {
		opts.Fields = f.fields
	}
	if cmd.Flags().Changed("max-sources") {
		opts.MaxSources = f.maxSources
	}
	if cmd.Flags().Changed("threshold") {
		opts.ConfidenceThreshold = f.threshold
	}
	if f.skipRegulatory {
		opts.SkipRegulatory = true
	}
	if f.noSave {
		opts.SaveDiscrepancies = false
	}
	if f.noAlerts {
		opts.EnableAlerts = false
	}
	return opts
}
