package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/config"
	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/report"
	"github.com/sells-group/broker-verify/internal/verify"
)

var (
	batchFile        string
	batchLimit       int
	batchConcurrency int
	batchOutput      string
	batchQuiet       bool
	batchRun         runFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify every broker in a JSON file and write a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		brokers, err := readBrokers(batchFile, os.Stdin)
		if err != nil {
			return err
		}

		env, err := initVerifier(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := cfg.Batch.Concurrency
		if cmd.Flags().Changed("concurrency") {
			concurrency = batchConcurrency
		}
		opts := batchRun.options(cmd, cfg.Verify.Options())

		var progress io.Writer = cmd.ErrOrStderr()
		if batchQuiet {
			progress = io.Discard
		}
		rep := processBatch(ctx, env.Verifier, brokers, opts, verify.BatchOptions{
			Concurrency: concurrency,
			Delay:       config.Millis(cfg.Batch.DelayMs),
		}, batchLimit, progress)

		if batchOutput != "" {
			if err := writeReportFile(batchOutput, rep); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", batchOutput))
		}
		return report.RenderTable(cmd.OutOrStdout(), rep)
	},
}

// batchVerifier is the part of the verifier processBatch needs.
type batchVerifier interface {
	VerifyBatch(ctx context.Context, brokers []model.Broker, opts verify.Options, bo verify.BatchOptions) []*model.VerificationResult
}

// processBatch applies limit, verifies brokers with a progress bar on
// progress and builds the report.
func processBatch(ctx context.Context, v batchVerifier, brokers []model.Broker, opts verify.Options, bo verify.BatchOptions, limit int, progress io.Writer) report.Report {
	if len(brokers) == 0 {
		zap.L().Info("no brokers to verify")
		return report.Build(nil)
	}
	if limit > 0 && len(brokers) > limit {
		brokers = brokers[:limit]
	}

	bar := progressbar.NewOptions(len(brokers),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Verifying brokers...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(progress)
		}),
	)

	onResult := bo.OnResult
	bo.OnResult = func(i int, res *model.VerificationResult) {
		if err := bar.Add(1); err != nil {
			zap.L().Debug("progress bar update failed", zap.Error(err))
		}
		if onResult != nil {
			onResult(i, res)
		}
	}

	results := v.VerifyBatch(ctx, brokers, opts, bo)
	if err := ctx.Err(); err != nil {
		zap.L().Warn("batch interrupted, reporting partial results", zap.Error(err))
	}
	return report.Build(results)
}

func writeReportFile(path string, rep report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create report %s", path)
	}
	if err := report.Write(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "close report")
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "brokers.json", "broker JSON array file (- for stdin)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of brokers to verify (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 1, "brokers verified at once (default from config)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write the JSON report to this path")
	batchCmd.Flags().BoolVar(&batchQuiet, "quiet", false, "hide the progress bar")
	batchRun.register(batchCmd)
	rootCmd.AddCommand(batchCmd)
}
