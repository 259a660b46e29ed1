package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/report"
)

var (
	verifyFile       string
	verifyName       string
	verifyID         string
	verifyDeposit    float64
	verifyRegulators []string
	verifyFormat     string
	verifyRun        runFlags
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a single broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := verifyTarget(cmd)
		if err != nil {
			return err
		}

		env, err := initVerifier(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := verifyRun.options(cmd, cfg.Verify.Options())
		res, err := env.Verifier.VerifyBroker(ctx, broker, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if verifyFormat == "table" {
			return report.RenderTable(out, report.Build([]*model.VerificationResult{res}))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	},
}

// verifyTarget builds the broker from --file or from the inline flags.
func verifyTarget(cmd *cobra.Command) (model.Broker, error) {
	if verifyFile != "" {
		brokers, err := readBrokers(verifyFile, os.Stdin)
		if err != nil {
			return model.Broker{}, err
		}
		if len(brokers) != 1 {
			return model.Broker{}, eris.Errorf("verify expects one broker, %s has %d", verifyFile, len(brokers))
		}
		return brokers[0], nil
	}
	if verifyName == "" {
		return model.Broker{}, eris.New("--name or --file is required")
	}
	b := model.Broker{
		ID:         verifyID,
		Name:       verifyName,
		Regulation: model.Regulation{Regulators: verifyRegulators},
	}
	if cmd.Flags().Changed("min-deposit") {
		b.Accessibility.MinDeposit = model.Float64(verifyDeposit)
	}
	return b, nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "broker JSON file (- for stdin)")
	verifyCmd.Flags().StringVar(&verifyName, "name", "", "broker name")
	verifyCmd.Flags().StringVar(&verifyID, "id", "", "broker id")
	verifyCmd.Flags().Float64Var(&verifyDeposit, "min-deposit", 0, "stored minimum deposit")
	verifyCmd.Flags().StringSliceVar(&verifyRegulators, "regulators", nil, "stored regulators, e.g. FCA,ASIC")
	verifyCmd.Flags().StringVar(&verifyFormat, "format", "json", "output format: json or table")
	verifyRun.register(verifyCmd)
	rootCmd.AddCommand(verifyCmd)
}
