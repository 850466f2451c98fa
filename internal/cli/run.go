package cli

import (
	"github.com/spf13/cobra"

	"quote-drift-tracker/internal/config"
)

var runFlags struct {
	source    string
	preset    string
	frequency float64
	workers   int
	amount    int64
	slippage  int
	csvPath   string
	pngPath   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample quotes for the configured duration and print the drift report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if err := applyRunFlags(cmd, a.Config); err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

// applyRunFlags 将命令行参数覆盖到配置上，仅处理显式传入的参数。
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Tracker.Source = runFlags.source
	}
	if flags.Changed("preset") {
		cfg.Tracker.Preset = runFlags.preset
		if err := cfg.ApplyPreset(); err != nil {
			return err
		}
	}
	if flags.Changed("frequency") {
		cfg.Tracker.Frequency = runFlags.frequency
	}
	if flags.Changed("workers") {
		cfg.Tracker.Workers = runFlags.workers
	}
	if flags.Changed("duration") {
		d, err := flags.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Tracker.Duration = d
	}
	if flags.Changed("amount") {
		cfg.Tracker.Amount = runFlags.amount
	}
	if flags.Changed("slippage-bps") {
		cfg.Tracker.SlippageBps = runFlags.slippage
	}
	if flags.Changed("latency-injection") {
		d, err := flags.GetDuration("latency-injection")
		if err != nil {
			return err
		}
		cfg.Tracker.LatencyInjection = d
	}
	if flags.Changed("csv") {
		cfg.Export.CSVPath = runFlags.csvPath
	}
	if flags.Changed("png") {
		cfg.Export.PNGPath = runFlags.pngPath
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.source, "source", "", "Quote source: jupiter, vault or demo")
	f.StringVar(&runFlags.preset, "preset", "", "Token pair preset, e.g. SOL_USDC")
	f.Float64Var(&runFlags.frequency, "frequency", 0, "Aggregate requests per second")
	f.IntVar(&runFlags.workers, "workers", 0, "Number of concurrent workers")
	f.Duration("duration", 0, "Sampling duration, e.g. 60s")
	f.Int64Var(&runFlags.amount, "amount", 0, "Input amount in smallest units")
	f.IntVar(&runFlags.slippage, "slippage-bps", 0, "Slippage tolerance in basis points")
	f.Duration("latency-injection", 0, "Artificial delay before each request")
	f.StringVar(&runFlags.csvPath, "csv", "", "CSV export path (empty disables)")
	f.StringVar(&runFlags.pngPath, "png", "", "PNG chart export path")
}
