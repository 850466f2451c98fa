package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var (
	simulateDrift     float64
	simulateAdvantage time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次报价漂移机会并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateDrift == 0 {
			return errors.New("--drift 不能为 0")
		}
		if simulateAdvantage <= 0 {
			return errors.New("--advantage 必须大于 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateDrift, simulateAdvantage)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateDrift, "drift", -1.0, "价格漂移百分比")
	simulateCmd.Flags().DurationVar(&simulateAdvantage, "advantage", 200*time.Millisecond, "时延优势")
}
