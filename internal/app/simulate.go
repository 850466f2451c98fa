package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"quote-drift-tracker/internal/alerting"
	"quote-drift-tracker/internal/sample"
)

// SimulateAlert 构造一对满足阈值的报价样本，走一遍检测与告警流程。
func (a *App) SimulateAlert(ctx context.Context, driftPct float64, advantage time.Duration) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	amount := a.Config.Tracker.Amount
	now := time.Now()
	base := 10 * time.Millisecond
	prev := sample.Succeeded(0, 1, now, now.Add(base+advantage), sample.Quote{OutputAmount: amount})
	cur := sample.Succeeded(1, 1, now, now.Add(base), sample.Quote{
		OutputAmount: int64(math.Round(float64(amount) * (1 + driftPct/100))),
	})

	opp, ok := a.newDetector().Evaluate(prev, cur)
	if !ok {
		return fmt.Errorf("drift %.4f%% with %s advantage does not cross the configured thresholds", driftPct, advantage)
	}

	note := alerting.FromOpportunity(opp, a.pairLabel(), a.thresholds().DriftPct)
	note.AdditionalMsg = "(simulated)"
	return notifier.Notify(ctx, note)
}
