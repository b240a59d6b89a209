package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Detector flags structural breaks around a realized period: margin regime
// shifts, EPS jumps uncorroborated by revenue, and raw value jumps. Flags
// stratify the report and never change the computed accuracy.
type Detector struct {
	repo contracts.Repository
	cfg  contracts.AbnormalConfig
	log  zerolog.Logger
}

// NewDetector creates a detector over the same repository the engine reads.
func NewDetector(repo contracts.Repository, cfg contracts.AbnormalConfig, log zerolog.Logger) *Detector {
	return &Detector{
		repo: repo,
		cfg:  cfg,
		log:  log.With().Str("component", "backtest.detector").Logger(),
	}
}

// Detect inspects the realized target period. At scoring time the target's
// own data is known, so reads are cut off at the target itself. Repository
// errors degrade to "no flag" with a log line; detection must never fail a
// scored step.
func (d *Detector) Detect(ctx context.Context, stockID string, metric contracts.Metric, target contracts.Period, actual contracts.ActualResult) *contracts.AbnormalFlag {
	flag := &contracts.AbnormalFlag{}

	quarter := target
	if target.Granularity == contracts.Monthly {
		quarter = contracts.NewQuarter(target.Year, (target.Num-1)/3+1)
		if target.Num%3 != 0 {
			quarter = quarter.Prev()
		}
	}

	d.checkMarginShift(ctx, stockID, quarter, flag)
	if metric == contracts.MetricEPS {
		d.checkEPSJump(ctx, stockID, quarter, flag)
	}
	d.checkValueJump(ctx, stockID, metric, target, actual, flag)

	if len(flag.Reasons) == 0 {
		return nil
	}
	d.log.Debug().
		Str("stock_id", stockID).
		Str("target", target.String()).
		Strs("reasons", flag.Reasons).
		Msg("abnormal period flagged")
	return flag
}

// checkMarginShift flags a quarter-over-quarter net margin move beyond the
// threshold, in percentage points.
func (d *Detector) checkMarginShift(ctx context.Context, stockID string, quarter contracts.Period, flag *contracts.AbnormalFlag) {
	margins, err := d.repo.Series(ctx, stockID, contracts.MetricNetMargin, quarter, 2)
	if err != nil {
		d.log.Warn().Err(err).Msg("margin shift check unavailable")
		return
	}
	if margins.Len() < 2 {
		return
	}
	shift := margins[1].Value - margins[0].Value
	if math.Abs(shift) > d.cfg.MarginShiftPP {
		flag.MarginShiftPP = shift
		flag.Reasons = append(flag.Reasons,
			fmt.Sprintf("net margin moved %+.1fpp quarter over quarter", shift))
	}
}

// checkEPSJump flags an EPS quarter-over-quarter jump that revenue does not
// corroborate, the signature of one-off items.
func (d *Detector) checkEPSJump(ctx context.Context, stockID string, quarter contracts.Period, flag *contracts.AbnormalFlag) {
	eps, err := d.repo.Series(ctx, stockID, contracts.MetricEPS, quarter, 2)
	if err != nil {
		d.log.Warn().Err(err).Msg("eps jump check unavailable")
		return
	}
	if eps.Len() < 2 || eps[0].Value == 0 {
		return
	}
	epsChange := (eps[1].Value - eps[0].Value) / math.Abs(eps[0].Value) * 100
	if math.Abs(epsChange) <= d.cfg.EPSJumpPct {
		return
	}

	monthlyCutoff := contracts.NewMonth(quarter.Year, quarter.MonthOfYear())
	monthly, err := d.repo.Series(ctx, stockID, contracts.MetricRevenue, monthlyCutoff, 6)
	if err != nil {
		d.log.Warn().Err(err).Msg("revenue corroboration unavailable")
		return
	}
	quarters := contracts.QuarterlyFromMonthly(monthly)
	if quarters.Len() < 2 || quarters[quarters.Len()-2].Value == 0 {
		return
	}
	prev := quarters[quarters.Len()-2].Value
	revChange := (quarters[quarters.Len()-1].Value - prev) / math.Abs(prev) * 100
	if math.Abs(revChange) < d.cfg.RevenueQuietPct {
		flag.EPSQoQPct = epsChange
		flag.RevenueQoQPct = revChange
		flag.Reasons = append(flag.Reasons,
			fmt.Sprintf("eps moved %+.0f%% while revenue moved %+.0f%%", epsChange, revChange))
	}
}

// checkValueJump flags a realized value far away from its trailing mean.
func (d *Detector) checkValueJump(ctx context.Context, stockID string, metric contracts.Metric, target contracts.Period, actual contracts.ActualResult, flag *contracts.AbnormalFlag) {
	history, err := d.repo.Series(ctx, stockID, metric, target.Prev(), 6)
	if err != nil {
		d.log.Warn().Err(err).Msg("value jump check unavailable")
		return
	}
	mean := history.Mean()
	if history.Len() < 3 || mean <= 0 || actual.Value <= 0 {
		return
	}
	ratio := actual.Value / mean
	if ratio > d.cfg.ValueJumpRatio || ratio < 1/d.cfg.ValueJumpRatio {
		flag.ValueJumpRatio = ratio
		flag.Reasons = append(flag.Reasons,
			fmt.Sprintf("value is %.1fx the trailing mean", ratio))
	}
}
