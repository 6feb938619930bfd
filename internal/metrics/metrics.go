// Package metrics is the performance metrics calculator (spec §4.6): given a
// trade log, an equity curve, the initial capital, and the covered time
// range, it computes returns, drawdown, risk-adjusted ratios, and trade/
// exposure statistics. Grounded on the teacher's pkg/backtest/metrics.go
// shape (the same field groupings: returns, risk, trade stats, exposure,
// capital), adapted from its ·252/√252 equities-calendar annualization to
// the ·365/√365 crypto calendar spec §4.6 specifies, and restructured around
// the spec's Sharpe/Sortino/Calmar formulas rather than the teacher's.
package metrics

import (
	"encoding/json"
	"math"

	"github.com/ajitpratap0/backtester/internal/simulator"
)

const msPerYear = 365.25 * 86_400_000
const msPerDay = 86_400_000

// EquityPoint is the minimal equity-curve sample the calculator needs —
// decoupled from the engine's richer EquityPoint so this package has no
// dependency on internal/backtest.
type EquityPoint struct {
	Timestamp int64
	Equity    float64
}

// Ratio wraps a float64 that may legitimately be +Inf (profit factor with no
// losing trades) and still encodes to JSON, per spec §4.6 "Profit factor
// encoding for serialization MUST preserve infinity": +Inf and -Inf marshal
// as the strings "Infinity" and "-Infinity". Decoding is not customized, so
// those strings do not unmarshal back into a Ratio.
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsInf(f, 1) {
		return json.Marshal("Infinity")
	}
	if math.IsInf(f, -1) {
		return json.Marshal("-Infinity")
	}
	return json.Marshal(f)
}

// Metrics is the full performance report for one backtest run.
type Metrics struct {
	// Returns
	TotalReturn      float64 `json:"totalReturn"` // percent
	TotalReturnAbs   float64 `json:"totalReturnAbs"`
	CAGR             float64 `json:"cagr"` // percent
	MonthlyAvgReturn float64 `json:"monthlyAvgReturn"` // fraction

	// Drawdown
	MaxDrawdown         float64 `json:"maxDrawdown"` // percent
	MaxDrawdownAbs      float64 `json:"maxDrawdownAbs"`
	MaxDrawdownDuration int64   `json:"maxDrawdownDurationDays"`

	// Risk
	SharpeRatio  float64 `json:"sharpeRatio"`
	SortinoRatio float64 `json:"sortinoRatio"`
	CalmarRatio  float64 `json:"calmarRatio"`

	// Trade statistics
	TotalTrades          int     `json:"totalTrades"`
	WinningTrades        int     `json:"winningTrades"`
	LosingTrades         int     `json:"losingTrades"`
	WinRate              float64 `json:"winRate"` // percent
	ProfitFactor         Ratio   `json:"profitFactor"`
	AvgWin               float64 `json:"avgWin"` // percent
	AvgLoss              float64 `json:"avgLoss"` // percent
	AvgTrade             float64 `json:"avgTrade"` // percent
	LargestWin           float64 `json:"largestWin"`
	LargestLoss          float64 `json:"largestLoss"`
	MaxConsecutiveWins   int     `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int     `json:"maxConsecutiveLosses"`

	// Exposure
	LongTrades     int     `json:"longTrades"`
	ShortTrades    int     `json:"shortTrades"`
	LongWinRate    float64 `json:"longWinRate"`
	ShortWinRate   float64 `json:"shortWinRate"`
	AvgHoldingTime float64 `json:"avgHoldingTimeMinutes"`
	TimeInMarket   float64 `json:"timeInMarket"` // percent

	// Capital
	InitialCapital  float64 `json:"initialCapital"`
	FinalCapital    float64 `json:"finalCapital"`
	PeakCapital     float64 `json:"peakCapital"`
	TotalCommission float64 `json:"totalCommission"`
}

// Calculate computes the full metrics report for a completed (or force-
// closed) run. trades and equity must both be ordered by time, matching the
// engine's emission order. t0/t1 are the covered range in ms epoch.
func Calculate(trades []simulator.Trade, equity []EquityPoint, initialCapital float64, t0, t1 int64) Metrics {
	m := Metrics{InitialCapital: initialCapital, PeakCapital: initialCapital}

	finalEquity := initialCapital
	if len(equity) > 0 {
		finalEquity = equity[len(equity)-1].Equity
	}
	m.FinalCapital = finalEquity

	if initialCapital > 0 {
		m.TotalReturn = (finalEquity/initialCapital - 1) * 100
	}
	m.TotalReturnAbs = finalEquity - initialCapital

	years := float64(t1-t0) / msPerYear
	if years > 0 && initialCapital > 0 && finalEquity > 0 {
		m.CAGR = (math.Pow(finalEquity/initialCapital, 1/years) - 1) * 100
	} else {
		m.CAGR = m.TotalReturn
	}

	m.MonthlyAvgReturn = monthlyAvgReturn(equity)

	peak, maxDD, maxDDAbs, maxDDDurationMs := drawdownStats(equity, initialCapital)
	m.PeakCapital = peak
	m.MaxDrawdown = maxDD
	m.MaxDrawdownAbs = maxDDAbs
	m.MaxDrawdownDuration = maxDDDurationMs / msPerDay

	meanRet, stdRet, downsideStd := returnStats(equity)
	annualReturn := meanRet * 365
	annualStd := stdRet * math.Sqrt(365)
	annualDownside := downsideStd * math.Sqrt(365)
	if annualStd > 0 {
		m.SharpeRatio = annualReturn / annualStd
	}
	if annualDownside > 0 {
		m.SortinoRatio = annualReturn / annualDownside
	}
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.CAGR / m.MaxDrawdown
	}

	totalHoldMinutes := computeTradeStats(&m, trades)
	if span := t1 - t0; span > 0 {
		m.TimeInMarket = totalHoldMinutes * 60000 / float64(span) * 100
	}

	for _, t := range trades {
		m.TotalCommission += t.Commission
	}

	return m
}

func monthlyAvgReturn(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	type bucket struct {
		key  string
		last float64
	}
	var buckets []bucket
	seen := make(map[string]int)
	for _, p := range equity {
		key := monthKey(p.Timestamp)
		if idx, ok := seen[key]; ok {
			buckets[idx].last = p.Equity
			continue
		}
		seen[key] = len(buckets)
		buckets = append(buckets, bucket{key: key, last: p.Equity})
	}
	if len(buckets) < 2 {
		return 0
	}
	var sum float64
	count := 0
	for i := 1; i < len(buckets); i++ {
		prev := buckets[i-1].last
		if prev == 0 {
			continue
		}
		sum += (buckets[i].last - prev) / prev
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func monthKey(tsMs int64) string {
	const msPerDayLocal = 86_400_000
	days := tsMs / msPerDayLocal
	// coarse but deterministic and monotonic month bucketing without relying
	// on calendar libraries: 30-day buckets, acceptable for an avg-return
	// summary statistic (not an exact calendar month boundary).
	return monthBucketKey(days / 30)
}

func monthBucketKey(bucket int64) string {
	return "m" + itoa(bucket)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func drawdownStats(equity []EquityPoint, initial float64) (peak, maxDDPercent, maxDDAbs float64, maxDDDurationMs int64) {
	peak = initial
	if len(equity) > 0 && equity[0].Equity > peak {
		peak = equity[0].Equity
	}
	var ddStart int64
	inDrawdown := false

	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := peak - p.Equity
		ddPct := 0.0
		if peak > 0 {
			ddPct = dd / peak * 100
		}
		if dd > 0 {
			if !inDrawdown {
				inDrawdown = true
				ddStart = p.Timestamp
			}
			if dur := p.Timestamp - ddStart; dur > maxDDDurationMs {
				maxDDDurationMs = dur
			}
		} else {
			inDrawdown = false
		}
		if ddPct > maxDDPercent {
			maxDDPercent = ddPct
			maxDDAbs = dd
		}
	}
	return peak, maxDDPercent, maxDDAbs, maxDDDurationMs
}

// returnStats computes the mean, population stddev, and downside-only
// population stddev of per-equity-point returns (spec §4.6 "daily-ish
// returns are per-equity-point returns").
func returnStats(equity []EquityPoint) (mean, std, downsideStd float64) {
	if len(equity) < 2 {
		return 0, 0, 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean = sum / float64(len(returns))

	var variance, downsideVariance float64
	downsideCount := 0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downsideVariance += r * r
			downsideCount++
		}
	}
	variance /= float64(len(returns))
	std = math.Sqrt(variance)
	if downsideCount > 0 {
		downsideVariance /= float64(downsideCount)
		downsideStd = math.Sqrt(downsideVariance)
	}
	return mean, std, downsideStd
}

func computeTradeStats(m *Metrics, trades []simulator.Trade) float64 {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return 0
	}

	var grossProfit, grossLoss float64
	var sumWinPct, sumLossPct, sumTradePct, sumHoldMinutes float64
	currentWinStreak, currentLossStreak := 0, 0

	for _, t := range trades {
		sumTradePct += t.ReturnPercent
		holdMin := float64(t.ExitTime-t.EntryTime) / 60000
		sumHoldMinutes += holdMin

		if t.Side == simulator.SideLong {
			m.LongTrades++
		} else {
			m.ShortTrades++
		}

		if t.NetPnL > 0 {
			m.WinningTrades++
			grossProfit += t.GrossPnL
			sumWinPct += t.ReturnPercent
			if t.NetPnL > m.LargestWin {
				m.LargestWin = t.NetPnL
			}
			currentWinStreak++
			currentLossStreak = 0
			if currentWinStreak > m.MaxConsecutiveWins {
				m.MaxConsecutiveWins = currentWinStreak
			}
		} else if t.NetPnL < 0 {
			m.LosingTrades++
			grossLoss += -t.GrossPnL
			sumLossPct += t.ReturnPercent
			if t.NetPnL < m.LargestLoss {
				m.LargestLoss = t.NetPnL
			}
			currentLossStreak++
			currentWinStreak = 0
			if currentLossStreak > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = currentLossStreak
			}
		} else {
			currentWinStreak, currentLossStreak = 0, 0
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	m.AvgTrade = sumTradePct / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWin = sumWinPct / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = sumLossPct / float64(m.LosingTrades)
	}

	switch {
	case grossLoss == 0 && grossProfit > 0:
		m.ProfitFactor = Ratio(math.Inf(1))
	case grossLoss == 0:
		m.ProfitFactor = 0
	default:
		m.ProfitFactor = Ratio(grossProfit / grossLoss)
	}

	m.AvgHoldingTime = sumHoldMinutes / float64(m.TotalTrades)

	if m.LongTrades > 0 {
		longWins := 0
		for _, t := range trades {
			if t.Side == simulator.SideLong && t.NetPnL > 0 {
				longWins++
			}
		}
		m.LongWinRate = float64(longWins) / float64(m.LongTrades) * 100
	}
	if m.ShortTrades > 0 {
		shortWins := 0
		for _, t := range trades {
			if t.Side == simulator.SideShort && t.NetPnL > 0 {
				shortWins++
			}
		}
		m.ShortWinRate = float64(shortWins) / float64(m.ShortTrades) * 100
	}

	return sumHoldMinutes
}
