package candle

import "math"

// Aggregate groups a contiguous, ascending series of 1-minute candles into
// bars of the target timeframe. Each output candle's timestamp is the start
// of its bucket; open/close come from the first/last source candle in the
// bucket, high/low are the bucket extremes, volume sums.
//
// Source candles must already be sorted ascending by timestamp and aligned
// to 1-minute boundaries; Aggregate does not resample across gaps, it simply
// groups whatever candles fall in the same bucket.
func Aggregate(source []Candle, target Timeframe) ([]Candle, error) {
	if target == TF1m {
		out := make([]Candle, len(source))
		copy(out, source)
		return out, nil
	}
	width, err := target.DurationMs()
	if err != nil {
		return nil, err
	}

	var out []Candle
	var cur Candle
	var bucketStart int64 = -1
	haveCur := false

	flush := func() {
		if haveCur {
			out = append(out, cur)
		}
	}

	for _, c := range source {
		bs := (c.Timestamp / width) * width
		if bs != bucketStart {
			flush()
			cur = Candle{
				Timestamp: bs,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			bucketStart = bs
			haveCur = true
			continue
		}
		cur.High = math.Max(cur.High, c.High)
		cur.Low = math.Min(cur.Low, c.Low)
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()
	return out, nil
}

// Dynamics holds optional per-candle context metrics used by strategies that
// filter on market microstructure rather than raw price/indicator values.
// These are computed alongside aggregation, never persisted to the cache.
type Dynamics struct {
	Velocity             float64 `json:"velocity"`             // close-to-close % change
	VelocityAcceleration float64 `json:"velocityAcceleration"` // change in velocity vs previous candle
	VolumeSpike          bool    `json:"volumeSpike"`          // volume > 2x trailing average
	VolumeAboveMid       bool    `json:"volumeAboveMid"`       // volume > trailing average
	BodyToWickRatio      float64 `json:"bodyToWickRatio"`
	ClosePositionInRange float64 `json:"closePositionInRange"` // (close-low)/(high-low), 0.5 if flat
	ConsecutiveDirection int     `json:"consecutiveDirection"` // signed run length of same-direction candles
	IntrabarVolatility   float64 `json:"intrabarVolatility"`   // (high-low)/open
	VolatilityClustering float64 `json:"volatilityClustering"` // correlation proxy: |range_t - range_t-1|
	DirectionReversals   int     `json:"directionReversals"`   // reversals within the trailing window
	MaxIntrabarDrawdown  float64 `json:"maxIntrabarDrawdown"`  // (high-close)/high for the candle
	AvgCandleSize        float64 `json:"avgCandleSize"`        // trailing average of (high-low)
}

// ComputeDynamics derives Dynamics for every candle in series using a
// trailing lookback window (spec §4.7 "richer aggregator"). window values
// below 2 are raised to 2. Until window candles exist, the windowed fields
// (volume spike, volume above average, reversals, avg size) use the candles
// seen so far; fields that compare with the previous candle (velocity,
// acceleration, clustering, consecutive direction) are zero for the first
// candle.
func ComputeDynamics(series []Candle, window int) []Dynamics {
	out := make([]Dynamics, len(series))
	if window < 2 {
		window = 2
	}

	var prevVelocity float64
	var prevRange float64
	consecutive := 0
	var prevDir int

	for i, c := range series {
		d := Dynamics{}

		rng := c.High - c.Low
		if c.Open != 0 {
			d.IntrabarVolatility = rng / c.Open
		}
		if rng > 0 {
			body := math.Abs(c.Close - c.Open)
			wick := rng - body
			if wick > 0 {
				d.BodyToWickRatio = body / wick
			} else {
				d.BodyToWickRatio = math.Inf(1)
			}
			d.ClosePositionInRange = (c.Close - c.Low) / rng
		} else {
			d.ClosePositionInRange = 0.5
		}
		if c.High > 0 {
			d.MaxIntrabarDrawdown = (c.High - c.Close) / c.High
		}

		if i > 0 {
			prev := series[i-1]
			if prev.Close != 0 {
				d.Velocity = (c.Close - prev.Close) / prev.Close * 100
			}
			d.VelocityAcceleration = d.Velocity - prevVelocity
			d.VolatilityClustering = math.Abs(rng - prevRange)

			dir := 0
			switch {
			case c.Close > prev.Close:
				dir = 1
			case c.Close < prev.Close:
				dir = -1
			}
			if dir != 0 && dir == prevDir {
				consecutive++
			} else if dir != 0 {
				consecutive = 1
			} else {
				consecutive = 0
			}
			d.ConsecutiveDirection = consecutive * dir
			if dir != 0 && prevDir != 0 && dir != prevDir {
				d.DirectionReversals = 1
			}
			prevDir = dir
		}
		prevVelocity = d.Velocity
		prevRange = rng

		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		win := series[lo : i+1]
		if len(win) > 0 {
			var volSum, rangeSum float64
			reversals := 0
			var last int
			for j, wc := range win {
				rangeSum += wc.High - wc.Low
				volSum += wc.Volume
				if j > 0 {
					cur := 0
					if wc.Close > win[j-1].Close {
						cur = 1
					} else if wc.Close < win[j-1].Close {
						cur = -1
					}
					if cur != 0 && last != 0 && cur != last {
						reversals++
					}
					if cur != 0 {
						last = cur
					}
				}
			}
			avgRange := rangeSum / float64(len(win))
			avgVol := volSum / float64(len(win))
			d.AvgCandleSize = avgRange
			d.DirectionReversals = reversals
			if avgVol > 0 {
				d.VolumeSpike = c.Volume > 2*avgVol
			}
			d.VolumeAboveMid = c.Volume > avgVol
		}

		out[i] = d
	}
	return out
}
