package indicator

import "math"

func math64IsNaN(v float64) bool { return math.IsNaN(v) }

// compact drops leading NaNs, returning the trailing non-NaN run. Used to
// feed a derived series (e.g. the MACD line) into an indicator helper that
// expects a warmup-free slice, such as ema.
func compact(series []float64) []float64 {
	for i, v := range series {
		if !math.IsNaN(v) {
			return series[i:]
		}
	}
	return nil
}

// reExpand re-aligns a series computed over compact(reference)'s trailing
// run back onto reference's original length, padding the front with NaN.
func reExpand(compacted []float64, reference []float64) []float64 {
	out := nanSeries(len(reference))
	offset := len(reference) - len(compacted)
	for i, v := range compacted {
		out[offset+i] = v
	}
	return out
}
