package cache

// missingRanges computes, for the required grid t0, t0+step, ..., <=t1, the
// contiguous sub-ranges [a,b] whose timestamps are absent from present (spec
// §4.7 "missing-range scan"). present must contain only timestamps that lie
// on the grid; it need not be sorted.
func missingRanges(t0, t1, step int64, present map[int64]bool) [][2]int64 {
	if step <= 0 || t1 < t0 {
		return nil
	}

	var ranges [][2]int64
	var start int64 = -1
	var prev int64

	for t := t0; t <= t1; t += step {
		if present[t] {
			if start != -1 {
				ranges = append(ranges, [2]int64{start, prev})
				start = -1
			}
			continue
		}
		if start == -1 {
			start = t
		}
		prev = t
	}
	if start != -1 {
		ranges = append(ranges, [2]int64{start, prev})
	}
	return ranges
}

// expectedCount is the number of grid points in [t0,t1] at the given step,
// per spec §8's missing-range law: |read([a,b])| = floor((b-a)/step) + 1.
func expectedCount(t0, t1, step int64) int64 {
	if step <= 0 || t1 < t0 {
		return 0
	}
	return (t1-t0)/step + 1
}
