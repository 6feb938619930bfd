// Package candle defines the OHLCV primitives shared by every layer of the
// backtesting engine: the raw candle, the timeframe enumeration, and the
// aggregation helpers that turn a 1-minute series into any coarser one.
package candle

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPriceRange = errors.New("candle: high is below low")
	ErrOutOfRange        = errors.New("candle: open/close outside [low, high]")
	ErrNegativePrice     = errors.New("candle: negative price")
	ErrNegativeVolume    = errors.New("candle: negative volume")
)

// Candle is a single OHLCV bar. Timestamp is an integer millisecond epoch,
// matching the wire format exchanges use and avoiding timezone ambiguity in
// the hot loop.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Validate checks the invariants every candle must satisfy regardless of
// source: high >= low, open and close within [low, high], no negative
// prices, no negative volume.
func (c Candle) Validate() error {
	if c.High < c.Low {
		return ErrInvalidPriceRange
	}
	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 {
		return ErrNegativePrice
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return ErrOutOfRange
	}
	if c.Volume < 0 {
		return ErrNegativeVolume
	}
	return nil
}

// Timeframe is a supported aggregation interval, identified by its canonical
// string form ("1m", "4h", "1d", ...).
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF6h  Timeframe = "6h"
	TF12h Timeframe = "12h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

// durationsMs holds the bucket width of every timeframe in milliseconds. 1M
// is defined as exactly 30 days, per spec — it is not a calendar month.
var durationsMs = map[Timeframe]int64{
	TF1m:  60_000,
	TF3m:  3 * 60_000,
	TF5m:  5 * 60_000,
	TF15m: 15 * 60_000,
	TF30m: 30 * 60_000,
	TF1h:  3_600_000,
	TF2h:  2 * 3_600_000,
	TF4h:  4 * 3_600_000,
	TF6h:  6 * 3_600_000,
	TF12h: 12 * 3_600_000,
	TF1d:  86_400_000,
	TF1w:  7 * 86_400_000,
	TF1M:  30 * 86_400_000,
}

// DurationMs returns the timeframe's bucket width in milliseconds, or an
// error if the timeframe is not one of the supported constants.
func (tf Timeframe) DurationMs() (int64, error) {
	d, ok := durationsMs[tf]
	if !ok {
		return 0, fmt.Errorf("candle: unknown timeframe %q", tf)
	}
	return d, nil
}

// Valid reports whether tf is one of the supported timeframe constants.
func (tf Timeframe) Valid() bool {
	_, ok := durationsMs[tf]
	return ok
}

// BucketStart floors a timestamp to the start of its timeframe bucket.
func (tf Timeframe) BucketStart(tsMs int64) (int64, error) {
	d, err := tf.DurationMs()
	if err != nil {
		return 0, err
	}
	return (tsMs / d) * d, nil
}
