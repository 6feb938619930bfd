// Package eval implements the computed-variable expression parser and the
// condition/signal evaluator (spec §4.2). The expression parser is a
// from-scratch recursive-descent implementation — spec §9 explicitly calls
// for replacing an ad-hoc string-substitute-then-eval approach with one, and
// no example repo in the corpus ships a safe arithmetic-expression parser
// to ground it on, so this package is hand-written stdlib-only (see
// DESIGN.md for the justification).
package eval

import (
	"math"
	"strconv"
	"strings"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// IndicatorValue is one indicator's output at a single candle: a primary
// scalar plus every named line, for dotted (X.Y) access.
type IndicatorValue struct {
	Primary float64
	Lines   map[string]float64
}

// Context is everything a condition or expression can reference at one
// candle: the current and (optionally) previous candle, indicator values by
// id, computed-variable values by id, and the optional dynamics block
// (spec §4.7 "dynamics block ... optional context consumable by filters"),
// reached via the reserved "dynamics.<field>" dotted reference.
type Context struct {
	Candle       candle.Candle
	Prev         *candle.Candle
	Indicators   map[string]IndicatorValue
	PrevInd      map[string]IndicatorValue
	Variables    map[string]float64
	PrevVars     map[string]float64
	Dynamics     *candle.Dynamics
	PrevDynamics *candle.Dynamics
}

// Resolve implements the reference-resolution order from spec §4.2:
// numeric literal, bare price-field name, dotted multi-line indicator
// access, bare indicator id (primary or only value), bare variable id, else
// a numeric parse, else NaN ("null").
func (c Context) Resolve(ref string) float64 {
	return c.resolve(ref, false)
}

// ResolvePrev resolves ref against the previous candle's context, used by
// the crosses_above/crosses_below and is_rising/is_falling predicates.
func (c Context) ResolvePrev(ref string) float64 {
	return c.resolve(ref, true)
}

func (c Context) resolve(ref string, prev bool) float64 {
	if v, err := strconv.ParseFloat(ref, 64); err == nil {
		return v
	}

	if prev {
		if c.Prev == nil {
			return math.NaN()
		}
		if v, ok := priceField(*c.Prev, ref); ok {
			return v
		}
	} else if v, ok := priceField(c.Candle, ref); ok {
		return v
	}

	if dot := strings.IndexByte(ref, '.'); dot >= 0 {
		id, line := ref[:dot], ref[dot+1:]

		if id == "dynamics" {
			d := c.Dynamics
			if prev {
				d = c.PrevDynamics
			}
			if d == nil {
				return math.NaN()
			}
			if v, ok := dynamicsField(d, line); ok {
				return v
			}
			return math.NaN()
		}

		lines := c.Indicators
		if prev {
			lines = c.PrevInd
		}
		if iv, ok := lines[id]; ok {
			if v, ok := iv.Lines[line]; ok {
				return v
			}
		}
		return math.NaN()
	}

	indicators := c.Indicators
	if prev {
		indicators = c.PrevInd
	}
	if iv, ok := indicators[ref]; ok {
		return iv.Primary
	}

	vars := c.Variables
	if prev {
		vars = c.PrevVars
	}
	if v, ok := vars[ref]; ok {
		return v
	}

	return math.NaN()
}

// dynamicsField reads one named field off a candle.Dynamics block, booleans
// encoded as 1/0 so every field resolves to the same float64 predicates
// operate on.
func dynamicsField(d *candle.Dynamics, name string) (float64, bool) {
	switch name {
	case "velocity":
		return d.Velocity, true
	case "velocityAcceleration":
		return d.VelocityAcceleration, true
	case "volumeSpike":
		return boolToFloat(d.VolumeSpike), true
	case "volumeAboveMid":
		return boolToFloat(d.VolumeAboveMid), true
	case "bodyToWickRatio":
		return d.BodyToWickRatio, true
	case "closePositionInRange":
		return d.ClosePositionInRange, true
	case "consecutiveDirection":
		return float64(d.ConsecutiveDirection), true
	case "intrabarVolatility":
		return d.IntrabarVolatility, true
	case "volatilityClustering":
		return d.VolatilityClustering, true
	case "directionReversals":
		return float64(d.DirectionReversals), true
	case "maxIntrabarDrawdown":
		return d.MaxIntrabarDrawdown, true
	case "avgCandleSize":
		return d.AvgCandleSize, true
	default:
		return 0, false
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func priceField(c candle.Candle, name string) (float64, bool) {
	switch name {
	case "open":
		return c.Open, true
	case "high":
		return c.High, true
	case "low":
		return c.Low, true
	case "close":
		return c.Close, true
	case "volume":
		return c.Volume, true
	default:
		return 0, false
	}
}
