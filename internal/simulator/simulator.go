// Package simulator is the market simulator (spec §4.4): it owns a
// portfolio and a trade log, opens and closes positions against a candle
// stream, and runs the stop-loss/trailing-stop/take-profit exit machine.
// Grounded on the teacher's pkg/backtest/engine.go position bookkeeping,
// generalized from its fixed BUY/SELL spot model to long/short positions
// with SL/TP/trailing exits.
package simulator

import (
	"errors"
	"fmt"
	"math"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/ajitpratap0/backtester/internal/strategy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Side is a position direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ExitReason names why a position was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitSignal       ExitReason = "signal"
	ExitManual       ExitReason = "manual"
	ExitTimeout      ExitReason = "timeout"
)

var ErrInsufficientCapital = errors.New("simulator: insufficient available capital")
var ErrPositionExists = errors.New("simulator: position already open for symbol")
var ErrNoPosition = errors.New("simulator: no open position for symbol")
var ErrMaxOpenPositions = errors.New("simulator: max open positions reached")

// Position is an open trade.
type Position struct {
	ID                string
	Symbol            string
	Side              Side
	EntryTime         int64
	EntryPrice        float64
	Size              float64
	StopLoss          float64 // 0 = none
	TakeProfit        float64 // 0 = none
	TimeoutCandles    int     // 0 disables the timeout exit
	CandlesHeld       int
	TrailingActive    bool
	TrailingStop      float64
	TrailingPeak      float64
	ActivationPercent float64
	TrailPercent      float64
	PositionValue     float64 // size * entryPrice, reserved from available capital
	UnrealizedPnL     float64
}

// Trade is a closed position.
type Trade struct {
	Symbol        string
	Side          Side
	EntryTime     int64
	ExitTime      int64
	EntryPrice    float64
	ExitPrice     float64
	Size          float64
	GrossPnL      float64
	Commission    float64
	NetPnL        float64
	ReturnPercent float64
	ExitReason    ExitReason
}

// Config holds portfolio-wide simulator parameters.
type Config struct {
	InitialCapital    float64
	CommissionPercent float64 // of notional, per fill
	SlippagePercent   float64 // of price, per fill
	MaxOpenPositions  int     // 0 = unlimited
}

// Simulator is the market simulator. currentCapital and availableCapital are
// tracked as decimal.Decimal to avoid float accumulation drift across a long
// trade log; prices and sizes stay float64 since they come from and feed
// back into the candle/indicator pipeline.
type Simulator struct {
	cfg Config

	currentCapital       decimal.Decimal
	availableCapital     decimal.Decimal
	cumulativeCommission decimal.Decimal
	cumulativePnL        decimal.Decimal

	positions map[string]*Position
	trades    []Trade
}

// New creates a simulator with a fresh portfolio at cfg.InitialCapital.
func New(cfg Config) *Simulator {
	s := &Simulator{cfg: cfg, positions: make(map[string]*Position)}
	s.Reset()
	return s
}

// Reset returns the simulator to its starting state, discarding all
// positions and trades. Used by the engine before each run (spec §4.5
// step 3).
func (s *Simulator) Reset() {
	initial := decimal.NewFromFloat(s.cfg.InitialCapital)
	s.currentCapital = initial
	s.availableCapital = initial
	s.cumulativeCommission = decimal.Zero
	s.cumulativePnL = decimal.Zero
	s.positions = make(map[string]*Position)
	s.trades = nil
}

// HasOpenPosition reports whether symbol currently has an open position.
func (s *Simulator) HasOpenPosition(symbol string) bool {
	_, ok := s.positions[symbol]
	return ok
}

// OpenPositionFor returns the current open position for symbol, or nil.
func (s *Simulator) OpenPositionFor(symbol string) *Position {
	return s.positions[symbol]
}

// Trades returns every closed trade, in close order.
func (s *Simulator) Trades() []Trade {
	return s.trades
}

// Portfolio is a point-in-time snapshot for equity-curve reporting.
type Portfolio struct {
	CurrentCapital       float64
	AvailableCapital     float64
	CumulativeCommission float64
	CumulativePnL        float64
	OpenPositions        int
}

// GetPortfolio snapshots the current capital state.
func (s *Simulator) GetPortfolio() Portfolio {
	return Portfolio{
		CurrentCapital:       s.currentCapital.InexactFloat64(),
		AvailableCapital:     s.availableCapital.InexactFloat64(),
		CumulativeCommission: s.cumulativeCommission.InexactFloat64(),
		CumulativePnL:        s.cumulativePnL.InexactFloat64(),
		OpenPositions:        len(s.positions),
	}
}

// Equity returns currentCapital plus the mark-to-market value of every open
// position's unrealized P&L — the value the engine records per candle.
func (s *Simulator) Equity() float64 {
	equity := s.currentCapital.InexactFloat64()
	for _, pos := range s.positions {
		equity += pos.UnrealizedPnL
	}
	return equity
}

// Open opens a position for symbol per spec §4.4 openPosition. atr is the
// current ATR value (0 if unavailable); it is required when risk.StopLossMode
// or risk.TakeProfitMode is atr_multiple.
func (s *Simulator) Open(symbol string, side Side, c candle.Candle, risk strategy.RiskConfig, atr float64) (*Position, error) {
	if _, exists := s.positions[symbol]; exists {
		return nil, ErrPositionExists
	}
	if s.cfg.MaxOpenPositions > 0 && len(s.positions) >= s.cfg.MaxOpenPositions {
		return nil, ErrMaxOpenPositions
	}

	entry := applySlippage(c.Close, side, s.cfg.SlippagePercent, true)

	var sl float64
	if risk.StopLossMode != "" {
		distance, err := stopDistance(risk.StopLossMode, risk.StopLossValue, entry, atr)
		if err != nil {
			return nil, err
		}
		if side == SideLong {
			sl = entry - distance
		} else {
			sl = entry + distance
		}
	}

	riskPerUnit := math.Abs(entry - sl)
	if sl == 0 {
		riskPerUnit = entry * 0.02
	}

	var tp float64
	if risk.TakeProfitMode != "" {
		var distance float64
		if risk.TakeProfitMode == "risk_reward" {
			distance = risk.TakeProfitValue * riskPerUnit
		} else {
			d, err := stopDistance(risk.TakeProfitMode, risk.TakeProfitValue, entry, atr)
			if err != nil {
				return nil, err
			}
			distance = d
		}
		if side == SideLong {
			tp = entry + distance
		} else {
			tp = entry - distance
		}
	}

	if riskPerUnit <= 0 {
		return nil, fmt.Errorf("simulator: non-positive risk per unit for %s", symbol)
	}
	size := (s.currentCapital.InexactFloat64() * risk.RiskPercent / 100) / riskPerUnit
	if size <= 0 {
		return nil, fmt.Errorf("simulator: computed non-positive position size for %s", symbol)
	}

	positionValue := size * entry
	if positionValue > s.availableCapital.InexactFloat64() {
		return nil, ErrInsufficientCapital
	}

	commission := positionValue * s.cfg.CommissionPercent / 100

	pos := &Position{
		ID:                uuid.NewString(),
		Symbol:            symbol,
		Side:              side,
		EntryTime:         c.Timestamp,
		EntryPrice:        entry,
		Size:              size,
		StopLoss:          sl,
		TakeProfit:        tp,
		TimeoutCandles:    risk.TimeoutCandles,
		ActivationPercent: risk.TrailingActivation,
		TrailPercent:      risk.TrailingPercent,
		PositionValue:     positionValue,
	}

	s.availableCapital = s.availableCapital.Sub(decimal.NewFromFloat(positionValue))
	s.cumulativeCommission = s.cumulativeCommission.Add(decimal.NewFromFloat(commission))
	s.positions[symbol] = pos

	log.Debug().Str("symbol", symbol).Str("side", string(side)).
		Float64("entry", entry).Float64("size", size).Float64("sl", sl).Float64("tp", tp).
		Msg("simulator: opened position")

	return pos, nil
}

// ProcessCandle evaluates exit conditions for symbol's open position (if
// any) against c, in priority stop_loss -> trailing_stop -> take_profit. If
// no exit triggers, it updates the trailing-stop state and marks the
// position's unrealized P&L to c.Close.
func (s *Simulator) ProcessCandle(c candle.Candle, symbol string) []Trade {
	pos, ok := s.positions[symbol]
	if !ok {
		return nil
	}

	if reason, price, hit := checkExits(pos, c); hit {
		trade := s.close(pos, price, c.Timestamp, reason)
		return []Trade{trade}
	}

	pos.CandlesHeld++
	if pos.TimeoutCandles > 0 && pos.CandlesHeld >= pos.TimeoutCandles {
		trade := s.close(pos, c.Close, c.Timestamp, ExitTimeout)
		return []Trade{trade}
	}

	updateTrailingStop(pos, c)
	pos.UnrealizedPnL = unrealizedPnL(pos, c.Close)
	return nil
}

// Close force-closes symbol's open position at price with reason, used by
// the engine for signal-driven exits and end-of-run/cancellation cleanup.
func (s *Simulator) Close(symbol string, price float64, timestamp int64, reason ExitReason) (Trade, bool) {
	pos, ok := s.positions[symbol]
	if !ok {
		return Trade{}, false
	}
	return s.close(pos, price, timestamp, reason), true
}

func (s *Simulator) close(pos *Position, price float64, timestamp int64, reason ExitReason) Trade {
	exit := applySlippage(price, pos.Side, s.cfg.SlippagePercent, false)

	var gross float64
	if pos.Side == SideLong {
		gross = (exit - pos.EntryPrice) * pos.Size
	} else {
		gross = (pos.EntryPrice - exit) * pos.Size
	}

	exitNotional := exit * pos.Size
	commission := exitNotional * s.cfg.CommissionPercent / 100
	net := gross - commission

	var returnPct float64
	if pos.Side == SideLong {
		returnPct = (exit/pos.EntryPrice - 1) * 100
	} else {
		returnPct = (pos.EntryPrice/exit - 1) * 100
	}

	trade := Trade{
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		EntryTime:     pos.EntryTime,
		ExitTime:      timestamp,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exit,
		Size:          pos.Size,
		GrossPnL:      gross,
		Commission:    commission,
		NetPnL:        net,
		ReturnPercent: returnPct,
		ExitReason:    reason,
	}

	s.currentCapital = s.currentCapital.Add(decimal.NewFromFloat(net))
	s.cumulativePnL = s.cumulativePnL.Add(decimal.NewFromFloat(net))
	s.cumulativeCommission = s.cumulativeCommission.Add(decimal.NewFromFloat(commission))
	s.availableCapital = s.availableCapital.Add(decimal.NewFromFloat(pos.PositionValue))

	delete(s.positions, pos.Symbol)
	s.trades = append(s.trades, trade)

	log.Debug().Str("symbol", pos.Symbol).Str("reason", string(reason)).
		Float64("net_pnl", net).Msg("simulator: closed position")

	return trade
}

func unrealizedPnL(pos *Position, closePrice float64) float64 {
	if pos.Side == SideLong {
		return (closePrice - pos.EntryPrice) * pos.Size
	}
	return (pos.EntryPrice - closePrice) * pos.Size
}

// checkExits implements the stop_loss -> trailing_stop -> take_profit
// priority order from spec §4.4.
func checkExits(pos *Position, c candle.Candle) (ExitReason, float64, bool) {
	if pos.Side == SideLong {
		if pos.StopLoss > 0 && c.Low <= pos.StopLoss {
			return ExitStopLoss, pos.StopLoss, true
		}
		if pos.TrailingActive && c.Low <= pos.TrailingStop {
			return ExitTrailingStop, pos.TrailingStop, true
		}
		if pos.TakeProfit > 0 && c.High >= pos.TakeProfit {
			return ExitTakeProfit, pos.TakeProfit, true
		}
		return "", 0, false
	}

	if pos.StopLoss > 0 && c.High >= pos.StopLoss {
		return ExitStopLoss, pos.StopLoss, true
	}
	if pos.TrailingActive && c.High >= pos.TrailingStop {
		return ExitTrailingStop, pos.TrailingStop, true
	}
	if pos.TakeProfit > 0 && c.Low <= pos.TakeProfit {
		return ExitTakeProfit, pos.TakeProfit, true
	}
	return "", 0, false
}

// updateTrailingStop runs the trailing-stop state machine (spec §4.4):
// inactive until profit since entry reaches ActivationPercent, then tracks
// the favourable-side peak and clamps the stop to never worsen past entry
// or move against the position.
func updateTrailingStop(pos *Position, c candle.Candle) {
	if pos.TrailPercent <= 0 {
		return
	}

	if pos.Side == SideLong {
		if c.High > pos.TrailingPeak {
			pos.TrailingPeak = c.High
		}
		if pos.TrailingPeak == 0 {
			pos.TrailingPeak = pos.EntryPrice
		}
		profitPct := (pos.TrailingPeak/pos.EntryPrice - 1) * 100
		if !pos.TrailingActive {
			if profitPct < pos.ActivationPercent {
				return
			}
			pos.TrailingActive = true
		}
		candidate := pos.TrailingPeak * (1 - pos.TrailPercent/100)
		if candidate < pos.EntryPrice {
			candidate = pos.EntryPrice
		}
		if candidate > pos.TrailingStop {
			pos.TrailingStop = candidate
		}
		return
	}

	if pos.TrailingPeak == 0 || c.Low < pos.TrailingPeak {
		pos.TrailingPeak = c.Low
	}
	profitPct := (1 - pos.TrailingPeak/pos.EntryPrice) * 100
	if !pos.TrailingActive {
		if profitPct < pos.ActivationPercent {
			return
		}
		pos.TrailingActive = true
	}
	candidate := pos.TrailingPeak * (1 + pos.TrailPercent/100)
	if candidate > pos.EntryPrice {
		candidate = pos.EntryPrice
	}
	if pos.TrailingStop == 0 || candidate < pos.TrailingStop {
		pos.TrailingStop = candidate
	}
}

// stopDistance computes a stop/take-profit distance from entry per the
// three supported modes (spec §4.4).
func stopDistance(mode string, value, entry, atr float64) (float64, error) {
	switch mode {
	case "fixed_percent":
		return entry * value / 100, nil
	case "fixed_price":
		return math.Abs(entry - value), nil
	case "atr_multiple":
		if atr <= 0 {
			return 0, fmt.Errorf("simulator: atr_multiple requires a positive ATR value")
		}
		return atr * value, nil
	default:
		return 0, fmt.Errorf("simulator: unknown stop/take-profit mode %q", mode)
	}
}

// applySlippage adjusts price against the trader: buying (long entry, short
// exit) moves the fill up; selling (short entry, long exit) moves it down.
func applySlippage(price float64, side Side, slippagePercent float64, isEntry bool) float64 {
	buying := (side == SideLong) == isEntry
	adj := price * slippagePercent / 100
	if buying {
		return price + adj
	}
	return price - adj
}
