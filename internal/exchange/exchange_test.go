package exchange

import (
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalFor(t *testing.T) {
	t.Run("known timeframe round-trips as its canonical string", func(t *testing.T) {
		interval, err := intervalFor(candle.TF4h)
		require.NoError(t, err)
		assert.Equal(t, "4h", interval)
	})

	t.Run("unknown timeframe is rejected", func(t *testing.T) {
		_, err := intervalFor(candle.Timeframe("7h"))
		assert.Error(t, err)
	})
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, 30*time.Second, cfg.timeout())
	assert.Equal(t, 200, cfg.pageSize())
	assert.Equal(t, 100*time.Millisecond, cfg.pacing())

	cfg = Config{Timeout: 5 * time.Second, PageSize: 50, Pacing: 250 * time.Millisecond}
	assert.Equal(t, 5*time.Second, cfg.timeout())
	assert.Equal(t, 50, cfg.pageSize())
	assert.Equal(t, 250*time.Millisecond, cfg.pacing())

	t.Run("page size over the exchange cap falls back to 200", func(t *testing.T) {
		cfg = Config{PageSize: 5000}
		assert.Equal(t, 200, cfg.pageSize())
	})
}

func TestCandleFromKline(t *testing.T) {
	t.Run("well-formed kline converts cleanly", func(t *testing.T) {
		k := &binance.Kline{
			OpenTime: 1_700_000_000_000,
			Open:     "100.5",
			High:     "105.0",
			Low:      "99.0",
			Close:    "102.25",
			Volume:   "12.5",
		}
		c, err := candleFromKline(k)
		require.NoError(t, err)
		assert.Equal(t, int64(1_700_000_000_000), c.Timestamp)
		assert.Equal(t, 100.5, c.Open)
		assert.Equal(t, 105.0, c.High)
		assert.Equal(t, 99.0, c.Low)
		assert.Equal(t, 102.25, c.Close)
		assert.Equal(t, 12.5, c.Volume)
	})

	t.Run("non-numeric field fails to parse", func(t *testing.T) {
		k := &binance.Kline{OpenTime: 1, Open: "nope", High: "1", Low: "1", Close: "1", Volume: "1"}
		_, err := candleFromKline(k)
		assert.Error(t, err)
	})

	t.Run("high below low fails Candle.Validate", func(t *testing.T) {
		k := &binance.Kline{OpenTime: 1, Open: "10", High: "5", Low: "20", Close: "10", Volume: "1"}
		_, err := candleFromKline(k)
		assert.Error(t, err)
	})
}
