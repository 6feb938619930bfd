package candle

import "testing"

func TestCandleValidate(t *testing.T) {
	cases := []struct {
		name    string
		c       Candle
		wantErr error
	}{
		{"ok", Candle{Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 1}, nil},
		{"high below low", Candle{High: 1, Low: 2}, ErrInvalidPriceRange},
		{"negative price", Candle{Open: -1, High: 1, Low: 0}, ErrNegativePrice},
		{"negative volume", Candle{High: 1, Low: 0, Volume: -1}, ErrNegativeVolume},
		{"open above high", Candle{Open: 3, High: 2, Low: 1, Close: 1.5}, ErrOutOfRange},
		{"close below low", Candle{Open: 1.5, High: 2, Low: 1, Close: 0.5}, ErrOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && err != tc.wantErr {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestTimeframeDurationMs(t *testing.T) {
	d, err := TF1h.DurationMs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 3_600_000 {
		t.Fatalf("expected 3600000, got %d", d)
	}

	if _, err := Timeframe("bogus").DurationMs(); err == nil {
		t.Fatal("expected error for unknown timeframe")
	}
}

func TestTimeframeValid(t *testing.T) {
	if !TF1d.Valid() {
		t.Fatal("expected 1d to be valid")
	}
	if Timeframe("2m").Valid() {
		t.Fatal("expected 2m to be invalid")
	}
}

func TestTimeframeBucketStart(t *testing.T) {
	bs, err := TF5m.BucketStart(7 * 60_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bs != 5*60_000 {
		t.Fatalf("expected bucket start 300000, got %d", bs)
	}
}
