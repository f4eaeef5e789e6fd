package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pricecanon/internal/contracts"
)

func validBar() contracts.ProviderBar {
	return contracts.ProviderBar{
		TradeDate: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		Open:      101.0,
		High:      104.5,
		Low:       100.2,
		Close:     103.8,
		AdjClose:  103.8,
		Volume:    1_250_000,
	}
}

func TestGate_Validate_HardRules(t *testing.T) {
	gate := NewGate(contracts.DefaultQualityRules())

	tests := []struct {
		name     string
		mutate   func(*contracts.ProviderBar)
		wantCode string
	}{
		{
			name:     "negative low",
			mutate:   func(b *contracts.ProviderBar) { b.Low = -1 },
			wantCode: RejectNegativePrice,
		},
		{
			name:     "negative close",
			mutate:   func(b *contracts.ProviderBar) { b.Close = -10 },
			wantCode: RejectNegativePrice,
		},
		{
			name:     "zero close",
			mutate:   func(b *contracts.ProviderBar) { b.Close = 0 },
			wantCode: RejectNonPositiveClose,
		},
		{
			name: "high below low",
			mutate: func(b *contracts.ProviderBar) {
				b.High = 99
				b.Close = 99
			},
			wantCode: RejectHighBelowLow,
		},
		{
			name:     "close above high",
			mutate:   func(b *contracts.ProviderBar) { b.Close = 105 },
			wantCode: RejectCloseOutOfRange,
		},
		{
			name:     "close below low",
			mutate:   func(b *contracts.ProviderBar) { b.Close = 100 },
			wantCode: RejectCloseOutOfRange,
		},
		{
			name:     "open above high",
			mutate:   func(b *contracts.ProviderBar) { b.Open = 110 },
			wantCode: RejectOpenOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := validBar()
			tt.mutate(&bar)

			res := gate.Validate(bar)
			assert.False(t, res.HardValid)
			assert.Equal(t, tt.wantCode, res.ErrorCode)
			assert.NotEmpty(t, res.ErrorMsg)
			assert.Empty(t, res.Flags, "hard rejects carry no soft flags")
		})
	}
}

func TestGate_Validate_ValidBar(t *testing.T) {
	gate := NewGate(contracts.DefaultQualityRules())

	res := gate.Validate(validBar())
	require.True(t, res.HardValid)
	assert.Empty(t, res.Flags)
	assert.Empty(t, res.ErrorCode)
}

func TestGate_Validate_SoftFlags(t *testing.T) {
	gate := NewGate(contracts.DefaultQualityRules())

	bar := validBar()
	bar.Volume = 0
	bar.AdjClose = 0

	res := gate.Validate(bar)
	require.True(t, res.HardValid, "soft failures must not block candidacy")
	assert.ElementsMatch(t, []string{contracts.FlagVolumeMissing, contracts.FlagAdjCloseMissing}, res.Flags)
}

func TestGate_Validate_RangeCap(t *testing.T) {
	rules := contracts.DefaultQualityRules()
	rules.MaxIntradayRangePct = 0.10

	gate := NewGate(rules)

	bar := validBar()
	bar.Low = 80
	bar.Open = 85

	res := gate.Validate(bar)
	assert.False(t, res.HardValid)
	assert.Equal(t, RejectRangeTooWide, res.ErrorCode)
}

func TestGate_Validate_Deterministic(t *testing.T) {
	gate := NewGate(contracts.DefaultQualityRules())

	bar := validBar()
	bar.Volume = 0

	first := gate.Validate(bar)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, gate.Validate(bar))
	}
}
