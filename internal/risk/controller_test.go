package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAdmitReservesSlot(t *testing.T) {
	c := NewController(Config{DailyLossLimit: 100, MaxConcurrentPositions: 2}, nil)

	require.NoError(t, c.TryAdmit("AAPL"))
	assert.ErrorIs(t, c.TryAdmit("AAPL"), ErrSymbolHeld)

	require.NoError(t, c.TryAdmit("MSFT"))
	assert.ErrorIs(t, c.TryAdmit("TSLA"), ErrMaxPositions)

	c.Release("AAPL")
	assert.NoError(t, c.TryAdmit("TSLA"))
}

func TestDailyLossLimitRejectsEntries(t *testing.T) {
	c := NewController(Config{DailyLossLimit: 50, MaxConcurrentPositions: 5}, nil)

	c.RecordPnL(-30)
	require.NoError(t, c.TryAdmit("AAPL"))
	c.Release("AAPL")

	c.RecordPnL(-25)
	assert.ErrorIs(t, c.TryAdmit("AAPL"), ErrDailyLossLimit)
	assert.True(t, c.Snapshot().TradingHalted)
}

func TestProfitsNeverReduceDailyLoss(t *testing.T) {
	c := NewController(Config{DailyLossLimit: 100, MaxConcurrentPositions: 5}, nil)

	c.RecordPnL(-40)
	c.RecordPnL(500)
	assert.Equal(t, 40.0, c.Snapshot().CurrentDailyLoss)
}

func TestResetDaily(t *testing.T) {
	c := NewController(Config{DailyLossLimit: 50, MaxConcurrentPositions: 5}, nil)

	c.RecordPnL(-60)
	assert.ErrorIs(t, c.TryAdmit("AAPL"), ErrDailyLossLimit)

	c.ResetDaily()
	assert.Equal(t, 0.0, c.Snapshot().CurrentDailyLoss)
	assert.NoError(t, c.TryAdmit("AAPL"))
}

func TestConcurrentAdmitsSameSymbolSingleWinner(t *testing.T) {
	c := NewController(Config{DailyLossLimit: 100, MaxConcurrentPositions: 10}, nil)

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryAdmit("AAPL") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "concurrent entries for one symbol must not both succeed")
	assert.Equal(t, 1, c.Snapshot().OpenPositions)
}

func TestConcurrentAdmitsRespectMaxPositions(t *testing.T) {
	c := NewController(Config{DailyLossLimit: 100, MaxConcurrentPositions: 3}, nil)

	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			if c.TryAdmit(sym) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(sym)
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
}
