package quote

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
)

var testPairs = []string{"WETH-USDC", "WETH-LINK", "WETH-UNI", "ETH-WETH"}

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	reg, err := config.NewTokenRegistry(config.DefaultTokens("ETH"))
	require.NoError(t, err)
	paths, err := NewPathFinder(testPairs, "WETH")
	require.NoError(t, err)
	est, err := NewEstimator(EstimatorConfig{Registry: reg, Paths: paths, SlippageBps: 50, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	return est
}

func TestPathFinder(t *testing.T) {
	paths, err := NewPathFinder(append(testPairs, "LINK-UNI"), "weth")
	require.NoError(t, err)

	tests := []struct {
		from, to string
		want     []string
	}{
		{"WETH", "USDC", []string{"WETH", "USDC"}},
		{"usdc", "link", []string{"USDC", "WETH", "LINK"}},
		{"LINK", "UNI", []string{"LINK", "UNI"}},
		{"ETH", "USDC", []string{"ETH", "WETH", "USDC"}},
	}
	for _, tt := range tests {
		route, err := paths.Route(tt.from, tt.to)
		require.NoError(t, err, tt.from+"->"+tt.to)
		assert.Equal(t, tt.want, route)
	}

	_, err = paths.Route("USDC", "USDC")
	assert.ErrorIs(t, err, ErrSameToken)
	_, err = paths.Route("DAI", "USDC")
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = NewPathFinder([]string{"WETH"}, "WETH")
	assert.Error(t, err)
}

func TestPathFinder_Disconnected(t *testing.T) {
	paths, err := NewPathFinder([]string{"A-B", "C-D"}, "A")
	require.NoError(t, err)
	_, err = paths.Route("A", "D")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestEstimate(t *testing.T) {
	est := newTestEstimator(t)

	q, err := est.Estimate("ETH", "USDC", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH", "WETH", "USDC"}, q.Route)
	assert.Equal(t, "1", q.InputAmount)
	assert.Equal(t, "0.30", q.FeePct)
	assert.Equal(t, "0.30", q.PriceImpactPct)
	assert.True(t, strings.HasPrefix(q.OutputAmount, "2982.05"), q.OutputAmount)
	assert.True(t, strings.HasPrefix(q.MinimumReceived, "2967.14"), q.MinimumReceived)
}

func TestEstimate_EdgeCases(t *testing.T) {
	est := newTestEstimator(t)

	q, err := est.Estimate("USDC", "WETH", "")
	require.NoError(t, err)
	assert.Equal(t, "0", q.OutputAmount)
	assert.Equal(t, "0.00", q.PriceImpactPct)

	q, err = est.Estimate("USDC", "WETH", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.23", q.InputAmount)

	_, err = est.Estimate("USDC", "USDC", "1")
	assert.ErrorIs(t, err, ErrSameToken)

	_, err = est.Estimate("DOGE", "USDC", "1")
	assert.Error(t, err)
}

func TestEstimate_TinyOutput(t *testing.T) {
	est := newTestEstimator(t)

	q, err := est.Estimate("USDC", "WETH", "0.000001")
	require.NoError(t, err)
	assert.Equal(t, "<0.000001", q.OutputAmount)
}

func TestDebouncer_OnlyLastFires(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	var last atomic.Int32

	for i := int32(1); i <= 5; i++ {
		i := i
		d.Trigger(func() {
			fired.Add(1)
			last.Store(i)
		})
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(5), last.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var fired atomic.Bool
	d.Trigger(func() { fired.Store(true) })
	d.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestEstimator_Schedule(t *testing.T) {
	est := newTestEstimator(t)
	d := est.NewDebouncer()

	var (
		mu     sync.Mutex
		quotes []Quote
	)
	deliver := func(q Quote, err error) {
		assert.NoError(t, err)
		mu.Lock()
		quotes = append(quotes, q)
		mu.Unlock()
	}

	for _, typed := range []string{"1", "10", "100"} {
		est.Schedule(d, "WETH", "USDC", typed, deliver)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(quotes) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "100", quotes[0].InputAmount)
}
