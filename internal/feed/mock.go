package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"tradingengine/internal/bus"
	"tradingengine/internal/clock"
	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

// MockSymbolConfig seeds one symbol's random walk.
type MockSymbolConfig struct {
	Symbol     string
	SeedPx     float64
	SpreadBps  float64 // half-spread in basis points of mid
	RatePerSec float64 // ticks emitted per second
	PxMin      float64
	PxMax      float64
}

// MockConfig configures the mock feed across all symbols.
type MockConfig struct {
	Symbols []MockSymbolConfig
}

// MockFeed generates synthetic MdTicks via a bounded geometric random walk,
// one goroutine per symbol. Grounded on the reference program's mock
// market-data generator: a ticker-driven loop producing a random-walk mid
// and a derived bid/ask spread.
type MockFeed struct {
	cfg   MockConfig
	clock clock.Clock
	m     *metrics.Metrics
}

// NewMockFeed constructs a MockFeed.
func NewMockFeed(cfg MockConfig, c clock.Clock, m *metrics.Metrics) *MockFeed {
	return &MockFeed{cfg: cfg, clock: c, m: m}
}

// Run starts one generator goroutine per configured symbol and blocks until
// ctx is cancelled.
func (f *MockFeed) Run(ctx context.Context, mdBus *bus.MdBus) {
	var wg sync.WaitGroup
	for _, sc := range f.cfg.Symbols {
		wg.Add(1)
		go func(sc MockSymbolConfig) {
			defer wg.Done()
			f.runSymbol(ctx, sc, mdBus)
		}(sc)
	}
	wg.Wait()
}

func (f *MockFeed) runSymbol(ctx context.Context, sc MockSymbolConfig, mdBus *bus.MdBus) {
	rate := sc.RatePerSec
	if rate <= 0 {
		rate = 100
	}
	interval := time.Duration(float64(time.Second) / rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(sc.Symbol))))
	mid := sc.SeedPx
	var seq uint64

	symbol := types.NormalizeSymbol(sc.Symbol)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Geometric random walk: small log-return step per tick.
			step := rng.NormFloat64() * 0.0005
			mid *= math.Exp(step)

			if sc.PxMin > 0 && mid < sc.PxMin {
				mid = sc.PxMin
			}
			if sc.PxMax > 0 && mid > sc.PxMax {
				mid = sc.PxMax
			}

			spreadBps := sc.SpreadBps
			if spreadBps <= 0 {
				spreadBps = 2
			}
			halfSpread := mid * spreadBps / 10000

			seq++
			tick := types.MdTick{
				Symbol: symbol,
				BidPx:  mid - halfSpread,
				AskPx:  mid + halfSpread,
				BidQty: 1 + rng.Float64()*9,
				AskQty: 1 + rng.Float64()*9,
				TsMs:   f.clock.NowMs(),
				Seq:    seq,
			}
			mdBus.Publish(tick)
			if f.m != nil {
				f.m.Tick(symbol)
			}
		}
	}
}
