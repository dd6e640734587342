// Package feed delivers normalized MdTicks to the MdBus, either from a mock
// random-walk generator or from an exchange WebSocket connection. The
// exchange mode's reconnect loop is grounded on the reference program's
// auto-reconnect WebSocket client: exponential backoff capped at 30s,
// read-deadline based stall detection, and a background ping loop.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradingengine/internal/bus"
	"tradingengine/internal/clock"
	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

// ConnState names the reconnection state machine's states.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateBackoff
)

const (
	baseBackoff    = time.Second
	maxBackoff     = 30 * time.Second
	pingInterval   = 50 * time.Second
	readTimeout    = 90 * time.Second
	writeTimeout   = 10 * time.Second
	defaultStall   = 15 * time.Second
)

// bookTickerFrame is the top-of-book payload shape: either delivered bare or
// wrapped in a combined-stream envelope ({"stream":..., "data": {...}}).
type bookTickerFrame struct {
	Symbol  string `json:"s"`
	BidPx   string `json:"b"`
	BidQty  string `json:"B"`
	AskPx   string `json:"a"`
	AskQty  string `json:"A"`
	Stream  string `json:"stream"`
	Data    *bookTickerFrame `json:"data"`
}

// ExchangeConfig configures the exchange WebSocket feed.
type ExchangeConfig struct {
	Venue          string // label used on metrics, e.g. "binance"
	WSURL          string
	Symbols        []string
	StallThreshold time.Duration // defaults to 15s
}

// ExchangeFeed subscribes to top-of-book streams for all configured symbols
// over one WebSocket connection and republishes them as MdTicks.
type ExchangeFeed struct {
	cfg    ExchangeConfig
	clock  clock.Clock
	m      *metrics.Metrics
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	seqMu sync.Mutex
	seq   map[string]uint64 // per-symbol seq, persists across reconnects

	lastEventMu sync.Mutex
	lastEventAt time.Time

	connectCount int
}

// NewExchangeFeed constructs an ExchangeFeed.
func NewExchangeFeed(cfg ExchangeConfig, c clock.Clock, m *metrics.Metrics, logger *slog.Logger) *ExchangeFeed {
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = defaultStall
	}
	return &ExchangeFeed{
		cfg:    cfg,
		clock:  c,
		m:      m,
		logger: logger.With("component", "feed", "venue", cfg.Venue),
		seq:    make(map[string]uint64),
	}
}

// Run drives the Connecting -> Connected -> Backoff state machine until ctx
// is cancelled.
func (f *ExchangeFeed) Run(ctx context.Context, mdBus *bus.MdBus) {
	backoff := baseBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		// Connecting
		err := f.connectAndRead(ctx, mdBus)
		if ctx.Err() != nil {
			return
		}

		// Backoff
		f.m.SetWSConnected(f.cfg.Venue, false)
		f.logger.Warn("websocket disconnected, backing off", "error", err, "backoff", backoff)

		jitter := time.Duration(rand.Int63n(int64(backoff) / 4))
		wait := backoff + jitter

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *ExchangeFeed) connectAndRead(ctx context.Context, mdBus *bus.MdBus) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second
	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	streams := make([]string, 0, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		streams = append(streams, strings.ToLower(s)+"@bookTicker")
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]any{"method": "SUBSCRIBE", "params": streams, "id": 1}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.connectCount++
	if f.connectCount > 1 {
		f.m.WSReconnect(f.cfg.Venue)
	}
	f.m.SetWSConnected(f.cfg.Venue, true)
	f.touchLastEvent()
	f.logger.Info("websocket connected", "symbols", f.cfg.Symbols)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	stallCtx, stallCancel := context.WithCancel(ctx)
	defer stallCancel()
	go f.stallWatcher(stallCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.touchLastEvent()
		if err := f.dispatch(msg, mdBus); err != nil {
			return err
		}
	}
}

// stallWatcher forces the connection closed if no event has arrived within
// the stall threshold, kicking the outer loop into Backoff.
func (f *ExchangeFeed) stallWatcher(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.cfg.StallThreshold / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.lastEventMu.Lock()
			age := time.Since(f.lastEventAt)
			f.lastEventMu.Unlock()

			f.m.SetWSLastEventAge(f.cfg.Venue, age)
			if age > f.cfg.StallThreshold {
				f.logger.Warn("feed stalled, forcing reconnect", "age", age)
				conn.Close()
				return
			}
		}
	}
}

func (f *ExchangeFeed) touchLastEvent() {
	f.lastEventMu.Lock()
	f.lastEventAt = time.Now()
	f.lastEventMu.Unlock()
}

func (f *ExchangeFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// dispatch publishes one frame's tick. It returns an error only for a frame
// that is not valid JSON, which the read loop treats as a transport fault;
// frames without a symbol or with an invalid book are skipped.
func (f *ExchangeFeed) dispatch(raw []byte, mdBus *bus.MdBus) error {
	var frame bookTickerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("unparseable frame: %w", err)
	}
	if frame.Data != nil {
		frame = *frame.Data
	}
	if frame.Symbol == "" {
		return nil
	}

	symbol := types.NormalizeSymbol(frame.Symbol)
	bid := parseFloat(frame.BidPx)
	ask := parseFloat(frame.AskPx)
	if bid <= 0 || ask <= 0 || bid > ask {
		f.logger.Debug("dropping tick with invalid book", "symbol", symbol, "bid", bid, "ask", ask)
		return nil
	}

	tick := types.MdTick{
		Symbol: symbol,
		BidPx:  bid,
		AskPx:  ask,
		BidQty: parseFloat(frame.BidQty),
		AskQty: parseFloat(frame.AskQty),
		TsMs:   f.clock.NowMs(),
		Seq:    f.nextSeq(symbol),
	}
	mdBus.Publish(tick)
	f.m.Tick(symbol)
	return nil
}

func (f *ExchangeFeed) nextSeq(symbol string) uint64 {
	f.seqMu.Lock()
	defer f.seqMu.Unlock()
	f.seq[symbol]++
	return f.seq[symbol]
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
