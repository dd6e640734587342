package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

// ExchangeConfig configures the REST + user-data-stream exchange gateway.
type ExchangeConfig struct {
	Venue      string
	BaseURL    string
	WSBaseURL  string
	ApiKey     string
	ApiSecret  string
	RetryCount int           // default 3
	RetryWait  time.Duration // default 500ms
}

func (c ExchangeConfig) withDefaults() ExchangeConfig {
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 500 * time.Millisecond
	}
	return c
}

// Exchange submits orders over REST, signing every request with HMAC-SHA256
// over the URL-encoded query string (which includes the timestamp), carried
// as a signature query parameter.
// Fill/ack events arrive over a listenKey-scoped user-data WebSocket stream.
type Exchange struct {
	cfg     ExchangeConfig
	http    *resty.Client
	reports chan types.ExecReport
	m       *metrics.Metrics
	logger  *slog.Logger

	dedupMu sync.Mutex
	seen    map[string]float64 // clientOrderID -> last cumulative filled qty reported

	listenKeyMu sync.Mutex
	listenKey   string
}

// NewExchange constructs an Exchange gateway.
func NewExchange(cfg ExchangeConfig, m *metrics.Metrics, logger *slog.Logger) *Exchange {
	cfg = cfg.withDefaults()
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(3 * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Exchange{
		cfg:     cfg,
		http:    httpClient,
		reports: make(chan types.ExecReport, 1024),
		m:       m,
		logger:  logger.With("component", "gateway", "venue", cfg.Venue),
		seen:    make(map[string]float64),
	}
}

func (g *Exchange) Name() string                    { return g.cfg.Venue }
func (g *Exchange) Reports() <-chan types.ExecReport { return g.reports }

// Submit places the order over REST. The client order ID is the order's own
// ID, making resubmission after a network retry idempotent on the exchange
// side. A 4xx answer is reported REJECTED with the venue's error code; on
// exhausted retries after 5xx or network errors the order is reported
// REJECTED(UNREACHABLE) rather than left unresolved.
func (g *Exchange) Submit(order types.Order) {
	go g.submit(order)
}

func (g *Exchange) submit(order types.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	method := "POST"
	path := "/api/v3/order"
	query := url.Values{}
	query.Set("symbol", order.Symbol)
	query.Set("side", string(order.Side))
	query.Set("type", "LIMIT")
	query.Set("timeInForce", string(order.TIF))
	query.Set("quantity", strconv.FormatFloat(order.Qty, 'f', -1, 64))
	query.Set("price", strconv.FormatFloat(order.LimitPx, 'f', -1, 64))
	query.Set("newClientOrderId", order.ID)
	query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	query.Set("signature", g.sign(query.Encode()))

	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", g.cfg.ApiKey).
		SetQueryString(query.Encode()).
		Post(path)

	if err == nil && resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
		reason := strconv.Itoa(resp.StatusCode())
		var body struct {
			Code int `json:"code"`
		}
		if json.Unmarshal(resp.Body(), &body) == nil && body.Code != 0 {
			reason = strconv.Itoa(body.Code)
		}
		g.logger.Warn("order rejected by venue", "order_id", order.ID, "status", resp.StatusCode(), "code", reason)
		g.emit(types.ExecReport{OrderID: order.ID, Venue: g.cfg.Venue, Status: types.Rejected, TsMs: time.Now().UnixMilli(), ReasonCode: reason})
		return
	}

	if err != nil || resp.StatusCode() >= 400 {
		g.logger.Warn("order submit failed", "order_id", order.ID, "error", err, "status", statusOf(resp))
		g.emit(types.ExecReport{
			OrderID:    order.ID,
			Venue:      g.cfg.Venue,
			Status:     types.Rejected,
			TsMs:       time.Now().UnixMilli(),
			ReasonCode: "UNREACHABLE",
		})
		return
	}

	g.emit(types.ExecReport{
		OrderID: order.ID,
		Venue:   g.cfg.Venue,
		Status:  types.Ack,
		TsMs:    time.Now().UnixMilli(),
	})
}

func statusOf(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}

// sign computes the HMAC-SHA256 signature over a query string the same way
// the reference program signs "timestamp+method+path+body": here the method
// and path are implicit in the endpoint, so only the query string is
// covered, matching the venue's documented request-signing scheme.
func (g *Exchange) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(g.cfg.ApiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// RunUserDataStream obtains a listenKey over REST, streams executionReport
// events off it until ctx is cancelled, and refreshes the key every 30
// minutes so the venue doesn't expire it out from under a live connection.
// Logs and returns without streaming if the initial listenKey request fails;
// the submit/ACK path still works without it, just without fill events.
func (g *Exchange) RunUserDataStream(ctx context.Context) {
	listenKey, err := g.createListenKey(ctx)
	if err != nil {
		g.logger.Error("failed to obtain listen key, user data stream disabled", "error", err)
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.StartUserDataStream(streamCtx, listenKey)
	}()

	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case <-ticker.C:
			if err := g.keepAliveListenKey(ctx, listenKey); err != nil {
				g.logger.Warn("listen key keepalive failed", "error", err)
			}
		}
	}
}

// createListenKey requests a fresh listenKey over REST, per the venue's
// user-data-stream bootstrap step.
func (g *Exchange) createListenKey(ctx context.Context) (string, error) {
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", g.cfg.ApiKey).
		Post("/api/v3/userDataStream")
	if err != nil || resp.StatusCode() >= 400 {
		return "", fmt.Errorf("create listen key: %w (status %d)", err, statusOf(resp))
	}
	var body struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("decode listen key response: %w", err)
	}
	if body.ListenKey == "" {
		return "", fmt.Errorf("listen key response missing listenKey field")
	}
	return body.ListenKey, nil
}

// keepAliveListenKey extends a listenKey's 60-minute TTL; the venue requires
// this at least once every 30 minutes to keep the stream alive.
func (g *Exchange) keepAliveListenKey(ctx context.Context, listenKey string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", g.cfg.ApiKey).
		SetQueryParam("listenKey", listenKey).
		Put("/api/v3/userDataStream")
	if err != nil || resp.StatusCode() >= 400 {
		return fmt.Errorf("keepalive listen key: %w (status %d)", err, statusOf(resp))
	}
	return nil
}

// StartUserDataStream opens a listenKey-scoped WebSocket and republishes
// executionReport events as ExecReports, de-duplicating by
// (clientOrderID, cumulativeFilledQty) since the venue may redeliver the same
// event across a reconnect.
func (g *Exchange) StartUserDataStream(ctx context.Context, listenKey string) {
	g.listenKeyMu.Lock()
	g.listenKey = listenKey
	g.listenKeyMu.Unlock()

	wsURL := fmt.Sprintf("%s/ws/%s", g.cfg.WSBaseURL, listenKey)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := g.readUserDataStream(ctx, wsURL); err != nil {
			g.logger.Warn("user data stream disconnected", "error", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (g *Exchange) readUserDataStream(ctx context.Context, wsURL string) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial user data stream: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		g.dispatchUserDataEvent(msg)
	}
}

type executionReportEvent struct {
	EventType           string `json:"e"`
	ClientOrderID       string `json:"c"`
	Side                string `json:"S"`
	OrderStatus         string `json:"X"`
	CumulativeFilledQty string `json:"z"`
	LastFilledPrice     string `json:"L"`
	RejectReason        string `json:"r"`
}

func (g *Exchange) dispatchUserDataEvent(raw []byte) {
	var ev executionReportEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != "executionReport" {
		return
	}

	cum := parseFloatOrZero(ev.CumulativeFilledQty)

	g.dedupMu.Lock()
	last, ok := g.seen[ev.ClientOrderID]
	if ok && cum <= last {
		g.dedupMu.Unlock()
		return
	}
	g.seen[ev.ClientOrderID] = cum
	g.dedupMu.Unlock()

	status := mapOrderStatus(ev.OrderStatus)
	g.emit(types.ExecReport{
		OrderID:    ev.ClientOrderID,
		Venue:      g.cfg.Venue,
		Status:     status,
		FilledQty:  cum,
		AvgPx:      parseFloatOrZero(ev.LastFilledPrice),
		TsMs:       time.Now().UnixMilli(),
		ReasonCode: ev.RejectReason,
	})
}

func mapOrderStatus(venueStatus string) types.ExecStatus {
	switch venueStatus {
	case "NEW":
		return types.Ack
	case "PARTIALLY_FILLED":
		return types.Partial
	case "FILLED":
		return types.Filled
	case "CANCELED", "EXPIRED":
		return types.Canceled
	case "REJECTED":
		return types.Rejected
	default:
		return types.Ack
	}
}

func parseFloatOrZero(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (g *Exchange) emit(r types.ExecReport) {
	if g.m != nil {
		g.m.ExecReport(r.Venue, string(r.Status))
	}
	select {
	case g.reports <- r:
	default:
		g.logger.Warn("reports channel full, dropping exec report", "order_id", r.OrderID)
	}
}
