// Package broker provides the client for the live quote gateway: a
// websocket endpoint that streams tick messages for subscribed symbols.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openquant/trading-agent/internal/observ"
)

// Quote is a point-in-time market snapshot for one symbol. Fields the
// gateway did not report are NaN.
type Quote struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Close  float64 // previous close
	At     time.Time
}

// Handler consumes one inbound gateway message of a given type.
type Handler func(payload json.RawMessage)

// Config holds gateway connection settings.
type Config struct {
	URL                string
	Settle             time.Duration // wait after subscribe before reading ticks
	DialTimeout        time.Duration
	RateLimitPerMinute int
}

// Gateway owns a single lazily-established websocket connection to the
// quote feed. It is safe for concurrent use; quote requests are serialized.
type Gateway struct {
	cfg     Config
	limiter *rate.Limiter

	mu   sync.Mutex
	conn *websocket.Conn

	hmu      sync.Mutex
	handlers map[string]Handler
}

type outboundMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

type inboundMsg struct {
	Type    string          `json:"type"`
	Symbol  string          `json:"symbol,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Last  *float64 `json:"last,omitempty"`
	Bid   *float64 `json:"bid,omitempty"`
	Ask   *float64 `json:"ask,omitempty"`
	Close *float64 `json:"close,omitempty"`
}

// New builds a gateway client. No connection is made until the first quote
// request; callers own the handle and pass it to the price resolver.
func New(cfg Config) *Gateway {
	if cfg.Settle <= 0 {
		cfg.Settle = 1500 * time.Millisecond
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 30
	}
	return &Gateway{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler installs a handler for an inbound message type other than
// "tick" (account events, heartbeats, notices). Message types without a
// registered handler are dropped. Safe to call at any time, including from
// inside a running handler; a registration made mid-collection takes effect
// on the next quote request. Handlers must not call Quote or Close.
func (g *Gateway) RegisterHandler(msgType string, h Handler) {
	g.hmu.Lock()
	defer g.hmu.Unlock()
	g.handlers[msgType] = h
}

// handlerSnapshot copies the handler table so dispatch never holds hmu.
func (g *Gateway) handlerSnapshot() map[string]Handler {
	g.hmu.Lock()
	defer g.hmu.Unlock()
	out := make(map[string]Handler, len(g.handlers))
	for k, v := range g.handlers {
		out[k] = v
	}
	return out
}

func (g *Gateway) ensureConnected(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}
	return g.reconnect(ctx)
}

// reconnect tears down any existing connection and dials again.
func (g *Gateway) reconnect(ctx context.Context) error {
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	dialer := websocket.Dialer{HandshakeTimeout: g.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("gateway dial %s: %w", g.cfg.URL, err)
	}
	g.conn = conn
	observ.Log("gateway_connected", map[string]any{"url": g.cfg.URL})
	return nil
}

// Quote subscribes to a symbol, waits the configured settle delay while
// collecting ticks, unsubscribes and returns the merged quote. A quote with
// all-NaN fields (no tick arrived) is not an error; transport failures are.
func (g *Gateway) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnected(ctx); err != nil {
		return Quote{}, err
	}

	q, err := g.collect(ctx, symbol)
	if err != nil {
		// One reconnect attempt on a broken pipe, then give up.
		if rerr := g.reconnect(ctx); rerr != nil {
			return Quote{}, err
		}
		q, err = g.collect(ctx, symbol)
	}
	return q, err
}

func (g *Gateway) collect(ctx context.Context, symbol string) (Quote, error) {
	if err := g.conn.WriteJSON(outboundMsg{Type: "subscribe", Symbol: symbol}); err != nil {
		return Quote{}, fmt.Errorf("gateway subscribe %s: %w", symbol, err)
	}

	nan := math.NaN()
	q := Quote{Symbol: symbol, Last: nan, Bid: nan, Ask: nan, Close: nan}
	handlers := g.handlerSnapshot()

	deadline := time.Now().Add(g.cfg.Settle)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	g.conn.SetReadDeadline(deadline)

	for {
		var msg inboundMsg
		if err := g.conn.ReadJSON(&msg); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break // settle window elapsed
			}
			return Quote{}, fmt.Errorf("gateway read: %w", err)
		}
		switch msg.Type {
		case "tick":
			if msg.Symbol != symbol {
				continue
			}
			q.At = time.Now()
			merge(&q.Last, msg.Last)
			merge(&q.Bid, msg.Bid)
			merge(&q.Ask, msg.Ask)
			merge(&q.Close, msg.Close)
		default:
			if h, ok := handlers[msg.Type]; ok {
				h(msg.Payload)
			}
			// Unsolicited message types without a handler are ignored.
		}
	}
	g.conn.SetReadDeadline(time.Time{})

	if err := g.conn.WriteJSON(outboundMsg{Type: "unsubscribe", Symbol: symbol}); err != nil {
		return Quote{}, fmt.Errorf("gateway unsubscribe %s: %w", symbol, err)
	}
	return q, nil
}

func merge(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// Close shuts the connection down. The gateway may be reused afterwards; the
// next quote request reconnects.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}
