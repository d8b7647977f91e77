// Package stream implements the WebSocket stream client (C3): one task
// per symbol, connecting to a multiplexed endpoint, decoding frames,
// classifying them by substream suffix, and publishing tagged Records.
// Grounded on the teacher's raw-gorilla/websocket client
// (pkg/exchange/binanceperp/websocket.go, wsclient.go) rather than the
// go-binance SDK, since this spec needs explicit control over the
// envelope and reconnection policy (§4.1).
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/market"
	"github.com/BullionBear/sequex-ingest/pkg/eventbus"
)

const (
	reconnectDelay = 5 * time.Second
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// DepthSubmitter is the subset of C7's Manager that the stream client
// needs: offering depth events to the owning symbol's sync machine.
type DepthSubmitter interface {
	SubmitDiff(symbol string, ev *market.DepthDiffEvent)
}

// Client is a per-symbol multiplexed WebSocket subscriber.
type Client struct {
	symbol  string
	url     string
	bus     *eventbus.Bus
	manager DepthSubmitter
	logger  zerolog.Logger
}

// BuildStreamURL forms the multiplexed endpoint URL from §6:
// wss://<host>/stream?streams=<s1>/<s2>/... with substreams of the form
// <symbol-lowercase>@<substream>.
func BuildStreamURL(wsBaseURL, symbol string, substreams []string) string {
	lower := strings.ToLower(symbol)
	names := make([]string, 0, len(substreams))
	for _, s := range substreams {
		names = append(names, fmt.Sprintf("%s@%s", lower, s))
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(wsBaseURL, "/"), strings.Join(names, "/"))
}

// New constructs a Client for one symbol. manager may be nil if depth
// events should only be published, never fed to a book manager.
func New(symbol, url string, bus *eventbus.Bus, manager DepthSubmitter, logger zerolog.Logger) *Client {
	return &Client{symbol: symbol, url: url, bus: bus, manager: manager, logger: logger}
}

type frameEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Run connects and reads frames until ctx is cancelled. On any transport
// error or clean close it reconnects after a fixed delay (§4.1); the
// owning symbol's sync machine, not this client, is responsible for
// noticing the gap and desyncing.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.runOnce(ctx); err != nil {
			c.logger.Warn().Err(err).Str("symbol", c.symbol).Msg("stream connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", c.url, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}

		localTime := time.Now()
		if err := c.handleFrame(ctx, payload, localTime); err != nil {
			c.logger.Warn().Err(err).Str("symbol", c.symbol).Msg("dropping malformed frame")
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, payload []byte, localTime time.Time) error {
	var env frameEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("stream: unmarshal envelope: %w", err)
	}

	rec := market.Record{
		Symbol:    strings.ToUpper(c.symbol),
		Stream:    env.Stream,
		LocalTime: localTime,
	}

	switch {
	case strings.Contains(env.Stream, "depth"):
		var ev market.DepthDiffEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("stream: unmarshal depth: %w", err)
		}
		rec.Kind = market.RecordKindDepth
		rec.Depth = &ev
		if c.manager != nil {
			c.manager.SubmitDiff(rec.Symbol, &ev)
		}

	case strings.Contains(env.Stream, "aggTrade"):
		var ev market.AggTradeEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("stream: unmarshal aggTrade: %w", err)
		}
		rec.Kind = market.RecordKindAggTrade
		rec.AggTrade = &ev

	case strings.Contains(env.Stream, "kline"):
		var ev market.KlineEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("stream: unmarshal kline: %w", err)
		}
		rec.Kind = market.RecordKindKline
		rec.Kline = &ev

	default:
		// Unrecognized substream: dropped per §4.1's classification contract.
		return nil
	}

	return c.bus.Publish(ctx, rec)
}
