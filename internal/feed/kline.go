// Package feed implements the public market-data feed tasks that publish
// onto the bus's candle topics. Distinct from internal/exchange/blowfin's
// private WebSocket client: spec.md §6 documents "Public market WS" as a
// separate wire format (`{stream, data:{k:{...}}}`) from Blowfin's private
// books5/candle channels, so candles and order-book depth arrive over two
// independent connections that both publish onto the same bus.Bus.
//
// Grounded on internal/exchange/blowfin/ws.go's reconnect/backoff idiom
// (exponential backoff capped at 30s, ping/pong keepalive, a dedicated
// reader goroutine feeding a buffered channel) — generalized here to a
// feed-agnostic task so each configured feed.Config owns its own
// reconnection per spec.md §4.2 ("feed tasks own reconnection").
package feed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// HMACPolicy is a per-feed frame-signature verification policy. A Mode of
// "none" skips verification; "hmac" requires every frame to carry a
// top-level field named HeaderOrField ("sig" when empty) whose value is the
// hex HMAC-SHA256 of the frame's data payload keyed by Secret.
type HMACPolicy struct {
	Mode          string
	HeaderOrField string
	Secret        string
}

// Config describes one public kline feed to run.
type Config struct {
	Name     string
	WSURL    string
	Symbol   string
	Interval string // "1h" or "4h" — selects which bus topic candles land on
	HMAC     HMACPolicy
}

// klineStreamMessage is spec.md §6's public market WS envelope:
// {stream, data:{k:{T,i,o,h,l,c,v}}}, numeric fields as strings.
type klineStreamMessage struct {
	Stream string    `json:"stream"`
	Sig    string    `json:"sig,omitempty"`
	Data   klineData `json:"data"`
}

type klineData struct {
	K klineBar `json:"k"`
}

type klineBar struct {
	CloseTimeMs string `json:"T"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Close       string `json:"c"`
	Volume      string `json:"v"`
}

// KlineClient runs one Config's feed: connects, verifies frame signatures
// per its HMACPolicy, parses klines, and publishes onto b's candle topics.
// Reconnects with exponential backoff on disconnect; never blocks the bus.
type KlineClient struct {
	cfg    Config
	bus    *bus.Bus
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewKlineClient returns a client for cfg, publishing onto b.
func NewKlineClient(cfg Config, b *bus.Bus, logger *slog.Logger) *KlineClient {
	return &KlineClient{
		cfg:    cfg,
		bus:    b,
		logger: logger.With(slog.String("component", "feed"), slog.String("feed", cfg.Name)),
		done:   make(chan struct{}),
	}
}

// Run connects and reconnects until ctx is done or Close is called.
func (k *KlineClient) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "feed started", slog.String("ws_url", k.cfg.WSURL), slog.String("symbol", k.cfg.Symbol))
	defer k.logger.InfoContext(ctx, "feed stopped")

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-k.done:
			return nil
		default:
		}

		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := k.runConnection(connCtx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-k.done:
			return nil
		default:
		}

		if err != nil {
			k.logger.WarnContext(ctx, "feed connection failed, retrying", slog.String("error", err.Error()), slog.Duration("delay", delay))
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		} else {
			delay = reconnectDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (k *KlineClient) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, k.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	k.mu.Lock()
	k.conn = conn
	k.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	msgCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				close(msgCh)
				return
			}
			msgCh <- msg
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case err := <-errCh:
			return err
		case msg, ok := <-msgCh:
			if !ok {
				continue
			}
			k.handleMessage(ctx, msg)
		}
	}
}

func (k *KlineClient) handleMessage(ctx context.Context, raw []byte) {
	var m klineStreamMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		k.logger.WarnContext(ctx, "feed: malformed frame", slog.String("error", err.Error()))
		return
	}

	if !k.verify(raw, m) {
		k.logger.WarnContext(ctx, "feed: frame signature verification failed")
		return
	}

	candle, ok := parseKlineBar(m.Data.K)
	if !ok {
		return
	}

	topic := k.bus.Candles1h
	if k.cfg.Interval == "4h" {
		topic = k.bus.Candles4h
	}
	topic.Publish(bus.CandleEvent{Symbol: k.cfg.Symbol, Candle: candle})
}

// verify checks m's signature per k.cfg.HMAC. A Mode of "none" always
// passes. The signature is read from raw's top-level HeaderOrField field
// (m.Sig when HeaderOrField is empty or "sig"). HMAC verification
// recomputes HMAC-SHA256 over the marshaled data payload (excluding the
// signature field itself) and compares hex digests in constant time.
func (k *KlineClient) verify(raw []byte, m klineStreamMessage) bool {
	if k.cfg.HMAC.Mode != "hmac" {
		return true
	}
	sig := m.Sig
	if field := k.cfg.HMAC.HeaderOrField; field != "" && field != "sig" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return false
		}
		if err := json.Unmarshal(fields[field], &sig); err != nil {
			return false
		}
	}
	payload, err := json.Marshal(m.Data)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(k.cfg.HMAC.Secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Close stops the client. Safe to call more than once.
func (k *KlineClient) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.closed = true
	close(k.done)
	if k.conn != nil {
		_ = k.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		k.conn.Close()
	}
}

// parseKlineBar converts a klineBar's string-numeric fields into a
// domain.Candle. Fields that fail to parse make the whole bar invalid —
// better to drop one bar than publish a zeroed one a strategy might act on.
func parseKlineBar(k klineBar) (domain.Candle, bool) {
	closeMs, err := strconv.ParseInt(k.CloseTimeMs, 10, 64)
	if err != nil {
		return domain.Candle{}, false
	}
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closePrice, err4 := strconv.ParseFloat(k.Close, 64)
	volume, err5 := strconv.ParseFloat(k.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return domain.Candle{}, false
	}

	return domain.Candle{
		Timestamp: time.UnixMilli(closeMs),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, true
}
