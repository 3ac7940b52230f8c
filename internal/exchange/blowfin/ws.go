package blowfin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/signer"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// loginRequest is the private-channel auth handshake, signed with
// signer.Signer.SignWS against the fixed login path.
type loginRequest struct {
	Op   string       `json:"op"`
	Args []loginEntry `json:"args"`
}

type loginEntry struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Nonce      string `json:"nonce"`
	Sign       string `json:"sign"`
}

type subscribeRequest struct {
	Op   string              `json:"op"`
	Args []subscribeChannel  `json:"args"`
}

type subscribeChannel struct {
	Channel      string `json:"channel"`
	InstID       string `json:"instId,omitempty"`
}

// booksMessage is a books5 depth push.
type booksMessage struct {
	Arg  subscribeChannel `json:"arg"`
	Data []bookLevel5     `json:"data"`
}

type bookLevel5 struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// WSClient is the private WebSocket client for one Blowfin symbol: it
// authenticates on connect, subscribes to books5 depth, and publishes
// normalized order-book snapshots onto a Bus. Candle data is not carried
// on this connection — spec.md §6 documents it as a separate "public
// market WS" with its own wire format, consumed instead by
// internal/feed.KlineClient. Reconnects with exponential backoff on
// disconnect, mirroring the teacher's platform/polymarket WSClient.
type WSClient struct {
	wsURL      string
	symbol     string
	apiKey     string
	passphrase string
	signer     *signer.Signer
	bus        *bus.Bus

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewWSClient returns a client that will authenticate with creds, subscribe
// to symbol's books5 stream, and publish order-book snapshots to b.
func NewWSClient(wsURL, symbol, apiKey, passphrase string, s *signer.Signer, b *bus.Bus) *WSClient {
	return &WSClient{
		wsURL:      wsURL,
		symbol:     symbol,
		apiKey:     apiKey,
		passphrase: passphrase,
		signer:     s,
		bus:        b,
		done:       make(chan struct{}),
	}
}

// Run connects and reconnects until ctx is done or Close is called.
func (w *WSClient) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		default:
		}

		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := w.runConnection(connCtx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-w.done:
			return nil
		default:
		}
		if err != nil {
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

func (w *WSClient) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("blowfin/ws: connect: %w", err)
	}
	defer conn.Close()

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := w.login(conn); err != nil {
		return err
	}
	if err := w.subscribe(conn); err != nil {
		return err
	}

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
			w.handleMessage(msg)
		}
	}
}

func (w *WSClient) login(conn *websocket.Conn) error {
	sig, ts, nonce := w.signer.SignWSNow()
	req := loginRequest{
		Op: "login",
		Args: []loginEntry{{
			APIKey:     w.apiKey,
			Passphrase: w.passphrase,
			Timestamp:  ts,
			Nonce:      nonce,
			Sign:       sig,
		}},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("blowfin/ws: marshal login: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) subscribe(conn *websocket.Conn) error {
	req := subscribeRequest{
		Op: "subscribe",
		Args: []subscribeChannel{
			{Channel: "books5", InstID: w.symbol},
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("blowfin/ws: marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) handleMessage(raw []byte) {
	var arg struct {
		Arg subscribeChannel `json:"arg"`
	}
	if err := json.Unmarshal(raw, &arg); err != nil {
		return
	}

	switch arg.Arg.Channel {
	case "books5":
		var m booksMessage
		if err := json.Unmarshal(raw, &m); err != nil || len(m.Data) == 0 {
			return
		}
		w.publishBook(m.Data[0])
	}
}

// Close stops the client. Safe to call more than once.
func (w *WSClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
}
