package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
)

// WSConfig configures WebSocket stream behavior.
type WSConfig struct {
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the bar channel capacity.
	Buffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		Buffer:       64,
	}
}

// WSStream receives live minute bars over a WebSocket feed. The server uses
// it to capture the commit bar as it prints instead of polling for it.
type WSStream struct {
	endpoint string
	config   WSConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	stop   sync.Once

	bars chan domain.Bar
	done chan struct{}
	wg   sync.WaitGroup
}

// wsSubscribe is the subscription request shape.
type wsSubscribe struct {
	Op      string   `json:"op"`
	Tickers []string `json:"tickers"`
}

// wsBar is the streamed bar message shape.
type wsBar struct {
	Ticker string          `json:"ticker"`
	TS     string          `json:"ts"`
	Close  json.RawMessage `json:"close"`
}

// NewWSStream connects to the endpoint and subscribes to minute bars for
// the given tickers.
func NewWSStream(ctx context.Context, endpoint string, tickers []string, config *WSConfig) (*WSStream, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	s := &WSStream{
		endpoint: endpoint,
		config:   cfg,
		bars:     make(chan domain.Bar, cfg.Buffer),
		done:     make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn

	if err := s.write(wsSubscribe{Op: "subscribe", Tickers: tickers}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// Bars returns the stream of received bars. The channel closes when the
// stream shuts down.
func (s *WSStream) Bars() <-chan domain.Bar {
	return s.bars
}

// Done is closed when the stream stops, whether by Close or by a dropped
// connection. Callers selecting on Bars should also select on Done and
// redial if they still need data.
func (s *WSStream) Done() <-chan struct{} {
	return s.done
}

// Close shuts the stream down and closes the bar channel.
func (s *WSStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.stop.Do(func() { close(s.done) })

	s.connMu.Lock()
	err := s.conn.Close()
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.bars)
	return err
}

func (s *WSStream) write(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *WSStream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			// connection dropped or Close was called; either way the
			// stream is over and Done signals it
			s.stop.Do(func() { close(s.done) })
			return
		}

		var b wsBar
		if err := json.Unmarshal(msg, &b); err != nil || b.Ticker == "" || b.TS == "" {
			continue
		}
		px, err := parseWireDecimal(b.Close)
		if err != nil {
			continue
		}

		bar := domain.Bar{Ticker: b.Ticker, Timestamp: b.TS, Close: px}
		select {
		case s.bars <- bar:
		case <-s.done:
			return
		default:
			// drop on a full buffer rather than stall the read loop
		}
	}
}

// parseWireDecimal accepts a price as a JSON number or a quoted string.
func parseWireDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return decimal.NewFromString(asString)
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

func (s *WSStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			s.conn.WriteMessage(websocket.PingMessage, nil)
			s.connMu.Unlock()
		}
	}
}
