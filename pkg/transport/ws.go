package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

// Trade websocket methods.
const (
	MethodOrderPlace   = "order.place"
	MethodOrderCancel  = "order.cancel"
	MethodOrderModify  = "order.modify"
	MethodOrderStatus  = "order.status"
	MethodOrdersBatch  = "orders.batch"
	MethodOrdersStatus = "orders.status"
	MethodOrdersCancel = "orders.cancel"
)

const (
	tradePath       = "/ws/trade"
	writeTimeout    = 10 * time.Second
	pingInterval    = 30 * time.Second
	maxDialInterval = 5 * time.Second
)

var ErrSessionClosed = errors.New("trade session closed")

// WSRequest is one call on the trade websocket.
type WSRequest struct {
	ID        uint64 `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params"`
	Signature string `json:"signature,omitempty"`
}

// WSResponse is the reply correlated to a WSRequest by ID.
type WSResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Status int             `json:"status,omitempty"`
	Error  *WSError        `json:"error,omitempty"`
}

type WSError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WSError) Error() string {
	return fmt.Sprintf("websocket error %d: %s", e.Code, e.Message)
}

// WSConfig configures the trade websocket. APIEndpoint is the https (or
// http) trade API base; the scheme is switched to wss (ws).
type WSConfig struct {
	APIEndpoint string
	APIKey      string
	AccountID   uint64
	ClientID    string
	MaxRetries  int
	Logger      *zap.SugaredLogger
}

// TradeURL is the websocket address for cfg.
func TradeURL(cfg WSConfig) (string, error) {
	u, err := url.Parse(strings.TrimRight(cfg.APIEndpoint, "/"))
	if err != nil {
		return "", errs.Validationf("api endpoint %q: %v", cfg.APIEndpoint, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", errs.Validationf("api endpoint %q has unsupported scheme", cfg.APIEndpoint)
	}
	u.Path += tradePath
	q := url.Values{}
	q.Set("accountId", strconv.FormatUint(cfg.AccountID, 10))
	q.Set("hibachiClient", cfg.ClientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WSTrade is a trade websocket session. Calls may be issued concurrently;
// replies are matched to callers by request id.
type WSTrade struct {
	conn *websocket.Conn
	log  *zap.SugaredLogger

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[uint64]chan WSResponse
	nextID  atomic.Uint64

	done     chan struct{}
	closeErr error
	once     sync.Once
}

// DialTrade connects to the trade websocket, retrying with backoff.
func DialTrade(ctx context.Context, cfg WSConfig) (*WSTrade, error) {
	if cfg.APIKey == "" {
		return nil, errs.Validationf("api key is required for the trade websocket")
	}
	target, err := TradeURL(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	header := http.Header{}
	header.Set("Authorization", cfg.APIKey)

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxDialInterval
	var conn *websocket.Conn
	for attempt := 0; ; attempt++ {
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
		if err == nil {
			conn = c
			break
		}
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, StatusError(resp.StatusCode, nil)
			}
		}
		if attempt >= cfg.MaxRetries {
			return nil, fmt.Errorf("%w: dial %s: %v", errs.ErrTransport, target, err)
		}
		sleep := b.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxDialInterval
		}
		logger.Warnw("ws_dial_retry", "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	w := &WSTrade{
		conn:    conn,
		log:     logger,
		pending: make(map[uint64]chan WSResponse),
		done:    make(chan struct{}),
	}
	// ids start at a clock derived offset so replies meant for an earlier
	// session on the same account are not taken for ours
	w.nextID.Store(uint64(time.Now().UnixNano()%1_000_000) + 1)
	go w.readLoop()
	go w.pingLoop()
	logger.Infow("ws_trade_connected", "url", target)
	return w, nil
}

// Call sends one request and waits for its reply. A reply carrying an
// error is returned as *WSError.
func (w *WSTrade) Call(ctx context.Context, method string, params any, signature string) (json.RawMessage, error) {
	id := w.nextID.Add(1)
	ch := make(chan WSResponse, 1)

	w.mu.Lock()
	if w.closeErr != nil {
		err := w.closeErr
		w.mu.Unlock()
		return nil, err
	}
	w.pending[id] = ch
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}()

	msg, err := json.Marshal(WSRequest{ID: id, Method: method, Params: params, Signature: signature})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	if err := w.write(websocket.TextMessage, msg); err != nil {
		return nil, fmt.Errorf("%w: send %s: %v", errs.ErrTransport, method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-w.done:
		return nil, w.err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the session. Pending calls fail with ErrSessionClosed.
func (w *WSTrade) Close() error {
	w.shutdown(ErrSessionClosed)
	_ = w.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.conn.Close()
}

func (w *WSTrade) write(kind int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(kind, data)
}

func (w *WSTrade) readLoop() {
	for {
		_, message, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Warnw("ws_read_failed", "err", err)
			}
			w.shutdown(fmt.Errorf("%w: %v", ErrSessionClosed, err))
			return
		}

		var resp WSResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			w.log.Warnw("ws_invalid_message", "err", err)
			continue
		}
		w.mu.Lock()
		ch, ok := w.pending[resp.ID]
		w.mu.Unlock()
		if !ok {
			w.log.Debugw("ws_unmatched_reply", "id", resp.ID)
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
}

func (w *WSTrade) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.write(websocket.PingMessage, nil); err != nil {
				w.log.Debugw("ws_ping_failed", "err", err)
				return
			}
		}
	}
}

func (w *WSTrade) shutdown(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.closeErr = err
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *WSTrade) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeErr
}
