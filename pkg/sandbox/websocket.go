package sandbox

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/transport"
	"github.com/uhyunpark/hibachi/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

const (
	readTimeout  = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// inboundCall mirrors transport.WSRequest with params left undecoded until
// the method is known.
type inboundCall struct {
	ID        uint64          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	Signature string          `json:"signature"`
}

// tradeSession is one authenticated trade websocket connection.
type tradeSession struct {
	s    *Server
	conn *websocket.Conn
	acct Account
	send chan []byte
	id   string
}

// handleTradeWebSocket authenticates the account and upgrades the
// connection. Rejections happen before the upgrade so the client sees the
// HTTP status.
func (s *Server) handleTradeWebSocket(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.ex.Authenticate(r.Header.Get("Authorization"))
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeForbidden, "unknown api key")
		return
	}
	if !s.ownsQuery(w, r.URL.Query().Get("accountId"), acct) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	sess := &tradeSession{
		s:    s,
		conn: conn,
		acct: acct,
		send: make(chan []byte, 256),
		id:   conn.RemoteAddr().String(),
	}
	s.log.Infow("ws_client_connected", "client", sess.id, "account_id", acct.ID, "sdk", r.URL.Query().Get("hibachiClient"))

	go sess.writePump()
	go sess.readPump()
}

// readPump reads calls and queues one reply per call.
func (c *tradeSession) readPump() {
	defer func() {
		close(c.send)
		c.conn.Close()
		c.s.log.Infow("ws_client_disconnected", "client", c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.s.log.Debugw("ws_read_error", "client", c.id, "err", err)
			}
			return
		}

		var call inboundCall
		if err := json.Unmarshal(message, &call); err != nil {
			c.s.log.Debugw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}
		reply, err := json.Marshal(c.dispatch(call))
		if err != nil {
			c.s.log.Warnw("ws_marshal_failed", "method", call.Method, "err", err)
			continue
		}
		c.send <- reply
	}
}

// writePump writes queued replies, one per frame, and keeps the
// connection alive with pings.
func (c *tradeSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *tradeSession) dispatch(call inboundCall) transport.WSResponse {
	result, err := c.invoke(call)
	if err != nil {
		r := rejectionOf(err)
		return transport.WSResponse{
			ID:     call.ID,
			Status: r.HTTPStatus,
			Error:  &transport.WSError{Code: r.Code, Message: r.Message},
		}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return transport.WSResponse{
			ID:     call.ID,
			Status: http.StatusInternalServerError,
			Error:  &transport.WSError{Code: CodeInternal, Message: err.Error()},
		}
	}
	return transport.WSResponse{ID: call.ID, Result: raw, Status: http.StatusOK}
}

func (c *tradeSession) invoke(call inboundCall) (any, error) {
	ex, acct := c.s.ex, c.acct
	switch call.Method {
	case transport.MethodOrderPlace:
		var rec transaction.PlaceRecord
		if err := c.params(call, &rec); err != nil {
			return nil, err
		}
		if rec.Signature == "" {
			rec.Signature = call.Signature
		}
		id, err := ex.Place(acct, rec)
		if err != nil {
			return nil, err
		}
		return orderIDResponse{OrderID: types.FlexUint64(id)}, nil

	case transport.MethodOrderModify:
		var rec transaction.ModifyRecord
		if err := c.params(call, &rec); err != nil {
			return nil, err
		}
		if rec.Signature == "" {
			rec.Signature = call.Signature
		}
		if err := ex.Modify(acct, rec); err != nil {
			return nil, err
		}
		return orderIDResponse{OrderID: rec.OrderID}, nil

	case transport.MethodOrderCancel:
		var rec transaction.CancelRecord
		if err := c.params(call, &rec); err != nil {
			return nil, err
		}
		if rec.Signature == "" {
			rec.Signature = call.Signature
		}
		order, err := ex.Cancel(acct, rec)
		if err != nil {
			return nil, err
		}
		return orderIDResponse{OrderID: order.OrderID}, nil

	case transport.MethodOrderStatus:
		var target types.OrderIdentity
		if err := c.params(call, &target); err != nil {
			return nil, err
		}
		return ex.Order(acct, target)

	case transport.MethodOrdersStatus:
		return ex.Pending(acct)

	case transport.MethodOrdersBatch:
		var in transaction.InboundBatch
		if err := c.params(call, &in); err != nil {
			return nil, err
		}
		return ex.Batch(acct, in)

	case transport.MethodOrdersCancel:
		var req transaction.CancelAllRequest
		if err := c.params(call, &req); err != nil {
			return nil, err
		}
		if req.Signature == "" {
			req.Signature = call.Signature
		}
		if req.AccountID != acct.ID {
			return nil, reject(CodeForbidden, "account mismatch")
		}
		n, err := ex.CancelAll(acct, req)
		if err != nil {
			return nil, err
		}
		return map[string]int{"cancelled": n}, nil

	default:
		return nil, reject(CodeInvalidRequest, "unknown method %q", call.Method)
	}
}

func (c *tradeSession) params(call inboundCall, v any) error {
	if err := json.Unmarshal(call.Params, v); err != nil {
		return reject(CodeInvalidRequest, "invalid params for %s: %v", call.Method, err)
	}
	return nil
}
