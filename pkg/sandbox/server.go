package sandbox

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// Server exposes an Exchange over the exchange's REST and trade websocket
// routes.
type Server struct {
	ex     *Exchange
	router *mux.Router
	log    *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(ex *Exchange, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		log:    logger.Sugar(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Market endpoints
	s.router.HandleFunc("/market/exchange-info", s.handleExchangeInfo).Methods("GET")

	// Order endpoints
	s.router.HandleFunc("/trade/order", s.authed(s.handleGetOrder)).Methods("GET")
	s.router.HandleFunc("/trade/order", s.authed(s.handlePlaceOrder)).Methods("POST")
	s.router.HandleFunc("/trade/order", s.authed(s.handleModifyOrder)).Methods("PUT")
	s.router.HandleFunc("/trade/order", s.authed(s.handleCancelOrder)).Methods("DELETE")
	s.router.HandleFunc("/trade/orders", s.authed(s.handlePendingOrders)).Methods("GET")
	s.router.HandleFunc("/trade/orders", s.authed(s.handleBatch)).Methods("POST")
	s.router.HandleFunc("/trade/orders", s.authed(s.handleCancelAll)).Methods("DELETE")

	// Capital endpoints
	s.router.HandleFunc("/capital/withdraw", s.authed(s.handleWithdraw)).Methods("POST")
	s.router.HandleFunc("/capital/transfer", s.authed(s.handleTransfer)).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws/trade", s.handleTradeWebSocket).Methods("GET")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routes wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Hibachi-Client"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acct Account)

// authed resolves the Authorization header to an account before calling h.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := s.ex.Authenticate(r.Header.Get("Authorization"))
		if !ok {
			respondError(w, http.StatusUnauthorized, CodeForbidden, "unknown api key")
			return
		}
		h(w, r, acct)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.ex.Info())
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, acct Account) {
	q := r.URL.Query()
	if !s.ownsQuery(w, q.Get("accountId"), acct) {
		return
	}

	var target types.OrderIdentity
	switch {
	case q.Get("orderId") != "":
		id, err := strconv.ParseUint(q.Get("orderId"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid orderId")
			return
		}
		target = types.ByOrderID(id)
	case q.Get("nonce") != "":
		n, err := strconv.ParseUint(q.Get("nonce"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid nonce")
			return
		}
		target = types.ByNonce(n)
	default:
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "orderId or nonce is required")
		return
	}

	order, err := s.ex.Order(acct, target)
	if err != nil {
		respondRejection(w, err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request, acct Account) {
	if !s.ownsQuery(w, r.URL.Query().Get("accountId"), acct) {
		return
	}
	orders, err := s.ex.Pending(acct)
	if err != nil {
		respondRejection(w, err)
		return
	}
	respondJSON(w, orders)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request, acct Account) {
	var rec transaction.PlaceRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	id, err := s.ex.Place(acct, rec)
	if err != nil {
		s.log.Debugw("place_rejected", "account_id", acct.ID, "nonce", rec.Nonce, "err", err)
		respondRejection(w, err)
		return
	}
	s.log.Infow("order_placed", "account_id", acct.ID, "order_id", id, "nonce", rec.Nonce)
	respondJSON(w, orderIDResponse{OrderID: types.FlexUint64(id)})
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request, acct Account) {
	var rec transaction.ModifyRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := s.ex.Modify(acct, rec); err != nil {
		s.log.Debugw("modify_rejected", "account_id", acct.ID, "order_id", uint64(rec.OrderID), "err", err)
		respondRejection(w, err)
		return
	}
	s.log.Infow("order_modified", "account_id", acct.ID, "order_id", uint64(rec.OrderID))
	respondJSON(w, orderIDResponse{OrderID: rec.OrderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, acct Account) {
	var rec transaction.CancelRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	order, err := s.ex.Cancel(acct, rec)
	if err != nil {
		respondRejection(w, err)
		return
	}
	s.log.Infow("order_cancelled", "account_id", acct.ID, "order_id", uint64(order.OrderID))
	respondJSON(w, orderIDResponse{OrderID: order.OrderID})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, acct Account) {
	var in transaction.InboundBatch
	if !decodeBody(w, r, &in) {
		return
	}
	resp, err := s.ex.Batch(acct, in)
	if err != nil {
		respondRejection(w, err)
		return
	}
	s.log.Infow("batch_processed", "account_id", acct.ID, "size", len(in.Orders))
	respondJSON(w, resp)
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request, acct Account) {
	var req transaction.CancelAllRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AccountID != acct.ID {
		respondError(w, http.StatusForbidden, CodeForbidden, "account mismatch")
		return
	}
	n, err := s.ex.CancelAll(acct, req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	s.log.Infow("orders_cancelled", "account_id", acct.ID, "count", n)
	respondJSON(w, map[string]int{"cancelled": n})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, acct Account) {
	var req transaction.WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.ex.Withdraw(acct, req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	s.log.Infow("withdraw_accepted", "account_id", acct.ID, "coin", req.Coin, "id", id)
	respondJSON(w, orderIDResponse{OrderID: types.FlexUint64(id)})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, acct Account) {
	var req transaction.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, err := s.ex.Transfer(acct, req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	s.log.Infow("transfer_accepted", "account_id", acct.ID, "coin", req.Coin)
	respondJSON(w, map[string]string{"status": status})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

type orderIDResponse struct {
	OrderID types.FlexUint64 `json:"orderId"`
}

type errorResponse struct {
	ErrorCode int    `json:"errorCode"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (s *Server) ownsQuery(w http.ResponseWriter, accountID string, acct Account) bool {
	id, err := strconv.ParseUint(accountID, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid accountId")
		return false
	}
	if id != acct.ID {
		respondError(w, http.StatusForbidden, CodeForbidden, "account mismatch")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		ErrorCode: code,
		Status:    rejectionStatus,
		Message:   message,
	})
}

func respondRejection(w http.ResponseWriter, err error) {
	r := rejectionOf(err)
	respondError(w, r.HTTPStatus, r.Code, r.Message)
}
