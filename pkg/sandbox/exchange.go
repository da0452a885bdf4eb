// Package sandbox is a local stand-in for the exchange. It verifies every
// signed request the way the exchange does, keeps orders in Pebble and
// answers with the exchange's response shapes. It does not match orders.
package sandbox

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/hibachi/pkg/numeric"
	"github.com/uhyunpark/hibachi/pkg/storage"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
	"github.com/uhyunpark/hibachi/pkg/util"
)

// Account is a trading account and the key its requests must verify under.
type Account struct {
	ID     uint64
	APIKey string
	Key    transaction.AccountKey
}

type Exchange struct {
	mu        sync.Mutex
	info      types.ExchangeInfo
	contracts *types.ContractRegistry
	verifier  *transaction.Verifier
	store     *storage.PebbleStore
	accounts  map[string]Account
	journal   storage.Journal
	clock     util.Clock
	log       *zap.SugaredLogger
}

type Option func(*Exchange)

func WithClock(clock util.Clock) Option {
	return func(e *Exchange) { e.clock = clock }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Exchange) { e.log = l.Sugar() }
}

// WithJournal records every accepted request.
func WithJournal(j storage.Journal) Option {
	return func(e *Exchange) { e.journal = j }
}

// NewExchange builds an exchange from seed on top of store.
func NewExchange(seed Seed, store *storage.PebbleStore, opts ...Option) (*Exchange, error) {
	info, err := seed.ExchangeInfo()
	if err != nil {
		return nil, err
	}
	contracts := types.NewContractRegistry()
	for _, c := range info.FutureContracts {
		if err := contracts.Register(c); err != nil {
			return nil, err
		}
	}

	e := &Exchange{
		info:      info,
		contracts: contracts,
		verifier:  transaction.NewVerifier(contracts),
		store:     store,
		accounts:  make(map[string]Account),
		journal:   storage.NopJournal{},
		clock:     util.RealClock{},
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, as := range seed.Accounts {
		acct, err := as.Account()
		if err != nil {
			return nil, err
		}
		e.AddAccount(acct)
	}
	return e, nil
}

func (e *Exchange) AddAccount(a Account) {
	e.mu.Lock()
	e.accounts[a.APIKey] = a
	e.mu.Unlock()
	e.log.Infow("account_added", "account_id", a.ID, "hmac", a.Key.HMACSecret != "")
}

// Authenticate maps an API key to its account.
func (e *Exchange) Authenticate(apiKey string) (Account, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accounts[apiKey]
	return a, ok
}

func (e *Exchange) Info() types.ExchangeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info
}

// SetStatus switches the exchange in or out of maintenance.
func (e *Exchange) SetStatus(status types.ExchangeStatus, window *types.MaintenanceWindow) {
	e.mu.Lock()
	e.info.Status = status
	e.info.CurrentMaintenanceWindow = window
	e.mu.Unlock()
	e.log.Infow("exchange_status_changed", "status", status)
}

// Place accepts a new order and returns its id.
func (e *Exchange) Place(acct Account, rec transaction.PlaceRecord) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return 0, err
	}
	created, err := e.place(acct, rec)
	if err != nil {
		return 0, err
	}
	return uint64(created.OrderID), nil
}

// Modify applies a signed modification to an open order.
func (e *Exchange) Modify(acct Account, rec transaction.ModifyRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	return e.modify(acct, rec)
}

// Cancel cancels the order a signed cancel targets and returns it.
func (e *Exchange) Cancel(acct Account, rec transaction.CancelRecord) (types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return types.Order{}, err
	}
	cancelled, err := e.cancel(acct, rec)
	if err != nil {
		return types.Order{}, err
	}
	return cancelled.Order, nil
}

// CancelAll cancels every open order of the account, or those on one
// contract, and returns how many were cancelled.
func (e *Exchange) CancelAll(acct Account, req transaction.CancelAllRequest) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return 0, err
	}
	if err := acct.Key.Check(e.verifier.CancelAllPayload(req), req.Signature); err != nil {
		return 0, reject(CodeInvalidSignature, "%v", err)
	}
	if err := e.spendNonce(acct.ID, req.Nonce); err != nil {
		return 0, err
	}

	open, err := e.store.LoadOpenOrders(acct.ID)
	if err != nil {
		return 0, internal(err)
	}
	n := 0
	for _, rec := range open {
		if req.ContractID != nil && !e.onContract(rec.Order, *req.ContractID) {
			continue
		}
		if err := e.close(&rec, types.StatusCancelled); err != nil {
			return n, internal(err)
		}
		n++
	}
	e.record("CANCEL_ALL", map[string]any{"account_id": acct.ID, "nonce": req.Nonce, "cancelled": n})
	return n, nil
}

// Order reads one order by id or creation nonce.
func (e *Exchange) Order(acct Account, target types.OrderIdentity) (types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.lookup(acct.ID, target)
	if err != nil {
		return types.Order{}, err
	}
	return rec.Order, nil
}

// Pending lists the account's open orders.
func (e *Exchange) Pending(acct Account) ([]types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	open, err := e.store.LoadOpenOrders(acct.ID)
	if err != nil {
		return nil, internal(err)
	}
	orders := make([]types.Order, 0, len(open))
	for _, rec := range open {
		orders = append(orders, rec.Order)
	}
	return orders, nil
}

// BatchResponse is the body answering POST /trade/orders.
type BatchResponse struct {
	Orders []any `json:"orders"`
}

type createdRecord struct {
	Nonce                 types.FlexUint64 `json:"nonce"`
	OrderID               types.FlexUint64 `json:"orderId"`
	CreationTime          string           `json:"creationTime"`
	CreationTimeNsPartial string           `json:"creationTimeNsPartial"`
}

type updatedRecord struct {
	OrderID types.FlexUint64 `json:"orderId"`
}

type cancelledRecord struct {
	Nonce types.FlexUint64 `json:"nonce"`
}

type failedRecord struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

// Batch applies each element in order. A rejected element becomes a failed
// record and does not stop the rest.
func (e *Exchange) Batch(acct Account, in transaction.InboundBatch) (BatchResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return BatchResponse{}, err
	}
	if in.AccountID != acct.ID {
		return BatchResponse{}, reject(CodeForbidden, "batch for account %d", in.AccountID)
	}

	resp := BatchResponse{Orders: make([]any, 0, len(in.Orders))}
	for i, raw := range in.Orders {
		out, err := e.batchElement(acct, raw)
		if err != nil {
			r := rejectionOf(err)
			e.log.Debugw("batch_element_rejected", "index", i, "code", r.Code, "message", r.Message)
			out = failedRecord{ErrorCode: r.Code, Message: r.Message, Status: rejectionStatus}
		}
		resp.Orders = append(resp.Orders, out)
	}
	return resp, nil
}

func (e *Exchange) batchElement(acct Account, raw []byte) (any, error) {
	rec, err := transaction.DecodeRecord(raw)
	if err != nil {
		return nil, reject(CodeInvalidRequest, "%v", err)
	}
	switch r := rec.(type) {
	case transaction.PlaceRecord:
		r.AccountID = acct.ID
		created, err := e.place(acct, r)
		if err != nil {
			return nil, err
		}
		return createdRecord{
			Nonce:                 types.FlexUint64(r.Nonce),
			OrderID:               created.OrderID,
			CreationTime:          strconv.FormatInt(*created.CreationTime, 10),
			CreationTimeNsPartial: strconv.Itoa(e.clock.Now().Nanosecond()),
		}, nil
	case transaction.ModifyRecord:
		if err := e.modify(acct, r); err != nil {
			return nil, err
		}
		return updatedRecord{OrderID: r.OrderID}, nil
	case transaction.CancelRecord:
		cancelled, err := e.cancel(acct, r)
		if err != nil {
			return nil, err
		}
		return cancelledRecord{Nonce: types.FlexUint64(cancelled.Nonce)}, nil
	default:
		return nil, reject(CodeInvalidRequest, "unsupported record %T", rec)
	}
}

// Withdraw accepts a signed withdrawal and returns its id.
func (e *Exchange) Withdraw(acct Account, req transaction.WithdrawRequest) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return 0, err
	}
	if req.AccountID != acct.ID {
		return 0, reject(CodeForbidden, "withdraw for account %d", req.AccountID)
	}
	raw, err := e.verifier.WithdrawPayload(req)
	if err != nil {
		return 0, reject(CodeInvalidRequest, "%v", err)
	}
	if err := acct.Key.Check(raw, req.Signature); err != nil {
		return 0, reject(CodeInvalidSignature, "%v", err)
	}

	qty, err := numeric.Parse(req.Quantity)
	if err != nil || !qty.IsPositive() {
		return 0, reject(CodeInvalidRequest, "invalid quantity %q", req.Quantity)
	}
	maxFees, err := numeric.Parse(req.MaxFees)
	if err != nil {
		return 0, reject(CodeInvalidRequest, "invalid max fees %q", req.MaxFees)
	}
	fee, err := e.info.WithdrawalFee(qty)
	if err != nil {
		return 0, internal(err)
	}
	if maxFees.LessThan(fee) {
		return 0, reject(CodeInvalidRequest, "max fees %s below withdrawal fee %s", req.MaxFees, numeric.Format(fee))
	}

	id, err := e.store.NextOrderID()
	if err != nil {
		return 0, internal(err)
	}
	e.record("WITHDRAW", map[string]any{"account_id": acct.ID, "coin": req.Coin, "quantity": req.Quantity, "network": req.Network, "id": id})
	return id, nil
}

// Transfer accepts a signed transfer.
func (e *Exchange) Transfer(acct Account, req transaction.TransferRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return "", err
	}
	if req.AccountID != acct.ID {
		return "", reject(CodeForbidden, "transfer for account %d", req.AccountID)
	}
	raw, err := e.verifier.TransferPayload(req)
	if err != nil {
		return "", reject(CodeInvalidRequest, "%v", err)
	}
	if err := acct.Key.Check(raw, req.Signature); err != nil {
		return "", reject(CodeInvalidSignature, "%v", err)
	}
	if err := e.spendNonce(acct.ID, req.Nonce); err != nil {
		return "", err
	}
	e.record("TRANSFER", map[string]any{"account_id": acct.ID, "coin": req.Coin, "quantity": req.Quantity, "dst": req.DstPublicKey})
	return "success", nil
}

func (e *Exchange) place(acct Account, rec transaction.PlaceRecord) (types.Order, error) {
	if rec.AccountID != acct.ID {
		return types.Order{}, reject(CodeForbidden, "order for account %d", rec.AccountID)
	}
	contract, err := e.contracts.Get(rec.Symbol)
	if err != nil {
		return types.Order{}, reject(CodeInvalidRequest, "%v", err)
	}
	if err := e.verifier.VerifyRecord(acct.Key, rec, types.Order{}); err != nil {
		return types.Order{}, signatureRejection(err)
	}
	order, err := newOrder(rec, contract)
	if err != nil {
		return types.Order{}, err
	}
	if err := e.checkDeadline(rec.CreationDeadline); err != nil {
		return types.Order{}, err
	}
	if used, err := e.store.NonceUsed(acct.ID, rec.Nonce); err != nil {
		return types.Order{}, internal(err)
	} else if used {
		return types.Order{}, reject(CodeNonceUsed, "nonce %d already used", rec.Nonce)
	}
	if rec.ParentOrder != nil {
		parent, err := e.lookup(acct.ID, *rec.ParentOrder)
		if err != nil {
			return types.Order{}, reject(CodeOrderNotFound, "parent order %s not found", rec.ParentOrder)
		}
		switch {
		case parent.Order.Status.Open():
			order.Status = types.StatusChildPending
		case parent.Order.Status == types.StatusFilled && rec.OrderFlags == types.FlagReduceOnly && order.TriggerPrice != nil:
			// The position exists, so the exit waits on its own trigger.
			order.Status = types.StatusPending
		default:
			return types.Order{}, reject(CodeInvalidRequest, "parent order %d is %s", parent.Order.OrderID, parent.Order.Status)
		}
	}

	id, err := e.store.NextOrderID()
	if err != nil {
		return types.Order{}, internal(err)
	}
	now := e.clock.Now().Unix()
	order.AccountID = acct.ID
	order.OrderID = types.FlexUint64(id)
	order.CreationTime = &now
	if !order.Status.Open() {
		order.FinishTime = &now
	}
	if err := e.store.CreateOrder(storage.OrderRecord{Nonce: rec.Nonce, Order: order}); err != nil {
		return types.Order{}, internal(err)
	}

	e.log.Debugw("order_accepted", "account_id", acct.ID, "order_id", id, "nonce", rec.Nonce, "status", order.Status)
	e.record("ORDER_PLACE", map[string]any{"account_id": acct.ID, "order_id": id, "nonce": rec.Nonce, "symbol": rec.Symbol, "side": rec.Side, "signature": rec.Signature})
	return order, nil
}

// newOrder checks a place record for consistency and derives the order it
// creates. Market orders without a trigger fill at once.
func newOrder(rec transaction.PlaceRecord, c types.Contract) (types.Order, error) {
	side, err := rec.Side.Normalize()
	if err != nil {
		return types.Order{}, reject(CodeInvalidRequest, "%v", err)
	}
	if err := rec.OrderFlags.Validate(); err != nil {
		return types.Order{}, reject(CodeInvalidRequest, "%v", err)
	}
	qty, err := numeric.Parse(rec.Quantity)
	if err != nil || !qty.IsPositive() {
		return types.Order{}, reject(CodeInvalidRequest, "invalid quantity %q", rec.Quantity)
	}

	id := c.ID
	order := types.Order{
		Symbol:            rec.Symbol,
		ContractID:        &id,
		OrderType:         rec.OrderType,
		Side:              side,
		Status:            types.StatusPlaced,
		AvailableQuantity: qty,
		TotalQuantity:     &qty,
		OrderFlags:        rec.OrderFlags,
	}

	switch rec.OrderType {
	case types.OrderTypeLimit:
		if rec.Price == "" {
			return types.Order{}, reject(CodeInvalidRequest, "limit order without price")
		}
		p, err := numeric.Parse(rec.Price)
		if err != nil {
			return types.Order{}, reject(CodeInvalidRequest, "invalid price %q", rec.Price)
		}
		order.Price = &p
	case types.OrderTypeMarket:
		if rec.Price != "" {
			return types.Order{}, reject(CodeInvalidRequest, "market order with price")
		}
	default:
		return types.Order{}, reject(CodeInvalidRequest, "unknown order type %q", rec.OrderType)
	}

	if rec.TriggerPrice != "" {
		if rec.TWAPDurationMinutes > 0 {
			return types.Order{}, reject(CodeInvalidRequest, "can not set trigger price for TWAP order")
		}
		if rec.TriggerDirection != types.TriggerHigh && rec.TriggerDirection != types.TriggerLow {
			return types.Order{}, reject(CodeInvalidRequest, "invalid trigger direction %q", rec.TriggerDirection)
		}
		tp, err := numeric.Parse(rec.TriggerPrice)
		if err != nil {
			return types.Order{}, reject(CodeInvalidRequest, "invalid trigger price %q", rec.TriggerPrice)
		}
		order.TriggerPrice = &tp
	}

	switch {
	case rec.TWAPDurationMinutes > 0:
		order.Status = types.StatusScheduledTWAP
		order.QuantityMode = string(rec.TWAPQuantityMode)
		total, remaining := rec.TWAPDurationMinutes, rec.TWAPDurationMinutes
		order.NumOrdersTotal, order.NumOrdersRemaining = &total, &remaining
	case order.TriggerPrice != nil:
		order.Status = types.StatusPending
	case rec.OrderType == types.OrderTypeMarket:
		order.Status = types.StatusFilled
		order.AvailableQuantity = decimal.Zero
	}
	return order, nil
}

func (e *Exchange) modify(acct Account, rec transaction.ModifyRecord) error {
	if rec.AccountID != 0 && rec.AccountID != acct.ID {
		return reject(CodeForbidden, "modify for account %d", rec.AccountID)
	}
	current, err := e.lookup(acct.ID, types.ByOrderID(uint64(rec.OrderID)))
	if err != nil {
		return err
	}
	if !current.Order.Status.Open() {
		return reject(CodeInvalidRequest, "order %d is %s", rec.OrderID, current.Order.Status)
	}
	if err := e.verifier.VerifyRecord(acct.Key, rec, current.Order); err != nil {
		return signatureRejection(err)
	}
	if err := e.checkDeadline(rec.CreationDeadline); err != nil {
		return err
	}

	order := &current.Order
	qty, err := numeric.Parse(firstNonEmpty(rec.UpdatedQuantity, rec.Quantity))
	if err != nil || !qty.IsPositive() {
		return reject(CodeInvalidRequest, "invalid quantity")
	}
	order.AvailableQuantity, order.TotalQuantity = qty, &qty

	if p := firstNonEmpty(rec.UpdatedPrice, rec.Price); p != "" {
		if order.OrderType == types.OrderTypeMarket {
			return reject(CodeInvalidRequest, "can not set price on a market order")
		}
		price, err := numeric.Parse(p)
		if err != nil {
			return reject(CodeInvalidRequest, "invalid price %q", p)
		}
		order.Price = &price
	}
	if tp := firstNonEmpty(rec.UpdatedTriggerPrice, rec.TriggerPrice); tp != "" {
		if order.TriggerPrice == nil {
			return reject(CodeInvalidRequest, "order %d has no trigger price", rec.OrderID)
		}
		trigger, err := numeric.Parse(tp)
		if err != nil {
			return reject(CodeInvalidRequest, "invalid trigger price %q", tp)
		}
		order.TriggerPrice = &trigger
	}
	if rec.OrderFlags != "" {
		order.OrderFlags = rec.OrderFlags
	}

	if err := e.spendNonce(acct.ID, rec.Nonce); err != nil {
		return err
	}
	if err := e.store.SaveOrder(current); err != nil {
		return internal(err)
	}
	e.record("ORDER_MODIFY", map[string]any{"account_id": acct.ID, "order_id": uint64(rec.OrderID), "nonce": rec.Nonce})
	return nil
}

func (e *Exchange) cancel(acct Account, rec transaction.CancelRecord) (storage.OrderRecord, error) {
	if rec.AccountID != 0 && rec.AccountID != acct.ID {
		return storage.OrderRecord{}, reject(CodeForbidden, "cancel for account %d", rec.AccountID)
	}
	target, err := rec.Target()
	if err != nil {
		return storage.OrderRecord{}, reject(CodeInvalidRequest, "%v", err)
	}
	if err := e.verifier.VerifyRecord(acct.Key, rec, types.Order{}); err != nil {
		return storage.OrderRecord{}, signatureRejection(err)
	}
	current, err := e.lookup(acct.ID, target)
	if err != nil {
		return storage.OrderRecord{}, err
	}
	if !current.Order.Status.Open() {
		return storage.OrderRecord{}, reject(CodeInvalidRequest, "order %d is %s", current.Order.OrderID, current.Order.Status)
	}
	if err := e.close(&current, types.StatusCancelled); err != nil {
		return storage.OrderRecord{}, internal(err)
	}
	e.record("ORDER_CANCEL", map[string]any{"account_id": acct.ID, "target": target.String()})
	return current, nil
}

func (e *Exchange) close(rec *storage.OrderRecord, status types.OrderStatus) error {
	now := e.clock.Now().Unix()
	rec.Order.Status = status
	rec.Order.FinishTime = &now
	return e.store.SaveOrder(*rec)
}

func (e *Exchange) lookup(accountID uint64, target types.OrderIdentity) (storage.OrderRecord, error) {
	var (
		rec storage.OrderRecord
		err error
	)
	if id, ok := target.OrderID(); ok {
		rec, err = e.store.LoadOrder(accountID, id)
	} else {
		n, _ := target.Nonce()
		rec, err = e.store.OrderByNonce(accountID, n)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return storage.OrderRecord{}, reject(CodeOrderNotFound, "order %s not found", target)
	}
	if err != nil {
		return storage.OrderRecord{}, internal(err)
	}
	return rec, nil
}

func (e *Exchange) spendNonce(accountID, nonce uint64) error {
	used, err := e.store.NonceUsed(accountID, nonce)
	if err != nil {
		return internal(err)
	}
	if used {
		return reject(CodeNonceUsed, "nonce %d already used", nonce)
	}
	if err := e.store.MarkNonce(accountID, nonce); err != nil {
		return internal(err)
	}
	return nil
}

func (e *Exchange) checkDeadline(deadline int64) error {
	if deadline != 0 && e.clock.Now().Unix() > deadline {
		return reject(CodeDeadlineExceeded, "creation deadline %d has passed", deadline)
	}
	return nil
}

func (e *Exchange) writable() error {
	if e.info.Status != types.ExchangeNormal {
		return reject(CodeMaintenance, "exchange status is %s", e.info.Status)
	}
	return nil
}

func (e *Exchange) onContract(o types.Order, contractID uint32) bool {
	return o.ContractID != nil && *o.ContractID == contractID
}

// record writes one accepted request to the journal as a JSON line.
func (e *Exchange) record(event string, data map[string]any) {
	line, err := json.Marshal(map[string]any{
		"timestamp": e.clock.Now().UTC().Format(time.RFC3339),
		"event":     event,
		"data":      data,
	})
	if err != nil {
		e.log.Warnw("journal_marshal_failed", "event", event, "err", err)
		return
	}
	e.journal.Append(string(line))
}

func signatureRejection(err error) error {
	if errors.Is(err, transaction.ErrInvalidSignature) {
		return reject(CodeInvalidSignature, "%v", err)
	}
	return reject(CodeInvalidRequest, "%v", err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func internal(err error) error {
	return &Rejection{Code: CodeInternal, HTTPStatus: 500, Message: fmt.Sprintf("internal error: %v", err)}
}
