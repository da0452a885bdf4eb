package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/uhyunpark/hibachi/pkg/batch"
	"github.com/uhyunpark/hibachi/pkg/composer"
	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// PlaceMarketOrder places an order without a limit price.
func (c *Client) PlaceMarketOrder(ctx context.Context, intent types.OrderIntent) (uint64, uint64, error) {
	if intent.Price != nil {
		return 0, 0, errs.Validationf("market order can not carry a price")
	}
	return c.PlaceOrder(ctx, intent)
}

// PlaceLimitOrder places an order at intent.Price.
func (c *Client) PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (uint64, uint64, error) {
	if intent.Price == nil {
		return 0, 0, errs.Validationf("limit order requires a price")
	}
	return c.PlaceOrder(ctx, intent)
}

// PlaceOrder submits intent and returns the nonce it was signed with and
// the exchange's order id. An intent with TP/SL legs goes out as one batch
// with the parent first; the parent's outcome is returned.
func (c *Client) PlaceOrder(ctx context.Context, intent types.OrderIntent) (uint64, uint64, error) {
	nonce := c.nonce()
	actions, err := composer.ComposeCreate(intent, nonce, c.clock.Now())
	if err != nil {
		return 0, 0, err
	}
	if err := c.ensureContracts(ctx); err != nil {
		return 0, 0, err
	}

	if len(actions) > 1 {
		return c.placeWithChildren(ctx, nonce, actions)
	}

	rec, err := actions[0].(transaction.CreateOrder).Build(nonce, c.contracts, c.credential)
	if err != nil {
		return 0, 0, err
	}
	rec.AccountID = c.AccountID()

	body, err := c.transport.Do(ctx, http.MethodPost, "/trade/order", rec)
	if err != nil {
		return 0, 0, fmt.Errorf("place order %s: %w", intent.Symbol, err)
	}
	var resp struct {
		OrderID types.FlexUint64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, &errs.DeserializationError{Record: string(body), Reason: err.Error()}
	}
	c.log.Infow("order_placed", "symbol", rec.Symbol, "side", rec.Side, "type", rec.OrderType, "nonce", nonce, "order_id", uint64(resp.OrderID))
	return nonce, uint64(resp.OrderID), nil
}

func (c *Client) placeWithChildren(ctx context.Context, nonce uint64, actions []transaction.Action) (uint64, uint64, error) {
	outcomes, err := c.submitBatch(ctx, nonce, actions)
	if err != nil {
		return 0, 0, err
	}
	parentNonce, parentID, err := parentOutcome(outcomes)
	if err == nil {
		c.log.Infow("order_placed_with_tpsl", "nonce", parentNonce, "order_id", parentID, "children", len(actions)-1)
	}
	return parentNonce, parentID, err
}

// parentOutcome reads a parent-plus-TP/SL batch. When the parent was created
// but a child was rejected, the parent's nonce and id come back together
// with the child's rejection.
func parentOutcome(outcomes []types.BatchOutcome) (uint64, uint64, error) {
	var parentNonce, parentID uint64
	switch parent := outcomes[0].(type) {
	case types.Created:
		parentNonce, parentID = parent.Nonce, parent.OrderID
	case types.Failed:
		return 0, 0, parent.Err()
	default:
		return 0, 0, &errs.DeserializationError{Record: fmt.Sprintf("%#v", parent), Reason: "parent outcome is not a creation"}
	}
	for i, o := range outcomes[1:] {
		switch child := o.(type) {
		case types.Created:
		case types.Failed:
			return parentNonce, parentID, fmt.Errorf("order %d placed, tpsl leg %d rejected: %w", parentID, i, child.Err())
		default:
			return parentNonce, parentID, &errs.DeserializationError{Record: fmt.Sprintf("%#v", child), Reason: "tpsl outcome is not a creation"}
		}
	}
	return parentNonce, parentID, nil
}

// UpdateOrder reads the live order, fills in what intent leaves out and
// submits the modification.
func (c *Client) UpdateOrder(ctx context.Context, intent types.UpdateIntent) error {
	if err := c.ensureContracts(ctx); err != nil {
		return err
	}
	order, err := c.GetOrderDetails(ctx, types.ByOrderID(intent.OrderID))
	if err != nil {
		return err
	}
	upd, err := composer.ComposeUpdate(order, intent, c.clock.Now())
	if err != nil {
		return err
	}
	nonce := c.nonce()
	rec, err := upd.Build(nonce, c.contracts, c.credential)
	if err != nil {
		return err
	}
	rec.AccountID = c.AccountID()

	if _, err := c.transport.Do(ctx, http.MethodPut, "/trade/order", rec); err != nil {
		return fmt.Errorf("update order %d: %w", intent.OrderID, err)
	}
	c.log.Infow("order_updated", "order_id", intent.OrderID, "nonce", nonce)
	return nil
}

// CancelOrder cancels one order by id or by creation nonce.
func (c *Client) CancelOrder(ctx context.Context, target types.OrderIdentity) error {
	rec, err := transaction.CancelOrder{Target: target}.Build(c.credential)
	if err != nil {
		return err
	}
	rec.AccountID = c.AccountID()
	if _, err := c.transport.Do(ctx, http.MethodDelete, "/trade/order", rec); err != nil {
		return fmt.Errorf("cancel order %s: %w", target, err)
	}
	c.log.Infow("order_cancelled", "target", target.String())
	return nil
}

// CancelAllOrders cancels every pending order, or only those on contractID
// when it is set, in a single batch. With nothing pending it returns nil.
func (c *Client) CancelAllOrders(ctx context.Context, contractID *uint32) ([]types.BatchOutcome, error) {
	if err := c.ensureContracts(ctx); err != nil {
		return nil, err
	}
	pending, err := c.GetPendingOrders(ctx)
	if err != nil {
		return nil, err
	}

	actions := make([]transaction.Action, 0, len(pending))
	for _, o := range pending {
		if contractID != nil && !c.onContract(o, *contractID) {
			continue
		}
		actions = append(actions, transaction.CancelOrder{Target: types.ByOrderID(uint64(o.OrderID))})
	}
	if len(actions) == 0 {
		return nil, nil
	}
	return c.BatchOrders(ctx, actions)
}

func (c *Client) onContract(o types.Order, contractID uint32) bool {
	if o.ContractID != nil {
		return *o.ContractID == contractID
	}
	ct, err := c.contracts.Get(o.Symbol)
	return err == nil && ct.ID == contractID
}

// BatchOrders signs actions under consecutive nonces and submits them in
// one request. Per-element rejections come back as types.Failed.
func (c *Client) BatchOrders(ctx context.Context, actions []transaction.Action) ([]types.BatchOutcome, error) {
	if err := c.ensureContracts(ctx); err != nil {
		return nil, err
	}
	return c.submitBatch(ctx, c.nonce(), actions)
}

func (c *Client) submitBatch(ctx context.Context, base uint64, actions []transaction.Action) ([]types.BatchOutcome, error) {
	req, err := batch.Assemble(c.AccountID(), base, actions, c.credential, c.contracts)
	if err != nil {
		return nil, err
	}
	body, err := c.transport.Do(ctx, http.MethodPost, "/trade/orders", req)
	if err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	resp, err := batch.ResolveResponse(body)
	if err != nil {
		return nil, err
	}
	if len(resp.Orders) != len(actions) {
		return nil, &errs.DeserializationError{
			Record: string(body),
			Reason: fmt.Sprintf("batch of %d answered with %d records", len(actions), len(resp.Orders)),
		}
	}
	c.log.Infow("batch_submitted", "base_nonce", base, "size", len(actions))
	return resp.Orders, nil
}

// GetOrderDetails reads one order by id or creation nonce.
func (c *Client) GetOrderDetails(ctx context.Context, target types.OrderIdentity) (types.Order, error) {
	q := url.Values{}
	q.Set("accountId", strconv.FormatUint(c.AccountID(), 10))
	if id, ok := target.OrderID(); ok {
		q.Set("orderId", strconv.FormatUint(id, 10))
	} else {
		n, _ := target.Nonce()
		q.Set("nonce", strconv.FormatUint(n, 10))
	}

	body, err := c.transport.Do(ctx, http.MethodGet, "/trade/order?"+q.Encode(), nil)
	if err != nil {
		return types.Order{}, fmt.Errorf("get order %s: %w", target, err)
	}
	var order types.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return types.Order{}, &errs.DeserializationError{Record: string(body), Reason: err.Error()}
	}
	return order, nil
}

// GetPendingOrders lists the account's open orders.
func (c *Client) GetPendingOrders(ctx context.Context) ([]types.Order, error) {
	path := "/trade/orders?accountId=" + strconv.FormatUint(c.AccountID(), 10)
	body, err := c.transport.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get pending orders: %w", err)
	}
	var orders []types.Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, &errs.DeserializationError{Record: string(body), Reason: err.Error()}
	}
	return orders, nil
}
