package client

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/uhyunpark/hibachi/pkg/batch"
	"github.com/uhyunpark/hibachi/pkg/composer"
	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/transport"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// TradeSession places and cancels orders over the trade websocket. Records
// are composed and signed exactly as for the HTTP calls.
type TradeSession struct {
	c  *Client
	ws *transport.WSTrade
}

// DialTrade opens a trade websocket for the client's account.
func (c *Client) DialTrade(ctx context.Context) (*TradeSession, error) {
	if err := c.ensureContracts(ctx); err != nil {
		return nil, err
	}
	ws, err := transport.DialTrade(ctx, transport.WSConfig{
		APIEndpoint: c.cfg.Exchange.APIEndpoint,
		APIKey:      c.cfg.Account.APIKey,
		AccountID:   c.AccountID(),
		ClientID:    c.cfg.Exchange.ClientID,
		MaxRetries:  c.cfg.Transport.MaxRetries,
		Logger:      c.log,
	})
	if err != nil {
		return nil, err
	}
	return &TradeSession{c: c, ws: ws}, nil
}

func (s *TradeSession) Close() error { return s.ws.Close() }

// PlaceOrder is Client.PlaceOrder over the websocket.
func (s *TradeSession) PlaceOrder(ctx context.Context, intent types.OrderIntent) (uint64, uint64, error) {
	nonce := s.c.nonce()
	actions, err := composer.ComposeCreate(intent, nonce, s.c.clock.Now())
	if err != nil {
		return 0, 0, err
	}
	if len(actions) > 1 {
		outcomes, err := s.batch(ctx, nonce, actions)
		if err != nil {
			return 0, 0, err
		}
		return parentOutcome(outcomes)
	}

	rec, err := actions[0].(transaction.CreateOrder).Build(nonce, s.c.contracts, s.c.credential)
	if err != nil {
		return 0, 0, err
	}
	rec.AccountID = s.c.AccountID()
	result, err := s.ws.Call(ctx, transport.MethodOrderPlace, rec, rec.Signature)
	if err != nil {
		return 0, 0, fmt.Errorf("ws place order %s: %w", intent.Symbol, err)
	}
	var resp struct {
		OrderID types.FlexUint64 `json:"orderId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, 0, &errs.DeserializationError{Record: string(result), Reason: err.Error()}
	}
	s.c.log.Infow("ws_order_placed", "symbol", rec.Symbol, "nonce", nonce, "order_id", uint64(resp.OrderID))
	return nonce, uint64(resp.OrderID), nil
}

// CancelOrder is Client.CancelOrder over the websocket.
func (s *TradeSession) CancelOrder(ctx context.Context, target types.OrderIdentity) error {
	rec, err := transaction.CancelOrder{Target: target}.Build(s.c.credential)
	if err != nil {
		return err
	}
	rec.AccountID = s.c.AccountID()
	if _, err := s.ws.Call(ctx, transport.MethodOrderCancel, rec, rec.Signature); err != nil {
		return fmt.Errorf("ws cancel order %s: %w", target, err)
	}
	s.c.log.Infow("ws_order_cancelled", "target", target.String())
	return nil
}

// BatchOrders is Client.BatchOrders over the websocket.
func (s *TradeSession) BatchOrders(ctx context.Context, actions []transaction.Action) ([]types.BatchOutcome, error) {
	return s.batch(ctx, s.c.nonce(), actions)
}

func (s *TradeSession) batch(ctx context.Context, base uint64, actions []transaction.Action) ([]types.BatchOutcome, error) {
	req, err := batch.Assemble(s.c.AccountID(), base, actions, s.c.credential, s.c.contracts)
	if err != nil {
		return nil, err
	}
	result, err := s.ws.Call(ctx, transport.MethodOrdersBatch, req, "")
	if err != nil {
		return nil, fmt.Errorf("ws batch: %w", err)
	}
	resp, err := batch.ResolveResponse(result)
	if err != nil {
		return nil, err
	}
	if len(resp.Orders) != len(actions) {
		return nil, &errs.DeserializationError{
			Record: string(result),
			Reason: fmt.Sprintf("batch of %d answered with %d records", len(actions), len(resp.Orders)),
		}
	}
	return resp.Orders, nil
}

// CancelAllOrders cancels every open order, or only those on contractID,
// in one signed request. It returns how many orders were cancelled.
func (s *TradeSession) CancelAllOrders(ctx context.Context, contractID *uint32) (int, error) {
	req, err := transaction.BuildCancelAll(s.c.AccountID(), s.c.nonce(), contractID, s.c.credential)
	if err != nil {
		return 0, err
	}
	result, err := s.ws.Call(ctx, transport.MethodOrdersCancel, req, req.Signature)
	if err != nil {
		return 0, fmt.Errorf("ws cancel all: %w", err)
	}
	var resp struct {
		Cancelled int `json:"cancelled"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, &errs.DeserializationError{Record: string(result), Reason: err.Error()}
	}
	s.c.log.Infow("ws_orders_cancelled", "count", resp.Cancelled)
	return resp.Cancelled, nil
}
