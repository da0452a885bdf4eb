package client

import (
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// Withdraw sends quantity of coin to an external address. An empty network
// means transaction.DefaultNetwork. It returns the withdrawal's order id.
func (c *Client) Withdraw(ctx context.Context, coin, address string, quantity, maxFees decimal.Decimal, network string) (uint64, error) {
	if err := c.ensureContracts(ctx); err != nil {
		return 0, err
	}
	req, err := transaction.Withdraw{
		Coin:     coin,
		Address:  address,
		Quantity: quantity,
		MaxFees:  maxFees,
		Network:  network,
	}.Build(c.AccountID(), c.contracts, c.credential)
	if err != nil {
		return 0, err
	}

	body, err := c.transport.Do(ctx, http.MethodPost, "/capital/withdraw", req)
	if err != nil {
		return 0, fmt.Errorf("withdraw %s: %w", coin, err)
	}
	var resp struct {
		OrderID types.FlexUint64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &errs.DeserializationError{Record: string(body), Reason: err.Error()}
	}
	c.log.Infow("withdraw_submitted", "coin", coin, "quantity", req.Quantity, "network", req.Network, "order_id", uint64(resp.OrderID))
	return uint64(resp.OrderID), nil
}

// Transfer moves quantity of coin to the account owning dstPublicKey. An
// empty dstPublicKey falls back to the configured transfer destination.
// It returns the exchange's status string.
func (c *Client) Transfer(ctx context.Context, coin, dstPublicKey string, quantity, maxFeesPercent decimal.Decimal) (string, error) {
	if dstPublicKey == "" {
		dstPublicKey = c.cfg.Account.TransferDstPublicKey
	}
	if dstPublicKey == "" {
		return "", errs.Validationf("transfer destination is required")
	}
	if err := c.ensureContracts(ctx); err != nil {
		return "", err
	}
	nonce := c.nonce()
	req, err := transaction.Transfer{
		Coin:           coin,
		DstPublicKey:   dstPublicKey,
		Quantity:       quantity,
		MaxFeesPercent: maxFeesPercent,
	}.Build(c.AccountID(), nonce, c.contracts, c.credential)
	if err != nil {
		return "", err
	}

	body, err := c.transport.Do(ctx, http.MethodPost, "/capital/transfer", req)
	if err != nil {
		return "", fmt.Errorf("transfer %s: %w", coin, err)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &errs.DeserializationError{Record: string(body), Reason: err.Error()}
	}
	c.log.Infow("transfer_submitted", "coin", coin, "quantity", req.Quantity, "nonce", nonce, "status", resp.Status)
	return resp.Status, nil
}

// WithdrawalFee fetches the current fee schedule and returns the instant
// withdrawal fee for amount.
func (c *Client) WithdrawalFee(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	info, err := c.ExchangeInfo(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return info.WithdrawalFee(amount)
}
