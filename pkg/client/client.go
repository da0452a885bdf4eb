// Package client is the exchange client: it composes, signs and submits
// orders and capital movements, and reads back order state.
package client

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/uhyunpark/hibachi/params"
	"github.com/uhyunpark/hibachi/pkg/crypto"
	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/transport"
	"github.com/uhyunpark/hibachi/pkg/types"
	"github.com/uhyunpark/hibachi/pkg/util"
)

type Client struct {
	cfg        params.Config
	transport  transport.Transport
	credential crypto.Credential
	contracts  *types.ContractRegistry
	clock      util.Clock
	log        *zap.SugaredLogger
}

type Option func(*Client)

func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l.Sugar() }
}

func WithClock(clock util.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithCredential overrides the key derived from the account's private key.
func WithCredential(cred crypto.Credential) Option {
	return func(c *Client) { c.credential = cred }
}

// New builds a client for cfg. Without WithTransport it talks HTTP to the
// configured endpoints.
func New(cfg params.Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		contracts: types.NewContractRegistry(),
		clock:     util.RealClock{},
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.credential == nil {
		cred, err := crypto.NewCredential(cfg.Account.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load credential: %w", err)
		}
		c.credential = cred
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(transport.HTTPConfig{
			APIEndpoint:       cfg.Exchange.APIEndpoint,
			DataAPIEndpoint:   cfg.Exchange.DataAPIEndpoint,
			APIKey:            cfg.Account.APIKey,
			ClientID:          cfg.Exchange.ClientID,
			Timeout:           cfg.Transport.HTTPTimeout,
			RequestsPerSecond: cfg.Transport.RequestsPerSecond,
			MaxRetries:        cfg.Transport.MaxRetries,
			Logger:            c.log,
		})
	}

	c.log.Debugw("client_initialized",
		"environment", cfg.Exchange.Environment,
		"account_id", cfg.Account.AccountID,
		"scheme", c.credential.Scheme().String(),
	)
	return c, nil
}

// Contracts is the client's contract table, filled by LoadContracts.
func (c *Client) Contracts() *types.ContractRegistry { return c.contracts }

func (c *Client) AccountID() uint64 { return c.cfg.Account.AccountID }

// ExchangeInfo fetches the exchange's contracts, fee schedule and status,
// and refreshes the contract table.
func (c *Client) ExchangeInfo(ctx context.Context) (types.ExchangeInfo, error) {
	body, err := c.transport.Get(ctx, "/market/exchange-info")
	if err != nil {
		return types.ExchangeInfo{}, fmt.Errorf("get exchange info: %w", err)
	}
	var info types.ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return types.ExchangeInfo{}, &errs.DeserializationError{Record: string(body), Reason: err.Error()}
	}
	c.contracts.Replace(info.FutureContracts)
	c.log.Debugw("contracts_loaded", "count", len(info.FutureContracts), "status", info.Status)
	return info, nil
}

// LoadContracts refreshes the contract table.
func (c *Client) LoadContracts(ctx context.Context) error {
	_, err := c.ExchangeInfo(ctx)
	return err
}

// CheckMaintenance reports errs.ErrMaintenance while the exchange is not
// in normal operation.
func (c *Client) CheckMaintenance(ctx context.Context) error {
	info, err := c.ExchangeInfo(ctx)
	if err != nil {
		return err
	}
	return info.CheckMaintenance()
}

// ensureContracts loads the contract table on first use.
func (c *Client) ensureContracts(ctx context.Context) error {
	if c.contracts.Count() > 0 {
		return nil
	}
	return c.LoadContracts(ctx)
}

func (c *Client) nonce() uint64 {
	return util.Nonce(c.clock)
}
