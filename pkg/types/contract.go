package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

// Contract is the per-symbol metadata the encoder scales against.
type Contract struct {
	ID                      uint32          `json:"id"`
	Symbol                  string          `json:"symbol"`
	DisplayName             string          `json:"displayName"`
	UnderlyingSymbol        string          `json:"underlyingSymbol"`
	UnderlyingDecimals      int32           `json:"underlyingDecimals"`
	SettlementSymbol        string          `json:"settlementSymbol"`
	SettlementDecimals      int32           `json:"settlementDecimals"`
	TickSize                decimal.Decimal `json:"tickSize"`
	StepSize                decimal.Decimal `json:"stepSize"`
	MinNotional             decimal.Decimal `json:"minNotional"`
	MinOrderSize            decimal.Decimal `json:"minOrderSize"`
	OrderbookGranularities  []string        `json:"orderbookGranularities"`
	InitialMarginRate       decimal.Decimal `json:"initialMarginRate"`
	MaintenanceMarginRate   decimal.Decimal `json:"maintenanceMarginRate"`
	Status                  string          `json:"status"`
	MarketOpenTimestamp     *string         `json:"marketOpenTimestamp,omitempty"`
	MarketCloseTimestamp    *string         `json:"marketCloseTimestamp,omitempty"`
	MarketCreationTimestamp *string         `json:"marketCreationTimestamp,omitempty"`
}

// ContractRegistry is a symbol keyed contract table, safe for concurrent
// readers. Insertion order is kept so coin to asset lookups are stable.
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]Contract
	order     []string
}

// NewContractRegistry creates an empty registry
func NewContractRegistry() *ContractRegistry {
	return &ContractRegistry{
		contracts: make(map[string]Contract),
	}
}

// Register adds a contract. Returns error if the symbol is already present.
func (r *ContractRegistry) Register(c Contract) error {
	if c.Symbol == "" {
		return fmt.Errorf("cannot register contract without symbol")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[c.Symbol]; exists {
		return fmt.Errorf("contract %s already registered", c.Symbol)
	}
	r.contracts[c.Symbol] = c
	r.order = append(r.order, c.Symbol)
	return nil
}

// Replace swaps the whole table, used when exchange info is refreshed.
func (r *ContractRegistry) Replace(contracts []Contract) {
	m := make(map[string]Contract, len(contracts))
	order := make([]string, 0, len(contracts))
	for _, c := range contracts {
		if _, dup := m[c.Symbol]; !dup {
			order = append(order, c.Symbol)
		}
		m[c.Symbol] = c
	}

	r.mu.Lock()
	r.contracts = m
	r.order = order
	r.mu.Unlock()
}

// Get retrieves a contract by symbol, failing with errs.ErrContractNotFound.
func (r *ContractRegistry) Get(symbol string) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.contracts[symbol]
	if !exists {
		return Contract{}, fmt.Errorf("%w: %s", errs.ErrContractNotFound, symbol)
	}
	return c, nil
}

// List returns all contracts ordered by id.
func (r *ContractRegistry) List() []Contract {
	r.mu.RLock()
	out := make([]Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssetID returns the id of the first registered contract settled in coin.
// Withdrawals and transfers sign over this id.
func (r *ContractRegistry) AssetID(coin string) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sym := range r.order {
		if c := r.contracts[sym]; c.SettlementSymbol == coin {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: no contract settles in %s", errs.ErrContractNotFound, coin)
}

func (r *ContractRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}

func (r *ContractRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.contracts[symbol]
	return exists
}

type FeeConfig struct {
	DepositFees                 decimal.Decimal     `json:"depositFees"`
	InstantWithdrawDstPublicKey string              `json:"instantWithdrawDstPublicKey"`
	InstantWithdrawalFees       [][]decimal.Decimal `json:"instantWithdrawalFees"`
	TradeMakerFeeRate           decimal.Decimal     `json:"tradeMakerFeeRate"`
	TradeTakerFeeRate           decimal.Decimal     `json:"tradeTakerFeeRate"`
	TransferFeeRate             decimal.Decimal     `json:"transferFeeRate"`
	WithdrawalFees              decimal.Decimal     `json:"withdrawalFees"`
}

type WithdrawalLimit struct {
	LowerLimit decimal.Decimal `json:"lowerLimit"`
	UpperLimit decimal.Decimal `json:"upperLimit"`
}

type MaintenanceWindow struct {
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
	Note  string  `json:"note"`
}

type ExchangeInfo struct {
	FeeConfig                FeeConfig           `json:"feeConfig"`
	FutureContracts          []Contract          `json:"futureContracts"`
	InstantWithdrawalLimit   WithdrawalLimit     `json:"instantWithdrawalLimit"`
	MaintenanceWindow        []MaintenanceWindow `json:"maintenanceWindow"`
	CurrentMaintenanceWindow *MaintenanceWindow  `json:"currentMaintenanceWindow,omitempty"`
	Status                   ExchangeStatus      `json:"status"`
}

// CheckMaintenance returns errs.ErrMaintenance unless the exchange reports
// NORMAL. Scheduled maintenance includes the window and note when present.
func (info ExchangeInfo) CheckMaintenance() error {
	switch info.Status {
	case ExchangeNormal:
		return nil
	case ExchangeUnscheduledMaintenance:
		return fmt.Errorf("%w: exchange is currently undergoing unscheduled maintenance", errs.ErrMaintenance)
	case ExchangeScheduledMaintenance:
	default:
		return fmt.Errorf("%w: exchange is currently unavailable (status: %s)", errs.ErrMaintenance, info.Status)
	}

	parts := []string{"exchange is currently undergoing scheduled maintenance"}
	if w := info.CurrentMaintenanceWindow; w != nil {
		if w.Begin > 0 || w.End > 0 {
			parts[0] += fmt.Sprintf(" from %s to %s", windowTime(w.Begin), windowTime(w.End))
		}
		if w.Note != "" {
			parts = append(parts, "Reason: "+w.Note)
		}
	}
	return fmt.Errorf("%w: %s", errs.ErrMaintenance, strings.Join(parts, ". "))
}

func windowTime(ts float64) string {
	if ts <= 0 {
		return "<unknown>"
	}
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// WithdrawalFee picks the instant withdrawal fee tier for amount: the tier
// with the highest threshold not above amount, or the lowest tier if amount
// is below all of them.
func (info ExchangeInfo) WithdrawalFee(amount decimal.Decimal) (decimal.Decimal, error) {
	tiers := make([][]decimal.Decimal, 0, len(info.FeeConfig.InstantWithdrawalFees))
	for _, t := range info.FeeConfig.InstantWithdrawalFees {
		if len(t) != 2 {
			return decimal.Decimal{}, fmt.Errorf("%w: malformed withdrawal fee tier %v", errs.ErrDeserialization, t)
		}
		tiers = append(tiers, t)
	}
	if len(tiers) == 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: no withdrawal fee tiers", errs.ErrDeserialization)
	}

	sort.Slice(tiers, func(i, j int) bool { return tiers[i][0].GreaterThan(tiers[j][0]) })
	for _, t := range tiers {
		if amount.GreaterThanOrEqual(t[0]) {
			return t[1], nil
		}
	}
	return tiers[len(tiers)-1][1], nil
}
