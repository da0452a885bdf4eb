package sandbox

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/uhyunpark/hibachi/pkg/crypto"
	"github.com/uhyunpark/hibachi/pkg/numeric"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// Seed is the sandbox's starting state, usually read from YAML. Decimal
// values are strings so they survive the YAML round trip exactly.
type Seed struct {
	Status          types.ExchangeStatus `yaml:"status"`
	MaintenanceNote string               `yaml:"maintenanceNote"`
	Fees            FeeSeed              `yaml:"fees"`
	Contracts       []ContractSeed       `yaml:"contracts"`
	Accounts        []AccountSeed        `yaml:"accounts"`
}

type FeeSeed struct {
	WithdrawalFees        string      `yaml:"withdrawalFees"`
	TransferFeeRate       string      `yaml:"transferFeeRate"`
	TradeMakerFeeRate     string      `yaml:"tradeMakerFeeRate"`
	TradeTakerFeeRate     string      `yaml:"tradeTakerFeeRate"`
	InstantWithdrawalFees [][2]string `yaml:"instantWithdrawalFees"`
}

type ContractSeed struct {
	ID                 uint32 `yaml:"id"`
	Symbol             string `yaml:"symbol"`
	DisplayName        string `yaml:"displayName"`
	UnderlyingSymbol   string `yaml:"underlyingSymbol"`
	UnderlyingDecimals int32  `yaml:"underlyingDecimals"`
	SettlementSymbol   string `yaml:"settlementSymbol"`
	SettlementDecimals int32  `yaml:"settlementDecimals"`
	TickSize           string `yaml:"tickSize"`
	StepSize           string `yaml:"stepSize"`
	MinNotional        string `yaml:"minNotional"`
	MinOrderSize       string `yaml:"minOrderSize"`
}

// AccountSeed is an account the sandbox accepts requests for. Exactly one
// of Address and HMACSecret is set.
// AccountSeed identifies an EC account by Address, by PublicKey (a 20-byte
// address or a 65-byte uncompressed key) or by both when they agree. HMAC
// accounts set HMACSecret alone.
type AccountSeed struct {
	AccountID  uint64 `yaml:"accountId"`
	APIKey     string `yaml:"apiKey"`
	Address    string `yaml:"address"`
	PublicKey  string `yaml:"publicKey"`
	HMACSecret string `yaml:"hmacSecret"`
}

// DefaultSeed lists two USDT settled perpetuals and no accounts.
func DefaultSeed() Seed {
	return Seed{
		Status: types.ExchangeNormal,
		Fees: FeeSeed{
			WithdrawalFees:    "1",
			TransferFeeRate:   "0.0001",
			TradeMakerFeeRate: "0.00015",
			TradeTakerFeeRate: "0.00045",
			InstantWithdrawalFees: [][2]string{
				{"1000", "2"},
				{"100", "5"},
				{"0", "10"},
			},
		},
		Contracts: []ContractSeed{
			{
				ID: 2, Symbol: "BTC/USDT-P", DisplayName: "BTC/USDT Perps",
				UnderlyingSymbol: "BTC", UnderlyingDecimals: 10,
				SettlementSymbol: "USDT", SettlementDecimals: 6,
				TickSize: "0.000001", StepSize: "0.0000000001",
				MinNotional: "1", MinOrderSize: "0.0000000001",
			},
			{
				ID: 3, Symbol: "ETH/USDT-P", DisplayName: "ETH/USDT Perps",
				UnderlyingSymbol: "ETH", UnderlyingDecimals: 9,
				SettlementSymbol: "USDT", SettlementDecimals: 6,
				TickSize: "0.000001", StepSize: "0.000000001",
				MinNotional: "1", MinOrderSize: "0.000000001",
			},
		},
	}
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	if s.Status == "" {
		s.Status = types.ExchangeNormal
	}
	return s, nil
}

// ExchangeInfo renders the seed as the exchange-info document.
func (s Seed) ExchangeInfo() (types.ExchangeInfo, error) {
	info := types.ExchangeInfo{Status: s.Status}
	if s.Status == types.ExchangeScheduledMaintenance && s.MaintenanceNote != "" {
		info.CurrentMaintenanceWindow = &types.MaintenanceWindow{Note: s.MaintenanceNote}
	}

	var err error
	fc := &info.FeeConfig
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&fc.WithdrawalFees, s.Fees.WithdrawalFees},
		{&fc.TransferFeeRate, s.Fees.TransferFeeRate},
		{&fc.TradeMakerFeeRate, s.Fees.TradeMakerFeeRate},
		{&fc.TradeTakerFeeRate, s.Fees.TradeTakerFeeRate},
	} {
		if *f.dst, err = optionalDecimal(f.src); err != nil {
			return types.ExchangeInfo{}, fmt.Errorf("fees: %w", err)
		}
	}
	for _, tier := range s.Fees.InstantWithdrawalFees {
		threshold, err := numeric.Parse(tier[0])
		if err != nil {
			return types.ExchangeInfo{}, fmt.Errorf("withdrawal fee tier: %w", err)
		}
		fee, err := numeric.Parse(tier[1])
		if err != nil {
			return types.ExchangeInfo{}, fmt.Errorf("withdrawal fee tier: %w", err)
		}
		fc.InstantWithdrawalFees = append(fc.InstantWithdrawalFees, []decimal.Decimal{threshold, fee})
	}

	for _, cs := range s.Contracts {
		c, err := cs.contract()
		if err != nil {
			return types.ExchangeInfo{}, fmt.Errorf("contract %s: %w", cs.Symbol, err)
		}
		info.FutureContracts = append(info.FutureContracts, c)
	}
	return info, nil
}

func (cs ContractSeed) contract() (types.Contract, error) {
	c := types.Contract{
		ID:                     cs.ID,
		Symbol:                 cs.Symbol,
		DisplayName:            cs.DisplayName,
		UnderlyingSymbol:       cs.UnderlyingSymbol,
		UnderlyingDecimals:     cs.UnderlyingDecimals,
		SettlementSymbol:       cs.SettlementSymbol,
		SettlementDecimals:     cs.SettlementDecimals,
		OrderbookGranularities: []string{"0.01", "0.1", "1", "10"},
		Status:                 "LIVE",
	}
	var err error
	if c.TickSize, err = optionalDecimal(cs.TickSize); err != nil {
		return types.Contract{}, err
	}
	if c.StepSize, err = optionalDecimal(cs.StepSize); err != nil {
		return types.Contract{}, err
	}
	if c.MinNotional, err = optionalDecimal(cs.MinNotional); err != nil {
		return types.Contract{}, err
	}
	if c.MinOrderSize, err = optionalDecimal(cs.MinOrderSize); err != nil {
		return types.Contract{}, err
	}
	return c, nil
}

// Account resolves the seed entry to the key requests are verified with.
func (a AccountSeed) Account() (Account, error) {
	if a.APIKey == "" {
		return Account{}, fmt.Errorf("account %d has no api key", a.AccountID)
	}
	key := transaction.AccountKey{HMACSecret: a.HMACSecret}
	switch {
	case a.HMACSecret != "" && (a.Address != "" || a.PublicKey != ""):
		return Account{}, fmt.Errorf("account %d sets both an ec key and an hmac secret", a.AccountID)
	case a.HMACSecret == "":
		addr, err := a.address()
		if err != nil {
			return Account{}, fmt.Errorf("account %d: %w", a.AccountID, err)
		}
		key.Address = addr
	}
	return Account{ID: a.AccountID, APIKey: a.APIKey, Key: key}, nil
}

func (a AccountSeed) address() (common.Address, error) {
	if a.Address != "" && !common.IsHexAddress(a.Address) {
		return common.Address{}, fmt.Errorf("invalid address %q", a.Address)
	}
	if a.PublicKey == "" {
		if a.Address == "" {
			return common.Address{}, fmt.Errorf("no address or public key")
		}
		return common.HexToAddress(a.Address), nil
	}
	derived, err := crypto.AddressFromKeyHex(a.PublicKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("public key: %w", err)
	}
	addr := common.HexToAddress(derived)
	if a.Address != "" && common.HexToAddress(a.Address) != addr {
		return common.Address{}, fmt.Errorf("address %s does not match public key address %s", a.Address, derived)
	}
	return addr, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return numeric.Parse(s)
}
