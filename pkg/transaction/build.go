package transaction

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/numeric"
	"github.com/uhyunpark/hibachi/pkg/payload"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// Signer produces the signature text for a canonical payload.
type Signer interface {
	Sign(payload []byte) (string, error)
}

// BuildRecord encodes and signs one action under nonce. Cancel records
// reference their target and ignore nonce.
func BuildRecord(a Action, nonce uint64, contracts payload.ContractLookup, signer Signer) (Record, error) {
	switch act := a.(type) {
	case CreateOrder:
		return act.Build(nonce, contracts, signer)
	case UpdateOrder:
		return act.Build(nonce, contracts, signer)
	case CancelOrder:
		return act.Build(signer)
	default:
		return nil, errs.Validationf("unexpected action type %T", a)
	}
}

// Build signs a new order. The record has no action tag or account id;
// callers set those for the endpoint they target.
func (o CreateOrder) Build(nonce uint64, contracts payload.ContractLookup, signer Signer) (PlaceRecord, error) {
	side, err := o.Side.Normalize()
	if err != nil {
		return PlaceRecord{}, err
	}
	if err := o.Flags.Validate(); err != nil {
		return PlaceRecord{}, err
	}

	raw, err := payload.EncodeOrderFor(contracts, o.Symbol, payload.OrderFields{
		Nonce:          nonce,
		Quantity:       o.Quantity,
		Side:           side,
		Price:          o.Price,
		MaxFeesPercent: o.MaxFeesPercent,
	})
	if err != nil {
		return PlaceRecord{}, fmt.Errorf("encode order %s: %w", o.Symbol, err)
	}
	sig, err := signer.Sign(raw)
	if err != nil {
		return PlaceRecord{}, fmt.Errorf("sign order %s: %w", o.Symbol, err)
	}

	rec := PlaceRecord{
		Nonce:          nonce,
		Symbol:         o.Symbol,
		Quantity:       numeric.Format(o.Quantity),
		OrderType:      types.OrderTypeMarket,
		Side:           side,
		MaxFeesPercent: numeric.Format(o.MaxFeesPercent),
		Signature:      sig,
		ParentOrder:    o.Parent,
		OrderFlags:     o.Flags,
	}
	if o.Price != nil {
		rec.OrderType = types.OrderTypeLimit
		rec.Price = numeric.Format(*o.Price)
	}
	if o.TriggerPrice != nil {
		rec.TriggerPrice = numeric.Format(*o.TriggerPrice)
		rec.TriggerDirection = o.TriggerDirection
	}
	if o.TWAP != nil {
		rec.TWAPDurationMinutes = o.TWAP.DurationMinutes
		rec.TWAPQuantityMode = o.TWAP.QuantityMode
	}
	if o.CreationDeadline != nil {
		rec.CreationDeadline = *o.CreationDeadline
	}
	return rec, nil
}

// Build signs a modification. The payload has the create layout with the
// existing order's symbol and side.
func (u UpdateOrder) Build(nonce uint64, contracts payload.ContractLookup, signer Signer) (ModifyRecord, error) {
	side, err := u.Side.Normalize()
	if err != nil {
		return ModifyRecord{}, err
	}
	if err := u.Flags.Validate(); err != nil {
		return ModifyRecord{}, err
	}

	raw, err := payload.EncodeOrderFor(contracts, u.Symbol, payload.OrderFields{
		Nonce:          nonce,
		Quantity:       u.Quantity,
		Side:           side,
		Price:          u.Price,
		MaxFeesPercent: u.MaxFeesPercent,
	})
	if err != nil {
		return ModifyRecord{}, fmt.Errorf("encode update %d: %w", u.OrderID, err)
	}
	sig, err := signer.Sign(raw)
	if err != nil {
		return ModifyRecord{}, fmt.Errorf("sign update %d: %w", u.OrderID, err)
	}

	qty := numeric.Format(u.Quantity)
	rec := ModifyRecord{
		Nonce:           nonce,
		OrderID:         types.FlexUint64(u.OrderID),
		UpdatedQuantity: qty,
		Quantity:        qty,
		MaxFeesPercent:  numeric.Format(u.MaxFeesPercent),
		OrderFlags:      u.Flags,
		Signature:       sig,
	}
	if u.Price != nil {
		rec.UpdatedPrice = numeric.Format(*u.Price)
		rec.Price = rec.UpdatedPrice
	}
	if u.TriggerPrice != nil {
		rec.UpdatedTriggerPrice = numeric.Format(*u.TriggerPrice)
		rec.TriggerPrice = rec.UpdatedTriggerPrice
	}
	if u.CreationDeadline != nil {
		rec.CreationDeadline = *u.CreationDeadline
	}
	return rec, nil
}

func (c CancelOrder) Build(signer Signer) (CancelRecord, error) {
	sig, err := signer.Sign(payload.EncodeCancel(c.Target))
	if err != nil {
		return CancelRecord{}, fmt.Errorf("sign cancel %s: %w", c.Target, err)
	}
	rec := CancelRecord{Signature: sig}
	if id, ok := c.Target.OrderID(); ok {
		v := types.FlexUint64(id)
		rec.OrderID = &v
	} else {
		n, _ := c.Target.Nonce()
		v := types.FlexUint64(n)
		rec.Nonce = &v
	}
	return rec, nil
}

// AssetLookup resolves a settlement coin to the asset id capital payloads sign over.
type AssetLookup interface {
	AssetID(coin string) (uint32, error)
}

// DefaultNetwork is the withdrawal network used when none is given.
const DefaultNetwork = "arbitrum"

// Withdraw describes a withdrawal to an external address.
type Withdraw struct {
	Coin     string
	Address  string
	Quantity decimal.Decimal
	MaxFees  decimal.Decimal
	Network  string
}

func (w Withdraw) Build(accountID uint64, assets AssetLookup, signer Signer) (WithdrawRequest, error) {
	assetID, err := assets.AssetID(w.Coin)
	if err != nil {
		return WithdrawRequest{}, err
	}
	raw, err := payload.EncodeWithdraw(assetID, w.Quantity, w.MaxFees, w.Address)
	if err != nil {
		return WithdrawRequest{}, fmt.Errorf("encode withdraw: %w", err)
	}
	sig, err := signer.Sign(raw)
	if err != nil {
		return WithdrawRequest{}, fmt.Errorf("sign withdraw: %w", err)
	}
	network := w.Network
	if network == "" {
		network = DefaultNetwork
	}
	return WithdrawRequest{
		AccountID:       accountID,
		Coin:            w.Coin,
		WithdrawAddress: w.Address,
		Network:         network,
		Quantity:        numeric.Format(w.Quantity),
		MaxFees:         numeric.Format(w.MaxFees),
		Signature:       sig,
	}, nil
}

// Transfer moves funds to another account identified by its address.
type Transfer struct {
	Coin           string
	DstPublicKey   string
	Quantity       decimal.Decimal
	MaxFeesPercent decimal.Decimal
}

func (t Transfer) Build(accountID, nonce uint64, assets AssetLookup, signer Signer) (TransferRequest, error) {
	assetID, err := assets.AssetID(t.Coin)
	if err != nil {
		return TransferRequest{}, err
	}
	raw, err := payload.EncodeTransfer(nonce, assetID, t.Quantity, t.DstPublicKey, t.MaxFeesPercent)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("encode transfer: %w", err)
	}
	sig, err := signer.Sign(raw)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("sign transfer: %w", err)
	}
	return TransferRequest{
		AccountID:    accountID,
		Coin:         t.Coin,
		Fees:         numeric.Format(t.MaxFeesPercent),
		Nonce:        nonce,
		Quantity:     numeric.Format(t.Quantity),
		DstPublicKey: strings.TrimPrefix(t.DstPublicKey, "0x"),
		Signature:    sig,
	}, nil
}

// BuildCancelAll signs a request cancelling every open order, or only those
// on contractID when it is set.
func BuildCancelAll(accountID, nonce uint64, contractID *uint32, signer Signer) (CancelAllRequest, error) {
	sig, err := signer.Sign(payload.EncodeCancel(types.ByNonce(nonce)))
	if err != nil {
		return CancelAllRequest{}, fmt.Errorf("sign cancel all: %w", err)
	}
	return CancelAllRequest{AccountID: accountID, Nonce: nonce, ContractID: contractID, Signature: sig}, nil
}
