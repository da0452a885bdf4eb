package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/crypto"
	"github.com/uhyunpark/hibachi/pkg/numeric"
	"github.com/uhyunpark/hibachi/pkg/payload"
	"github.com/uhyunpark/hibachi/pkg/types"
)

var ErrInvalidSignature = errors.New("invalid signature")

// AccountKey is what the verifying side holds for an account: the address
// of its EC key, or its HMAC secret.
type AccountKey struct {
	Address    common.Address
	HMACSecret string
}

// Check verifies sig over raw with whichever scheme the key carries.
func (k AccountKey) Check(raw []byte, sig string) error {
	if k.HMACSecret != "" {
		if !crypto.NewHMACSigner(k.HMACSecret).Verify(raw, sig) {
			return fmt.Errorf("%w: hmac mismatch", ErrInvalidSignature)
		}
		return nil
	}
	recovered, err := crypto.RecoverSigner(raw, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if recovered != k.Address {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, recovered.Hex())
	}
	return nil
}

// Contracts is the metadata the verifier rebuilds payloads from.
type Contracts interface {
	payload.ContractLookup
	AssetLookup
}

// Verifier rebuilds the canonical payload of a received request and checks
// its signature, the exchange side of BuildRecord.
type Verifier struct {
	contracts Contracts
}

// NewVerifier creates a new request verifier
func NewVerifier(contracts Contracts) *Verifier {
	return &Verifier{contracts: contracts}
}

// PlacePayload rebuilds the signed bytes of a place record.
func (v *Verifier) PlacePayload(r PlaceRecord) ([]byte, error) {
	fields, err := orderFields(r.Nonce, r.Side, r.Quantity, r.Price, r.MaxFeesPercent)
	if err != nil {
		return nil, err
	}
	return payload.EncodeOrderFor(v.contracts, r.Symbol, fields)
}

// ModifyPayload rebuilds the signed bytes of a modify record. Symbol and
// side are not on the wire and come from the order being modified.
func (v *Verifier) ModifyPayload(r ModifyRecord, existing types.Order) ([]byte, error) {
	fields, err := orderFields(r.Nonce, existing.Side, r.Quantity, r.Price, r.MaxFeesPercent)
	if err != nil {
		return nil, err
	}
	return payload.EncodeOrderFor(v.contracts, existing.Symbol, fields)
}

func (v *Verifier) CancelPayload(r CancelRecord) ([]byte, error) {
	target, err := r.Target()
	if err != nil {
		return nil, err
	}
	return payload.EncodeCancel(target), nil
}

func (v *Verifier) CancelAllPayload(r CancelAllRequest) []byte {
	return payload.EncodeCancel(types.ByNonce(r.Nonce))
}

func (v *Verifier) WithdrawPayload(r WithdrawRequest) ([]byte, error) {
	assetID, err := v.contracts.AssetID(r.Coin)
	if err != nil {
		return nil, err
	}
	qty, err := numeric.Parse(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	fees, err := numeric.Parse(r.MaxFees)
	if err != nil {
		return nil, fmt.Errorf("max fees: %w", err)
	}
	return payload.EncodeWithdraw(assetID, qty, fees, r.WithdrawAddress)
}

func (v *Verifier) TransferPayload(r TransferRequest) ([]byte, error) {
	assetID, err := v.contracts.AssetID(r.Coin)
	if err != nil {
		return nil, err
	}
	qty, err := numeric.Parse(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	fees, err := numeric.Parse(r.Fees)
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}
	return payload.EncodeTransfer(r.Nonce, assetID, qty, r.DstPublicKey, fees)
}

// VerifyRecord checks a place, modify or cancel record. existing is only
// consulted for modify records.
func (v *Verifier) VerifyRecord(key AccountKey, r Record, existing types.Order) error {
	var (
		raw []byte
		err error
	)
	switch rec := r.(type) {
	case PlaceRecord:
		raw, err = v.PlacePayload(rec)
	case ModifyRecord:
		raw, err = v.ModifyPayload(rec, existing)
	case CancelRecord:
		raw, err = v.CancelPayload(rec)
	default:
		return fmt.Errorf("unsupported record type %T", r)
	}
	if err != nil {
		return fmt.Errorf("rebuild payload: %w", err)
	}
	return key.Check(raw, r.Sig())
}

func orderFields(nonce uint64, side types.Side, qty, price, fee string) (payload.OrderFields, error) {
	s, err := side.Normalize()
	if err != nil {
		return payload.OrderFields{}, err
	}
	q, err := numeric.Parse(qty)
	if err != nil {
		return payload.OrderFields{}, fmt.Errorf("quantity: %w", err)
	}
	f, err := numeric.Parse(fee)
	if err != nil {
		return payload.OrderFields{}, fmt.Errorf("max fees percent: %w", err)
	}
	var p *decimal.Decimal
	if price != "" {
		d, err := numeric.Parse(price)
		if err != nil {
			return payload.OrderFields{}, fmt.Errorf("price: %w", err)
		}
		p = &d
	}
	return payload.OrderFields{Nonce: nonce, Quantity: q, Side: s, Price: p, MaxFeesPercent: f}, nil
}
