// Package payload builds the canonical byte strings the exchange verifies
// signatures over. Every integer is big-endian and every encoder is pure.
package payload

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/types"
)

const (
	// CapitalDecimals is the fixed scale of withdraw and transfer amounts.
	// The exchange assumes 6 decimal settlement assets here rather than
	// reading the asset's metadata, so neither does the encoder.
	CapitalDecimals = 6
	// FeeDecimals is the scale of maxFeesPercent in order payloads.
	FeeDecimals = 8

	AddressLength = 20

	orderLen       = 8 + 4 + 8 + 4 + 8
	priceLen       = 8
	cancelLen      = 8
	withdrawLen    = 4 + 8 + 8 + AddressLength
	transferLen    = 8 + 4 + 8 + AddressLength + 8
	limitOrderLen  = orderLen + priceLen
	marketOrderLen = orderLen
)

var priceBase = decimal.NewFromInt(1 << 32)

// ContractLookup resolves a symbol to its contract metadata.
type ContractLookup interface {
	Get(symbol string) (types.Contract, error)
}

// OrderFields are the signed fields of a create or update order request.
// Side must already be normalized to BID or ASK. A nil Price encodes a
// market order.
type OrderFields struct {
	Nonce          uint64
	Quantity       decimal.Decimal
	Side           types.Side
	Price          *decimal.Decimal
	MaxFeesPercent decimal.Decimal
}

// EncodeOrder lays out nonce, contract id, quantity, side, price (limit
// orders only) and fee cap.
func EncodeOrder(c types.Contract, f OrderFields) ([]byte, error) {
	if f.Side != types.SideBid && f.Side != types.SideAsk {
		return nil, errs.Validationf("side %q is not normalized", string(f.Side))
	}
	qty, err := ScaleQuantity(f.Quantity, c)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	fee, err := ScaleFee(f.MaxFeesPercent)
	if err != nil {
		return nil, fmt.Errorf("max fees percent: %w", err)
	}

	size := marketOrderLen
	if f.Price != nil {
		size = limitOrderLen
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint64(buf, f.Nonce)
	buf = binary.BigEndian.AppendUint32(buf, c.ID)
	buf = binary.BigEndian.AppendUint64(buf, qty)
	buf = binary.BigEndian.AppendUint32(buf, f.Side.Flag())
	if f.Price != nil {
		price, err := ScalePrice(*f.Price, c)
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		buf = binary.BigEndian.AppendUint64(buf, price)
	}
	buf = binary.BigEndian.AppendUint64(buf, fee)
	return buf, nil
}

// EncodeOrderFor looks the symbol up and encodes. It fails closed with
// errs.ErrContractNotFound for unknown symbols.
func EncodeOrderFor(contracts ContractLookup, symbol string, f OrderFields) ([]byte, error) {
	c, err := contracts.Get(symbol)
	if err != nil {
		return nil, err
	}
	return EncodeOrder(c, f)
}

// EncodeCancel encodes the order id, or the creation nonce when the target
// is identified by nonce.
func EncodeCancel(target types.OrderIdentity) []byte {
	if id, ok := target.OrderID(); ok {
		return binary.BigEndian.AppendUint64(make([]byte, 0, cancelLen), id)
	}
	nonce, _ := target.Nonce()
	return binary.BigEndian.AppendUint64(make([]byte, 0, cancelLen), nonce)
}

// EncodeWithdraw lays out asset id, quantity, max fees and the 20 byte
// destination address. Amounts use CapitalDecimals.
func EncodeWithdraw(assetID uint32, quantity, maxFees decimal.Decimal, address string) ([]byte, error) {
	addr, err := DecodeAddress(address)
	if err != nil {
		return nil, err
	}
	qty, err := scale(quantity, decimal.New(1, CapitalDecimals))
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	fees, err := scale(maxFees, decimal.New(1, CapitalDecimals))
	if err != nil {
		return nil, fmt.Errorf("max fees: %w", err)
	}

	buf := make([]byte, 0, withdrawLen)
	buf = binary.BigEndian.AppendUint32(buf, assetID)
	buf = binary.BigEndian.AppendUint64(buf, qty)
	buf = binary.BigEndian.AppendUint64(buf, fees)
	buf = append(buf, addr...)
	return buf, nil
}

// EncodeTransfer lays out nonce, asset id, quantity, destination address
// and fee. The quantity uses CapitalDecimals; the fee is truncated to an
// integer without scaling, see TransferFee.
func EncodeTransfer(nonce uint64, assetID uint32, quantity decimal.Decimal, dstAddress string, maxFeesPercent decimal.Decimal) ([]byte, error) {
	addr, err := DecodeAddress(dstAddress)
	if err != nil {
		return nil, err
	}
	qty, err := scale(quantity, decimal.New(1, CapitalDecimals))
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	fee, err := TransferFee(maxFeesPercent)
	if err != nil {
		return nil, fmt.Errorf("max fees percent: %w", err)
	}

	buf := make([]byte, 0, transferLen)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	buf = binary.BigEndian.AppendUint32(buf, assetID)
	buf = binary.BigEndian.AppendUint64(buf, qty)
	buf = append(buf, addr...)
	buf = binary.BigEndian.AppendUint64(buf, fee)
	return buf, nil
}

// TransferFee is the fee field of a transfer payload. The exchange's
// reference signer takes the integer part of the fee percent with no
// 10^6 or 10^8 scale, unlike every other amount. Kept as observed so
// signatures stay valid.
func TransferFee(maxFeesPercent decimal.Decimal) (uint64, error) {
	return scale(maxFeesPercent, decimal.NewFromInt(1))
}

func ScaleQuantity(q decimal.Decimal, c types.Contract) (uint64, error) {
	return scale(q, decimal.New(1, c.UnderlyingDecimals))
}

// ScalePrice converts a price into the exchange's fixed point form,
// price * 2^32 * 10^(settlementDecimals - underlyingDecimals).
func ScalePrice(p decimal.Decimal, c types.Contract) (uint64, error) {
	return scale(p, priceFactor(c))
}

func ScaleFee(f decimal.Decimal) (uint64, error) {
	return scale(f, decimal.New(1, FeeDecimals))
}

func priceFactor(c types.Contract) decimal.Decimal {
	return priceBase.Mul(decimal.New(1, c.SettlementDecimals-c.UnderlyingDecimals))
}

// scale multiplies and truncates toward zero. The result must fit the
// unsigned 8 byte field.
func scale(v, factor decimal.Decimal) (uint64, error) {
	if v.IsNegative() {
		return 0, fmt.Errorf("%w: negative value %s", errs.ErrInvalidNumericInput, v.String())
	}
	n := v.Mul(factor).Truncate(0).BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows 8 bytes", errs.ErrInvalidNumericInput, v.String())
	}
	return n.Uint64(), nil
}

// DecodeAddress strips an optional 0x and hex decodes a 20 byte address.
func DecodeAddress(address string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(address, "0x"))
	if err != nil {
		return nil, errs.Validationf("address %q is not hex: %v", address, err)
	}
	if len(raw) != AddressLength {
		return nil, errs.Validationf("address %q is %d bytes, want %d", address, len(raw), AddressLength)
	}
	return raw, nil
}
