package payload

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// DecodedOrder is the signed content of an order payload read back.
type DecodedOrder struct {
	Nonce          uint64
	ContractID     uint32
	Quantity       decimal.Decimal
	Side           types.Side
	Price          *decimal.Decimal
	MaxFeesPercent decimal.Decimal
}

// DecodeOrder parses a create/update payload. Market and limit orders are
// told apart by length.
func DecodeOrder(b []byte, c types.Contract) (DecodedOrder, error) {
	if len(b) != marketOrderLen && len(b) != limitOrderLen {
		return DecodedOrder{}, fmt.Errorf("%w: order payload is %d bytes", errs.ErrDeserialization, len(b))
	}
	var d DecodedOrder
	d.Nonce = binary.BigEndian.Uint64(b[0:8])
	d.ContractID = binary.BigEndian.Uint32(b[8:12])
	d.Quantity = UnscaleQuantity(binary.BigEndian.Uint64(b[12:20]), c)
	switch binary.BigEndian.Uint32(b[20:24]) {
	case 0:
		d.Side = types.SideAsk
	case 1:
		d.Side = types.SideBid
	default:
		return DecodedOrder{}, fmt.Errorf("%w: side flag %d", errs.ErrDeserialization, binary.BigEndian.Uint32(b[20:24]))
	}
	rest := b[24:]
	if len(b) == limitOrderLen {
		p := UnscalePrice(binary.BigEndian.Uint64(rest[:8]), c)
		d.Price = &p
		rest = rest[8:]
	}
	d.MaxFeesPercent = UnscaleFee(binary.BigEndian.Uint64(rest))
	return d, nil
}

type DecodedWithdraw struct {
	AssetID  uint32
	Quantity decimal.Decimal
	MaxFees  decimal.Decimal
	Address  string
}

func DecodeWithdraw(b []byte) (DecodedWithdraw, error) {
	if len(b) != withdrawLen {
		return DecodedWithdraw{}, fmt.Errorf("%w: withdraw payload is %d bytes", errs.ErrDeserialization, len(b))
	}
	return DecodedWithdraw{
		AssetID:  binary.BigEndian.Uint32(b[0:4]),
		Quantity: unscaled(binary.BigEndian.Uint64(b[4:12]), -CapitalDecimals),
		MaxFees:  unscaled(binary.BigEndian.Uint64(b[12:20]), -CapitalDecimals),
		Address:  hex.EncodeToString(b[20:40]),
	}, nil
}

type DecodedTransfer struct {
	Nonce      uint64
	AssetID    uint32
	Quantity   decimal.Decimal
	DstAddress string
	Fee        uint64
}

func DecodeTransfer(b []byte) (DecodedTransfer, error) {
	if len(b) != transferLen {
		return DecodedTransfer{}, fmt.Errorf("%w: transfer payload is %d bytes", errs.ErrDeserialization, len(b))
	}
	return DecodedTransfer{
		Nonce:      binary.BigEndian.Uint64(b[0:8]),
		AssetID:    binary.BigEndian.Uint32(b[8:12]),
		Quantity:   unscaled(binary.BigEndian.Uint64(b[12:20]), -CapitalDecimals),
		DstAddress: hex.EncodeToString(b[20:40]),
		Fee:        binary.BigEndian.Uint64(b[40:48]),
	}, nil
}

func UnscaleQuantity(v uint64, c types.Contract) decimal.Decimal {
	return unscaled(v, -c.UnderlyingDecimals)
}

// UnscalePrice inverts ScalePrice. Truncation in ScalePrice means the
// result can differ from the original price below the contract's tick.
func UnscalePrice(v uint64, c types.Contract) decimal.Decimal {
	return unscaled(v, 0).DivRound(priceFactor(c), 16)
}

func UnscaleFee(v uint64) decimal.Decimal {
	return unscaled(v, -FeeDecimals)
}

func unscaled(v uint64, exp int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), exp)
}
