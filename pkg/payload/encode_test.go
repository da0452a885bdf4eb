package payload

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/types"
)

var btc = types.Contract{
	ID:                 2,
	Symbol:             "BTC/USDT-P",
	UnderlyingDecimals: 10,
	SettlementDecimals: 6,
	SettlementSymbol:   "USDT",
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestEncodeLimitOrderLayout(t *testing.T) {
	got, err := EncodeOrder(btc, OrderFields{
		Nonce:          1,
		Quantity:       dec("0.0001"),
		Side:           types.SideBid,
		Price:          decPtr("50000"),
		MaxFeesPercent: dec("0.0005"),
	})
	if err != nil {
		t.Fatalf("EncodeOrder: %v", err)
	}
	want := mustHex(t, "0000000000000001 00000002 00000000000f4240 00000001 0000000500000000 000000000000c350")
	if !bytes.Equal(got, want) {
		t.Errorf("payload\n got %x\nwant %x", got, want)
	}
}

func TestMarketOrderOmitsPrice(t *testing.T) {
	fields := OrderFields{Nonce: 9, Quantity: dec("1"), Side: types.SideAsk, MaxFeesPercent: dec("0.001")}
	market, err := EncodeOrder(btc, fields)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	fields.Price = decPtr("100")
	limit, err := EncodeOrder(btc, fields)
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	if len(limit)-len(market) != 8 {
		t.Errorf("limit %d bytes, market %d bytes; want a difference of 8", len(limit), len(market))
	}
	if !bytes.Equal(market[:24], limit[:24]) || !bytes.Equal(market[24:], limit[32:]) {
		t.Error("market payload should equal limit payload minus the price field")
	}
	if market[23] != 0 {
		t.Error("ASK must encode as 0")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	f := OrderFields{Nonce: 1714000000000000, Quantity: dec("0.25"), Side: types.SideBid, Price: decPtr("3000.5"), MaxFeesPercent: dec("0.001")}
	a, _ := EncodeOrder(btc, f)
	b, _ := EncodeOrder(btc, f)
	if !bytes.Equal(a, b) {
		t.Error("encoding the same fields twice differed")
	}
}

func TestEncodeOrderFailures(t *testing.T) {
	reg := types.NewContractRegistry()
	reg.Replace([]types.Contract{btc})

	_, err := EncodeOrderFor(reg, "DOGE/USDT-P", OrderFields{Side: types.SideBid})
	if !errors.Is(err, errs.ErrContractNotFound) {
		t.Errorf("unknown symbol err = %v", err)
	}

	_, err = EncodeOrder(btc, OrderFields{Quantity: dec("-1"), Side: types.SideBid})
	if !errors.Is(err, errs.ErrInvalidNumericInput) {
		t.Errorf("negative quantity err = %v", err)
	}

	_, err = EncodeOrder(btc, OrderFields{Quantity: dec("99999999999"), Side: types.SideBid})
	if !errors.Is(err, errs.ErrInvalidNumericInput) {
		t.Errorf("overflow err = %v", err)
	}

	_, err = EncodeOrder(btc, OrderFields{Quantity: dec("1"), Side: types.SideBuy})
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unnormalized side err = %v", err)
	}
}

func TestQuantityRoundTrip(t *testing.T) {
	contracts := []types.Contract{btc, {ID: 3, UnderlyingDecimals: 8, SettlementDecimals: 6}, {ID: 4, UnderlyingDecimals: 0, SettlementDecimals: 6}}
	for _, c := range contracts {
		for _, q := range []string{"0", "1", "0.5", "123.25", "0.00000001"} {
			if c.UnderlyingDecimals == 0 && strings.Contains(q, ".") {
				continue
			}
			scaled, err := ScaleQuantity(dec(q), c)
			if err != nil {
				t.Fatalf("scale %s: %v", q, err)
			}
			if back := UnscaleQuantity(scaled, c); !back.Equal(dec(q)) {
				t.Errorf("decimals %d: %s round-tripped to %s", c.UnderlyingDecimals, q, back)
			}
		}
	}
}

func TestDecodeOrderRoundTrip(t *testing.T) {
	f := OrderFields{Nonce: 42, Quantity: dec("1.5"), Side: types.SideAsk, Price: decPtr("65000"), MaxFeesPercent: dec("0.00045")}
	b, err := EncodeOrder(btc, f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := DecodeOrder(b, btc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Nonce != 42 || d.ContractID != 2 || d.Side != types.SideAsk {
		t.Errorf("decoded header %+v", d)
	}
	if !d.Quantity.Equal(f.Quantity) || !d.MaxFeesPercent.Equal(f.MaxFeesPercent) {
		t.Errorf("decoded amounts %s %s", d.Quantity, d.MaxFeesPercent)
	}
	if d.Price == nil || !d.Price.Equal(*f.Price) {
		t.Errorf("decoded price %v", d.Price)
	}

	if _, err := DecodeOrder(b[:10], btc); !errors.Is(err, errs.ErrDeserialization) {
		t.Errorf("short payload err = %v", err)
	}
}

func TestEncodeCancel(t *testing.T) {
	byID := EncodeCancel(types.ByOrderID(0x0102030405060708))
	if !bytes.Equal(byID, mustHex(t, "0102030405060708")) {
		t.Errorf("by order id = %x", byID)
	}
	byNonce := EncodeCancel(types.ByNonce(5))
	if !bytes.Equal(byNonce, mustHex(t, "0000000000000005")) {
		t.Errorf("by nonce = %x", byNonce)
	}
}

const testAddr = "0x1111111111111111111111111111111111111111"

func TestEncodeWithdraw(t *testing.T) {
	got, err := EncodeWithdraw(1, dec("12.5"), dec("0.5"), testAddr)
	if err != nil {
		t.Fatalf("EncodeWithdraw: %v", err)
	}
	want := mustHex(t, "00000001 0000000000bebc20 000000000007a120 "+strings.TrimPrefix(testAddr, "0x"))
	if !bytes.Equal(got, want) {
		t.Errorf("payload\n got %x\nwant %x", got, want)
	}

	w, err := DecodeWithdraw(got)
	if err != nil || !w.Quantity.Equal(dec("12.5")) || !w.MaxFees.Equal(dec("0.5")) {
		t.Errorf("DecodeWithdraw = %+v, %v", w, err)
	}

	// without 0x prefix is accepted too
	noPrefix, err := EncodeWithdraw(1, dec("12.5"), dec("0.5"), strings.TrimPrefix(testAddr, "0x"))
	if err != nil || !bytes.Equal(noPrefix, got) {
		t.Errorf("unprefixed address: %x, %v", noPrefix, err)
	}
}

func TestEncodeTransferKeepsUnscaledFee(t *testing.T) {
	got, err := EncodeTransfer(7, 1, dec("1"), testAddr, dec("2.9"))
	if err != nil {
		t.Fatalf("EncodeTransfer: %v", err)
	}
	want := mustHex(t, "0000000000000007 00000001 00000000000f4240 "+strings.TrimPrefix(testAddr, "0x")+" 0000000000000002")
	if !bytes.Equal(got, want) {
		t.Errorf("payload\n got %x\nwant %x", got, want)
	}
	d, err := DecodeTransfer(got)
	if err != nil || d.Fee != 2 || d.Nonce != 7 {
		t.Errorf("DecodeTransfer = %+v, %v", d, err)
	}
}

func TestDecodeAddressRejects(t *testing.T) {
	for _, a := range []string{"", "0x12", "0xzz11111111111111111111111111111111111111", testAddr + "00"} {
		if _, err := DecodeAddress(a); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("DecodeAddress(%q) err = %v", a, err)
		}
	}
}
