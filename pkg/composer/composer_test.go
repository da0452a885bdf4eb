package composer

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
)

var now = time.Unix(1700000000, 750_000_000)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func baseIntent(side types.Side) types.OrderIntent {
	return types.OrderIntent{
		Symbol:         "BTC/USDT-P",
		Side:           side,
		Quantity:       dec("0.5"),
		MaxFeesPercent: dec("0.0005"),
	}
}

func children(t *testing.T, actions []transaction.Action) []transaction.CreateOrder {
	t.Helper()
	out := make([]transaction.CreateOrder, 0, len(actions)-1)
	for _, a := range actions[1:] {
		c, ok := a.(transaction.CreateOrder)
		if !ok {
			t.Fatalf("child action is %T", a)
		}
		out = append(out, c)
	}
	return out
}

func TestComposeSimpleOrder(t *testing.T) {
	intent := baseIntent(types.SideBuy)
	intent.Price = decPtr("60000")
	intent.CreationDeadline = decPtr("2")

	actions, err := ComposeCreate(intent, 100, now)
	if err != nil {
		t.Fatalf("ComposeCreate: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	order := actions[0].(transaction.CreateOrder)
	if order.Side != types.SideBid {
		t.Errorf("side = %s, want BID", order.Side)
	}
	if order.CreationDeadline == nil || *order.CreationDeadline != 1700000002 {
		t.Errorf("deadline = %v, want 1700000002", order.CreationDeadline)
	}
}

func TestTakeProfitOnAsk(t *testing.T) {
	intent := baseIntent(types.SideAsk)
	intent.TPSL = []types.TPSLLeg{{Kind: types.TakeProfit, Price: dec("55000")}}

	actions, err := ComposeCreate(intent, 500, now)
	if err != nil {
		t.Fatalf("ComposeCreate: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].(transaction.CreateOrder).Parent != nil {
		t.Error("parent must come first and carry no parent link")
	}

	child := children(t, actions)[0]
	if child.Side != types.SideBid {
		t.Errorf("child side = %s, want BID", child.Side)
	}
	if child.Flags != types.FlagReduceOnly {
		t.Errorf("child flags = %q, want REDUCE_ONLY", child.Flags)
	}
	if child.TriggerDirection != types.TriggerLow {
		t.Errorf("child trigger direction = %s, want LOW", child.TriggerDirection)
	}
	if child.TriggerPrice == nil || !child.TriggerPrice.Equal(dec("55000")) {
		t.Errorf("child trigger price = %v, want 55000", child.TriggerPrice)
	}
	if child.Price != nil {
		t.Error("child must be a market order")
	}
	if n, ok := child.Parent.Nonce(); !ok || n != 500 {
		t.Errorf("child parent = %s, want nonce 500", child.Parent)
	}
	if !child.Quantity.Equal(dec("0.5")) || !child.MaxFeesPercent.Equal(dec("0.0005")) {
		t.Errorf("child inherits quantity and fee cap: %s %s", child.Quantity, child.MaxFeesPercent)
	}
}

func TestStopLossOnBid(t *testing.T) {
	intent := baseIntent(types.SideBid)
	intent.TPSL = []types.TPSLLeg{
		{Kind: types.StopLoss, Price: dec("58000"), Quantity: decPtr("0.2")},
		{Kind: types.TakeProfit, Price: dec("70000"), Quantity: decPtr("0")},
	}

	actions, err := ComposeCreate(intent, 1, now)
	if err != nil {
		t.Fatalf("ComposeCreate: %v", err)
	}
	kids := children(t, actions)
	if len(kids) != 2 {
		t.Fatalf("got %d children, want 2", len(kids))
	}

	sl := kids[0]
	if sl.Side != types.SideAsk || sl.TriggerDirection != types.TriggerLow {
		t.Errorf("stop loss = %s %s, want ASK LOW", sl.Side, sl.TriggerDirection)
	}
	if !sl.Quantity.Equal(dec("0.2")) {
		t.Errorf("stop loss quantity = %s", sl.Quantity)
	}

	tp := kids[1]
	if tp.TriggerDirection != types.TriggerHigh {
		t.Errorf("take profit on bid = %s, want HIGH", tp.TriggerDirection)
	}
	// zero quantity falls back to the parent quantity
	if !tp.Quantity.Equal(dec("0.5")) {
		t.Errorf("take profit quantity = %s, want 0.5", tp.Quantity)
	}
}

func TestTriggerDirectionTable(t *testing.T) {
	cases := []struct {
		kind types.TPSLKind
		side types.Side
		want types.TriggerDirection
	}{
		{types.TakeProfit, types.SideAsk, types.TriggerLow},
		{types.TakeProfit, types.SideBid, types.TriggerHigh},
		{types.StopLoss, types.SideBid, types.TriggerLow},
		{types.StopLoss, types.SideAsk, types.TriggerHigh},
	}
	for _, tc := range cases {
		if got := TriggerDirection(tc.kind, tc.side); got != tc.want {
			t.Errorf("TriggerDirection(%s, %s) = %s, want %s", tc.kind, tc.side, got, tc.want)
		}
	}
}

func TestTWAPConflicts(t *testing.T) {
	twap := &types.TWAPConfig{DurationMinutes: 5, QuantityMode: types.TWAPFixed}

	withTrigger := baseIntent(types.SideBid)
	withTrigger.TWAP = twap
	withTrigger.TriggerPrice = decPtr("60000")
	if _, err := ComposeCreate(withTrigger, 1, now); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("twap with trigger: got %v", err)
	}

	withTPSL := baseIntent(types.SideBid)
	withTPSL.TWAP = twap
	withTPSL.TPSL = []types.TPSLLeg{{Kind: types.TakeProfit, Price: dec("1")}}
	if _, err := ComposeCreate(withTPSL, 1, now); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("twap with tpsl: got %v", err)
	}

	// the conflict is caught even when the side is also bad
	bad := withTrigger
	bad.Side = "LONG"
	_, err := ComposeCreate(bad, 1, now)
	if err == nil || err.Error() != "validation error: can not set trigger price for TWAP order" {
		t.Errorf("twap check must run first: %v", err)
	}
}

func TestComposeRejectsBadIntent(t *testing.T) {
	cases := map[string]func(*types.OrderIntent){
		"side":     func(i *types.OrderIntent) { i.Side = "LONG" },
		"flags":    func(i *types.OrderIntent) { i.Flags = "FOK" },
		"quantity": func(i *types.OrderIntent) { i.Quantity = decimal.Zero },
		"symbol":   func(i *types.OrderIntent) { i.Symbol = "" },
		"leg":      func(i *types.OrderIntent) { i.TPSL = []types.TPSLLeg{{Kind: types.StopLoss}} },
	}
	for name, mutate := range cases {
		intent := baseIntent(types.SideBid)
		mutate(&intent)
		if _, err := ComposeCreate(intent, 1, now); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("%s: got %v, want validation error", name, err)
		}
	}
}

func limitOrder() types.Order {
	return types.Order{
		OrderID:       589,
		Symbol:        "BTC/USDT-P",
		OrderType:     types.OrderTypeLimit,
		Side:          types.SideBuy,
		Status:        types.StatusPlaced,
		Price:         decPtr("60000"),
		TotalQuantity: decPtr("1"),
	}
}

func TestComposeUpdateInfersFields(t *testing.T) {
	upd, err := ComposeUpdate(limitOrder(), types.UpdateIntent{OrderID: 589, MaxFeesPercent: dec("0.001")}, now)
	if err != nil {
		t.Fatalf("ComposeUpdate: %v", err)
	}
	if upd.Price == nil || !upd.Price.Equal(dec("60000")) {
		t.Errorf("price = %v, want carried 60000", upd.Price)
	}
	if !upd.Quantity.Equal(dec("1")) {
		t.Errorf("quantity = %s, want total quantity 1", upd.Quantity)
	}
	if upd.Side != types.SideBid {
		t.Errorf("side = %s, want BID", upd.Side)
	}
	if upd.CreationDeadline != nil {
		t.Error("deadline should stay unset")
	}

	order := limitOrder()
	order.TriggerPrice = decPtr("59000")
	upd, err = ComposeUpdate(order, types.UpdateIntent{OrderID: 589, Quantity: decPtr("2"), Price: decPtr("61000")}, now)
	if err != nil {
		t.Fatalf("ComposeUpdate: %v", err)
	}
	if !upd.Price.Equal(dec("61000")) || !upd.Quantity.Equal(dec("2")) {
		t.Errorf("explicit fields not kept: %s %s", upd.Price, upd.Quantity)
	}
	if upd.TriggerPrice == nil || !upd.TriggerPrice.Equal(dec("59000")) {
		t.Errorf("trigger = %v, want carried 59000", upd.TriggerPrice)
	}
}

func TestComposeUpdateRejects(t *testing.T) {
	market := limitOrder()
	market.OrderType = types.OrderTypeMarket
	market.Price = nil
	if _, err := ComposeUpdate(market, types.UpdateIntent{Price: decPtr("1")}, now); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("price on market order: got %v", err)
	}

	if _, err := ComposeUpdate(limitOrder(), types.UpdateIntent{TriggerPrice: decPtr("1")}, now); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("trigger on non trigger order: got %v", err)
	}

	noQty := limitOrder()
	noQty.TotalQuantity = nil
	if _, err := ComposeUpdate(noQty, types.UpdateIntent{}, now); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("missing quantity: got %v", err)
	}
}

func TestAbsoluteDeadline(t *testing.T) {
	if AbsoluteDeadline(nil, now) != nil {
		t.Error("nil deadline should stay nil")
	}
	// 0.5 + 0.75 carries into the next second
	if got := AbsoluteDeadline(decPtr("1.5"), now); *got != 1700000002 {
		t.Errorf("deadline = %d, want 1700000002", *got)
	}
}
