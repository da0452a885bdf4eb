// Package composer turns caller intents into resolved order actions ready
// for encoding: side aliases are normalized, relative deadlines become
// absolute, TP/SL legs fan out into child orders, and updates inherit the
// fields the caller left out from the live order.
package composer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// ComposeCreate validates intent and expands it into the actions to submit.
// The parent is always first. TP/SL children reference the parent by
// baseNonce, so the result must be assembled starting at baseNonce.
func ComposeCreate(intent types.OrderIntent, baseNonce uint64, now time.Time) ([]transaction.Action, error) {
	if intent.TWAP != nil && intent.TriggerPrice != nil {
		return nil, errs.Validationf("can not set trigger price for TWAP order")
	}
	if intent.TWAP != nil && len(intent.TPSL) > 0 {
		return nil, errs.Validationf("can not set tpsl for TWAP order")
	}
	if strings.TrimSpace(intent.Symbol) == "" {
		return nil, errs.Validationf("symbol is required")
	}
	if !intent.Quantity.IsPositive() {
		return nil, errs.Validationf("quantity must be positive, got %s", intent.Quantity.String())
	}
	if intent.MaxFeesPercent.IsNegative() {
		return nil, errs.Validationf("max fees percent must not be negative, got %s", intent.MaxFeesPercent.String())
	}
	if err := intent.Flags.Validate(); err != nil {
		return nil, err
	}
	side, err := intent.Side.Normalize()
	if err != nil {
		return nil, err
	}
	if intent.TriggerPrice != nil && intent.TriggerDirection != "" &&
		intent.TriggerDirection != types.TriggerHigh && intent.TriggerDirection != types.TriggerLow {
		return nil, errs.Validationf("unknown trigger direction %q", string(intent.TriggerDirection))
	}

	parent := transaction.CreateOrder{
		Symbol:           intent.Symbol,
		Side:             side,
		Quantity:         intent.Quantity,
		MaxFeesPercent:   intent.MaxFeesPercent,
		Price:            intent.Price,
		TriggerPrice:     intent.TriggerPrice,
		TriggerDirection: intent.TriggerDirection,
		TWAP:             intent.TWAP,
		CreationDeadline: AbsoluteDeadline(intent.CreationDeadline, now),
		Flags:            intent.Flags,
		Parent:           intent.Parent,
	}

	actions := make([]transaction.Action, 0, 1+len(intent.TPSL))
	actions = append(actions, parent)
	children, err := ExpandTPSL(parent, intent.TPSL, baseNonce)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		actions = append(actions, c)
	}
	return actions, nil
}

// ExpandTPSL builds the reduce-only child orders for legs. Each child closes
// the parent's position: it takes the opposite side, triggers at the leg
// price, and is linked to the parent by parentNonce.
func ExpandTPSL(parent transaction.CreateOrder, legs []types.TPSLLeg, parentNonce uint64) ([]transaction.CreateOrder, error) {
	if len(legs) == 0 {
		return nil, nil
	}
	side, err := parent.Side.Normalize()
	if err != nil {
		return nil, err
	}
	link := types.ByNonce(parentNonce)

	children := make([]transaction.CreateOrder, 0, len(legs))
	for i, leg := range legs {
		if leg.Kind != types.TakeProfit && leg.Kind != types.StopLoss {
			return nil, errs.Validationf("tpsl leg %d: unknown kind %s", i, leg.Kind)
		}
		if !leg.Price.IsPositive() {
			return nil, errs.Validationf("tpsl leg %d: trigger price must be positive, got %s", i, leg.Price.String())
		}
		qty := parent.Quantity
		if leg.Quantity != nil && !leg.Quantity.IsZero() {
			if leg.Quantity.IsNegative() {
				return nil, errs.Validationf("tpsl leg %d: negative quantity %s", i, leg.Quantity.String())
			}
			qty = *leg.Quantity
		}
		trigger := leg.Price
		children = append(children, transaction.CreateOrder{
			Symbol:           parent.Symbol,
			Side:             side.Opposite(),
			Quantity:         qty,
			MaxFeesPercent:   parent.MaxFeesPercent,
			TriggerPrice:     &trigger,
			TriggerDirection: TriggerDirection(leg.Kind, side),
			Flags:            types.FlagReduceOnly,
			Parent:           &link,
		})
	}
	return children, nil
}

// TriggerDirection is the direction a TP/SL child waits for. A take profit
// on a short and a stop loss on a long fire when the price falls.
func TriggerDirection(kind types.TPSLKind, parentSide types.Side) types.TriggerDirection {
	if (kind == types.TakeProfit && parentSide == types.SideAsk) ||
		(kind == types.StopLoss && parentSide == types.SideBid) {
		return types.TriggerLow
	}
	return types.TriggerHigh
}

// ComposeUpdate resolves intent against the live order. Fields the caller
// omitted are carried forward where the order type allows it.
func ComposeUpdate(order types.Order, intent types.UpdateIntent, now time.Time) (transaction.UpdateOrder, error) {
	if strings.TrimSpace(order.Symbol) == "" {
		return transaction.UpdateOrder{}, errs.Validationf("order %d has no symbol", uint64(order.OrderID))
	}
	if err := intent.Flags.Validate(); err != nil {
		return transaction.UpdateOrder{}, err
	}

	price := intent.Price
	switch types.OrderType(strings.ToUpper(string(order.OrderType))) {
	case types.OrderTypeMarket:
		if price != nil {
			return transaction.UpdateOrder{}, errs.Validationf("can not update price for a market order")
		}
	case types.OrderTypeLimit:
		if price == nil {
			price = order.Price
		}
	}

	trigger := intent.TriggerPrice
	if order.TriggerPrice == nil && trigger != nil {
		return transaction.UpdateOrder{}, errs.Validationf("can not update trigger price for a non trigger order")
	}
	if order.TriggerPrice != nil && trigger == nil {
		trigger = order.TriggerPrice
	}

	var qty decimal.Decimal
	switch {
	case intent.Quantity != nil:
		qty = *intent.Quantity
	case order.TotalQuantity != nil:
		qty = *order.TotalQuantity
	default:
		return transaction.UpdateOrder{}, errs.Validationf("one of quantity or order total quantity must be set")
	}

	side, err := order.Side.Normalize()
	if err != nil {
		return transaction.UpdateOrder{}, err
	}

	orderID := intent.OrderID
	if orderID == 0 {
		orderID = uint64(order.OrderID)
	}
	return transaction.UpdateOrder{
		OrderID:          orderID,
		Symbol:           order.Symbol,
		Side:             side,
		Quantity:         qty,
		MaxFeesPercent:   intent.MaxFeesPercent,
		Price:            price,
		TriggerPrice:     trigger,
		CreationDeadline: AbsoluteDeadline(intent.CreationDeadline, now),
		Flags:            intent.Flags,
	}, nil
}

// AbsoluteDeadline converts a deadline in seconds relative to now into unix
// seconds, floor(relative + now). Nil stays nil.
func AbsoluteDeadline(relative *decimal.Decimal, now time.Time) *int64 {
	if relative == nil {
		return nil
	}
	nowSeconds := decimal.New(now.UnixNano(), -9)
	abs := relative.Add(nowSeconds).Floor().IntPart()
	return &abs
}
