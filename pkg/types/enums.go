package types

import (
	"fmt"
	"strings"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

// Side is the order side. BUY and SELL are caller aliases that Normalize
// maps onto the wire values BID and ASK.
type Side string

const (
	SideBid  Side = "BID"
	SideAsk  Side = "ASK"
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Normalize maps BUY/SELL to BID/ASK and rejects anything else.
func (s Side) Normalize() (Side, error) {
	switch Side(strings.ToUpper(string(s))) {
	case SideBid, SideBuy:
		return SideBid, nil
	case SideAsk, SideSell:
		return SideAsk, nil
	default:
		return "", errs.Validationf("unknown side %q", string(s))
	}
}

// Opposite returns the other wire side. The receiver must be normalized.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Flag is the 4-byte side value used in signed payloads: ASK=0, BID=1.
func (s Side) Flag() uint32 {
	if s == SideBid {
		return 1
	}
	return 0
}

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

type OrderFlags string

const (
	FlagPostOnly   OrderFlags = "POST_ONLY"
	FlagIOC        OrderFlags = "IOC"
	FlagReduceOnly OrderFlags = "REDUCE_ONLY"
)

func (f OrderFlags) Validate() error {
	switch f {
	case "", FlagPostOnly, FlagIOC, FlagReduceOnly:
		return nil
	default:
		return errs.Validationf("unknown order flag %q", string(f))
	}
}

type TriggerDirection string

const (
	TriggerHigh TriggerDirection = "HIGH"
	TriggerLow  TriggerDirection = "LOW"
)

type TWAPQuantityMode string

const (
	TWAPFixed  TWAPQuantityMode = "FIXED"
	TWAPRandom TWAPQuantityMode = "RANDOM"
)

type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusChildPending    OrderStatus = "CHILD_PENDING"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusScheduledTWAP   OrderStatus = "SCHEDULED_TWAP"
	StatusPlaced          OrderStatus = "PLACED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
)

// Open reports whether the order can still be modified or cancelled.
func (s OrderStatus) Open() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return false
	default:
		return true
	}
}

type TPSLKind int

const (
	TakeProfit TPSLKind = iota
	StopLoss
)

func (k TPSLKind) String() string {
	switch k {
	case TakeProfit:
		return "TAKE_PROFIT"
	case StopLoss:
		return "STOP_LOSS"
	default:
		return fmt.Sprintf("TPSLKind(%d)", int(k))
	}
}

type ExchangeStatus string

const (
	ExchangeNormal                 ExchangeStatus = "NORMAL"
	ExchangeScheduledMaintenance   ExchangeStatus = "SCHEDULED_MAINTENANCE"
	ExchangeUnscheduledMaintenance ExchangeStatus = "UNSCHEDULED_MAINTENANCE"
)
