package types

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// FlexUint64 decodes from either a JSON number or a quoted number; the
// exchange is not consistent about which it sends for ids and nonces.
type FlexUint64 uint64

func (f *FlexUint64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 {
		return fmt.Errorf("empty numeric id")
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric id %q: %w", b, err)
	}
	*f = FlexUint64(v)
	return nil
}

func (f FlexUint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(f), 10))), nil
}

// OrderIdentity references an order either by the nonce it was created with
// or by its exchange assigned id, never both.
type OrderIdentity struct {
	byNonce bool
	value   uint64
}

func ByNonce(nonce uint64) OrderIdentity { return OrderIdentity{byNonce: true, value: nonce} }
func ByOrderID(id uint64) OrderIdentity  { return OrderIdentity{value: id} }

func (o OrderIdentity) Nonce() (uint64, bool)   { return o.value, o.byNonce }
func (o OrderIdentity) OrderID() (uint64, bool) { return o.value, !o.byNonce }

func (o OrderIdentity) String() string {
	if o.byNonce {
		return "nonce:" + strconv.FormatUint(o.value, 10)
	}
	return "orderId:" + strconv.FormatUint(o.value, 10)
}

type identityJSON struct {
	Nonce   *FlexUint64 `json:"nonce,omitempty"`
	OrderID *FlexUint64 `json:"orderId,omitempty"`
}

func (o OrderIdentity) MarshalJSON() ([]byte, error) {
	v := FlexUint64(o.value)
	if o.byNonce {
		return json.Marshal(identityJSON{Nonce: &v})
	}
	return json.Marshal(identityJSON{OrderID: &v})
}

func (o *OrderIdentity) UnmarshalJSON(b []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch {
	case raw.Nonce != nil && raw.OrderID != nil:
		return fmt.Errorf("order identity carries both nonce and orderId")
	case raw.Nonce != nil:
		*o = ByNonce(uint64(*raw.Nonce))
	case raw.OrderID != nil:
		*o = ByOrderID(uint64(*raw.OrderID))
	default:
		return fmt.Errorf("order identity carries neither nonce nor orderId")
	}
	return nil
}

type TWAPConfig struct {
	DurationMinutes int
	QuantityMode    TWAPQuantityMode
}

// TPSLLeg is an exit condition materialized as a reduce-only child order.
// Price is the trigger price; a nil Quantity means the parent quantity.
type TPSLLeg struct {
	Kind     TPSLKind
	Price    decimal.Decimal
	Quantity *decimal.Decimal
}

// OrderIntent is a caller level order request. A nil Price makes it a
// market order. CreationDeadline is in seconds relative to submission.
type OrderIntent struct {
	Symbol           string
	Side             Side
	Quantity         decimal.Decimal
	MaxFeesPercent   decimal.Decimal
	Price            *decimal.Decimal
	TriggerPrice     *decimal.Decimal
	TriggerDirection TriggerDirection
	TWAP             *TWAPConfig
	CreationDeadline *decimal.Decimal
	Flags            OrderFlags
	Parent           *OrderIdentity
	TPSL             []TPSLLeg
}

// UpdateIntent changes an existing order. Nil fields are inferred from the
// current order state.
type UpdateIntent struct {
	OrderID          uint64
	MaxFeesPercent   decimal.Decimal
	Quantity         *decimal.Decimal
	Price            *decimal.Decimal
	TriggerPrice     *decimal.Decimal
	CreationDeadline *decimal.Decimal
	Flags            OrderFlags
}

// Order is the exchange's view of an order.
type Order struct {
	AccountID          uint64           `json:"accountId"`
	OrderID            FlexUint64       `json:"orderId"`
	Symbol             string           `json:"symbol"`
	ContractID         *uint32          `json:"contractId,omitempty"`
	OrderType          OrderType        `json:"orderType"`
	Side               Side             `json:"side"`
	Status             OrderStatus      `json:"status"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	TriggerPrice       *decimal.Decimal `json:"triggerPrice,omitempty"`
	AvailableQuantity  decimal.Decimal  `json:"availableQuantity"`
	TotalQuantity      *decimal.Decimal `json:"totalQuantity,omitempty"`
	OrderFlags         OrderFlags       `json:"orderFlags,omitempty"`
	QuantityMode       string           `json:"quantityMode,omitempty"`
	NumOrdersRemaining *int             `json:"numOrdersRemaining,omitempty"`
	NumOrdersTotal     *int             `json:"numOrdersTotal,omitempty"`
	CreationTime       *int64           `json:"creationTime,omitempty"`
	FinishTime         *int64           `json:"finishTime,omitempty"`
}
