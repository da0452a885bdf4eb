package transaction

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/types"
)

// ActionKind tags an element of a batch request
type ActionKind string

const (
	ActionPlace  ActionKind = "place"
	ActionModify ActionKind = "modify"
	ActionCancel ActionKind = "cancel"
)

// Action is one composed order operation: CreateOrder, UpdateOrder or
// CancelOrder. The set is closed; BuildRecord switches over it.
type Action interface {
	Kind() ActionKind
	isAction()
}

// CreateOrder is a fully resolved new order. Side is normalized and
// CreationDeadline is an absolute unix time in seconds.
type CreateOrder struct {
	Symbol           string
	Side             types.Side
	Quantity         decimal.Decimal
	MaxFeesPercent   decimal.Decimal
	Price            *decimal.Decimal
	TriggerPrice     *decimal.Decimal
	TriggerDirection types.TriggerDirection
	TWAP             *types.TWAPConfig
	CreationDeadline *int64
	Flags            types.OrderFlags
	Parent           *types.OrderIdentity
}

// UpdateOrder is a fully resolved modification. Symbol and Side come from
// the existing order; they are signed but not sent.
type UpdateOrder struct {
	OrderID          uint64
	Symbol           string
	Side             types.Side
	Quantity         decimal.Decimal
	MaxFeesPercent   decimal.Decimal
	Price            *decimal.Decimal
	TriggerPrice     *decimal.Decimal
	CreationDeadline *int64
	Flags            types.OrderFlags
}

type CancelOrder struct {
	Target types.OrderIdentity
}

func (CreateOrder) Kind() ActionKind { return ActionPlace }
func (UpdateOrder) Kind() ActionKind { return ActionModify }
func (CancelOrder) Kind() ActionKind { return ActionCancel }

func (CreateOrder) isAction() {}
func (UpdateOrder) isAction() {}
func (CancelOrder) isAction() {}

// Record is a signed wire request for one action.
type Record interface {
	Kind() ActionKind
	Sig() string
}

// PlaceRecord is the body of POST /trade/order and a "place" batch element.
type PlaceRecord struct {
	Action              ActionKind             `json:"action,omitempty"`
	AccountID           uint64                 `json:"accountId,omitempty"`
	Nonce               uint64                 `json:"nonce"`
	Symbol              string                 `json:"symbol"`
	Quantity            string                 `json:"quantity"`
	OrderType           types.OrderType        `json:"orderType"`
	Side                types.Side             `json:"side"`
	MaxFeesPercent      string                 `json:"maxFeesPercent"`
	Price               string                 `json:"price,omitempty"`
	TriggerPrice        string                 `json:"triggerPrice,omitempty"`
	TriggerDirection    types.TriggerDirection `json:"triggerDirection,omitempty"`
	TWAPDurationMinutes int                    `json:"twapDurationMinutes,omitempty"`
	TWAPQuantityMode    types.TWAPQuantityMode `json:"twapQuantityMode,omitempty"`
	CreationDeadline    int64                  `json:"creationDeadline,omitempty"`
	ParentOrder         *types.OrderIdentity   `json:"parentOrder,omitempty"`
	OrderFlags          types.OrderFlags       `json:"orderFlags,omitempty"`
	Signature           string                 `json:"signature"`
}

// ModifyRecord is the body of PUT /trade/order and a "modify" batch element.
// The exchange reads both the updated* and the plain field names.
type ModifyRecord struct {
	Action              ActionKind       `json:"action,omitempty"`
	AccountID           uint64           `json:"accountId,omitempty"`
	Nonce               uint64           `json:"nonce"`
	OrderID             types.FlexUint64 `json:"orderId"`
	UpdatedQuantity     string           `json:"updatedQuantity,omitempty"`
	Quantity            string           `json:"quantity,omitempty"`
	UpdatedPrice        string           `json:"updatedPrice,omitempty"`
	Price               string           `json:"price,omitempty"`
	UpdatedTriggerPrice string           `json:"updatedTriggerPrice,omitempty"`
	TriggerPrice        string           `json:"trigger_price,omitempty"`
	CreationDeadline    int64            `json:"creationDeadline,omitempty"`
	OrderFlags          types.OrderFlags `json:"orderFlags,omitempty"`
	MaxFeesPercent      string           `json:"maxFeesPercent"`
	Signature           string           `json:"signature"`
}

// CancelRecord is the body of DELETE /trade/order and a "cancel" batch
// element. Exactly one of OrderID and Nonce is set.
type CancelRecord struct {
	Action    ActionKind        `json:"action,omitempty"`
	AccountID uint64            `json:"accountId,omitempty"`
	OrderID   *types.FlexUint64 `json:"orderId,omitempty"`
	Nonce     *types.FlexUint64 `json:"nonce,omitempty"`
	Signature string            `json:"signature"`
}

func (PlaceRecord) Kind() ActionKind  { return ActionPlace }
func (ModifyRecord) Kind() ActionKind { return ActionModify }
func (CancelRecord) Kind() ActionKind { return ActionCancel }

func (r PlaceRecord) Sig() string  { return r.Signature }
func (r ModifyRecord) Sig() string { return r.Signature }
func (r CancelRecord) Sig() string { return r.Signature }

// Target returns the order the cancel refers to.
func (r CancelRecord) Target() (types.OrderIdentity, error) {
	switch {
	case r.OrderID != nil && r.Nonce != nil:
		return types.OrderIdentity{}, fmt.Errorf("cancel carries both orderId and nonce")
	case r.OrderID != nil:
		return types.ByOrderID(uint64(*r.OrderID)), nil
	case r.Nonce != nil:
		return types.ByNonce(uint64(*r.Nonce)), nil
	default:
		return types.OrderIdentity{}, fmt.Errorf("cancel carries neither orderId nor nonce")
	}
}

// BatchRequest is the body of POST /trade/orders.
type BatchRequest struct {
	AccountID uint64   `json:"accountId"`
	Orders    []Record `json:"orders"`

	nonces []uint64
}

// Nonces returns the nonce assigned to each element, in order.
func (b BatchRequest) Nonces() []uint64 {
	return append([]uint64(nil), b.nonces...)
}

// NewBatchRequest pairs records with the nonces they were assigned.
func NewBatchRequest(accountID uint64, records []Record, nonces []uint64) BatchRequest {
	return BatchRequest{AccountID: accountID, Orders: records, nonces: nonces}
}

// InboundBatch is the server side view of a batch body; elements are
// decoded by DecodeRecord once their action is known.
type InboundBatch struct {
	AccountID uint64            `json:"accountId"`
	Orders    []json.RawMessage `json:"orders"`
}

// DecodeRecord decodes one batch element by its action tag.
func DecodeRecord(raw []byte) (Record, error) {
	var head struct {
		Action ActionKind `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to read action: %w", err)
	}
	switch head.Action {
	case ActionPlace:
		var r PlaceRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal place: %w", err)
		}
		return r, nil
	case ActionModify:
		var r ModifyRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal modify: %w", err)
		}
		return r, nil
	case ActionCancel:
		var r CancelRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cancel: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown action %q", head.Action)
	}
}

// WithdrawRequest is the body of POST /capital/withdraw.
type WithdrawRequest struct {
	AccountID       uint64 `json:"accountId"`
	Coin            string `json:"coin"`
	WithdrawAddress string `json:"withdrawAddress"`
	Network         string `json:"network"`
	Quantity        string `json:"quantity"`
	MaxFees         string `json:"maxFees"`
	Signature       string `json:"signature"`
}

// TransferRequest is the body of POST /capital/transfer.
type TransferRequest struct {
	AccountID    uint64 `json:"accountId"`
	Coin         string `json:"coin"`
	Fees         string `json:"fees"`
	Nonce        uint64 `json:"nonce"`
	Quantity     string `json:"quantity"`
	DstPublicKey string `json:"dstPublicKey"`
	Signature    string `json:"signature"`
}

// CancelAllRequest is the body of DELETE /trade/orders. The signature
// covers the nonce alone.
type CancelAllRequest struct {
	AccountID  uint64  `json:"accountId"`
	Nonce      uint64  `json:"nonce"`
	ContractID *uint32 `json:"contractId,omitempty"`
	Signature  string  `json:"signature"`
}
