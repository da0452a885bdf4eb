package batch

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/uhyunpark/hibachi/pkg/errs"
	"github.com/uhyunpark/hibachi/pkg/types"
)

// Response is the body of a batch reply.
type Response struct {
	Orders []types.BatchOutcome
}

// Resolve classifies one response record. Null fields count as absent.
// The first match wins: errorCode, then nonce with orderId, then orderId
// alone, then nonce alone.
func Resolve(raw []byte) (types.BatchOutcome, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &errs.DeserializationError{Record: string(raw), Reason: err.Error()}
	}
	for k, v := range fields {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			delete(fields, k)
		}
	}

	_, hasError := fields["errorCode"]
	rawNonce, hasNonce := fields["nonce"]
	rawID, hasID := fields["orderId"]

	switch {
	case hasError:
		var f struct {
			ErrorCode int    `json:"errorCode"`
			Message   string `json:"message"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, &errs.DeserializationError{Record: string(raw), Reason: err.Error()}
		}
		return types.Failed{ErrorCode: f.ErrorCode, Message: f.Message, Status: f.Status}, nil

	case hasNonce && hasID:
		nonce, err := uintField(rawNonce)
		if err != nil {
			return nil, &errs.DeserializationError{Record: string(raw), Reason: "nonce: " + err.Error()}
		}
		id, err := uintField(rawID)
		if err != nil {
			return nil, &errs.DeserializationError{Record: string(raw), Reason: "orderId: " + err.Error()}
		}
		return types.Created{
			Nonce:                 nonce,
			OrderID:               id,
			CreationTime:          textField(fields["creationTime"]),
			CreationTimeNsPartial: textField(fields["creationTimeNsPartial"]),
		}, nil

	case hasID:
		id, err := uintField(rawID)
		if err != nil {
			return nil, &errs.DeserializationError{Record: string(raw), Reason: "orderId: " + err.Error()}
		}
		return types.Updated{OrderID: id}, nil

	case hasNonce:
		nonce, err := uintField(rawNonce)
		if err != nil {
			return nil, &errs.DeserializationError{Record: string(raw), Reason: "nonce: " + err.Error()}
		}
		return types.Cancelled{Nonce: nonce}, nil

	default:
		return nil, &errs.DeserializationError{Record: string(raw), Reason: "record matches no batch response shape"}
	}
}

// ResolveResponse decodes {"orders":[...]} and resolves every element in
// order. A single unclassifiable element fails the whole response.
func ResolveResponse(raw []byte) (Response, error) {
	var body struct {
		Orders []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Response{}, &errs.DeserializationError{Record: string(raw), Reason: err.Error()}
	}
	if body.Orders == nil {
		return Response{}, &errs.DeserializationError{Record: string(raw), Reason: "missing orders"}
	}

	out := Response{Orders: make([]types.BatchOutcome, 0, len(body.Orders))}
	for i, el := range body.Orders {
		o, err := Resolve(el)
		if err != nil {
			return Response{}, fmt.Errorf("order %d: %w", i, err)
		}
		out.Orders = append(out.Orders, o)
	}
	return out, nil
}

func uintField(raw json.RawMessage) (uint64, error) {
	var v types.FlexUint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// textField reads a string or number field as text.
func textField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return string(raw)
	}
	return ""
}
