// Package batch assigns nonces to a list of order actions, signs them into
// one batch request, and classifies the records the exchange sends back.
package batch

import (
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/iter"

	"github.com/uhyunpark/hibachi/pkg/payload"
	"github.com/uhyunpark/hibachi/pkg/transaction"
)

// IndexError is the failure of one element of a batch.
type IndexError struct {
	Index int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("batch element %d: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

type indexed struct {
	i      int
	action transaction.Action
}

// Assemble gives actions[i] the nonce base+i, encodes and signs each one,
// and tags it with its action kind. Elements are signed in parallel; the
// output keeps input order. Every failing element is reported as an
// *IndexError, joined into the returned error.
func Assemble(accountID, base uint64, actions []transaction.Action, signer transaction.Signer, contracts payload.ContractLookup) (transaction.BatchRequest, error) {
	if len(actions) == 0 {
		return transaction.BatchRequest{}, errors.New("batch has no actions")
	}

	input := make([]indexed, len(actions))
	nonces := make([]uint64, len(actions))
	for i, a := range actions {
		input[i] = indexed{i: i, action: a}
		nonces[i] = base + uint64(i)
	}

	records, err := iter.MapErr(input, func(in *indexed) (transaction.Record, error) {
		rec, err := transaction.BuildRecord(in.action, nonces[in.i], contracts, signer)
		if err != nil {
			return nil, &IndexError{Index: in.i, Err: err}
		}
		return tag(rec), nil
	})
	if err != nil {
		return transaction.BatchRequest{}, err
	}
	return transaction.NewBatchRequest(accountID, records, nonces), nil
}

// tag sets the action field batch elements carry. Account ids live on the
// enclosing request.
func tag(r transaction.Record) transaction.Record {
	switch rec := r.(type) {
	case transaction.PlaceRecord:
		rec.Action = transaction.ActionPlace
		return rec
	case transaction.ModifyRecord:
		rec.Action = transaction.ActionModify
		return rec
	case transaction.CancelRecord:
		rec.Action = transaction.ActionCancel
		return rec
	default:
		return r
	}
}
