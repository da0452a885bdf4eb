package types

import (
	"github.com/uhyunpark/hibachi/pkg/errs"
)

// BatchOutcome is the result of one element of a batch request. It is one
// of Created, Updated, Cancelled or Failed.
type BatchOutcome interface {
	batchOutcome()
}

type Created struct {
	Nonce                 uint64
	OrderID               uint64
	CreationTime          string
	CreationTimeNsPartial string
}

type Updated struct {
	OrderID uint64
}

type Cancelled struct {
	Nonce uint64
}

// Failed is an exchange rejection of a single batch element. It is data,
// not an error; Err converts it when the caller wants to propagate it.
type Failed struct {
	ErrorCode int
	Message   string
	Status    string
}

func (Created) batchOutcome()   {}
func (Updated) batchOutcome()   {}
func (Cancelled) batchOutcome() {}
func (Failed) batchOutcome()    {}

func (f Failed) Err() error {
	return &errs.ExchangeError{Code: f.ErrorCode, Status: f.Status, Message: f.Message}
}
