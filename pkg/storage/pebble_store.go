// Package storage persists the sandbox exchange's orders and nonce index in
// Pebble.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/hibachi/pkg/types"
)

var ErrNotFound = errors.New("not found")

// OrderRecord is an order together with the nonce it was created with.
type OrderRecord struct {
	Nonce uint64      `json:"nonce"`
	Order types.Order `json:"order"`
}

type PebbleStore struct {
	db *pebble.DB

	seqMu sync.Mutex
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// NewMemStore opens a store on an in-memory filesystem.
func NewMemStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// NextOrderID allocates a new order id. Ids start at 1 and survive restarts.
func (s *PebbleStore) NextOrderID() (uint64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	var last uint64
	val, closer, err := s.db.Get([]byte(keyOrderSeq))
	switch {
	case err == nil:
		last, err = bytesU64(val)
		closer.Close()
		if err != nil {
			return 0, fmt.Errorf("failed to read order sequence: %w", err)
		}
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return 0, fmt.Errorf("failed to get order sequence: %w", err)
	}

	next := last + 1
	if err := s.db.Set([]byte(keyOrderSeq), u64Bytes(next), pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to save order sequence: %w", err)
	}
	return next, nil
}

// NonceUsed reports whether the account already spent nonce.
func (s *PebbleStore) NonceUsed(accountID, nonce uint64) (bool, error) {
	_, closer, err := s.db.Get(nonceKey(accountID, nonce))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get nonce: %w", err)
	}
	closer.Close()
	return true, nil
}

// MarkNonce records a nonce spent by a request that creates no order.
func (s *PebbleStore) MarkNonce(accountID, nonce uint64) error {
	if err := s.db.Set(nonceKey(accountID, nonce), nil, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// CreateOrder persists a new order and indexes it by its creation nonce in
// one batch.
func (s *PebbleStore) CreateOrder(rec OrderRecord) error {
	data, err := encodeJSON(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	accountID, orderID := rec.Order.AccountID, uint64(rec.Order.OrderID)

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(orderKey(accountID, orderID), data, nil); err != nil {
		return fmt.Errorf("failed to stage order: %w", err)
	}
	if err := b.Set(nonceKey(accountID, rec.Nonce), u64Bytes(orderID), nil); err != nil {
		return fmt.Errorf("failed to stage nonce: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// SaveOrder overwrites an existing order.
func (s *PebbleStore) SaveOrder(rec OrderRecord) error {
	data, err := encodeJSON(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	key := orderKey(rec.Order.AccountID, uint64(rec.Order.OrderID))
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// LoadOrder loads an order by id, failing with ErrNotFound.
func (s *PebbleStore) LoadOrder(accountID, orderID uint64) (OrderRecord, error) {
	data, closer, err := s.db.Get(orderKey(accountID, orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return OrderRecord{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return OrderRecord{}, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var rec OrderRecord
	if err := decodeJSON(data, &rec); err != nil {
		return OrderRecord{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return rec, nil
}

// OrderByNonce loads the order created with nonce.
func (s *PebbleStore) OrderByNonce(accountID, nonce uint64) (OrderRecord, error) {
	val, closer, err := s.db.Get(nonceKey(accountID, nonce))
	if errors.Is(err, pebble.ErrNotFound) {
		return OrderRecord{}, fmt.Errorf("nonce %d: %w", nonce, ErrNotFound)
	}
	if err != nil {
		return OrderRecord{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	if len(val) == 0 {
		closer.Close()
		return OrderRecord{}, fmt.Errorf("nonce %d created no order: %w", nonce, ErrNotFound)
	}
	orderID, err := bytesU64(val)
	closer.Close()
	if err != nil {
		return OrderRecord{}, err
	}
	return s.LoadOrder(accountID, orderID)
}

// LoadOpenOrders loads the account's orders that can still be modified or
// cancelled, in id order.
func (s *PebbleStore) LoadOpenOrders(accountID uint64) ([]OrderRecord, error) {
	prefix := orderPrefix(accountID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []OrderRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec OrderRecord
		if err := decodeJSON(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Order.Status.Open() {
			out = append(out, rec)
		}
	}
	return out, iter.Error()
}
