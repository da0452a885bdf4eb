package storage

import (
	"fmt"
)

// Key schema:
//
//	ord:{accountID}:{orderID}   → OrderRecord
//	nonce:{accountID}:{nonce}   → orderID (8 bytes), or empty for nonces
//	                              consumed by non-order requests
//	seq:order                   → last assigned order id
//
// Numeric parts are zero padded to 20 digits so prefix scans return orders
// in id order.
const (
	prefixOrder = "ord:"
	prefixNonce = "nonce:"
	keyOrderSeq = "seq:order"
)

// orderKey returns the key for an order
// Format: "ord:{accountID}:{orderID}"
func orderKey(accountID, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixOrder, accountID, orderID))
}

// orderPrefix returns the prefix for all orders of an account
// Format: "ord:{accountID}:"
func orderPrefix(accountID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefixOrder, accountID))
}

// nonceKey returns the key for a used nonce
// Format: "nonce:{accountID}:{nonce}"
func nonceKey(accountID, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixNonce, accountID, nonce))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
