// Package store is the key-value ledger adapter. The contract reads and
// writes through KV only; which backend hosts the records is a deployment
// concern.
package store

import (
	"context"

	"github.com/seatrail/ticket-ledger/internal/keys"
)

// Entry is one record returned by a prefix scan
type Entry struct {
	Key   keys.Key
	Value []byte
}

// KV is the ledger contract consumed from the hosting environment:
// deterministic, consistent reads within one invocation.
//
// Get returns (nil, nil) for an absent key. List returns entries ordered
// by serialized key.
type KV interface {
	Get(ctx context.Context, key keys.Key) ([]byte, error)
	Put(ctx context.Context, key keys.Key, value []byte) error
	Delete(ctx context.Context, key keys.Key) error
	List(ctx context.Context, prefix keys.Key) ([]Entry, error)
}
