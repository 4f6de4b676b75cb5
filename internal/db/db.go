// Package db defines the datastore facade used to read hazard inputs and
// persist disaggregation outputs. Drivers live in subpackages.
package db

import (
	"context"
	"errors"
	"time"
)

// Store is the key-value datastore facade. Implementations must support
// concurrent readers under a single-writer discipline.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks datastore availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides the key-value operations the calculators need.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Scan returns the keys matching the given prefix, sorted.
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// Sentinel errors for datastore operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op constants name the failed operation for error context.
const (
	OpGet    = "GET"
	OpSet    = "SET"
	OpDel    = "DEL"
	OpExists = "EXISTS"
	OpScan   = "SCAN"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
