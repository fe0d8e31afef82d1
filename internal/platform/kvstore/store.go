// Package kvstore is the durable string slot store behind wizard drafts.
package kvstore

import (
	"context"
	"fmt"
)

// Store is a durable key-value slot store. Get reports ok=false for an
// absent key; Remove of an absent key is not an error.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Remove(ctx context.Context, key string) error
}

// Backend names accepted by DRAFT_STORE.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("kvstore: empty key")
	}
	return nil
}
