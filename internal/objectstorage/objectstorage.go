// Package objectstorage adapts the repo content cache's byte storage to
// Azure Blob Storage, following the same "interface + concrete client
// wrapping an upstream SDK" shape as internal/vectordb's QdrantVectorDB.
// The azblob dependency has no usage file anywhere in the retrieved
// example pack — only its go.mod entry in ethereum-go-ethereum — so this
// adapter is grounded on the SDK's own public API shape and on
// internal/vectordb.go for the wrapping convention, not on a pack usage
// site; see DESIGN.md.
package objectstorage

import "context"

// Store is the content cache's byte-storage collaborator (spec.md §4.6):
// metadata lives in internal/store, bytes live here, keyed by an opaque
// object key the caller generates and persists alongside the metadata row.
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
