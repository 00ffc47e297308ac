// Package cloud talks to the per-user backup location: a single snapshot
// object in an app-private folder. Two backends implement the same
// contract, Google Drive's appDataFolder and an S3 bucket.
package cloud

import "context"

// ObjectInfo identifies a stored object. ID is backend-specific and
// opaque to callers.
type ObjectInfo struct {
	ID   string
	Name string
}

// ObjectStore is the minimal surface the reconciliation engine needs.
// Find returns common.ErrNotFound when no object with that name exists.
// An expired credential surfaces as common.ErrSessionExpired and is never
// retried internally.
type ObjectStore interface {
	Find(ctx context.Context, name string) (*ObjectInfo, error)
	Create(ctx context.Context, name string, body []byte) (string, error)
	Replace(ctx context.Context, id string, body []byte) error
	Download(ctx context.Context, id string) ([]byte, error)
}
