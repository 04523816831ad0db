// Package service holds the synchronization core: directory index
// building, upload sessions, content propagation, pinning and naming.
package service

import (
	"context"

	"webora/storage-sync/aws"
	"webora/storage-sync/crust"
	"webora/storage-sync/ipfs"
)

// StagingStore is the staging object store boundary, implemented by the
// aws package and faked in tests.
type StagingStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, *aws.ObjectInfo, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]aws.ObjectInfo, error)
	Remove(ctx context.Context, key string) error
	RemoveMany(ctx context.Context, keys []string) error
	SignedUploadURL(ctx context.Context, key, contentType string) (string, error)
}

// ContentNetwork is the content-addressed network boundary, implemented
// by the ipfs package.
type ContentNetwork interface {
	Add(ctx context.Context, path string, content []byte) (*ipfs.AddResult, error)
	AddAll(ctx context.Context, items []ipfs.AddItem, wrap bool) ([]ipfs.AddResult, error)
	Ls(ctx context.Context, cid string) ([]ipfs.LsEntry, error)
	NamePublish(ctx context.Context, cid, key string) (*ipfs.PublishResult, error)
	KeyList(ctx context.Context) ([]ipfs.Key, error)
	KeyGen(ctx context.Context, name string) (*ipfs.Key, error)
}

// PinningLedger is the blockchain storage market boundary, implemented
// by the crust package.
type PinningLedger interface {
	PlaceStorageOrder(ctx context.Context, cid string, size int64, memo string) (*crust.OrderReceipt, error)
	GetOrderStatus(ctx context.Context, cid string) (*crust.OrderStatus, error)
}
