package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"webora/storage-sync/aws"
	"webora/storage-sync/crust"
	"webora/storage-sync/internal/model"
	"webora/storage-sync/ipfs"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		model.Bucket{},
		model.Directory{},
		model.File{},
		model.FileUploadSession{},
		model.FileUploadRequest{},
		model.PinToCrustRequest{},
		model.IpnsRecord{},
		model.IpfsCluster{},
		model.Job{},
		model.WorkerAlert{},
	))

	return db
}

func makeBucket(t *testing.T, db *gorm.DB) *model.Bucket {
	t.Helper()

	bucket := &model.Bucket{
		BucketUUID:  uuid.NewString(),
		ProjectUUID: uuid.NewString(),
		BucketType:  model.BucketTypeStorage,
		Name:        "test-bucket",
		Status:      model.StatusActive,
		CreatedAt:   time.Now().Unix(),
	}
	require.NoError(t, db.Create(bucket).Error)

	return bucket
}

// contentCID derives the real CID the fake network reports for content.
func contentCID(t *testing.T, content []byte) string {
	t.Helper()

	c, err := cid.V0Builder{}.Sum(content)
	require.NoError(t, err)

	return c.String()
}

// fakeStaging is an in-memory StagingStore.
type fakeStaging struct {
	mu      sync.Mutex
	objects map[string][]byte
	// sizes overrides the reported object size, so quota tests don't
	// need gigabytes of real bytes
	sizes      map[string]int64
	removed    []string
	failRemove bool
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{
		objects: make(map[string][]byte),
		sizes:   make(map[string]int64),
	}
}

func (f *fakeStaging) put(key string, content []byte) {
	f.objects[key] = content
}

func (f *fakeStaging) size(key string) int64 {
	if s, ok := f.sizes[key]; ok {
		return s
	}
	return int64(len(f.objects[key]))
}

func (f *fakeStaging) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStaging) Get(ctx context.Context, key string) ([]byte, *aws.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.objects[key]
	if !ok {
		return nil, nil, fmt.Errorf("no such key %s", key)
	}

	return content, &aws.ObjectInfo{Key: key, Size: f.size(key)}, nil
}

func (f *fakeStaging) Put(ctx context.Context, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	return nil
}

func (f *fakeStaging) List(ctx context.Context, prefix string) ([]aws.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []aws.ObjectInfo
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, aws.ObjectInfo{Key: key, Size: f.size(key)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

func (f *fakeStaging) Remove(ctx context.Context, key string) error {
	return f.RemoveMany(ctx, []string{key})
}

func (f *fakeStaging) RemoveMany(ctx context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRemove {
		return errors.New("staging unavailable")
	}

	for _, key := range keys {
		delete(f.objects, key)
		f.removed = append(f.removed, key)
	}

	return nil
}

func (f *fakeStaging) SignedUploadURL(ctx context.Context, key, contentType string) (string, error) {
	return "https://staging.test/upload/" + key, nil
}

// fakeNetwork is an in-memory ContentNetwork handing out real
// content-derived CIDs, including entries for implied subdirectories
// and the wrap directory.
type fakeNetwork struct {
	mu       sync.Mutex
	addCalls int
	added    []string
	keys     map[string]string // key name -> peer id
	failKeys map[string]bool   // keys the node "lost"
	// staleKeys still show up in key/list but fail name/publish, the
	// shape of a node restored from an older datastore
	staleKeys map[string]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		keys:      make(map[string]string),
		failKeys:  make(map[string]bool),
		staleKeys: make(map[string]bool),
	}
}

func (f *fakeNetwork) Add(ctx context.Context, path string, content []byte) (*ipfs.AddResult, error) {
	results, err := f.AddAll(ctx, []ipfs.AddItem{{Path: path, Content: content}}, false)
	if err != nil {
		return nil, err
	}
	return &results[len(results)-1], nil
}

func (f *fakeNetwork) AddAll(ctx context.Context, items []ipfs.AddItem, wrap bool) ([]ipfs.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addCalls++

	var results []ipfs.AddResult
	dirs := map[string]bool{}

	for _, item := range items {
		f.added = append(f.added, item.Path)

		c, err := cid.V0Builder{}.Sum(item.Content)
		if err != nil {
			return nil, err
		}

		results = append(results, ipfs.AddResult{
			Path: item.Path,
			CID:  c.String(),
			Size: int64(len(item.Content)) + 16,
		})

		segments := strings.Split(item.Path, "/")
		for i := 1; i < len(segments); i++ {
			dirs[strings.Join(segments[:i], "/")] = true
		}
	}

	for dir := range dirs {
		c, err := cid.V0Builder{}.Sum([]byte("dir:" + dir))
		if err != nil {
			return nil, err
		}
		results = append(results, ipfs.AddResult{
			Path: dir,
			CID:  c.String(),
			Size: int64(len(dir)) + 54,
		})
	}

	if wrap {
		c, err := cid.V0Builder{}.Sum([]byte(fmt.Sprintf("wrap:%d", len(items))))
		if err != nil {
			return nil, err
		}
		results = append(results, ipfs.AddResult{
			Path: "",
			CID:  c.String(),
			Size: int64(len(items))*64 + 108,
		})
	}

	return results, nil
}

func (f *fakeNetwork) Ls(ctx context.Context, cid string) ([]ipfs.LsEntry, error) {
	return nil, nil
}

func (f *fakeNetwork) NamePublish(ctx context.Context, cidStr, key string) (*ipfs.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failKeys[key] || f.staleKeys[key] {
		return nil, errors.New("ipfs rpc name/publish: no key by the given name was found")
	}
	if _, ok := f.keys[key]; !ok {
		return nil, errors.New("ipfs rpc name/publish: no key by the given name was found")
	}

	return &ipfs.PublishResult{
		Name:  "k51" + f.keys[key],
		Value: "/ipfs/" + cidStr,
	}, nil
}

func (f *fakeNetwork) KeyList(ctx context.Context) ([]ipfs.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []ipfs.Key
	for name, id := range f.keys {
		if f.failKeys[name] {
			continue
		}
		keys = append(keys, ipfs.Key{Name: name, ID: id})
	}
	for name := range f.staleKeys {
		keys = append(keys, ipfs.Key{Name: name, ID: "stale-" + name})
	}

	return keys, nil
}

func (f *fakeNetwork) KeyGen(ctx context.Context, name string) (*ipfs.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.failKeys, name)
	delete(f.staleKeys, name)
	f.keys[name] = fmt.Sprintf("key-%s-%d", name, len(f.keys))

	return &ipfs.Key{Name: name, ID: f.keys[name]}, nil
}

// fakeLedger is a PinningLedger with scriptable failures.
type fakeLedger struct {
	mu       sync.Mutex
	orders   []string
	failWith error
}

func (f *fakeLedger) PlaceStorageOrder(ctx context.Context, cidStr string, size int64, memo string) (*crust.OrderReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	f.orders = append(f.orders, cidStr)

	return &crust.OrderReceipt{TxHash: "0xabc", BlockHash: "0xdef"}, nil
}

func (f *fakeLedger) GetOrderStatus(ctx context.Context, cidStr string) (*crust.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.orders {
		if o == cidStr {
			return &crust.OrderStatus{CID: cidStr, Found: true}, nil
		}
	}

	return &crust.OrderStatus{CID: cidStr}, nil
}

// newTestStack wires the full service stack over the fakes.
func newTestStack(t *testing.T, db *gorm.DB) (*SyncService, *fakeStaging, *fakeNetwork, *fakeLedger) {
	t.Helper()

	staging := newFakeStaging()
	network := newFakeNetwork()
	ledger := &fakeLedger{}

	clusters := NewClusterService(db)
	clusters.NewNetwork = func(endpoint string) ContentNetwork {
		return network
	}

	pins := NewPinService(db, ledger)
	naming := NewIpnsService(db, clusters)

	return NewSyncService(db, staging, pins, naming, clusters), staging, network, ledger
}
