package service

import (
	"context"
	"testing"

	"webora/storage-sync/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type syncFixture struct {
	db      *gorm.DB
	bucket  *model.Bucket
	session *model.FileUploadSession
	uploads *UploadService
	sync    *SyncService
	staging *fakeStaging
	network *fakeNetwork
	ledger  *fakeLedger
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	db := setupDB(t)
	bucket := makeBucket(t, db)

	sync, staging, network, ledger := newTestStack(t, db)
	uploads := NewUploadService(db, staging)

	session, err := uploads.OpenOrReuseSession(bucket, uuid.NewString())
	require.NoError(t, err)

	return &syncFixture{
		db:      db,
		bucket:  bucket,
		session: session,
		uploads: uploads,
		sync:    sync,
		staging: staging,
		network: network,
		ledger:  ledger,
	}
}

// stage records an upload request and puts the body where the signed URL
// would have.
func (f *syncFixture) stage(t *testing.T, path, name string, body []byte) *model.FileUploadRequest {
	t.Helper()

	fur, _, err := f.uploads.RecordUploadRequest(context.Background(), f.bucket, f.session, UploadRequestInput{
		Path:     path,
		FileName: name,
	})
	require.NoError(t, err)

	f.staging.put(fur.S3FileKey, body)

	return fur
}

func (f *syncFixture) reloadBucket(t *testing.T) {
	t.Helper()
	require.NoError(t, f.db.First(f.bucket, f.bucket.ID).Error)
}

func TestSyncSessionPropagatesFiles(t *testing.T) {
	f := newSyncFixture(t)

	f.stage(t, "a/b", "c.txt", []byte("content of c"))
	f.stage(t, "a/b", "d.txt", []byte("content of d"))
	f.stage(t, "", "e.txt", []byte("content of e"))

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.NoError(t, err)

	require.Len(t, result.PropagatedFiles, 3)
	assert.Empty(t, result.SkippedFiles)
	assert.Empty(t, result.WrapCID)

	for _, file := range result.PropagatedFiles {
		assert.NotEmpty(t, file.CID)
		assert.NotEmpty(t, file.CIDv1)
		assert.NotEqual(t, file.CID, file.CIDv1)
	}

	// Shared ancestors materialized once, with the CIDs the add reported
	var dirs []model.Directory
	require.NoError(t, f.db.Order("id ASC").Find(&dirs).Error)
	require.Len(t, dirs, 2)
	assert.Equal(t, "a", dirs[0].Name)
	assert.Equal(t, "b", dirs[1].Name)
	assert.NotEmpty(t, dirs[0].CID)
	assert.NotEmpty(t, dirs[1].CID)

	// Bucket size equals the sum of its active files
	f.reloadBucket(t)
	var total int64
	require.NoError(t, f.db.
		Model(model.File{}).
		Select("COALESCE(SUM(size), 0)").
		Where("bucket_id = ? AND status = ?", f.bucket.ID, model.StatusActive).
		Scan(&total).
		Error)
	assert.Equal(t, total, f.bucket.Size)
	assert.Equal(t, total, f.bucket.UploadedSize)

	// Requests completed, staging cleared, session processed
	var furs []model.FileUploadRequest
	require.NoError(t, f.db.Find(&furs).Error)
	for _, fur := range furs {
		assert.Equal(t, model.FileStatusUploadCompleted, fur.FileStatus)
	}
	assert.Len(t, f.staging.removed, 3)
	assert.Equal(t, model.SessionStatusProcessed, f.session.SessionStatus)

	// Every new CID queued for pinning: three files plus two directories
	var pins int64
	require.NoError(t, f.db.Model(model.PinToCrustRequest{}).Count(&pins).Error)
	assert.EqualValues(t, 5, pins)

	// Directory pins carry the size the add reported and reference the
	// directory row, not its path
	var dirPins []model.PinToCrustRequest
	require.NoError(t, f.db.
		Where("ref_table = ?", model.RefTableDirectory).
		Find(&dirPins).
		Error)
	require.Len(t, dirPins, 2)
	for _, pin := range dirPins {
		assert.Positive(t, pin.Size)
		assert.True(t, pin.IsDirectory)

		var dir model.Directory
		require.NoError(t, f.db.Where("directory_uuid = ?", pin.RefID).First(&dir).Error)
		assert.Equal(t, pin.CID, dir.CID)
	}
}

func TestSyncSessionMissingStagedObject(t *testing.T) {
	f := newSyncFixture(t)

	f.stage(t, "", "kept.txt", []byte("still here"))
	missing, _, err := f.uploads.RecordUploadRequest(context.Background(), f.bucket, f.session, UploadRequestInput{
		FileName: "gone.txt",
	})
	require.NoError(t, err)

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.NoError(t, err)

	require.Len(t, result.PropagatedFiles, 1)
	require.Len(t, result.SkippedFiles, 1)
	assert.Equal(t, missing.ID, result.SkippedFiles[0].ID)
	assert.Equal(t, model.FileStatusErrorNotExistsOnS3, result.SkippedFiles[0].FileStatus)

	// The missing file never reached the content network
	assert.Equal(t, []string{"kept.txt"}, f.network.added)

	// Terminal status persisted, not just reported
	var stored model.FileUploadRequest
	require.NoError(t, f.db.First(&stored, missing.ID).Error)
	assert.Equal(t, model.FileStatusErrorNotExistsOnS3, stored.FileStatus)
}

func TestSyncSessionNothingStaged(t *testing.T) {
	f := newSyncFixture(t)

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.NoError(t, err)

	assert.Empty(t, result.PropagatedFiles)
	assert.Equal(t, 0, f.network.addCalls)
	assert.Equal(t, model.SessionStatusProcessed, f.session.SessionStatus)
}

func TestSyncSessionQuotaPartialSuccess(t *testing.T) {
	f := newSyncFixture(t)

	first := f.stage(t, "", "first.bin", []byte("1111"))
	second := f.stage(t, "", "second.bin", []byte("2222"))
	third := f.stage(t, "", "third.bin", []byte("3333"))

	// Reported sizes drive the quota check, bodies stay small
	f.staging.sizes[first.S3FileKey] = 60
	f.staging.sizes[second.S3FileKey] = 40
	f.staging.sizes[third.S3FileKey] = 10

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{
		MaxBucketSize: 100,
	})
	require.NoError(t, err)

	// 60+40 fills the quota exactly, the third is rejected
	require.Len(t, result.PropagatedFiles, 2)
	require.Len(t, result.SkippedFiles, 1)
	assert.Equal(t, third.ID, result.SkippedFiles[0].ID)
	assert.Equal(t, model.FileStatusErrorBucketFull, result.SkippedFiles[0].FileStatus)

	f.reloadBucket(t)
	assert.EqualValues(t, 100, f.bucket.Size)

	// The rejected object was removed from staging along with the
	// propagated ones
	assert.Contains(t, f.staging.removed, third.S3FileKey)
	empty, err := f.staging.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	var stored model.FileUploadRequest
	require.NoError(t, f.db.First(&stored, third.ID).Error)
	assert.Equal(t, model.FileStatusErrorBucketFull, stored.FileStatus)
}

func TestSyncSessionWrapPublishesRoot(t *testing.T) {
	f := newSyncFixture(t)

	f.stage(t, "", "index.html", []byte("<html></html>"))
	f.stage(t, "css", "main.css", []byte("body{}"))

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{
		WrapWithDirectory: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.WrapCID)

	// The wrap CID becomes the bucket's root and is queued for pinning
	f.reloadBucket(t)
	assert.Equal(t, result.WrapCID, f.bucket.CID)
	assert.NotEmpty(t, f.bucket.CIDv1)

	var pin model.PinToCrustRequest
	require.NoError(t, f.db.Where("cid = ?", result.WrapCID).First(&pin).Error)
	assert.Equal(t, model.RefTableBucket, pin.RefTable)
	assert.True(t, pin.IsDirectory)
	assert.Positive(t, pin.Size)

	// And the stable name now points at it
	var record model.IpnsRecord
	require.NoError(t, f.db.Where("bucket_id = ?", f.bucket.ID).First(&record).Error)
	assert.Equal(t, result.WrapCID, record.CID)
	assert.NotEmpty(t, record.IpnsName)
	assert.Equal(t, record.IpnsName, f.bucket.IPNS)
}

func TestSyncSessionReplacesExistingFile(t *testing.T) {
	f := newSyncFixture(t)

	f.stage(t, "docs", "readme.md", []byte("v1"))
	_, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.NoError(t, err)

	// Same path again in a fresh session, bigger content
	session2, err := f.uploads.OpenOrReuseSession(f.bucket, uuid.NewString())
	require.NoError(t, err)
	f.session = session2

	f.stage(t, "docs", "readme.md", []byte("version two, somewhat longer"))
	result, err := f.sync.SyncSession(context.Background(), f.bucket, session2, SyncOptions{})
	require.NoError(t, err)
	require.Len(t, result.PropagatedFiles, 1)

	var count int64
	require.NoError(t, f.db.
		Model(model.File{}).
		Where("bucket_id = ? AND status = ?", f.bucket.ID, model.StatusActive).
		Count(&count).
		Error)
	assert.EqualValues(t, 1, count)

	// Size reflects the replacement, not the sum of both versions
	f.reloadBucket(t)
	assert.EqualValues(t, len("version two, somewhat longer"), f.bucket.Size)
	assert.EqualValues(t, len("v1")+len("version two, somewhat longer"), f.bucket.UploadedSize)

	var file model.File
	require.NoError(t, f.db.Where("name = ?", "readme.md").First(&file).Error)
	assert.Equal(t, contentCID(t, []byte("version two, somewhat longer")), file.CID)
}

func TestSyncSessionDirectoryUUIDTarget(t *testing.T) {
	f := newSyncFixture(t)

	tree, err := LoadDirectoryTree(f.db, f.bucket)
	require.NoError(t, err)
	dir, err := tree.EnsurePath("uploads", nil)
	require.NoError(t, err)

	fur, _, err := f.uploads.RecordUploadRequest(context.Background(), f.bucket, f.session, UploadRequestInput{
		FileName:      "pinned-by-uuid.txt",
		DirectoryUUID: dir.DirectoryUUID,
	})
	require.NoError(t, err)
	f.staging.put(fur.S3FileKey, []byte("payload"))

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.NoError(t, err)
	require.Len(t, result.PropagatedFiles, 1)

	file := result.PropagatedFiles[0]
	require.NotNil(t, file.DirectoryID)
	assert.Equal(t, dir.ID, *file.DirectoryID)
}

func TestSyncSessionUnknownDirectoryUUID(t *testing.T) {
	f := newSyncFixture(t)

	fur, _, err := f.uploads.RecordUploadRequest(context.Background(), f.bucket, f.session, UploadRequestInput{
		FileName:      "lost.txt",
		DirectoryUUID: uuid.NewString(),
	})
	require.NoError(t, err)
	f.staging.put(fur.S3FileKey, []byte("payload"))

	_, err = f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSyncSessionSkipsTerminalRequests(t *testing.T) {
	f := newSyncFixture(t)

	fur := f.stage(t, "", "done-before.txt", []byte("already handled"))
	require.NoError(t, f.db.
		Model(model.FileUploadRequest{}).
		Where("id = ?", fur.ID).
		Update("file_status", model.FileStatusUploadCompleted).
		Error)

	result, err := f.sync.SyncSession(context.Background(), f.bucket, f.session, SyncOptions{})
	require.NoError(t, err)

	assert.Empty(t, result.PropagatedFiles)
	assert.Empty(t, result.SkippedFiles)
	assert.Equal(t, 0, f.network.addCalls)
}
