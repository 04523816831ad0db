package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"webora/storage-sync/internal/model"
	"webora/storage-sync/ipfs"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DirectoryTree materializes slash-delimited paths into Directory rows
// of one bucket. The in-memory slice makes repeated EnsurePath calls in
// one sync pass idempotent; across processes the composite unique index
// on (bucket_id, parent_directory_id, name) is the actual guard and a
// duplicate-key failure just means someone else created the node first.
type DirectoryTree struct {
	db     *gorm.DB
	bucket *model.Bucket
	dirs   []model.Directory
}

// LoadDirectoryTree reads all non-deleted directories of the bucket.
func LoadDirectoryTree(db *gorm.DB, bucket *model.Bucket) (*DirectoryTree, error) {
	var dirs []model.Directory

	err := db.
		Where("bucket_id = ? AND status != ?", bucket.ID, model.StatusDeleted).
		Find(&dirs).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to load directories, %w", err)
	}

	return &DirectoryTree{
		db:     db,
		bucket: bucket,
		dirs:   dirs,
	}, nil
}

// EnsurePath walks the path left to right, descending into existing
// children and creating missing ones. cidByPath optionally maps a full
// path (no leading/trailing slash) to a precomputed CID from an earlier
// content-network batch add.
func (t *DirectoryTree) EnsurePath(path string, cidByPath map[string]string) (*model.Directory, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, nil
	}

	var (
		parent *model.Directory
		walked []string
	)

	for _, segment := range segments {
		walked = append(walked, segment)

		existing := t.findChild(parent, segment)
		if existing != nil {
			parent = existing
			continue
		}

		created, err := t.insert(parent, segment, cidByPath[strings.Join(walked, "/")])
		if err != nil {
			return nil, err
		}
		parent = created
	}

	return parent, nil
}

// SetCID records a CID on an already materialized path without creating
// anything. Used when the batch add reports subdirectories of its own.
func (t *DirectoryTree) SetCID(path, cidStr string) error {
	dir := t.ByPath(path)
	if dir == nil {
		return fmt.Errorf("directory path %q not materialized, %w", path, model.ErrNotFound)
	}

	v1, err := ipfs.ToV1(cidStr)
	if err != nil {
		return err
	}

	dir.CID = cidStr
	dir.CIDv1 = v1

	return t.db.
		Model(model.Directory{}).
		Where("id = ?", dir.ID).
		Updates(map[string]any{"cid": cidStr, "cid_v1": v1}).
		Error
}

// ByPath resolves an already materialized path to its directory node,
// nil when any segment is missing.
func (t *DirectoryTree) ByPath(path string) *model.Directory {
	var parent *model.Directory

	for _, segment := range splitPath(path) {
		parent = t.findChild(parent, segment)
		if parent == nil {
			return nil
		}
	}

	return parent
}

// ByUUID resolves a directory of the tree by its stable UUID.
func (t *DirectoryTree) ByUUID(directoryUUID string) *model.Directory {
	for i := range t.dirs {
		if t.dirs[i].DirectoryUUID == directoryUUID {
			return &t.dirs[i]
		}
	}
	return nil
}

// Directories exposes the current in-memory view, mostly for tests and
// for pin enqueueing after a sync pass.
func (t *DirectoryTree) Directories() []model.Directory {
	return t.dirs
}

func (t *DirectoryTree) findChild(parent *model.Directory, name string) *model.Directory {
	for i := range t.dirs {
		d := &t.dirs[i]

		if d.Name != name || d.Status == model.StatusDeleted {
			continue
		}
		if parent == nil && d.ParentDirectoryID == nil {
			return d
		}
		if parent != nil && d.ParentDirectoryID != nil && *d.ParentDirectoryID == parent.ID {
			return d
		}
	}
	return nil
}

func (t *DirectoryTree) insert(parent *model.Directory, name, cidStr string) (*model.Directory, error) {
	dir := model.Directory{
		DirectoryUUID: uuid.NewString(),
		BucketID:      t.bucket.ID,
		Name:          name,
		Status:        model.StatusActive,
		CreatedAt:     time.Now().Unix(),
	}
	if parent != nil {
		id := parent.ID
		dir.ParentDirectoryID = &id
	}

	if cidStr != "" {
		// An unparseable supplied CID is dropped, the directory still
		// gets created and its CID arrives on a later sync
		if v1, err := ipfs.ToV1(cidStr); err != nil {
			zap.L().Warn("Dropping invalid directory CID",
				zap.String("path", name),
				zap.String("cid", cidStr))
		} else {
			dir.CID = cidStr
			dir.CIDv1 = v1
		}
	}

	err := t.db.Create(&dir).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the race against another process, the row exists now
		return t.reread(parent, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert directory %q, %w", name, err)
	}

	t.dirs = append(t.dirs, dir)

	return &t.dirs[len(t.dirs)-1], nil
}

func (t *DirectoryTree) reread(parent *model.Directory, name string) (*model.Directory, error) {
	q := t.db.Where("bucket_id = ? AND name = ? AND status != ?", t.bucket.ID, name, model.StatusDeleted)
	if parent == nil {
		q = q.Where("parent_directory_id IS NULL")
	} else {
		q = q.Where("parent_directory_id = ?", parent.ID)
	}

	var dir model.Directory
	if err := q.First(&dir).Error; err != nil {
		return nil, fmt.Errorf("failed to re-read directory %q after conflict, %w", name, err)
	}

	t.dirs = append(t.dirs, dir)

	return &t.dirs[len(t.dirs)-1], nil
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
