package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webora/storage-sync/aws"
	"webora/storage-sync/internal/model"
	"webora/storage-sync/ipfs"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncService is the content propagation engine. It reconciles the
// staged objects of one upload session against the relational index,
// pushes content to the network, enforces the bucket quota and hands
// newly assigned CIDs to the pinning queue and the naming publisher.
type SyncService struct {
	DB      *gorm.DB
	Staging StagingStore
	Pins    *PinService
	Naming  *IpnsService
	// Clusters resolves the content network endpoint per project,
	// falling back to the default cluster.
	Clusters *ClusterService
}

func NewSyncService(db *gorm.DB, staging StagingStore, pins *PinService, naming *IpnsService, clusters *ClusterService) *SyncService {
	return &SyncService{
		DB:       db,
		Staging:  staging,
		Pins:     pins,
		Naming:   naming,
		Clusters: clusters,
	}
}

// SyncOptions tunes one propagation run.
type SyncOptions struct {
	// MaxBucketSize is the byte quota supplied by the caller. The
	// quota value itself comes from the subscription service, this
	// engine only enforces it.
	MaxBucketSize int64

	// WrapWithDirectory adds a synthetic parent so the whole batch has
	// one root CID, e.g. for a website deployment.
	WrapWithDirectory bool
}

// SyncResult reports a best-effort partial outcome: propagated files
// plus the requests skipped with a terminal error status.
type SyncResult struct {
	PropagatedFiles []model.File
	SkippedFiles    []model.FileUploadRequest
	WrapCID         string
}

// directoryPin carries a directory entry reported by the batch add to
// the pin queue, keeping the size the content network measured.
type directoryPin struct {
	dir  *model.Directory
	cid  string
	size int64
}

type syncCandidate struct {
	fur    *model.FileUploadRequest
	object aws.ObjectInfo
	dir    *model.Directory
	path   string // relative path inside the batch, including file name
	body   []byte
	result *ipfs.AddResult
}

// SyncSession runs the full propagation pipeline for one session. A
// quota breach or a missing staged object never aborts the batch, those
// files end in a terminal error status while the rest proceed. External
// network failures abort with an error and the run is safe to repeat:
// every state change is keyed by s3FileKey or file_uuid.
func (s *SyncService) SyncSession(ctx context.Context, bucket *model.Bucket, session *model.FileUploadSession, opts SyncOptions) (*SyncResult, error) {
	log := zap.L().With(
		zap.String("bucket_uuid", bucket.BucketUUID),
		zap.String("session_uuid", session.SessionUUID),
	)

	result := &SyncResult{}

	// 1. Load the session's requests and everything actually staged
	var furs []model.FileUploadRequest
	err := s.DB.
		Where("session_id = ?", session.ID).
		Order("id ASC").
		Find(&furs).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to load upload requests, %w", err)
	}

	staged, err := s.Staging.List(ctx, SessionPrefix(bucket, session.SessionUUID))
	if err != nil {
		return nil, fmt.Errorf("failed to list staged objects, %w", err)
	}

	stagedByKey := make(map[string]aws.ObjectInfo, len(staged))
	for _, o := range staged {
		stagedByKey[o.Key] = o
	}

	// 2. Every request needs a matching staged object
	var candidates []syncCandidate
	for i := range furs {
		fur := &furs[i]

		if fur.FileStatus.Terminal() {
			continue
		}

		object, ok := stagedByKey[fur.S3FileKey]
		if !ok {
			s.markFailed(fur, model.FileStatusErrorNotExistsOnS3)
			result.SkippedFiles = append(result.SkippedFiles, *fur)

			log.Warn("Staged object missing for upload request",
				zap.String("s3_file_key", fur.S3FileKey))
			continue
		}

		candidates = append(candidates, syncCandidate{
			fur:    fur,
			object: object,
			path:   joinRelativePath(fur.Path, fur.FileName),
		})
	}

	// 3. Quota enforcement, best-effort partial in request order
	candidates = s.enforceQuota(ctx, bucket, candidates, opts.MaxBucketSize, result, log)

	if len(candidates) == 0 {
		log.Info("Nothing to propagate")
		return result, s.finishSession(session)
	}

	// 4. Materialize target directories
	tree, err := LoadDirectoryTree(s.DB, bucket)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		c := &candidates[i]

		if c.fur.DirectoryUUID != "" {
			c.dir = tree.ByUUID(c.fur.DirectoryUUID)
			if c.dir == nil {
				return nil, fmt.Errorf("directory %s referenced by request %d, %w", c.fur.DirectoryUUID, c.fur.ID, model.ErrNotFound)
			}
			continue
		}

		if c.fur.Path != "" {
			if c.dir, err = tree.EnsurePath(c.fur.Path, nil); err != nil {
				return nil, err
			}
		}
	}

	// 5. Fetch the bytes and push the batch to the content network
	network, err := s.Clusters.NetworkFor(bucket.ProjectUUID)
	if err != nil {
		return nil, err
	}

	items := make([]ipfs.AddItem, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]

		body, info, err := s.Staging.Get(ctx, c.fur.S3FileKey)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch staged object %s, %w", c.fur.S3FileKey, err)
		}
		c.body = body

		if c.fur.ContentType == "" {
			if info.ContentType != "" {
				c.fur.ContentType = info.ContentType
			} else {
				c.fur.ContentType = mimetype.Detect(body).String()
			}
		}

		items = append(items, ipfs.AddItem{Path: c.path, Content: body})
	}

	added, err := network.AddAll(ctx, items, opts.WrapWithDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to add batch to content network, %w", err)
	}

	// 6. Map returned entries back: files by exact path, the empty
	// path is the wrap directory, the rest are subdirectories
	byPath := make(map[string]*ipfs.AddResult, len(added))
	for i := range added {
		byPath[added[i].Path] = &added[i]
	}

	for i := range candidates {
		c := &candidates[i]

		c.result = byPath[c.path]
		if c.result == nil {
			// The node never reported this file. Terminal for the
			// file, the batch goes on.
			s.markFailed(c.fur, model.FileStatusErrorUploadingToIPFS)
			result.SkippedFiles = append(result.SkippedFiles, *c.fur)

			log.Error("Content network returned no entry for file",
				zap.String("path", c.path))
		}
		delete(byPath, c.path)
	}
	candidates = filterResolved(candidates)

	var (
		dirPins  []directoryPin
		wrapSize int64
	)
	for p, r := range byPath {
		if p == "" {
			result.WrapCID = r.CID
			wrapSize = r.Size
			continue
		}

		dir, err := s.recordDirectoryCID(tree, p, r.CID)
		if err != nil {
			log.Warn("Failed to record directory CID",
				zap.String("path", p), zap.Error(err))
			continue
		}
		dirPins = append(dirPins, directoryPin{dir: dir, cid: r.CID, size: r.Size})
	}

	// 7. One atomic update of files, bucket counters and request states
	propagated, err := s.persist(bucket, session, candidates, result.WrapCID)
	if err != nil {
		return nil, err
	}
	result.PropagatedFiles = propagated

	// 8. Clear staging, best-effort: orphaned staging objects are
	// tolerated, re-adding content is cheap
	keys := make([]string, len(candidates))
	for i := range candidates {
		keys[i] = candidates[i].fur.S3FileKey
	}
	if err := s.Staging.RemoveMany(ctx, keys); err != nil {
		log.Error("Failed to clear staged objects after propagation", zap.Error(err))
	} else {
		s.completeRequests(candidates)
	}

	// 9. Queue pinning work for every newly assigned CID
	for i := range propagated {
		f := &propagated[i]
		ledgerSize := f.Size
		if candidates[i].result != nil && candidates[i].result.Size > 0 {
			ledgerSize = candidates[i].result.Size
		}
		s.Pins.Enqueue(bucket.BucketUUID, f.CID, ledgerSize, false, f.FileUUID, model.RefTableFile)
	}
	for _, dp := range dirPins {
		s.Pins.Enqueue(bucket.BucketUUID, dp.cid, dp.size, true, dp.dir.DirectoryUUID, model.RefTableDirectory)
	}
	if result.WrapCID != "" {
		s.Pins.Enqueue(bucket.BucketUUID, result.WrapCID, wrapSize, true, bucket.BucketUUID, model.RefTableBucket)
	}

	// 10. Re-point the bucket's stable name at the new root
	if result.WrapCID != "" {
		if _, err := s.Naming.PublishBucket(ctx, bucket, result.WrapCID); err != nil {
			log.Error("Failed to publish bucket IPNS record", zap.Error(err))
		}
	}

	log.Info("Session propagated",
		zap.Int("propagated", len(result.PropagatedFiles)),
		zap.Int("skipped", len(result.SkippedFiles)))

	return result, s.finishSession(session)
}

// enforceQuota admits candidates in request order until the bucket
// boundary. The overflow gets a terminal status and its staged objects
// are removed.
func (s *SyncService) enforceQuota(ctx context.Context, bucket *model.Bucket, candidates []syncCandidate, maxBucketSize int64, result *SyncResult, log *zap.Logger) []syncCandidate {
	if maxBucketSize <= 0 {
		return candidates
	}

	admitted := candidates[:0]
	used := bucket.Size

	var rejectedKeys []string

	for i := range candidates {
		c := candidates[i]

		if used+c.object.Size > maxBucketSize {
			s.markFailed(c.fur, model.FileStatusErrorBucketFull)
			result.SkippedFiles = append(result.SkippedFiles, *c.fur)
			rejectedKeys = append(rejectedKeys, c.fur.S3FileKey)

			log.Warn("Bucket quota reached, skipping file",
				zap.String("s3_file_key", c.fur.S3FileKey),
				zap.Int64("file_size", c.object.Size),
				zap.Int64("max_bucket_size", maxBucketSize))
			continue
		}

		used += c.object.Size
		admitted = append(admitted, c)
	}

	if len(rejectedKeys) > 0 {
		if err := s.Staging.RemoveMany(ctx, rejectedKeys); err != nil {
			log.Error("Failed to remove over-quota staged objects", zap.Error(err))
		}
	}

	return admitted
}

// persist is step 7: all relational changes of one sync ride a single
// transaction. The content-network add is deliberately not compensated
// on rollback, content is immutable and cheap to re-add.
func (s *SyncService) persist(bucket *model.Bucket, session *model.FileUploadSession, candidates []syncCandidate, wrapCID string) ([]model.File, error) {
	now := time.Now().Unix()
	files := make([]model.File, 0, len(candidates))

	var sizeDelta, uploadedBytes int64

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range candidates {
			c := &candidates[i]

			v1, err := ipfs.ToV1(c.result.CID)
			if err != nil {
				return err
			}

			var dirID *uint
			if c.dir != nil {
				id := c.dir.ID
				dirID = &id
			}

			file := model.File{}
			q := tx.Where("bucket_id = ? AND name = ? AND status != ?", bucket.ID, c.fur.FileName, model.StatusDeleted)
			if dirID == nil {
				q = q.Where("directory_id IS NULL")
			} else {
				q = q.Where("directory_id = ?", *dirID)
			}

			err = q.First(&file).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				file = model.File{
					FileUUID:    uuid.NewString(),
					BucketID:    bucket.ID,
					DirectoryID: dirID,
					Name:        c.fur.FileName,
					ContentType: c.fur.ContentType,
					Size:        c.object.Size,
					CID:         c.result.CID,
					CIDv1:       v1,
					S3FileKey:   c.fur.S3FileKey,
					FileStatus:  model.FileStatusUploadedToIPFS,
					Status:      model.StatusActive,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := tx.Create(&file).Error; err != nil {
					return fmt.Errorf("failed to insert file %s, %w", c.fur.FileName, err)
				}
				sizeDelta += c.object.Size

			case err == nil:
				sizeDelta += c.object.Size - file.Size

				file.ContentType = c.fur.ContentType
				file.Size = c.object.Size
				file.CID = c.result.CID
				file.CIDv1 = v1
				file.S3FileKey = c.fur.S3FileKey
				file.FileStatus = model.FileStatusUploadedToIPFS
				file.UpdatedAt = now

				if err := tx.Save(&file).Error; err != nil {
					return fmt.Errorf("failed to update file %s, %w", c.fur.FileName, err)
				}

			default:
				return fmt.Errorf("failed to look up file %s, %w", c.fur.FileName, err)
			}

			uploadedBytes += c.object.Size
			files = append(files, file)

			err = tx.
				Model(model.FileUploadRequest{}).
				Where("id = ?", c.fur.ID).
				Updates(map[string]any{
					"file_status": model.FileStatusUploadedToIPFS,
					"updated_at":  now,
				}).
				Error
			if err != nil {
				return fmt.Errorf("failed to update upload request %d, %w", c.fur.ID, err)
			}
			c.fur.FileStatus = model.FileStatusUploadedToIPFS
		}

		updates := map[string]any{
			"size":          gorm.Expr("size + ?", sizeDelta),
			"uploaded_size": gorm.Expr("uploaded_size + ?", uploadedBytes),
		}
		if wrapCID != "" {
			v1, err := ipfs.ToV1(wrapCID)
			if err != nil {
				return err
			}
			updates["cid"] = wrapCID
			updates["cid_v1"] = v1
		}

		err := tx.
			Model(model.Bucket{}).
			Where("id = ?", bucket.ID).
			Updates(updates).
			Error
		if err != nil {
			return fmt.Errorf("failed to update bucket counters, %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	bucket.Size += sizeDelta
	bucket.UploadedSize += uploadedBytes
	if wrapCID != "" {
		bucket.CID = wrapCID
	}

	return files, nil
}

func (s *SyncService) completeRequests(candidates []syncCandidate) {
	now := time.Now().Unix()

	for i := range candidates {
		fur := candidates[i].fur

		err := s.DB.
			Model(model.FileUploadRequest{}).
			Where("id = ?", fur.ID).
			Updates(map[string]any{
				"file_status": model.FileStatusUploadCompleted,
				"updated_at":  now,
			}).
			Error
		if err != nil {
			zap.L().Error("Failed to complete upload request",
				zap.Uint("fur_id", fur.ID), zap.Error(err))
			continue
		}
		fur.FileStatus = model.FileStatusUploadCompleted
	}
}

func (s *SyncService) markFailed(fur *model.FileUploadRequest, status model.FileStatus) {
	fur.FileStatus = status

	err := s.DB.
		Model(model.FileUploadRequest{}).
		Where("id = ?", fur.ID).
		Updates(map[string]any{
			"file_status": status,
			"updated_at":  time.Now().Unix(),
		}).
		Error
	if err != nil {
		zap.L().Error("Failed to persist request error status",
			zap.Uint("fur_id", fur.ID),
			zap.String("status", status.String()),
			zap.Error(err))
	}
}

func (s *SyncService) recordDirectoryCID(tree *DirectoryTree, path, cidStr string) (*model.Directory, error) {
	err := tree.SetCID(path, cidStr)
	if errors.Is(err, model.ErrNotFound) {
		// A subdirectory only the node knew about, materialize it
		return tree.EnsurePath(path, map[string]string{path: cidStr})
	}
	if err != nil {
		return nil, err
	}
	return tree.ByPath(path), nil
}

func (s *SyncService) finishSession(session *model.FileUploadSession) error {
	err := s.DB.
		Model(model.FileUploadSession{}).
		Where("id = ?", session.ID).
		Update("session_status", model.SessionStatusProcessed).
		Error
	if err != nil {
		return fmt.Errorf("failed to mark session processed, %w", err)
	}

	session.SessionStatus = model.SessionStatusProcessed
	return nil
}

func filterResolved(candidates []syncCandidate) []syncCandidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.result != nil {
			out = append(out, c)
		}
	}
	return out
}

func joinRelativePath(path, fileName string) string {
	if path == "" {
		return fileName
	}
	return path + "/" + fileName
}
