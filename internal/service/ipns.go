package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webora/storage-sync/internal/model"
	"webora/storage-sync/ipfs"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IpnsService manages mutable name records: publishing a bucket's root
// CID under a stable key and republishing it over time. Key names are
// derived from (projectUUID, bucketID, recordID), so a key lost on the
// serving node can always be regenerated.
type IpnsService struct {
	DB       *gorm.DB
	Clusters *ClusterService
}

func NewIpnsService(db *gorm.DB, clusters *ClusterService) *IpnsService {
	return &IpnsService{
		DB:       db,
		Clusters: clusters,
	}
}

func ipnsKeyName(projectUUID string, bucketID, recordID uint) string {
	return fmt.Sprintf("%s-%d-%d", projectUUID, bucketID, recordID)
}

// PublishBucket points the bucket's IPNS name at cid, creating the
// record and the network key on first use.
func (s *IpnsService) PublishBucket(ctx context.Context, bucket *model.Bucket, cid string) (*model.IpnsRecord, error) {
	var record model.IpnsRecord

	err := s.DB.Where("bucket_id = ? AND status = ?", bucket.ID, model.StatusActive).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = model.IpnsRecord{
			ProjectUUID: bucket.ProjectUUID,
			BucketID:    bucket.ID,
			Name:        bucket.Name,
			Status:      model.StatusActive,
			CreatedAt:   time.Now().Unix(),
		}
		if err := s.DB.Create(&record).Error; err != nil {
			return nil, fmt.Errorf("failed to create ipns record, %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up ipns record, %w", err)
	}

	record.CID = cid
	if record.Key == "" {
		record.Key = ipnsKeyName(bucket.ProjectUUID, bucket.ID, record.ID)
	}

	if err := s.publish(ctx, &record); err != nil {
		return nil, err
	}

	err = s.DB.
		Model(model.Bucket{}).
		Where("id = ?", bucket.ID).
		Update("ipns", record.IpnsName).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to store bucket ipns name, %w", err)
	}
	bucket.IPNS = record.IpnsName

	return &record, nil
}

// Republish re-announces an existing record. A "key not found" from the
// network means the serving node lost the key; it is regenerated from
// the deterministic name and the publish retried, the caller never sees
// that failure.
func (s *IpnsService) Republish(ctx context.Context, record *model.IpnsRecord) error {
	if record.CID == "" {
		return fmt.Errorf("ipns record %d has no cid, %w", record.ID, model.ErrValidation)
	}

	if record.Key == "" {
		record.Key = ipnsKeyName(record.ProjectUUID, record.BucketID, record.ID)
	}

	return s.publish(ctx, record)
}

func (s *IpnsService) publish(ctx context.Context, record *model.IpnsRecord) error {
	network, err := s.Clusters.NetworkFor(record.ProjectUUID)
	if err != nil {
		return err
	}

	if err := s.ensureKey(ctx, network, record.Key); err != nil {
		return err
	}

	res, err := network.NamePublish(ctx, record.CID, record.Key)
	if ipfs.IsKeyNotFound(err) {
		// Key lost server-side, regenerate and go again
		zap.L().Warn("IPNS key lost on node, regenerating",
			zap.String("key", record.Key))

		if _, err := network.KeyGen(ctx, record.Key); err != nil {
			return fmt.Errorf("failed to regenerate ipns key, %w", err)
		}

		res, err = network.NamePublish(ctx, record.CID, record.Key)
		if err != nil {
			return fmt.Errorf("failed to publish after key regeneration, %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to publish ipns name, %w", err)
	}

	record.IpnsName = res.Name
	record.IpnsValue = res.Value

	err = s.DB.
		Model(model.IpnsRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"ipns_name":  res.Name,
			"ipns_value": res.Value,
			"cid":        record.CID,
			"key":        record.Key,
			"updated_at": time.Now().Unix(),
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to store ipns record, %w", err)
	}

	zap.L().Debug("IPNS name published",
		zap.String("name", res.Name),
		zap.String("value", res.Value))

	return nil
}

func (s *IpnsService) ensureKey(ctx context.Context, network ContentNetwork, name string) error {
	keys, err := network.KeyList(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ipns keys, %w", err)
	}

	for _, k := range keys {
		if k.Name == name {
			return nil
		}
	}

	if _, err := network.KeyGen(ctx, name); err != nil {
		return fmt.Errorf("failed to generate ipns key, %w", err)
	}

	return nil
}
