package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"webora/storage-sync/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UploadService manages upload sessions and their file upload requests.
type UploadService struct {
	DB      *gorm.DB
	Staging StagingStore
}

func NewUploadService(db *gorm.DB, staging StagingStore) *UploadService {
	return &UploadService{
		DB:      db,
		Staging: staging,
	}
}

// UploadRequestInput is the metadata of one signed-URL request.
type UploadRequestInput struct {
	Path          string
	FileName      string
	ContentType   string
	DirectoryUUID string
}

// StagingKey builds the deterministic key of one staged object:
// {bucketTypeName}_sessions/{bucketId}/{sessionUuid}/{relativePath}{fileName}
func StagingKey(bucket *model.Bucket, sessionUUID, relativePath, fileName string) string {
	prefix := SessionPrefix(bucket, sessionUUID)

	relativePath = strings.Trim(relativePath, "/")
	if relativePath != "" {
		relativePath += "/"
	}

	return prefix + relativePath + fileName
}

// SessionPrefix is the staging prefix shared by every object of a session.
func SessionPrefix(bucket *model.Bucket, sessionUUID string) string {
	return fmt.Sprintf("%s_sessions/%d/%s/", bucket.BucketType, bucket.ID, sessionUUID)
}

// OpenOrReuseSession finds a session by its natural key or creates it.
// Losing a create race is fine, the winner's row is returned.
func (s *UploadService) OpenOrReuseSession(bucket *model.Bucket, sessionUUID string) (*model.FileUploadSession, error) {
	if sessionUUID == "" {
		return nil, fmt.Errorf("session uuid is required, %w", model.ErrValidation)
	}

	var session model.FileUploadSession

	err := s.DB.Where("session_uuid = ?", sessionUUID).First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up session, %w", err)
	}

	session = model.FileUploadSession{
		SessionUUID:   sessionUUID,
		BucketID:      bucket.ID,
		SessionStatus: model.SessionStatusOpen,
		CreatedAt:     time.Now().Unix(),
	}

	err = s.DB.Create(&session).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if err := s.DB.Where("session_uuid = ?", sessionUUID).First(&session).Error; err != nil {
			return nil, fmt.Errorf("failed to re-read session after conflict, %w", err)
		}
		return &session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session, %w", err)
	}

	return &session, nil
}

// RecordUploadRequest creates the FUR for one staged object and returns
// it together with a signed upload URL. Retrying with the same metadata
// is idempotent: the existing row keyed by s3FileKey is reused.
func (s *UploadService) RecordUploadRequest(ctx context.Context, bucket *model.Bucket, session *model.FileUploadSession, in UploadRequestInput) (*model.FileUploadRequest, string, error) {
	if in.FileName == "" {
		return nil, "", fmt.Errorf("file name is required, %w", model.ErrValidation)
	}

	key := StagingKey(bucket, session.SessionUUID, in.Path, in.FileName)

	var fur model.FileUploadRequest

	err := s.DB.Where("s3_file_key = ?", key).First(&fur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sessionID := session.ID
		fur = model.FileUploadRequest{
			SessionID:     &sessionID,
			BucketID:      bucket.ID,
			DirectoryUUID: in.DirectoryUUID,
			Path:          strings.Trim(in.Path, "/"),
			S3FileKey:     key,
			FileName:      in.FileName,
			ContentType:   in.ContentType,
			FileStatus:    model.FileStatusSignedURLGenerated,
			CreatedAt:     time.Now().Unix(),
		}

		err = s.DB.Create(&fur).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = s.DB.Where("s3_file_key = ?", key).First(&fur).Error
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to record upload request, %w", err)
	}

	u, err := s.Staging.SignedUploadURL(ctx, key, in.ContentType)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue signed upload url, %w", err)
	}

	return &fur, u, nil
}

// CloseSession marks a session processed. It refuses while any request
// is still in a staged state, those have to be reconciled by a sync
// first.
func (s *UploadService) CloseSession(session *model.FileUploadSession) error {
	var staged int64

	err := s.DB.
		Model(model.FileUploadRequest{}).
		Where("session_id = ? AND file_status IN ?", session.ID, []model.FileStatus{
			model.FileStatusSignedURLGenerated,
			model.FileStatusUploadedToS3,
		}).
		Count(&staged).
		Error
	if err != nil {
		return fmt.Errorf("failed to count staged requests, %w", err)
	}

	if staged > 0 {
		return fmt.Errorf("session still has %d unreconciled requests, %w", staged, model.ErrValidation)
	}

	err = s.DB.
		Model(model.FileUploadSession{}).
		Where("id = ?", session.ID).
		Update("session_status", model.SessionStatusProcessed).
		Error
	if err != nil {
		return fmt.Errorf("failed to close session, %w", err)
	}

	session.SessionStatus = model.SessionStatusProcessed

	zap.L().Debug("Session closed", zap.String("session_uuid", session.SessionUUID))

	return nil
}
