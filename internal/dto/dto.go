// Package dto holds the explicit per-audience mapping of database
// entities to API payloads. Each audience gets its own typed mapper
// instead of reflection-driven field selection.
package dto

import (
	"webora/storage-sync/internal/model"

	"github.com/spf13/viper"
)

// PublicFile is the tenant-facing view of a file.
type PublicFile struct {
	FileUUID    string `json:"file_uuid"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CID         string `json:"cid"`
	CIDv1       string `json:"cidv1"`
	Link        string `json:"link"`
	FileStatus  string `json:"file_status"`
	UpdatedAt   int64  `json:"updated_at"`
}

// PublicBucket is the tenant-facing view of a bucket.
type PublicBucket struct {
	BucketUUID string `json:"bucket_uuid"`
	Name       string `json:"name"`
	BucketType string `json:"bucket_type"`
	Size       int64  `json:"size"`
	CID        string `json:"cid"`
	CIDv1      string `json:"cidv1"`
	IPNS       string `json:"ipns"`
}

// AdminBucket adds the operator-only counters the public view hides.
type AdminBucket struct {
	PublicBucket
	ID           uint   `json:"id"`
	ProjectUUID  string `json:"project_uuid"`
	UploadedSize int64  `json:"uploaded_size"`
	Status       string `json:"status"`
}

// UploadRequestResult pairs a recorded upload request with its signed
// URL.
type UploadRequestResult struct {
	S3FileKey  string `json:"s3_file_key"`
	FileStatus string `json:"file_status"`
	UploadURL  string `json:"upload_url"`
}

func ToPublicFile(f *model.File) PublicFile {
	link := ""
	if f.CIDv1 != "" {
		link = viper.GetString("ipfs.gateway") + f.CIDv1
	}

	return PublicFile{
		FileUUID:    f.FileUUID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		CID:         f.CID,
		CIDv1:       f.CIDv1,
		Link:        link,
		FileStatus:  f.FileStatus.String(),
		UpdatedAt:   f.UpdatedAt,
	}
}

func ToPublicBucket(b *model.Bucket) PublicBucket {
	return PublicBucket{
		BucketUUID: b.BucketUUID,
		Name:       b.Name,
		BucketType: b.BucketType.String(),
		Size:       b.Size,
		CID:        b.CID,
		CIDv1:      b.CIDv1,
		IPNS:       b.IPNS,
	}
}

func ToAdminBucket(b *model.Bucket) AdminBucket {
	return AdminBucket{
		PublicBucket: ToPublicBucket(b),
		ID:           b.ID,
		ProjectUUID:  b.ProjectUUID,
		UploadedSize: b.UploadedSize,
		Status:       b.Status.String(),
	}
}

func ToUploadRequestResult(fur *model.FileUploadRequest, uploadURL string) UploadRequestResult {
	return UploadRequestResult{
		S3FileKey:  fur.S3FileKey,
		FileStatus: fur.FileStatus.String(),
		UploadURL:  uploadURL,
	}
}
