package model

// Bucket is the root of one tenant namespace. Size is maintained
// incrementally as propagation completes and periodically reconciled
// against SUM(files.size) by the maintenance worker, so it is eventually
// consistent rather than exact per read.
type Bucket struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	BucketUUID   string       `gorm:"uniqueIndex;size:36" json:"bucket_uuid"`
	ProjectUUID  string       `gorm:"index;size:36" json:"project_uuid"`
	BucketType   BucketType   `json:"bucket_type"`
	Name         string       `json:"name"`
	Size         int64        `json:"size"`
	UploadedSize int64        `json:"uploaded_size"`
	CID          string       `gorm:"column:cid" json:"cid"`
	CIDv1        string       `gorm:"column:cid_v1" json:"cidv1"`
	IPNS         string       `gorm:"column:ipns" json:"ipns"`
	Status       EntityStatus `gorm:"default:1;index" json:"-"`
	// Unix timestamps, like everything else in this schema
	CreatedAt int64  `gorm:"not null" json:"created_at"`
	MarkedAt  *int64 `json:"-"`
}

// Directory is one node of the per-bucket tree. The composite unique
// index is the real concurrency guard: two processes materializing the
// same path race on it and the loser re-reads.
type Directory struct {
	ID                uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	DirectoryUUID     string       `gorm:"uniqueIndex;size:36" json:"directory_uuid"`
	BucketID          uint         `gorm:"uniqueIndex:idx_dir_sibling;index" json:"-"`
	ParentDirectoryID *uint        `gorm:"uniqueIndex:idx_dir_sibling" json:"parent_directory_id"`
	Name              string       `gorm:"uniqueIndex:idx_dir_sibling" json:"name"`
	CID               string       `gorm:"column:cid" json:"cid"`
	CIDv1             string       `gorm:"column:cid_v1" json:"cidv1"`
	Status            EntityStatus `gorm:"default:1;index" json:"-"`
	CreatedAt         int64        `gorm:"not null" json:"created_at"`
}

// File is a propagated object. CID stays empty until the file status
// reaches uploaded_to_ipfs; FileUUID is the stable external handle.
type File struct {
	ID          uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	FileUUID    string       `gorm:"uniqueIndex;size:36" json:"file_uuid"`
	BucketID    uint         `gorm:"index" json:"-"`
	DirectoryID *uint        `gorm:"index" json:"directory_id"`
	Name        string       `json:"name"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	CID         string       `gorm:"column:cid" json:"cid"`
	CIDv1       string       `gorm:"column:cid_v1" json:"cidv1"`
	S3FileKey   string       `gorm:"index" json:"-"`
	FileStatus  FileStatus   `json:"file_status"`
	Status      EntityStatus `gorm:"default:1;index" json:"-"`
	CreatedAt   int64        `gorm:"not null" json:"created_at"`
	UpdatedAt   int64        `json:"updated_at"`
}
