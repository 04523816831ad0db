package model

// FileUploadSession groups the upload requests of one client-side batch.
type FileUploadSession struct {
	ID            uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionUUID   string        `gorm:"uniqueIndex;size:36" json:"session_uuid"`
	BucketID      uint          `gorm:"index" json:"-"`
	SessionStatus SessionStatus `gorm:"default:1" json:"session_status"`
	CreatedAt     int64         `gorm:"not null" json:"created_at"`
}

// FileUploadRequest records one staged object destined to become a File.
// Rows are never deleted; the File produced from a request supersedes it.
// S3FileKey is the idempotency key: retrying the same signed-URL request
// must not create a second row.
type FileUploadRequest struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     *uint      `gorm:"index" json:"-"`
	BucketID      uint       `gorm:"index" json:"-"`
	DirectoryUUID string     `gorm:"size:36" json:"directory_uuid"`
	Path          string     `json:"path"`
	S3FileKey     string     `gorm:"uniqueIndex" json:"s3_file_key"`
	FileName      string     `json:"file_name"`
	ContentType   string     `json:"content_type"`
	FileStatus    FileStatus `gorm:"default:1;index" json:"file_status"`
	CreatedAt     int64      `gorm:"not null" json:"created_at"`
	UpdatedAt     int64      `json:"updated_at"`
}
