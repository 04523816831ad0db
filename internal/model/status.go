// Package model defines database models
package model

// EntityStatus is the soft-delete lifecycle shared by buckets,
// directories and files.
type EntityStatus int

const (
	StatusActive EntityStatus = iota + 1
	StatusMarkedForDeletion
	StatusDeleted
)

func (s EntityStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusMarkedForDeletion:
		return "marked_for_deletion"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileStatus tracks a staged object from signed-URL issuance to pinning.
type FileStatus int

const (
	FileStatusSignedURLGenerated FileStatus = iota + 1
	FileStatusUploadedToS3
	FileStatusUploadedToIPFS
	FileStatusPinnedToCrust
	FileStatusUploadCompleted
)

// Terminal error statuses. A file that lands here is never retried
// automatically, the client has to re-upload.
const (
	FileStatusErrorNotExistsOnS3 FileStatus = iota + 100
	FileStatusErrorBucketFull
	FileStatusErrorUploadingToIPFS
)

func (s FileStatus) String() string {
	switch s {
	case FileStatusSignedURLGenerated:
		return "signed_url_generated"
	case FileStatusUploadedToS3:
		return "uploaded_to_s3"
	case FileStatusUploadedToIPFS:
		return "uploaded_to_ipfs"
	case FileStatusPinnedToCrust:
		return "pinned_to_crust"
	case FileStatusUploadCompleted:
		return "upload_completed"
	case FileStatusErrorNotExistsOnS3:
		return "error_file_not_exists_on_s3"
	case FileStatusErrorBucketFull:
		return "error_bucket_full"
	case FileStatusErrorUploadingToIPFS:
		return "error_uploading_to_ipfs"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state of the upload
// state machine (either completed or a non-retryable error).
func (s FileStatus) Terminal() bool {
	return s == FileStatusUploadCompleted || s >= FileStatusErrorNotExistsOnS3
}

// SessionStatus is the lifecycle of a FileUploadSession.
type SessionStatus int

const (
	SessionStatusOpen SessionStatus = iota + 1
	SessionStatusProcessed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionStatusOpen:
		return "open"
	case SessionStatusProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// PinningStatus is the state of a PinToCrustRequest.
type PinningStatus int

const (
	PinningStatusPending PinningStatus = iota
	PinningStatusFailed
	PinningStatusSuccessful
)

func (s PinningStatus) String() string {
	switch s {
	case PinningStatusPending:
		return "pending"
	case PinningStatusFailed:
		return "failed"
	case PinningStatusSuccessful:
		return "successful"
	default:
		return "unknown"
	}
}

// BucketType distinguishes plain storage buckets from website
// deployments and NFT collections. The type name is part of the
// staging key layout.
type BucketType int

const (
	BucketTypeStorage BucketType = iota + 1
	BucketTypeWebsite
	BucketTypeNFT
)

func (t BucketType) String() string {
	switch t {
	case BucketTypeStorage:
		return "storage"
	case BucketTypeWebsite:
		return "hosting"
	case BucketTypeNFT:
		return "nft"
	default:
		return "unknown"
	}
}
