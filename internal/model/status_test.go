package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileStatusTerminal(t *testing.T) {
	terminal := []FileStatus{
		FileStatusUploadCompleted,
		FileStatusErrorNotExistsOnS3,
		FileStatusErrorBucketFull,
		FileStatusErrorUploadingToIPFS,
	}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), s.String())
	}

	live := []FileStatus{
		FileStatusSignedURLGenerated,
		FileStatusUploadedToS3,
		FileStatusUploadedToIPFS,
		FileStatusPinnedToCrust,
	}
	for _, s := range live {
		assert.False(t, s.Terminal(), s.String())
	}
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "error_file_not_exists_on_s3", FileStatusErrorNotExistsOnS3.String())
	assert.Equal(t, "marked_for_deletion", StatusMarkedForDeletion.String())
	assert.Equal(t, "pending", PinningStatusPending.String())
	assert.Equal(t, "unknown", FileStatus(0).String())

	// The bucket type name is baked into staging keys, renaming it
	// orphans staged objects
	assert.Equal(t, "storage", BucketTypeStorage.String())
	assert.Equal(t, "hosting", BucketTypeWebsite.String())
	assert.Equal(t, "nft", BucketTypeNFT.String())
}
