package api

import (
	"errors"
	"net/http"
	"time"

	"webora/storage-sync/internal/dto"
	"webora/storage-sync/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *API) loadBucket(c *gin.Context) *model.Bucket {
	requestID := c.MustGet("requestID").(string)

	var bucket model.Bucket

	err := a.Deps.DB.
		Where("bucket_uuid = ? AND status != ?", c.Param("bucketUuid"), model.StatusDeleted).
		First(&bucket).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "Bucket not found",
			"requestID": requestID,
		})
		return nil
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to load bucket", zap.Error(err))
		return nil
	}

	return &bucket
}

func (a *API) BucketFetch(c *gin.Context) {
	bucket := a.loadBucket(c)
	if bucket == nil {
		return
	}

	c.JSON(http.StatusOK, dto.ToPublicBucket(bucket))
}

func (a *API) AdminBucketFetch(c *gin.Context) {
	bucket := a.loadBucket(c)
	if bucket == nil {
		return
	}

	c.JSON(http.StatusOK, dto.ToAdminBucket(bucket))
}

func (a *API) BucketFiles(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	bucket := a.loadBucket(c)
	if bucket == nil {
		return
	}

	var files []model.File

	err := a.Deps.DB.
		Where("bucket_id = ? AND status = ?", bucket.ID, model.StatusActive).
		Order("id ASC").
		Find(&files).
		Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list bucket files", zap.Error(err))
		return
	}

	out := make([]dto.PublicFile, len(files))
	for i := range files {
		out[i] = dto.ToPublicFile(&files[i])
	}

	c.JSON(http.StatusOK, gin.H{"files": out})
}

func (a *API) BucketMarkForDeletion(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	bucket := a.loadBucket(c)
	if bucket == nil {
		return
	}

	now := time.Now().Unix()

	err := a.Deps.DB.
		Model(model.Bucket{}).
		Where("id = ?", bucket.ID).
		Updates(map[string]any{
			"status":    model.StatusMarkedForDeletion,
			"marked_at": now,
		}).
		Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to mark bucket for deletion", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bucket_uuid": bucket.BucketUUID,
		"status":      model.StatusMarkedForDeletion.String(),
	})
}
