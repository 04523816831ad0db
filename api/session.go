package api

import (
	"errors"
	"net/http"

	"webora/storage-sync/internal/dto"
	"webora/storage-sync/internal/model"
	"webora/storage-sync/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type uploadURLRequest struct {
	Path          string `json:"path"`
	FileName      string `json:"file_name" binding:"required"`
	ContentType   string `json:"content_type"`
	DirectoryUUID string `json:"directory_uuid"`
}

// SessionUploadURL records one file upload request and hands back the
// signed URL the client uploads to. Retries with the same metadata
// return the same request.
func (a *API) SessionUploadURL(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	bucket := a.loadBucket(c)
	if bucket == nil {
		return
	}

	var body uploadURLRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	session, err := a.Deps.Uploads.OpenOrReuseSession(bucket, c.Param("sessionUuid"))
	if err != nil {
		a.uploadError(c, requestID, err)
		return
	}

	fur, uploadURL, err := a.Deps.Uploads.RecordUploadRequest(c.Request.Context(), bucket, session, service.UploadRequestInput{
		Path:          body.Path,
		FileName:      body.FileName,
		ContentType:   body.ContentType,
		DirectoryUUID: body.DirectoryUUID,
	})
	if err != nil {
		a.uploadError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUploadRequestResult(fur, uploadURL))
}

type sessionSyncRequest struct {
	WrapWithDirectory bool `json:"wrap_with_directory"`
}

// SessionSync ends a session: staged content is reconciled, propagated
// to the content network and queued for pinning. The response reports
// the partial outcome file by file.
func (a *API) SessionSync(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	bucket := a.loadBucket(c)
	if bucket == nil {
		return
	}

	var body sessionSyncRequest
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	var session model.FileUploadSession
	err := a.Deps.DB.
		Where("session_uuid = ? AND bucket_id = ?", c.Param("sessionUuid"), bucket.ID).
		First(&session).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "Session not found",
			"requestID": requestID,
		})
		return
	}
	if err != nil {
		a.uploadError(c, requestID, err)
		return
	}

	maxSize := a.Deps.Quota.MaxBucketSize(c.Request.Context(), bucket.ProjectUUID)

	result, err := a.Deps.Sync.SyncSession(c.Request.Context(), bucket, &session, service.SyncOptions{
		MaxBucketSize:     maxSize,
		WrapWithDirectory: body.WrapWithDirectory,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":     "Synchronization failed, safe to retry",
			"requestID": requestID,
		})

		zap.L().Error("Session sync failed",
			zap.String("session_uuid", session.SessionUUID),
			zap.Error(err))
		return
	}

	propagated := make([]dto.PublicFile, len(result.PropagatedFiles))
	for i := range result.PropagatedFiles {
		propagated[i] = dto.ToPublicFile(&result.PropagatedFiles[i])
	}

	skipped := make([]gin.H, len(result.SkippedFiles))
	for i, fur := range result.SkippedFiles {
		skipped[i] = gin.H{
			"s3_file_key": fur.S3FileKey,
			"file_status": fur.FileStatus.String(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"propagated": propagated,
		"skipped":    skipped,
		"wrap_cid":   result.WrapCID,
	})
}

func (a *API) uploadError(c *gin.Context, requestID string, err error) {
	if errors.Is(err, model.ErrValidation) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}
	if errors.Is(err, model.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":     "Internal server error",
		"requestID": requestID,
	})

	zap.L().Error("Request failed", zap.Error(err))
}
