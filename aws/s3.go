package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	// S3 list/delete calls are capped at 1000 keys per request
	pageSize = 1000

	minMultipartSize = 12 << 20
)

// ObjectInfo is the listing/head metadata of one staged object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Exists reports whether a staged object is present under the given key.
func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: c.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return false, nil
		}

		return false, fmt.Errorf("failed to head object, %w", err)
	}

	return true, nil
}

// Get downloads a staged object and returns its content with metadata.
func (c *S3Client) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	out, err := c.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: c.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object, %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object body, %w", err)
	}

	info := &ObjectInfo{
		Key:  key,
		Size: aws.ToInt64(out.ContentLength),
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}

	return body, info, nil
}

// Put uploads an object, switching to a multipart upload for anything
// big enough to be worth it.
func (c *S3Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        c.Bucket,
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	}

	var err error
	if len(body) > minMultipartSize {
		u := manager.NewUploader(c.C, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		})
		_, err = u.Upload(ctx, input)
	} else {
		_, err = c.C.PutObject(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("failed to upload object to staging, %w", err)
	}

	return nil
}

// List returns every object under the prefix, paging until a short page
// signals the end of the listing.
func (c *S3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var (
		objects []ObjectInfo
		token   *string
	)

	for {
		out, err := c.C.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            c.Bucket,
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(pageSize),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list staged objects, %w", err)
		}

		for _, o := range out.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}

		if len(out.Contents) < pageSize || out.NextContinuationToken == nil {
			return objects, nil
		}
		token = out.NextContinuationToken
	}
}

// Remove deletes one staged object.
func (c *S3Client) Remove(ctx context.Context, key string) error {
	_, err := c.C.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: c.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object, %w", err)
	}

	return nil
}

// RemoveMany deletes staged objects in batches of at most 1000 keys,
// which is the per-request cap of the delete API.
func (c *S3Client) RemoveMany(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += pageSize {
		end := min(start+pageSize, len(keys))

		objects := make([]types.ObjectIdentifier, end-start)
		for i, key := range keys[start:end] {
			objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		if _, err := c.C.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: c.Bucket,
			Delete: &types.Delete{
				Objects: objects,
			},
		}); err != nil {
			return fmt.Errorf("failed to delete object batch, %w", err)
		}
	}

	return nil
}

// SignedUploadURL issues a presigned PUT the client uploads directly to.
func (c *S3Client) SignedUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	req, err := c.Presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      c.Bucket,
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload url, %w", err)
	}

	zap.L().Debug("Issued signed upload URL", zap.String("key", key))

	return req.URL, nil
}
