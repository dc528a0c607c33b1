package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client stores detection frame snapshots in object storage.
type Client struct {
	client *minio.Client
	bucket string
}

// NewMinioClient connects to MinIO and makes sure the snapshot bucket exists.
func NewMinioClient(endpoint, accessKey, secretKey, bucket string) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	c := &Client{client: client, bucket: bucket}

	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return c, nil
}

// SaveFrameSnapshot uploads the base64 JPEG frame a detection fired on and
// returns the object path recorded on the log entry.
func (c *Client) SaveFrameSnapshot(ctx context.Context, droneID, sessionID string, frameNumber int, frameData string) (string, error) {
	imageData, err := base64.StdEncoding.DecodeString(frameData)
	if err != nil {
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}

	objectName := fmt.Sprintf("%s/%s/frame_%06d.jpg", droneID, sessionID, frameNumber)

	_, err = c.client.PutObject(ctx, c.bucket, objectName,
		bytes.NewReader(imageData), int64(len(imageData)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", objectName, err)
	}

	return fmt.Sprintf("%s/%s", c.bucket, objectName), nil
}
