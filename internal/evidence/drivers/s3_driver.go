package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// defaultPhotoURLTTL bounds presigned links handed out for private buckets.
// A link only needs to outlive the form session that displays the photo.
const defaultPhotoURLTTL = 15 * time.Minute

// S3Driver stores evidence photos in S3-compatible object storage. Keys are
// uuid-named and written once; an object is never rewritten under the same
// key, so downstream caches may treat photo URLs as immutable.
type S3Driver struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string

	// publicURL, when set, is the base under which the bucket serves
	// objects directly; otherwise links are presigned per request.
	publicURL string
}

func NewS3Driver(client *s3.Client, bucket string, publicURL string) *S3Driver {
	return &S3Driver{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    bucket,
		publicURL: publicURL,
	}
}

func (d *S3Driver) Save(ctx context.Context, key string, content io.Reader, contentType string) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(d.bucket),
		Key:                aws.String(key),
		Body:               content,
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String("inline"),
		CacheControl:       aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("failed to store evidence photo %s: %w", key, err)
	}
	return nil
}

func (d *S3Driver) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("file not found: %s", key)
		}
		return nil, "", fmt.Errorf("failed to fetch evidence photo %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	return resp.Body, contentType, nil
}

// Delete removes the photo object. Deleting a key that no longer exists is a
// no-op, matching the local driver.
func (d *S3Driver) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete evidence photo %s: %w", key, err)
	}
	return nil
}

func (d *S3Driver) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if d.publicURL != "" {
		return fmt.Sprintf("%s/%s", d.publicURL, key), nil
	}

	if expires <= 0 {
		expires = defaultPhotoURLTTL
	}
	req, err := d.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(d.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String("inline"),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign photo URL for %s: %w", key, err)
	}
	return req.URL, nil
}
