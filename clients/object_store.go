package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/videonest/videonest/errors"
	"github.com/videonest/videonest/log"
)

// VideoFilesPrefix is the object-store prefix holding every processed HLS
// tree. The bucket policy grants anonymous read on this prefix only; source
// blobs elsewhere in the bucket stay private.
const VideoFilesPrefix = "video_files"

const bootstrapTimeout = 15 * time.Second

// ObjectStore is the slice of object storage the pipeline needs. Implemented
// by MinIOStore; tests use an in-memory fake.
type ObjectStore interface {
	Download(ctx context.Context, key, localPath string) error
	Upload(ctx context.Context, localPath, key, contentType string) error
	Delete(ctx context.Context, key string) error
}

// MinIOStore talks to a MinIO (or any S3-compatible) endpoint.
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinIOStore builds a client for the given server URL. The URL scheme
// decides TLS; MinIO inside a compose network is typically plain http.
func NewMinIOStore(serverURL, accessKey, secretKey, bucket, region string) (*MinIOStore, error) {
	endpoint, secure, err := parseServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("initialising object store client: %w", err)
	}
	return &MinIOStore{client: client, bucket: bucket, region: region}, nil
}

func parseServerURL(serverURL string) (endpoint string, secure bool, err error) {
	if !strings.Contains(serverURL, "://") {
		return serverURL, false, nil
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", false, fmt.Errorf("parsing object store URL %q: %w", log.RedactURL(serverURL), err)
	}
	return u.Host, u.Scheme == "https", nil
}

// EnsureBucket makes sure the bucket exists, the video_files/ prefix is
// present and the bucket policy grants public read on video_files/*.
// Callers treat failures as non-fatal when the bucket already satisfies the
// contract, so everything here is logged rather than escalated piecemeal.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
		}
		log.LogNoVideoID("created bucket", "bucket", s.bucket)
	}

	// Zero-byte marker so the prefix shows up as a folder in consoles.
	_, err = s.client.PutObject(ctx, s.bucket, VideoFilesPrefix+"/", bytes.NewReader(nil), 0,
		minio.PutObjectOptions{ContentType: "application/x-directory"})
	if err != nil {
		log.LogNoVideoID("failed to create video files prefix marker", "bucket", s.bucket, "err", err.Error())
	}

	policy, err := publicReadPolicy(s.bucket)
	if err != nil {
		return err
	}
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("setting bucket policy on %s: %w", s.bucket, err)
	}
	return nil
}

func publicReadPolicy(bucket string) (string, error) {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, VideoFilesPrefix),
			},
		},
	}
	out, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("marshalling bucket policy: %w", err)
	}
	return string(out), nil
}

// Download fetches the object at key into localPath. An absent key maps to
// ObjectNotFoundError, which callers treat as transient.
func (s *MinIOStore) Download(ctx context.Context, key, localPath string) error {
	err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return errors.NewObjectNotFoundError(fmt.Sprintf("object %s not found in bucket %s", key, s.bucket), err)
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	return nil
}

// Upload writes localPath to the object at key. Uploads overwrite, which is
// what makes job re-runs safe.
func (s *MinIOStore) Upload(ctx context.Context, localPath, key, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Delete removes the object at key. Deleting an absent object is not an
// error, which keeps source cleanup idempotent across job re-runs.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// ContentTypeFor maps an HLS output filename to the content type it must be
// served with.
func ContentTypeFor(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(filename, ".ts"):
		return "video/MP2T"
	default:
		return "application/octet-stream"
	}
}
