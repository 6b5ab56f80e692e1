package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps objects in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and creates the bucket when missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, obj Object) (*Info, error) {
	info, err := prepare(obj)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{
		"file-name": info.FileName,
		"sha256":    info.SHA256,
	}
	for k, v := range obj.Metadata {
		meta[k] = v
	}

	_, err = s.client.PutObject(ctx, s.bucket, info.Key, bytes.NewReader(obj.Body), info.Size,
		minio.PutObjectOptions{ContentType: info.ContentType, UserMetadata: meta})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", info.Key, err)
	}
	return info, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, *Info, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, &Info{
		Key:         key,
		FileName:    stat.UserMetadata["File-Name"],
		ContentType: stat.ContentType,
		Size:        stat.Size,
		SHA256:      stat.UserMetadata["Sha256"],
		StoredAt:    stat.LastModified,
	}, nil
}

// Ping checks bucket reachability.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
