// Package s3 backs the report archive with any S3-compatible object store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/claimscope/claimscope/internal/archive"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	store := &Store{
		client: client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: cleanPrefix(cfg.Prefix),
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts archive.PutOptions) (archive.ObjectInfo, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return archive.ObjectInfo{}, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, normalized, body, size, minio.PutObjectOptions{ContentType: opts.ContentType})
	if err != nil {
		return archive.ObjectInfo{}, fmt.Errorf("put artifact %q: %w", normalized, err)
	}
	return archive.ObjectInfo{
		Key:          normalized,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return nil, err
	}
	object, err := s.client.GetObject(ctx, s.bucket, normalized, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact %q: %w", normalized, mapMinioErr(err))
	}
	// GetObject is lazy; surface not-found on first stat.
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, mapMinioErr(err)
	}
	return object, nil
}

func (s *Store) Stat(ctx context.Context, key string) (archive.ObjectInfo, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return archive.ObjectInfo{}, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, normalized, minio.StatObjectOptions{})
	if err != nil {
		return archive.ObjectInfo{}, mapMinioErr(err)
	}
	return archive.ObjectInfo{
		Key:          normalized,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("artifact key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("invalid artifact key: %q", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("archive endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse archive endpoint: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("archive endpoint host is required")
		}
		return parsed.Host, parsed.Scheme == "https" || useSSL && parsed.Scheme != "http", nil
	}
	return raw, useSSL, nil
}

func mapMinioErr(err error) error {
	var respErr minio.ErrorResponse
	if errors.As(err, &respErr) && (respErr.Code == "NoSuchKey" || respErr.Code == "NotFound") {
		return archive.ErrObjectNotFound
	}
	return err
}
