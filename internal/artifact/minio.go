package artifact

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioScheme — префикс location объектов в MinIO.
const minioScheme = "s3://"

// MinioConfig — параметры подключения к MinIO.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBlob хранит содержимое в бакете MinIO/S3.
// Location имеет вид s3://{bucket}/{key}.
type MinioBlob struct {
	client *minio.Client
	bucket string
}

// NewMinioBlob подключается к MinIO и создаёт бакет, если его нет.
func NewMinioBlob(ctx context.Context, cfg MinioConfig) (*MinioBlob, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "taskbridge-artifacts"
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}
	return &MinioBlob{client: client, bucket: bucket}, nil
}

// Put загружает поток неизвестной длины (multipart upload).
func (b *MinioBlob) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, int64, error) {
	info, err := b.client.PutObject(ctx, b.bucket, key, r, -1, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", 0, fmt.Errorf("put object: %w", err)
	}
	return minioScheme + b.bucket + "/" + key, info.Size, nil
}

// Open открывает объект. Отсутствие объекта проверяется через Stat.
func (b *MinioBlob) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := parseMinioLocation(location)
	if err != nil {
		return nil, err
	}
	obj, err := b.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioError(err)
	}
	return obj, nil
}

// Remove удаляет объект.
func (b *MinioBlob) Remove(ctx context.Context, location string) error {
	bucket, key, err := parseMinioLocation(location)
	if err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioError(err)
	}
	return nil
}

func parseMinioLocation(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, minioScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: not an object location: %s", ErrBlobNotFound, location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: malformed object location: %s", ErrBlobNotFound, location)
	}
	return bucket, key, nil
}

func mapMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrBlobNotFound
	}
	return fmt.Errorf("minio: %w", err)
}
