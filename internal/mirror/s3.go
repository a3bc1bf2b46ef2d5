// Package mirror копирует опубликованные записи во внешнее объектное хранилище.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const partSizeMB = 10

// S3Params — параметры подключения к бакету.
type S3Params struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Uploader — часть manager.Uploader, которая нужна зеркалу.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 загружает итоговые записи в бакет под ключом {prefix}/{name}.
type S3 struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3 собирает клиент S3 по параметрам; пустые ключи означают стандартную цепочку credentials.
func NewS3(ctx context.Context, params S3Params) (*S3, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	if params.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(params.Region),
	}
	if params.AccessKeyID != "" && params.SecretAccessKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSizeMB * 1024 * 1024
	})

	return NewS3WithUploader(uploader, params.Bucket, params.Prefix), nil
}

// NewS3WithUploader нужен для подмены загрузчика в тестах.
func NewS3WithUploader(u Uploader, bucket, prefix string) *S3 {
	return &S3{
		uploader: u,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// ObjectKey возвращает ключ объекта для имени файла записи.
func (m *S3) ObjectKey(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Put загружает локальный файл записи в бакет.
func (m *S3) Put(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open record: %w", err)
	}
	defer f.Close()

	key := m.ObjectKey(path.Base(localPath))
	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	return nil
}
