package artifactstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/config"
	"github.com/BaSui01/diagramgate/internal/tlsutil"
	"github.com/BaSui01/diagramgate/types"
)

// objectAPI *minio.Client 中用到的方法
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ objectAPI = (*minio.Client)(nil)

// Store 把渲染产物上传到 S3 兼容存储，对象键由内容摘要决定
type Store struct {
	client  objectAPI
	bucket  string
	region  string
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// New 根据配置创建 MinIO 客户端
func New(cfg config.ArtifactStoreConfig, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: tlsutil.SecureTransport(5 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newStore(client, cfg, logger), nil
}

func newStore(client objectAPI, cfg config.ArtifactStoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		prefix:  cfg.Prefix,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "artifact_store")),
	}
}

// EnsureBucket 桶不存在时创建
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("artifact bucket created", zap.String("bucket", s.bucket))
	return nil
}

// Check 健康检查：桶必须存在
func (s *Store) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("artifact bucket missing: %s", s.bucket)
	}
	return nil
}

// Key 返回产物的对象键：<prefix>/<digest[:2]>/<digest>.<format>
func (s *Store) Key(digest, format string) string {
	return path.Join(s.prefix, digest[:2], digest+"."+format)
}

// Publish 上传成功的产物，返回 s3://bucket/key
func (s *Store) Publish(ctx context.Context, result types.ExecutionResult) (string, error) {
	if !result.Succeeded() || len(result.ArtifactBytes) == 0 {
		return "", errors.New("only successful results with an artifact can be published")
	}
	if len(result.ArtifactDigest) < 2 {
		return "", errors.New("artifact digest is missing")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.Key(result.ArtifactDigest, result.ArtifactFormat)
	info, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(result.ArtifactBytes), int64(len(result.ArtifactBytes)),
		minio.PutObjectOptions{
			ContentType:  ContentType(result.ArtifactFormat),
			UserMetadata: map[string]string{"digest-blake3": result.ArtifactDigest},
		})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Debug("artifact published",
		zap.String("key", key),
		zap.Int64("size", info.Size),
		zap.String("etag", info.ETag))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// ContentType 产物格式对应的 MIME 类型
func ContentType(format string) string {
	switch format {
	case types.FormatPNG:
		return "image/png"
	case types.FormatSVG:
		return "image/svg+xml"
	case types.FormatDOT:
		return "text/vnd.graphviz"
	default:
		return "application/octet-stream"
	}
}
