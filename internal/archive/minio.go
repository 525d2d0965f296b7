// Package archive 把下载好的报表上传到 S3 兼容的对象存储（MinIO）
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/logger"
	"github.com/iWorld-y/gnc_reports/internal/model"
)

// Client MinIO 客户端封装
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 创建 MinIO 客户端
func NewClient(cfg config.ArchiveConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "gnc-reports"
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// EnsureBucket 确保 bucket 存在
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		logger.Log.Infof("已创建 bucket: %s", c.bucket)
	}
	return nil
}

// Upload 上传对象
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.mc.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Uploader 对象上传接口，*Client 实现了它
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

var _ Uploader = (*Client)(nil)

// Archiver 按运行归档下载目录中的文件
type Archiver struct {
	up     Uploader
	prefix string
}

// NewArchiver 创建归档器，prefix 为对象键的前缀
func NewArchiver(up Uploader, prefix string) *Archiver {
	return &Archiver{up: up, prefix: strings.Trim(prefix, "/")}
}

// Archive 上传报告中列出的所有文件，单个文件失败不影响其他文件
func (a *Archiver) Archive(ctx context.Context, report *model.BatchReport) error {
	var errs []error
	uploaded := 0
	for _, name := range report.Artifacts {
		if err := a.uploadFile(ctx, report, name); err != nil {
			errs = append(errs, err)
			continue
		}
		uploaded++
	}
	logger.Log.Infof("归档完成: %d/%d 个文件", uploaded, len(report.Artifacts))
	return errors.Join(errs...)
}

func (a *Archiver) uploadFile(ctx context.Context, report *model.BatchReport, name string) error {
	f, err := os.Open(filepath.Join(report.Dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return a.up.Upload(ctx, a.objectKey(report, name), f, info.Size(), contentType(name))
}

// objectKey 形如 prefix/2026-01-02/<run id>/<file>
func (a *Archiver) objectKey(report *model.BatchReport, name string) string {
	parts := []string{report.StartedAt.Format("2006-01-02"), report.RunID, name}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
