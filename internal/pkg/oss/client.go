package oss

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
)

const (
	uploadAttempts = 3
	uploadBackoff  = time.Second
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// ReportKey 批次报表的 object key
func ReportKey(batchID string) string {
	return fmt.Sprintf("reports/%s.xlsx", batchID)
}

// UploadReport 上传批次对比表格
func (c *Client) UploadReport(batchID string, data []byte) (string, error) {
	objectKey := ReportKey(batchID)
	return c.UploadFile(objectKey, data, getContentType(path.Ext(objectKey)))
}

// UploadReportWithRetry 上传失败时按固定间隔重试
func (c *Client) UploadReportWithRetry(batchID string, data []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		url, err := c.UploadReport(batchID, data)
		if err == nil {
			return url, nil
		}
		lastErr = err
		logrus.WithError(err).WithFields(logrus.Fields{
			"batch_id": batchID,
			"attempt":  attempt,
		}).Warn("report upload failed")
		if attempt < uploadAttempts {
			time.Sleep(uploadBackoff * time.Duration(attempt))
		}
	}
	return "", lastErr
}

// UploadFile 上传通用文件
func (c *Client) UploadFile(objectKey string, data []byte, contentType string) (string, error) {
	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}

// getContentType 根据扩展名获取 Content-Type
func getContentType(ext string) string {
	switch ext {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// DeleteReport 按访问 URL 删除报表对象
func (c *Client) DeleteReport(url string) error {
	return c.Delete(extractObjectKey(c.cdnDomain, url))
}

func extractObjectKey(cdnDomain, url string) string {
	// 处理 CDN 域名
	if cdnDomain != "" {
		prefix := fmt.Sprintf("https://%s/", cdnDomain)
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}

	// 标准 OSS URL: https://bucket-name.endpoint/path/to/object
	parts := strings.Split(url, "/")
	if len(parts) >= 4 {
		return strings.Join(parts[3:], "/")
	}

	return path.Base(url)
}
