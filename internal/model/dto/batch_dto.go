package dto

import (
	"time"

	"github.com/qs3c/site_compare_server/internal/parser"
)

// CreateBatchRequest 异步批次请求
type CreateBatchRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

type CreateBatchResponse struct {
	BatchID  string `json:"batch_id"`
	Total    int    `json:"total"`
	WatchURL string `json:"watch_url"`
}

type SiteResponse struct {
	Index      int            `json:"index"`
	URL        string         `json:"url"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Data       *parser.Record `json:"data,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

type BatchResponse struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Status      string         `json:"status"`
	URLs        []string       `json:"urls"`
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	ReportURL   string         `json:"report_url,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Sites       []SiteResponse `json:"sites"`
}

// StopResponse 停止请求结果
type StopResponse struct {
	BatchID string `json:"batch_id"`
	Stopped bool   `json:"stopped"`
}
