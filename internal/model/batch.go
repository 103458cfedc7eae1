package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/qs3c/site_compare_server/internal/parser"
)

// StringArray 用于 JSON 数组字段
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = []string{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return nil
	}
}

// 批次状态
const (
	BatchPending   = "pending"
	BatchRunning   = "running"
	BatchDone      = "done"
	BatchCancelled = "cancelled"
	BatchFailed    = "failed" // 传输层或内部错误导致批次中止
)

// 批次来源
const (
	SourceStream = "stream"
	SourceQueue  = "queue"
	SourceCLI    = "cli"
)

type Batch struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	Source       string       `gorm:"size:20;not null" json:"source"`
	Status       string       `gorm:"size:20;default:pending;index" json:"status"`
	URLs         StringArray  `gorm:"type:json" json:"urls"`
	Total        int          `gorm:"not null" json:"total"`
	Succeeded    int          `gorm:"default:0" json:"succeeded"`
	Failed       int          `gorm:"default:0" json:"failed"`
	ReportURL    string       `gorm:"size:500" json:"report_url,omitempty"`
	ReportPath   string       `gorm:"size:500" json:"-"` // 未上传 OSS 的本地报表
	ErrorMessage string       `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time    `gorm:"index" json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `gorm:"index" json:"completed_at,omitempty"`
	Sites        []SiteResult `gorm:"foreignKey:BatchID" json:"sites,omitempty"`
}

func (Batch) TableName() string {
	return "batches"
}

// 站点结果状态
const (
	SiteSucceeded = "succeeded"
	SiteFailed    = "failed"
	SiteTimedOut  = "timed_out"
)

// SiteResult 单个站点的终态，Data 为有序 JSON 记录
type SiteResult struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	BatchID    string    `gorm:"size:36;not null;uniqueIndex:idx_batch_site" json:"batch_id"`
	Index      int       `gorm:"column:site_index;not null;uniqueIndex:idx_batch_site" json:"index"`
	URL        string    `gorm:"size:500;not null" json:"url"`
	Status     string    `gorm:"size:20;not null" json:"status"`
	ErrorKind  string    `gorm:"size:30" json:"error_kind,omitempty"`
	Reason     string    `gorm:"size:500" json:"reason,omitempty"`
	Data       string    `gorm:"type:text" json:"-"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SiteResult) TableName() string {
	return "site_results"
}

// Record 解码提取结果；失败站点返回 nil
func (r *SiteResult) Record() (*parser.Record, error) {
	if r.Data == "" {
		return nil, nil
	}
	rec := parser.NewRecord()
	if err := json.Unmarshal([]byte(r.Data), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetRecord 编码提取结果
func (r *SiteResult) SetRecord(rec *parser.Record) error {
	if rec == nil {
		r.Data = ""
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	r.Data = string(data)
	return nil
}
