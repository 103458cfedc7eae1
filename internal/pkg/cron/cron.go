package cron

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/repository"
)

const cleanupInterval = time.Hour

// ReportRemover 删除已上传到对象存储的报表
type ReportRemover interface {
	DeleteReport(url string) error
}

type Service struct {
	batchRepo   *repository.BatchRepository
	remover     ReportRemover
	reportDir   string
	expireHours int
	stopChan    chan struct{}
}

func NewService(batchRepo *repository.BatchRepository, reportDir string, expireHours int) *Service {
	return &Service{
		batchRepo:   batchRepo,
		reportDir:   reportDir,
		expireHours: expireHours,
		stopChan:    make(chan struct{}),
	}
}

// WithRemover 过期批次的 OSS 报表一并删除
func (s *Service) WithRemover(r ReportRemover) *Service {
	s.remover = r
	return s
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runCleanup()
	logrus.WithField("expire_hours", s.expireHours).Info("cron service started")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	logrus.Info("cron service stopped")
}

// runCleanup 每小时执行一次全量清理
func (s *Service) runCleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunNow()
		}
	}
}

// RunNow 立即执行一次清理，返回删除的批次数和报表文件数
func (s *Service) RunNow() (int, int) {
	expire := s.expireDuration()
	batches := s.cleanupBatches(expire)
	files := s.cleanupReportFiles(expire)
	if batches+files > 0 {
		logrus.WithFields(logrus.Fields{
			"batches": batches,
			"files":   files,
		}).Info("cleanup summary")
	}
	return batches, files
}

func (s *Service) expireDuration() time.Duration {
	hours := s.expireHours
	if hours <= 0 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

// cleanupBatches 删除过期批次及其本地报表
func (s *Service) cleanupBatches(expire time.Duration) int {
	if s.batchRepo == nil {
		return 0
	}

	deleted, err := s.batchRepo.DeleteOlderThan(time.Now().Add(-expire))
	if err != nil {
		logrus.WithError(err).Error("cleanup batches: delete failed")
		return 0
	}

	for _, b := range deleted {
		if b.ReportURL != "" && s.remover != nil {
			if err := s.remover.DeleteReport(b.ReportURL); err != nil {
				logrus.WithError(err).WithField("url", b.ReportURL).Warn("cleanup batches: failed to delete remote report")
			}
		}
		if b.ReportPath == "" {
			continue
		}
		if err := os.Remove(b.ReportPath); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", b.ReportPath).Warn("cleanup batches: failed to remove report")
		}
	}
	return len(deleted)
}

// cleanupReportFiles 清理报表目录中过期的文件（包括数据库中已无记录的残留）
func (s *Service) cleanupReportFiles(expire time.Duration) int {
	if s.reportDir == "" {
		return 0
	}

	entries, err := os.ReadDir(s.reportDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).WithField("dir", s.reportDir).Warn("cleanup reports: failed to read dir")
		}
		return 0
	}

	cleaned := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xlsx") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) > expire {
			path := filepath.Join(s.reportDir, entry.Name())
			if err := os.Remove(path); err != nil {
				logrus.WithError(err).WithField("path", path).Warn("cleanup reports: failed to remove")
			} else {
				cleaned++
			}
		}
	}
	return cleaned
}
