// Package logger 基于 logrus 的日志初始化
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
)

// Setup 按配置设置全局 logrus 的级别和格式
func Setup(cfg config.LogConfig) {
	Configure(logrus.StandardLogger(), cfg, os.Stdout)
}

// Configure 配置指定 logger，便于测试注入输出
func Configure(l *logrus.Logger, cfg config.LogConfig, out io.Writer) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
