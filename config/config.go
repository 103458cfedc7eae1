package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	OSS       OSSConfig       `mapstructure:"oss"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled 未配置 host 时不启用 Redis（异步批次和 WebSocket 推送不可用）
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != ""
}

type QueueConfig struct {
	BatchQueue string `mapstructure:"batch_queue"`
	MaxWorkers int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type BrowserConfig struct {
	Headless       bool   `mapstructure:"headless"`
	ExecutablePath string `mapstructure:"executable_path"` // 为空时使用 playwright 自带的 chromium
	InstallDriver  bool   `mapstructure:"install_driver"`  // 启动时下载 playwright driver
	WindowWidth    int    `mapstructure:"window_width"`
	WindowHeight   int    `mapstructure:"window_height"`
}

type AnalysisConfig struct {
	ServiceURL   string        `mapstructure:"service_url"`   // 被驱动的评分站点
	SiteTimeout  time.Duration `mapstructure:"site_timeout"`  // 单个站点的总超时
	PollInterval time.Duration `mapstructure:"poll_interval"` // 结果轮询间隔
	PollSteps    int           `mapstructure:"poll_steps"`    // 轮询阶段进度分母
	LocateWindow time.Duration `mapstructure:"locate_window"` // 每个定位策略的等待窗口
	ProbeWindow  time.Duration `mapstructure:"probe_window"`  // 轮询时探测结果标记的等待窗口
	SettleDelay  time.Duration `mapstructure:"settle_delay"`  // 结果出现后等待延迟渲染
	MaxURLs      int           `mapstructure:"max_urls"`
}

const (
	DefaultServiceURL   = "https://www.ratemysite.xyz/"
	DefaultSiteTimeout  = 45 * time.Second
	DefaultPollInterval = time.Second
	DefaultPollSteps    = 20
	DefaultLocateWindow = 5 * time.Second
	DefaultProbeWindow  = 250 * time.Millisecond
	DefaultSettleDelay  = time.Second
	DefaultMaxURLs      = 4
)

// Defaults 补齐未配置的字段
func (c AnalysisConfig) Defaults() AnalysisConfig {
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.SiteTimeout <= 0 {
		c.SiteTimeout = DefaultSiteTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollSteps <= 0 {
		c.PollSteps = DefaultPollSteps
	}
	if c.LocateWindow <= 0 {
		c.LocateWindow = DefaultLocateWindow
	}
	if c.ProbeWindow <= 0 {
		c.ProbeWindow = DefaultProbeWindow
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.MaxURLs <= 0 {
		c.MaxURLs = DefaultMaxURLs
	}
	return c
}

type RetentionConfig struct {
	ExpireHours int    `mapstructure:"expire_hours"` // 批次记录保留时间（小时）
	ReportDir   string `mapstructure:"report_dir"`   // 未配置 OSS 时本地报表目录
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Analysis = cfg.Analysis.Defaults()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "site_compare.db")
	v.SetDefault("queue.batch_queue", "site_compare_batches")
	v.SetDefault("queue.max_workers", 1)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("analysis.service_url", DefaultServiceURL)
	v.SetDefault("analysis.site_timeout", DefaultSiteTimeout)
	v.SetDefault("analysis.poll_interval", DefaultPollInterval)
	v.SetDefault("analysis.poll_steps", DefaultPollSteps)
	v.SetDefault("analysis.locate_window", DefaultLocateWindow)
	v.SetDefault("analysis.probe_window", DefaultProbeWindow)
	v.SetDefault("analysis.settle_delay", DefaultSettleDelay)
	v.SetDefault("analysis.max_urls", DefaultMaxURLs)
	v.SetDefault("retention.expire_hours", 72)
	v.SetDefault("retention.report_dir", "reports")
}
