package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vcompressor/app/options"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Database DatabaseConfig `mapstructure:"database"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Compress CompressConfig `mapstructure:"compress"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	Dir        string `mapstructure:"dir"`         // 日志目录
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // sqlite 文件路径
}

type FFmpegConfig struct {
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	FFprobePath   string        `mapstructure:"ffprobe_path"`
	VideoCodec    string        `mapstructure:"video_codec"`
	AudioCodec    string        `mapstructure:"audio_codec"`
	Preset        string        `mapstructure:"preset"`
	ProbeCacheTTL time.Duration `mapstructure:"probe_cache_ttl"`
}

type CompressConfig struct {
	Policy               string  `mapstructure:"policy"` // as_usual / general / camera
	ShortEdge            int     `mapstructure:"short_edge"`
	MaxBitrate           int     `mapstructure:"max_bitrate"`
	MinFPS               int     `mapstructure:"min_fps"`
	MaxFPS               int     `mapstructure:"max_fps"`
	CameraMinWidth       int     `mapstructure:"camera_min_width"`
	CameraMinScale       float64 `mapstructure:"camera_min_scale"`
	CameraBitrateDivisor int     `mapstructure:"camera_bitrate_divisor"`
	Poster               bool    `mapstructure:"poster"`       // 是否生成封面
	PosterWidth          int     `mapstructure:"poster_width"` // 封面宽度
	PosterBadge          bool    `mapstructure:"poster_badge"` // 封面上标注分辨率
}

// PolicyConfig 转换为策略参数
func (c CompressConfig) PolicyConfig() options.PolicyConfig {
	return options.PolicyConfig{
		ShortEdge:            c.ShortEdge,
		MaxBitrate:           c.MaxBitrate,
		MinFPS:               c.MinFPS,
		MaxFPS:               c.MaxFPS,
		CameraMinWidth:       c.CameraMinWidth,
		CameraMinScale:       c.CameraMinScale,
		CameraBitrateDivisor: c.CameraBitrateDivisor,
	}
}

type QueueConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`   // 同时压缩的任务数
	MaxRetries        int           `mapstructure:"max_retries"`   // 最大重试次数
	PollInterval      time.Duration `mapstructure:"poll_interval"` // 轮询间隔
	CleanupCron       string        `mapstructure:"cleanup_cron"`  // 清理任务 cron 表达式
	KeepCompletedDays int           `mapstructure:"keep_completed_days"`
	KeepFailedDays    int           `mapstructure:"keep_failed_days"`
}

type WatcherConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Configs []WatchConfig `mapstructure:"configs"`
}

// WatchConfig 监控目录配置
type WatchConfig struct {
	Name                 string   `mapstructure:"name"`
	SourceDir            string   `mapstructure:"source_dir"`
	TargetDir            string   `mapstructure:"target_dir"`
	Extensions           []string `mapstructure:"extensions"`
	Recursive            bool     `mapstructure:"recursive"`
	ProcessExistingFiles bool     `mapstructure:"process_existing_files"`
	Policy               string   `mapstructure:"policy"`
}

type NotifyConfig struct {
	URL        string        `mapstructure:"url"` // 为空时不发送通知
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// Load 读取全局 viper 中的配置
func Load() *Config {
	cfg, err := Decode(viper.GetViper())
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// Decode 设置默认值、解码并验证配置
func Decode(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解码配置: %w", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.username", "admin")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.dir", "data/logs")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	// JWT默认配置
	v.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	v.SetDefault("jwt.expire_time", 24) // 24小时
	v.SetDefault("jwt.issuer", "vcompressor")

	v.SetDefault("database.path", "data/vcompressor.db")

	// ffmpeg
	v.SetDefault("ffmpeg.ffmpeg_path", "ffmpeg")
	v.SetDefault("ffmpeg.ffprobe_path", "ffprobe")
	v.SetDefault("ffmpeg.video_codec", "libx264")
	v.SetDefault("ffmpeg.audio_codec", "aac")
	v.SetDefault("ffmpeg.preset", "medium")
	v.SetDefault("ffmpeg.probe_cache_ttl", 10*time.Minute)

	// 压缩策略
	policy := options.DefaultPolicyConfig()
	v.SetDefault("compress.policy", options.PolicyGeneral.String())
	v.SetDefault("compress.short_edge", policy.ShortEdge)
	v.SetDefault("compress.max_bitrate", policy.MaxBitrate)
	v.SetDefault("compress.min_fps", policy.MinFPS)
	v.SetDefault("compress.max_fps", policy.MaxFPS)
	v.SetDefault("compress.camera_min_width", policy.CameraMinWidth)
	v.SetDefault("compress.camera_min_scale", policy.CameraMinScale)
	v.SetDefault("compress.camera_bitrate_divisor", policy.CameraBitrateDivisor)
	v.SetDefault("compress.poster", false)
	v.SetDefault("compress.poster_width", 480)
	v.SetDefault("compress.poster_badge", true)

	// 队列
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.poll_interval", 2*time.Second)
	v.SetDefault("queue.cleanup_cron", "0 3 * * *")
	v.SetDefault("queue.keep_completed_days", 7)
	v.SetDefault("queue.keep_failed_days", 30)

	v.SetDefault("watcher.enabled", false)

	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.retry_count", 3)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Database.Path == "" {
		return fmt.Errorf("数据库路径未设置")
	}
	if _, err := options.ParsePolicy(config.Compress.Policy); err != nil {
		return err
	}
	if err := config.Compress.PolicyConfig().Validate(); err != nil {
		return err
	}
	if config.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency 必须大于 0")
	}
	if config.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries 不能为负数")
	}
	if config.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval 必须大于 0")
	}

	for i, w := range config.Watcher.Configs {
		if strings.TrimSpace(w.SourceDir) == "" || strings.TrimSpace(w.TargetDir) == "" {
			return fmt.Errorf("watcher.configs[%d] 未设置 source_dir 或 target_dir", i)
		}
		if _, err := options.ParsePolicy(w.Policy); err != nil {
			return fmt.Errorf("watcher.configs[%d]: %w", i, err)
		}
	}
	return nil
}
