package janitor

import (
	"time"
)

type ErrorHandler func(err error)

type RetentionConfig struct {
	// Enabled 控制审计数据清理流水线是否启用。
	Enabled bool `mapstructure:"enabled"`

	// Interval 为清理周期；每到一个周期执行一轮过期数据删除。
	Interval time.Duration `mapstructure:"interval"`

	// AuditKeep 为工具调用审计记录的保留时长；早于该时长的记录被删除。
	AuditKeep time.Duration `mapstructure:"audit_keep"`
	// RunKeep 为完整运行记录的保留时长。
	RunKeep time.Duration `mapstructure:"run_keep"`

	// AuditKeepLatest 为无论时间如何都保留的最近审计记录条数（0 表示不启用）。
	AuditKeepLatest int `mapstructure:"audit_keep_latest"`

	// OnError 为异步错误回调（例如删除失败）；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

type ReaperConfig struct {
	// Enabled 控制沙箱容器回收流水线是否启用。
	Enabled bool `mapstructure:"enabled"`

	// Interval 为扫描周期；每到一个周期列出带沙箱标签的容器并回收。
	Interval time.Duration `mapstructure:"interval"`

	// GracePeriod 为容器退出后允许存活的宽限时长；超过即强制删除。
	// 正常路径上执行器自己就会清理容器，回收器只兜底进程崩溃留下的残骸。
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// OnError 为异步错误回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

type Config struct {
	Retention RetentionConfig `mapstructure:"retention"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
}

func DefaultConfig() Config {
	return Config{
		Retention: RetentionConfig{
			Enabled:         true,
			Interval:        time.Hour,
			AuditKeep:       7 * 24 * time.Hour,
			RunKeep:         30 * 24 * time.Hour,
			AuditKeepLatest: 0,
		},
		Reaper: ReaperConfig{
			Enabled:     true,
			Interval:    5 * time.Minute,
			GracePeriod: 10 * time.Minute,
		},
	}
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.AuditKeep <= 0 {
		c.AuditKeep = 7 * 24 * time.Hour
	}
	if c.RunKeep <= 0 {
		c.RunKeep = 30 * 24 * time.Hour
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}

func (c ReaperConfig) withDefaults() ReaperConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Minute
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
