package sandbox

import "time"

// SandboxLabel 标记所有由本程序创建的沙箱容器，供执行器清理与 janitor 兜底回收。
const SandboxLabel = "finsight.sandbox"

type Config struct {
	// Image 为沙箱镜像；需要预装 yfinance/pandas/numpy/matplotlib 等分析依赖。
	Image string `mapstructure:"image"`
	// Timeout 为单次代码执行的墙钟超时；到期后容器会被强制销毁，绝不遗留。
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxConcurrent 为进程内并发执行上限（跨请求共享的 worker 容量）。
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	// MemoryLimitBytes/NanoCPUs/PidsLimit 为容器资源限制。
	MemoryLimitBytes int64 `mapstructure:"memory_limit_bytes"`
	NanoCPUs         int64 `mapstructure:"nano_cpus"`
	PidsLimit        int64 `mapstructure:"pids_limit"`
	// AllowNetwork 控制沙箱内代码是否可以访问网络。
	// 金融分析代码通常需要在线拉取行情数据（yfinance），默认放行；
	// 关闭后容器以 NetworkDisabled 方式创建。
	AllowNetwork bool `mapstructure:"allow_network"`
	// NetworkName 为 AllowNetwork=true 时使用的专用 bridge 网络；
	// 为空则使用 Docker 默认网络。
	NetworkName string `mapstructure:"network_name"`
	// Platform 可选平台（如 linux/amd64），跨架构主机上拉取镜像时使用。
	Platform string `mapstructure:"platform"`
	// MaxOutputBytes 限制捕获的 stdout/stderr 大小，超出部分从头部截断。
	MaxOutputBytes int `mapstructure:"max_output_bytes"`
}

func DefaultConfig() Config {
	return Config{
		Image:            "python:3.11-slim",
		Timeout:          60 * time.Second,
		MaxConcurrent:    4,
		MemoryLimitBytes: 512 * 1024 * 1024,
		NanoCPUs:         1_000_000_000,
		PidsLimit:        128,
		AllowNetwork:     true,
		MaxOutputBytes:   256 * 1024,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Image == "" {
		c.Image = def.Image
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.MemoryLimitBytes <= 0 {
		c.MemoryLimitBytes = def.MemoryLimitBytes
	}
	if c.NanoCPUs <= 0 {
		c.NanoCPUs = def.NanoCPUs
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = def.PidsLimit
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = def.MaxOutputBytes
	}
	return c
}
