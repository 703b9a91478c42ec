package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wwwzy/FinSight/internal/janitor"
	"github.com/wwwzy/FinSight/internal/retrieval"
	"github.com/wwwzy/FinSight/internal/sandbox"
	"github.com/wwwzy/FinSight/internal/storage"
)

type ArkConfig struct {
	APIKey  string `mapstructure:"api_key"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
}

// AgentConfig 控制推理循环的预算与自纠错策略。
type AgentConfig struct {
	// MaxIterations 为单次提问允许的最大推理轮数；超出后强制收束并给出降级回答。
	MaxIterations int `mapstructure:"max_iterations"`

	// CodeRetryCap 为代码执行失败后允许的重试次数上限。
	CodeRetryCap int `mapstructure:"code_retry_cap"`
	// TimeoutRetryCap 为工具超时后允许的原样重发次数上限。
	TimeoutRetryCap int `mapstructure:"timeout_retry_cap"`
	// UnavailableRetryCap 为外部服务不可用时允许的退避重发次数上限。
	UnavailableRetryCap int `mapstructure:"unavailable_retry_cap"`
	// BackoffBase 为不可用重试的退避基数，按尝试次数指数增长。
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

type Config struct {
	Storage storage.Config   `mapstructure:"storage"`
	Sandbox sandbox.Config   `mapstructure:"sandbox"`
	Tavily  retrieval.Config `mapstructure:"tavily"`
	Janitor janitor.Config   `mapstructure:"janitor"`
	Ark     ArkConfig        `mapstructure:"ark"`
	Agent   AgentConfig      `mapstructure:"agent"`

	LogLevel string `mapstructure:"log_level"`
}

func Load(cfgFile string) (*Config, error) {
	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.finsight")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FINSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper 的 Unmarshal 只反序列化它“知道”的 key（来自配置文件、Defaults 或显式 Bind），
	// 所以所有 key 都需要在这里注册默认值，环境变量才能正确覆盖。

	setDefaults(v)

	// 2. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到，使用默认值
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// Ark 配置验证：必须存在
	if c.Ark.APIKey == "" {
		return fmt.Errorf("ark.api_key is required (or set ARK_API_KEY env var)")
	}
	if c.Ark.ModelID == "" {
		return fmt.Errorf("ark.model_id is required (or set ARK_MODEL_ID env var)")
	}
	if c.Tavily.APIKey == "" {
		return fmt.Errorf("tavily.api_key is required (or set TAVILY_API_KEY env var)")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// -------------------------------------------------------------------------
	// Global Defaults (全局默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", "info")

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", "finsight.db")
	v.SetDefault("storage.enable_wal", true)
	v.SetDefault("storage.busy_timeout", 5*time.Second)

	// -------------------------------------------------------------------------
	// Sandbox Defaults (代码沙箱默认值)
	// -------------------------------------------------------------------------
	sandboxDefaults := sandbox.DefaultConfig()
	v.SetDefault("sandbox.image", sandboxDefaults.Image)
	v.SetDefault("sandbox.timeout", sandboxDefaults.Timeout)
	v.SetDefault("sandbox.max_concurrent", sandboxDefaults.MaxConcurrent)
	v.SetDefault("sandbox.memory_limit_bytes", sandboxDefaults.MemoryLimitBytes)
	v.SetDefault("sandbox.nano_cpus", sandboxDefaults.NanoCPUs)
	v.SetDefault("sandbox.pids_limit", sandboxDefaults.PidsLimit)
	v.SetDefault("sandbox.allow_network", sandboxDefaults.AllowNetwork)
	v.SetDefault("sandbox.network_name", sandboxDefaults.NetworkName)
	v.SetDefault("sandbox.platform", sandboxDefaults.Platform)
	v.SetDefault("sandbox.max_output_bytes", sandboxDefaults.MaxOutputBytes)

	// -------------------------------------------------------------------------
	// Tavily Retrieval Defaults (检索默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("tavily.api_key", "")
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.max_results", 3)
	v.SetDefault("tavily.timeout", 10*time.Second)
	v.SetDefault("tavily.rate_limit", 1.0)
	v.SetDefault("tavily.rate_burst", 2)

	v.BindEnv("tavily.api_key", "TAVILY_API_KEY")

	// -------------------------------------------------------------------------
	// Janitor Defaults (后台清理默认值)
	// -------------------------------------------------------------------------
	janitorDefaults := janitor.DefaultConfig()
	v.SetDefault("janitor.retention.enabled", janitorDefaults.Retention.Enabled)
	v.SetDefault("janitor.retention.interval", janitorDefaults.Retention.Interval)
	v.SetDefault("janitor.retention.audit_keep", janitorDefaults.Retention.AuditKeep)
	v.SetDefault("janitor.retention.run_keep", janitorDefaults.Retention.RunKeep)
	v.SetDefault("janitor.retention.audit_keep_latest", janitorDefaults.Retention.AuditKeepLatest)
	v.SetDefault("janitor.reaper.enabled", janitorDefaults.Reaper.Enabled)
	v.SetDefault("janitor.reaper.interval", janitorDefaults.Reaper.Interval)
	v.SetDefault("janitor.reaper.grace_period", janitorDefaults.Reaper.GracePeriod)

	// -------------------------------------------------------------------------
	// Agent Defaults (推理循环默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("agent.max_iterations", 8)
	v.SetDefault("agent.code_retry_cap", 3)
	v.SetDefault("agent.timeout_retry_cap", 1)
	v.SetDefault("agent.unavailable_retry_cap", 3)
	v.SetDefault("agent.backoff_base", 500*time.Millisecond)

	// -------------------------------------------------------------------------
	// Ark AI Defaults (AI 模型默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", "https://ark.cn-beijing.volces.com/api/v3")

	v.BindEnv("ark.api_key", "ARK_API_KEY")
	v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	v.BindEnv("ark.base_url", "ARK_BASE_URL")
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: storage.Config{
			Path:        "finsight.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		Sandbox: sandbox.DefaultConfig(),
		Tavily: retrieval.Config{
			BaseURL:    "https://api.tavily.com",
			MaxResults: 3,
			Timeout:    10 * time.Second,
			RateLimit:  1,
			RateBurst:  2,
		},
		Janitor: janitor.DefaultConfig(),
		Agent: AgentConfig{
			MaxIterations:       8,
			CodeRetryCap:        3,
			TimeoutRetryCap:     1,
			UnavailableRetryCap: 3,
			BackoffBase:         500 * time.Millisecond,
		},
	}
}
