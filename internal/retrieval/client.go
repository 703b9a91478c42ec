package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable 表示外部检索服务不可达（网络错误、超时、5xx）。
// 上层自纠错策略据此判定是否退避重试。
var ErrUnavailable = errors.New("retrieval service unavailable")

type Config struct {
	// APIKey 为 Tavily API Key（必填，可通过 TAVILY_API_KEY 环境变量注入）。
	APIKey string `mapstructure:"api_key"`
	// BaseURL 为检索服务地址，默认官方端点。
	BaseURL string `mapstructure:"base_url"`
	// MaxResults 限制单次检索返回的片段数量。
	MaxResults int `mapstructure:"max_results"`
	// Timeout 为单次 HTTP 请求超时。
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit/RateBurst 为跨调用共享的请求速率限制（每秒令牌数 / 突发量）。
	// 该限制独立于编排逻辑，保护外部配额。
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.tavily.com"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 2
	}
	return c
}

// Snippet 为一条检索结果片段。
type Snippet struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Client 封装对外部搜索服务的调用。
// 进程内共享一个实例即可：内部的限流器对并发调用方统一生效。
type Client struct {
	cfg     Config
	httpCli *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		httpCli: &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []Snippet `json:"results"`
}

// Search 发起一次检索，返回有界数量的文本片段。
// 网络/超时/服务端错误统一归类为 ErrUnavailable；调用方不应看到裸的传输层错误。
func (c *Client) Search(ctx context.Context, query string) ([]Snippet, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     c.cfg.APIKey,
		Query:      query,
		MaxResults: c.cfg.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		c.logger.Warn("search request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.logger.Warn("search service error", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search rejected: status %d: %s", resp.StatusCode, string(data))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	// 服务端通常已按 max_results 截断，这里再做一次保护。
	results := out.Results
	if len(results) > c.cfg.MaxResults {
		results = results[:c.cfg.MaxResults]
	}
	return results, nil
}
