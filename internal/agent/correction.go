package agent

import (
	"fmt"
	"time"

	"github.com/wwwzy/FinSight/internal/config"
)

// 自纠错目标：失败后下一步去哪。
const (
	// TargetReason 将失败信息注入上下文后回到推理节点，让模型修正后再试。
	TargetReason = "reason"
	// TargetDispatch 不经过推理，直接原样重发同一个工具请求。
	TargetDispatch = "dispatch"
)

// Decision 为自纠错策略对一次工具失败的处置。
type Decision struct {
	// Retry 为 false 表示放弃，进入降级收束。
	Retry bool
	// Target 指定重试路径（TargetReason / TargetDispatch），仅 Retry 时有意义。
	Target string
	// Backoff 为重发前的等待时长，仅 Target 为 TargetDispatch 时可能非零。
	Backoff time.Duration
	// Explanation 为注入上下文或写入降级原因的人类可读说明。
	Explanation string
}

// Corrector 实现有界的自纠错策略。
// 每个"工具名/错误分类"谱系独立计数，互不挤占重试额度。
type Corrector struct {
	cfg config.AgentConfig
}

func NewCorrector(cfg config.AgentConfig) *Corrector {
	if cfg.CodeRetryCap <= 0 {
		cfg.CodeRetryCap = 3
	}
	if cfg.TimeoutRetryCap <= 0 {
		cfg.TimeoutRetryCap = 1
	}
	if cfg.UnavailableRetryCap <= 0 {
		cfg.UnavailableRetryCap = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &Corrector{cfg: cfg}
}

// Correct 根据错误分类与该谱系已发生的失败次数给出处置。
// attempts 为包含本次在内的累计失败次数（首次失败为 1）。
func (c *Corrector) Correct(failure *ToolError, attempts int) Decision {
	switch failure.Kind {
	case KindExecutionFailed:
		// 执行失败大概率是代码问题，把错误交还给模型修正。
		if attempts > c.cfg.CodeRetryCap {
			return Decision{
				Retry:       false,
				Explanation: fmt.Sprintf("tool %s failed %d times, giving up: %s", failure.Tool, attempts, failure.Message),
			}
		}
		return Decision{
			Retry:       true,
			Target:      TargetReason,
			Explanation: fmt.Sprintf("execution failed (attempt %d/%d): %s", attempts, c.cfg.CodeRetryCap, failure.Message),
		}

	case KindTimeout:
		// 超时可能是偶发负载，原样重发一次；再超时就放弃。
		if attempts > c.cfg.TimeoutRetryCap {
			return Decision{
				Retry:       false,
				Explanation: fmt.Sprintf("tool %s timed out %d times, giving up", failure.Tool, attempts),
			}
		}
		return Decision{
			Retry:       true,
			Target:      TargetDispatch,
			Explanation: fmt.Sprintf("timeout (attempt %d/%d), retrying same request", attempts, c.cfg.TimeoutRetryCap),
		}

	case KindUnavailable:
		// 外部服务不可用：指数退避后原样重发。
		if attempts > c.cfg.UnavailableRetryCap {
			return Decision{
				Retry:       false,
				Explanation: fmt.Sprintf("tool %s unavailable after %d attempts, giving up", failure.Tool, attempts),
			}
		}
		return Decision{
			Retry:       true,
			Target:      TargetDispatch,
			Backoff:     c.backoff(attempts),
			Explanation: fmt.Sprintf("service unavailable (attempt %d/%d), backing off", attempts, c.cfg.UnavailableRetryCap),
		}

	case KindUnknownTool, KindMalformedToolRequest:
		// 请求本身不合法，重发没有意义。
		return Decision{
			Retry:       false,
			Explanation: failure.Error(),
		}

	default:
		return Decision{
			Retry:       false,
			Explanation: failure.Error(),
		}
	}
}

// backoff 按尝试次数指数增长：base, 2*base, 4*base, ...
func (c *Corrector) backoff(attempts int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
