package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Executor 负责把一段不可信的生成代码放进一次性容器里执行。
//
// 隔离与确定性保证：
//   - 每次 Execute 使用全新容器/解释器，调用之间不共享任何变量绑定；
//     需要跨步骤传递的数据由编排层通过 data_context 显式携带。
//   - 墙钟超时到期后容器被强制销毁（kill + remove），即使脚本内部再
//     派生进程也不会越过 PidsLimit 与超时边界；任何路径下都不遗留容器。
//   - 宿主文件系统不挂载；工作目录与 /tmp 为容器内 tmpfs。
type Executor struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *zap.Logger

	prepOnce sync.Once
	prepErr  error
}

func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		logger: logger,
	}
}

// prepare 做一次性的环境准备（镜像、专用网络）。
// 失败会被缓存：环境问题不会随重试自愈，重复拉取只会放大故障。
func (e *Executor) prepare(ctx context.Context) error {
	e.prepOnce.Do(func() {
		if err := EnsureImage(ctx, e.cfg.Image, e.cfg.Platform, e.logger); err != nil {
			e.prepErr = err
			return
		}
		if e.cfg.AllowNetwork && e.cfg.NetworkName != "" {
			if _, err := EnsureNetwork(ctx, e.cfg.NetworkName); err != nil {
				e.prepErr = err
			}
		}
	})
	return e.prepErr
}

// Execute 在沙箱中运行一段 Python 脚本并返回捕获结果。
// 返回的 error 仅表示基础设施故障（Docker 不可达、取消等）；
// 脚本自身的失败以 ExecutionResult.Failure 表达。
func (e *Executor) Execute(ctx context.Context, code string) (*ExecutionResult, error) {
	if strings.TrimSpace(code) == "" {
		return &ExecutionResult{
			Failure: &Failure{Kind: FailureRuntime, Message: "no code to execute"},
		}, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire sandbox worker: %w", err)
	}
	defer e.sem.Release(1)

	if err := e.prepare(ctx); err != nil {
		return nil, fmt.Errorf("prepare sandbox: %w", err)
	}

	cli, err := GetClient()
	if err != nil {
		return nil, err
	}

	pids := e.cfg.PidsLimit
	containerCfg := &container.Config{
		Image:           e.cfg.Image,
		Cmd:             []string{"python", "-c", code},
		WorkingDir:      "/workspace",
		NetworkDisabled: !e.cfg.AllowNetwork,
		Labels:          map[string]string{SandboxLabel: "1"},
		Env: []string{
			"MPLBACKEND=Agg",
			"PYTHONUNBUFFERED=1",
		},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    e.cfg.MemoryLimitBytes,
			NanoCPUs:  e.cfg.NanoCPUs,
			PidsLimit: &pids,
		},
		Tmpfs: map[string]string{
			"/workspace": "rw,size=64m",
			"/tmp":       "rw,size=64m",
		},
	}
	if e.cfg.AllowNetwork && e.cfg.NetworkName != "" {
		hostCfg.NetworkMode = container.NetworkMode(e.cfg.NetworkName)
	}

	name := fmt.Sprintf("finsight-sandbox-%d", time.Now().UnixNano())
	created, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, parsePlatform(e.cfg.Platform), name)
	if err != nil {
		return nil, fmt.Errorf("create sandbox container: %w", err)
	}
	id := created.ID

	// 清理使用独立的背景 context：即使外层请求被取消，容器也必须销毁。
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := cli.ContainerRemove(cleanupCtx, id, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("failed to remove sandbox container",
				zap.String("container", truncateID(id)), zap.Error(err))
		}
	}()

	start := time.Now()
	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start sandbox container: %w", err)
	}

	execCtx, cancelExec := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancelExec()

	waitCh, waitErrCh := cli.ContainerWait(execCtx, id, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case resp := <-waitCh:
		exitCode = int(resp.StatusCode)
	case err := <-waitErrCh:
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			// 超时：强杀后收集已有输出，deferred remove 负责销毁。
			partial, _ := e.collectLogs(context.Background(), id)
			e.logger.Warn("sandbox execution timed out",
				zap.String("container", truncateID(id)),
				zap.Duration("timeout", e.cfg.Timeout))
			return &ExecutionResult{
				ExitCode: -1,
				Duration: time.Since(start),
				Failure: &Failure{
					Kind:          FailureTimeout,
					Message:       fmt.Sprintf("execution exceeded %s wall-clock limit", e.cfg.Timeout),
					PartialStdout: partial,
				},
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("wait sandbox container: %w", err)
	}

	duration := time.Since(start)
	stdout, stderr := e.collectLogs(ctx, id)
	cleaned, artifacts := ExtractArtifacts(stdout)

	if exitCode != 0 {
		return &ExecutionResult{
			Stdout:   cleaned,
			Stderr:   stderr,
			ExitCode: exitCode,
			Duration: duration,
			Failure: &Failure{
				Kind:          FailureRuntime,
				Message:       runtimeErrorMessage(stderr, exitCode),
				PartialStdout: cleaned,
			},
		}, nil
	}

	return &ExecutionResult{
		Success:   true,
		Stdout:    cleaned,
		Stderr:    stderr,
		Artifacts: artifacts,
		ExitCode:  exitCode,
		Duration:  duration,
	}, nil
}

// collectLogs 读取容器的 stdout/stderr（多路复用流），分别截断后返回。
func (e *Executor) collectLogs(ctx context.Context, id string) (string, string) {
	cli, err := GetClient()
	if err != nil {
		return "", ""
	}

	reader, err := cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		e.logger.Warn("failed to collect sandbox logs",
			zap.String("container", truncateID(id)), zap.Error(err))
		return "", ""
	}
	defer reader.Close()

	var outBuf, errBuf strings.Builder
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil {
		e.logger.Warn("failed to demux sandbox logs",
			zap.String("container", truncateID(id)), zap.Error(err))
	}

	return truncateTail(outBuf.String(), e.cfg.MaxOutputBytes),
		truncateTail(errBuf.String(), e.cfg.MaxOutputBytes)
}

func runtimeErrorMessage(stderr string, exitCode int) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return fmt.Sprintf("script exited with code %d", exitCode)
	}
	// Python 的 traceback 末尾是真正的异常行，保留尾部便于模型纠错。
	return truncateTail(msg, 2048)
}

func parsePlatform(platform string) *v1.Platform {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return nil
	}
	parts := strings.SplitN(platform, "/", 2)
	p := &v1.Platform{OS: parts[0]}
	if len(parts) == 2 {
		p.Architecture = parts[1]
	}
	return p
}
