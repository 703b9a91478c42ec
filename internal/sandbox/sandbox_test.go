package sandbox

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
)

// setupExecutor 构造一个指向本地 Docker 的执行器。
// Docker 不可达时跳过（CI 上没有 daemon 的情况很常见）。
func setupExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()

	cli, err := GetClient()
	if err != nil {
		t.Skipf("Docker client unavailable: %v. Skipping sandbox integration test.", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		t.Skipf("Docker daemon unreachable: %v. Skipping sandbox integration test.", err)
	}

	if cfg.Image == "" {
		cfg.Image = "python:3.11-slim"
	}
	return NewExecutor(cfg, nil)
}

func TestExecute_CapturesStdout(t *testing.T) {
	e := setupExecutor(t, Config{Timeout: 60 * time.Second})
	ctx := context.Background()

	res, err := e.Execute(ctx, `print(2+2)`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got failure: %+v", res.Failure)
	}
	if strings.TrimSpace(res.Stdout) != "4" {
		t.Errorf("expected stdout 4, got %q", res.Stdout)
	}
}

func TestExecute_RuntimeErrorClassified(t *testing.T) {
	e := setupExecutor(t, Config{Timeout: 60 * time.Second})
	ctx := context.Background()

	res, err := e.Execute(ctx, `print(undefined_variable)`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for NameError")
	}
	if res.Failure.Kind != FailureRuntime {
		t.Errorf("expected runtime failure, got %s", res.Failure.Kind)
	}
	if !strings.Contains(res.Failure.Message, "NameError") {
		t.Errorf("expected NameError in message, got %q", res.Failure.Message)
	}
}

// 两次顺序执行不能观察到彼此的变量绑定：每次都是全新解释器。
func TestExecute_NoStateLeakBetweenCalls(t *testing.T) {
	e := setupExecutor(t, Config{Timeout: 60 * time.Second})
	ctx := context.Background()

	first, err := e.Execute(ctx, `leaked = 42; print("set")`)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if !first.Success {
		t.Fatalf("first run failed: %+v", first.Failure)
	}

	second, err := e.Execute(ctx, `print(leaked)`)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if second.Success {
		t.Fatal("expected second run to fail: 'leaked' must not survive across calls")
	}
	if !strings.Contains(second.Failure.Message, "NameError") {
		t.Errorf("expected NameError, got %q", second.Failure.Message)
	}
}

// 超时脚本必须在 T + 小量余量内返回 Timeout 失败，且不留存活容器。
func TestExecute_TimeoutTearsDownContainer(t *testing.T) {
	timeout := 5 * time.Second
	e := setupExecutor(t, Config{Timeout: timeout})
	ctx := context.Background()

	start := time.Now()
	res, err := e.Execute(ctx, `import time
print("before sleep")
time.sleep(600)`)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success || res.Failure.Kind != FailureTimeout {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	// 余量覆盖容器创建/销毁开销
	if elapsed > timeout+30*time.Second {
		t.Errorf("timeout enforcement too slow: %s", elapsed)
	}
	if !strings.Contains(res.Failure.PartialStdout, "before sleep") {
		t.Errorf("expected partial stdout preserved, got %q", res.Failure.PartialStdout)
	}

	// 不允许遗留任何带沙箱标签的运行中容器
	cli, err := GetClient()
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	f := filters.NewArgs()
	f.Add("label", SandboxLabel)
	running, err := cli.ContainerList(ctx, container.ListOptions{Filters: f})
	if err != nil {
		t.Fatalf("list containers: %v", err)
	}
	for _, c := range running {
		t.Errorf("orphaned sandbox container still alive: %s (%s)", c.ID[:12], c.Status)
	}
}

func TestExecute_ArtifactExtraction(t *testing.T) {
	e := setupExecutor(t, Config{Timeout: 60 * time.Second})
	ctx := context.Background()

	code := `import base64
payload = base64.b64encode(b"fake-png-bytes").decode()
print("chart ready")
print("[VISUALIZATION_BASE64_START]")
print(payload)
print("[VISUALIZATION_BASE64_END]")`

	res, err := e.Execute(ctx, code)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Failure)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(res.Artifacts))
	}
	if !strings.Contains(res.Stdout, "chart ready") {
		t.Errorf("expected cleaned stdout to keep text output, got %q", res.Stdout)
	}
	if strings.Contains(res.Stdout, "[VISUALIZATION_BASE64_START]") {
		t.Errorf("markers must be stripped from stdout")
	}
}

func TestExecute_EmptyCode(t *testing.T) {
	// 不需要 Docker：空代码在进入容器之前就被拒绝。
	e := NewExecutor(Config{}, nil)
	res, err := e.Execute(context.Background(), "   ")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success || res.Failure.Kind != FailureRuntime {
		t.Fatalf("expected runtime failure for empty code, got %+v", res)
	}
}

func TestExecute_ConcurrencyBounded(t *testing.T) {
	e := setupExecutor(t, Config{Timeout: 60 * time.Second, MaxConcurrent: 2})
	ctx := context.Background()

	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func(n int) {
			res, err := e.Execute(ctx, fmt.Sprintf(`print(%d)`, n))
			if err == nil && !res.Success {
				err = fmt.Errorf("run %d failed: %+v", n, res.Failure)
			}
			done <- err
		}(i)
	}
	for i := 0; i < 3; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent run: %v", err)
		}
	}
}
