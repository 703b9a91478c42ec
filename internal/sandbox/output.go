package sandbox

import (
	"strings"
	"time"
)

// 生成代码通过在 stdout 中打印成对标记来回传渲染好的图表（base64 PNG）。
// 标记协议是提示词的一部分，沙箱只负责按协议切分，不解释内容。
const (
	artifactStartMarker = "[VISUALIZATION_BASE64_START]"
	artifactEndMarker   = "[VISUALIZATION_BASE64_END]"
)

// FailureKind 为沙箱侧的失败分类。
type FailureKind string

const (
	// FailureRuntime 表示脚本自身运行出错（语法错误、异常、非零退出码）。
	FailureRuntime FailureKind = "runtime_error"
	// FailureTimeout 表示执行超出墙钟上限被强制销毁。
	FailureTimeout FailureKind = "timeout"
)

// Failure 描述一次执行失败；PartialStdout 保留失败前已产生的输出。
type Failure struct {
	Kind          FailureKind `json:"kind"`
	Message       string      `json:"message"`
	PartialStdout string      `json:"partial_stdout,omitempty"`
}

// ExecutionResult 为一次沙箱执行的完整结果。
// Success=true 时 Failure 为 nil；反之 Stdout/Artifacts 为失败前的部分捕获。
type ExecutionResult struct {
	Success   bool          `json:"success"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Failure   *Failure      `json:"failure,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// ExtractArtifacts 从 stdout 中切出所有标记包裹的 base64 产物，
// 返回去除标记块之后的可读输出与产物列表。不完整的标记块原样保留。
func ExtractArtifacts(stdout string) (string, []string) {
	if !strings.Contains(stdout, artifactStartMarker) {
		return stdout, nil
	}

	var artifacts []string
	var cleaned strings.Builder
	rest := stdout
	for {
		start := strings.Index(rest, artifactStartMarker)
		if start < 0 {
			cleaned.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], artifactEndMarker)
		if end < 0 {
			// 缺失结束标记：不猜测边界，保留原文
			cleaned.WriteString(rest)
			break
		}
		end += start

		cleaned.WriteString(rest[:start])
		payload := strings.TrimSpace(rest[start+len(artifactStartMarker) : end])
		if payload != "" {
			artifacts = append(artifacts, payload)
		}
		rest = rest[end+len(artifactEndMarker):]
	}

	return strings.TrimSpace(cleaned.String()), artifacts
}
