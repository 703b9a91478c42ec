package agent

import (
	"errors"
	"fmt"
)

// ErrorKind 为工具失败的封闭分类。
// 自纠错策略只依据分类做决策，不解析具体错误文本。
type ErrorKind string

const (
	// KindUnknownTool 表示推理器请求了注册表中不存在的工具。
	KindUnknownTool ErrorKind = "unknown_tool"
	// KindMalformedToolRequest 表示工具请求本身不合法（参数非法 JSON、缺少必填项）。
	KindMalformedToolRequest ErrorKind = "malformed_tool_request"
	// KindExecutionFailed 表示工具正常启动但执行失败（如 Python 运行时报错）。
	KindExecutionFailed ErrorKind = "execution_failed"
	// KindTimeout 表示工具执行超出时限被强制终止。
	KindTimeout ErrorKind = "timeout"
	// KindUnavailable 表示外部依赖暂时不可达（网络错误、5xx）。
	KindUnavailable ErrorKind = "unavailable"
	// KindIterationBudgetExceeded 表示推理轮数超出预算被强制收束。
	KindIterationBudgetExceeded ErrorKind = "iteration_budget_exceeded"
)

// ToolError 是带分类的工具失败。
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Tool    string    `json:"tool,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Tool, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

func NewToolError(kind ErrorKind, toolName string, message string, cause error) *ToolError {
	return &ToolError{Kind: kind, Tool: toolName, Message: message, Cause: cause}
}

// Classify 提取错误的分类。
// 非 *ToolError 的错误一律归为 execution_failed（未知的失败按可重试处理最保守）。
func Classify(err error) ErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindExecutionFailed
}

// AsToolError 将任意错误规整为 *ToolError。
func AsToolError(toolName string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return NewToolError(KindExecutionFailed, toolName, err.Error(), err)
}
