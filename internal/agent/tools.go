package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/FinSight/internal/retrieval"
	"github.com/wwwzy/FinSight/internal/sandbox"
)

const (
	WebSearchToolName     = "web_search"
	PythonSandboxToolName = "python_sandbox"
)

// WebSearchTool 检索外部资讯
type WebSearchTool struct {
	client *retrieval.Client
}

func NewWebSearchTool(client *retrieval.Client) *WebSearchTool {
	return &WebSearchTool{client: client}
}

func (t *WebSearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: WebSearchToolName,
		Desc: "Search the web for up-to-date financial news, market data and company information. Returns a small list of relevant snippets with source URLs.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The search query, e.g. 'NVDA Q2 2026 earnings'",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

func (t *WebSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", NewToolError(KindMalformedToolRequest, WebSearchToolName, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", NewToolError(KindMalformedToolRequest, WebSearchToolName, "query is required", nil)
	}

	snippets, err := t.client.Search(ctx, args.Query)
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			return "", NewToolError(KindUnavailable, WebSearchToolName, err.Error(), err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewToolError(KindTimeout, WebSearchToolName, err.Error(), err)
		}
		return "", NewToolError(KindExecutionFailed, WebSearchToolName, err.Error(), err)
	}

	data, err := json.Marshal(snippets)
	if err != nil {
		return "", NewToolError(KindExecutionFailed, WebSearchToolName, fmt.Sprintf("failed to marshal result: %v", err), err)
	}
	return string(data), nil
}

// PythonTool 在 Docker 沙箱中执行 Python 代码
type PythonTool struct {
	executor *sandbox.Executor
}

func NewPythonTool(executor *sandbox.Executor) *PythonTool {
	return &PythonTool{executor: executor}
}

func (t *PythonTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: PythonSandboxToolName,
		Desc: "Execute Python code in an isolated sandbox with yfinance, pandas and matplotlib preinstalled. Each call runs in a fresh interpreter: variables do NOT persist between calls, so every snippet must be self-contained including imports. To return a chart, save it as PNG, base64-encode it and print it between [VISUALIZATION_BASE64_START] and [VISUALIZATION_BASE64_END] marker lines.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"code": {
				Desc:     "The Python code to execute",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

func (t *PythonTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", NewToolError(KindMalformedToolRequest, PythonSandboxToolName, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	if strings.TrimSpace(args.Code) == "" {
		return "", NewToolError(KindMalformedToolRequest, PythonSandboxToolName, "code is required", nil)
	}

	res, err := t.executor.Execute(ctx, args.Code)
	if err != nil {
		// 执行器层面的错误（Docker 不可达、镜像拉取失败）：环境问题而非代码问题
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", NewToolError(KindUnavailable, PythonSandboxToolName, err.Error(), err)
	}

	if !res.Success {
		switch res.Failure.Kind {
		case sandbox.FailureTimeout:
			return "", NewToolError(KindTimeout, PythonSandboxToolName, res.Failure.Message, nil)
		default:
			return "", NewToolError(KindExecutionFailed, PythonSandboxToolName, res.Failure.Message, nil)
		}
	}

	outcome := ExecOutcome{
		Success:   true,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Artifacts: res.Artifacts,
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return "", NewToolError(KindExecutionFailed, PythonSandboxToolName, fmt.Sprintf("failed to marshal result: %v", err), err)
	}
	return string(data), nil
}
