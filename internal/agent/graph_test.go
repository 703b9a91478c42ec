package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/FinSight/internal/config"
)

// scriptedModel 按脚本依次返回回复的替身模型。
// 脚本耗尽后重复最后一条（用于模拟永不收束的模型）。
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	calls   int
}

func (m *scriptedModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return nil, errors.New("scripted model has no replies")
	}
	idx := m.calls
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	m.calls++
	return m.replies[idx], nil
}

func (m *scriptedModel) Stream(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported by scripted model")
}

func (m *scriptedModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func (m *scriptedModel) generateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubTool 可编程替身工具，记录调用次数。
type stubTool struct {
	name  string
	run   func(ctx context.Context, args string) (string, error)
	calls int
}

func (t *stubTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.name,
		Desc: "stub tool for tests",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"code": {Desc: "input", Type: schema.String, Required: false},
		}),
	}, nil
}

func (t *stubTool) InvokableRun(ctx context.Context, args string, _ ...tool.Option) (string, error) {
	t.calls++
	return t.run(ctx, args)
}

func toolCallReply(toolName, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: toolName, Arguments: args},
	}})
}

func successOutcome(t *testing.T, stdout string) string {
	t.Helper()
	data, err := json.Marshal(ExecOutcome{Success: true, Stdout: stdout})
	require.NoError(t, err)
	return string(data)
}

func buildTestGraph(t *testing.T, cfg config.AgentConfig, cm model.ToolCallingChatModel, tools ...tool.InvokableTool) compose.Runnable[AgentState, AgentState] {
	t.Helper()
	registry := NewRegistry()
	for _, tl := range tools {
		require.NoError(t, registry.Register(context.Background(), tl))
	}
	runnable, err := NewGraph(context.Background(), cfg, cm, registry)
	require.NoError(t, err)
	return runnable
}

func TestGraph_SimpleCalculationFlow(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code":"print(2+2)"}`),
		schema.AssistantMessage("4", nil),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		return successOutcome(t, "4\n"), nil
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "compute 2+2 with python"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.False(t, final.Degraded)
	assert.Equal(t, 2, final.Iterations)
	assert.Equal(t, "4", final.FinalAnswer())
	assert.Equal(t, 1, py.calls)
	assert.Equal(t, "4\n", final.CodeOutput)

	// 恰好一条工具消息，且挂在正确的 tool call id 上
	toolMsgs := 0
	for _, m := range final.Messages {
		if m.Role == schema.Tool {
			toolMsgs++
			assert.Equal(t, "call-1", m.ToolCallID)
		}
	}
	assert.Equal(t, 1, toolMsgs)
}

func TestGraph_FailThenCorrect(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code":"print(undefined)"}`),
		toolCallReply(PythonSandboxToolName, `{"code":"print(42)"}`),
		schema.AssistantMessage("结果是 42", nil),
	}}
	py := &stubTool{name: PythonSandboxToolName}
	py.run = func(_ context.Context, _ string) (string, error) {
		if py.calls == 1 {
			return "", NewToolError(KindExecutionFailed, PythonSandboxToolName, "NameError: name 'undefined' is not defined", nil)
		}
		return successOutcome(t, "42\n"), nil
	}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8, CodeRetryCap: 3}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "calculate something"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.False(t, final.Degraded)
	assert.Equal(t, 3, final.Iterations)
	assert.Equal(t, 2, py.calls)
	assert.Equal(t, 1, final.Attempts[attemptKey(PythonSandboxToolName, KindExecutionFailed)])
	assert.Equal(t, "结果是 42", final.FinalAnswer())

	// 失败观察以 Tool 消息注入，而不是伪装成助手发言
	var failureObservations int
	for _, m := range final.Messages {
		if m.Role == schema.Tool && strings.Contains(m.Content, "NameError") {
			failureObservations++
		}
		if m.Role == schema.Assistant {
			assert.NotContains(t, m.Content, "NameError")
		}
	}
	assert.Equal(t, 1, failureObservations)
}

func TestGraph_NeverFinalTerminatesWithinBudget(t *testing.T) {
	ctx := context.Background()

	// 模型永远产出工具调用，绝不收束
	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code":"print(1)"}`),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		return successOutcome(t, "1\n"), nil
	}}

	const budget = 3
	g := buildTestGraph(t, config.AgentConfig{MaxIterations: budget}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "loop forever"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.True(t, final.Degraded)
	assert.Equal(t, budget, final.Iterations)
	assert.Contains(t, final.GiveUpReason, "iteration budget")
	// 预算为 N 时模型至多被调用 N 次
	assert.Equal(t, budget, cm.generateCalls())
	assert.NotEmpty(t, final.FinalAnswer())
}

func TestGraph_UnknownToolDegrades(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply("imaginary_tool", `{}`),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		return successOutcome(t, ""), nil
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "use a tool that does not exist"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.True(t, final.Degraded)
	assert.Contains(t, final.GiveUpReason, "imaginary_tool")
	// 已注册的工具不能被误触发
	assert.Equal(t, 0, py.calls)
}

func TestGraph_MalformedArgumentsDegrade(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code": not-json`),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		return successOutcome(t, ""), nil
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "emit broken arguments"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.True(t, final.Degraded)
	assert.Equal(t, 0, py.calls)
}

func TestGraph_UnavailableRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(WebSearchToolName, `{"query":"NVDA earnings"}`),
		schema.AssistantMessage("found it", nil),
	}}
	search := &stubTool{name: WebSearchToolName}
	search.run = func(_ context.Context, _ string) (string, error) {
		if search.calls <= 2 {
			return "", NewToolError(KindUnavailable, WebSearchToolName, "upstream 502", nil)
		}
		return `[{"title":"t","url":"u","content":"c"}]`, nil
	}

	g := buildTestGraph(t, config.AgentConfig{
		MaxIterations:       8,
		UnavailableRetryCap: 3,
		BackoffBase:         time.Millisecond,
	}, cm, search)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "search something"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.False(t, final.Degraded)
	// 两次失败 + 一次成功，全部在同一轮调度内完成
	assert.Equal(t, 3, search.calls)
	assert.Equal(t, 2, final.Iterations)
	assert.Equal(t, 2, final.Attempts[attemptKey(WebSearchToolName, KindUnavailable)])
}

func TestGraph_WebSearchThreadsDataContext(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(WebSearchToolName, `{"query":"AAPL revenue 2025"}`),
		schema.AssistantMessage("营收持续增长", nil),
	}}
	search := &stubTool{name: WebSearchToolName, run: func(_ context.Context, _ string) (string, error) {
		return `[{"title":"Apple Q4","url":"https://example.com/a","content":"revenue up 8%"},{"title":"Analyst note","url":"https://example.com/b","content":"beats estimates"}]`, nil
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8}, cm, search)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "research AAPL revenue"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	require.Len(t, final.DataContext, 2)
	assert.Equal(t, "Apple Q4 (https://example.com/a): revenue up 8%", final.DataContext[0])
	assert.Equal(t, "Analyst note (https://example.com/b): beats estimates", final.DataContext[1])
}

func TestGraph_ArtifactsStrippedFromMessages(t *testing.T) {
	ctx := context.Background()

	const fakePNG = "aGVsbG8tY2hhcnQ="
	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code":"plot()"}`),
		schema.AssistantMessage("图表已生成", nil),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		data, err := json.Marshal(ExecOutcome{Success: true, Stdout: "done\n", Artifacts: []string{fakePNG}})
		require.NoError(t, err)
		return string(data), nil
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "make a chart"})
	require.NoError(t, err)

	assert.Equal(t, []string{fakePNG}, final.Artifacts)
	// base64 产物不进入对话消息，只保留数量标记
	for _, m := range final.Messages {
		if m.Role != schema.Tool {
			continue
		}
		assert.NotContains(t, m.Content, fakePNG)
		assert.Contains(t, m.Content, `"artifact_count":1`)
	}
}

func TestGraph_TimeoutRetriesOnceThenGivesUp(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code":"while True: pass"}`),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		return "", NewToolError(KindTimeout, PythonSandboxToolName, "execution exceeded deadline", nil)
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8, TimeoutRetryCap: 1}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "run forever"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.True(t, final.Degraded)
	// 原样重发一次，第二次仍超时后放弃
	assert.Equal(t, 2, py.calls)
	assert.Contains(t, final.GiveUpReason, "timed out")
}

func TestGraph_ExecutionFailureCapExhausted(t *testing.T) {
	ctx := context.Background()

	// 模型每次都提交会失败的代码
	cm := &scriptedModel{replies: []*schema.Message{
		toolCallReply(PythonSandboxToolName, `{"code":"broken"}`),
	}}
	py := &stubTool{name: PythonSandboxToolName, run: func(_ context.Context, _ string) (string, error) {
		return "", NewToolError(KindExecutionFailed, PythonSandboxToolName, "SyntaxError: invalid syntax", nil)
	}}

	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 10, CodeRetryCap: 2}, cm, py)
	final, err := g.Invoke(ctx, AgentState{UserQuery: "keep failing"})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.True(t, final.Degraded)
	// 前两次失败回到推理重试，第三次失败触顶放弃
	assert.Equal(t, 3, py.calls)
	assert.Contains(t, final.GiveUpReason, "giving up")
}

func TestGraph_EmptyQueryFails(t *testing.T) {
	ctx := context.Background()

	cm := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("hi", nil)}}
	g := buildTestGraph(t, config.AgentConfig{MaxIterations: 8}, cm)

	_, err := g.Invoke(ctx, AgentState{})
	assert.Error(t, err)
}
