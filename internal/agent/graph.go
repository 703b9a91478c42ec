package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/wwwzy/FinSight/internal/config"
	"github.com/wwwzy/FinSight/internal/retrieval"
	"github.com/wwwzy/FinSight/internal/sandbox"
	"github.com/wwwzy/FinSight/internal/storage"
)

const (
	NodeInput    = "input_node"
	NodeReason   = "reason_node"
	NodeDispatch = "dispatch_node"
	NodeFinalize = "finalize_node"
)

// Deps 为 BuildGraph 装配编排图所需的外部依赖。
type Deps struct {
	Store     *storage.Storage
	Retrieval *retrieval.Client
	Executor  *sandbox.Executor
	Logger    *zap.Logger
}

// BuildGraph 构建 Agent 的处理流程图（生产装配入口）。
// 初始化真实的 Ark ChatModel，注册全部工具并包上审计层。
func BuildGraph(ctx context.Context, cfg *config.Config, deps Deps) (compose.Runnable[AgentState, AgentState], error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	// 获取 chatModel
	cm, err := NewChatModel(ctx, cfg.Ark)
	if err != nil {
		return nil, fmt.Errorf("init chat model failed: %w", err)
	}

	// 注册工具（审计层可选，取决于是否提供存储）
	registry := NewRegistry()
	if deps.Retrieval != nil {
		if err := registry.Register(ctx, WrapWithAudit(NewWebSearchTool(deps.Retrieval), deps.Store)); err != nil {
			return nil, fmt.Errorf("register web search tool failed: %w", err)
		}
	}
	if deps.Executor != nil {
		if err := registry.Register(ctx, WrapWithAudit(NewPythonTool(deps.Executor), deps.Store)); err != nil {
			return nil, fmt.Errorf("register python tool failed: %w", err)
		}
	}

	// 将工具信息绑定到 chatModel
	toolsInfo, err := registry.ToolInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect tool infos failed: %w", err)
	}
	toolCM, err := cm.WithTools(toolsInfo)
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}

	if deps.Logger != nil {
		deps.Logger.Info("agent graph assembled",
			zap.Int("tools", len(toolsInfo)),
			zap.Int("max_iterations", cfg.Agent.MaxIterations))
	}

	return NewGraph(ctx, cfg.Agent, toolCM, registry)
}

// NewGraph 用已就绪的 ChatModel 和工具注册表装配编排图。
// 与 BuildGraph 分离是为了让测试可以注入替身模型。
func NewGraph(ctx context.Context, agentCfg config.AgentConfig, cm model.ToolCallingChatModel, registry *Registry) (compose.Runnable[AgentState, AgentState], error) {
	corrector := NewCorrector(agentCfg)
	maxIterations := agentCfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 8
	}

	// 初始化 Graph，输入输出都是 AgentState
	g := compose.NewGraph[AgentState, AgentState]()

	// 1. 添加节点
	// InputNode: 规整初始状态、注入用户消息
	g.AddLambdaNode(NodeInput, compose.InvokableLambda(InputNode))

	// ReasonNode: 核心 LLM 推理节点，使用闭包注入 chatModel
	g.AddLambdaNode(NodeReason, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		return ReasonNode(ctx, state, cm, maxIterations)
	}))

	// DispatchNode: 工具执行节点，使用闭包注入注册表和纠错策略
	g.AddLambdaNode(NodeDispatch, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		return DispatchNode(ctx, state, registry, corrector)
	}))

	// FinalizeNode: 降级收束节点
	g.AddLambdaNode(NodeFinalize, compose.InvokableLambda(FinalizeNode))

	// 2. 添加边 (Edges)
	// Start -> Input -> Reason
	if err := g.AddEdge(compose.START, NodeInput); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeInput, NodeReason); err != nil {
		return nil, err
	}

	// 3. 添加分支 (Branches)
	// Reason -> Dispatch OR Finalize OR End
	// 使用 State 中显式的信号字段判断
	err := g.AddBranch(NodeReason, compose.NewGraphBranch(func(ctx context.Context, state AgentState) (string, error) {
		if state.Done {
			return compose.END, nil
		}
		if state.LastFailure != nil {
			// 预算耗尽或请求不合法，进入降级收束
			return NodeFinalize, nil
		}
		if state.NextToolCall != nil {
			return NodeDispatch, nil
		}
		return NodeFinalize, nil
	}, map[string]bool{
		NodeDispatch: true,
		NodeFinalize: true,
		compose.END:  true,
	}))
	if err != nil {
		return nil, err
	}

	// Dispatch -> Reason (loop back) OR Finalize
	// 工具结果（或注入的失败观察）返回给 LLM 继续思考；不可恢复失败收束
	err = g.AddBranch(NodeDispatch, compose.NewGraphBranch(func(ctx context.Context, state AgentState) (string, error) {
		if state.LastFailure != nil {
			return NodeFinalize, nil
		}
		return NodeReason, nil
	}, map[string]bool{
		NodeReason:   true,
		NodeFinalize: true,
	}))
	if err != nil {
		return nil, err
	}

	// Finalize -> End
	if err := g.AddEdge(NodeFinalize, compose.END); err != nil {
		return nil, err
	}

	// 4. 编译 Graph
	// 每轮迭代最多走两步（推理 + 调度），留出入口与收束节点的余量
	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(maxIterations*2+8))
	if err != nil {
		return nil, err
	}

	return runnable, nil
}
