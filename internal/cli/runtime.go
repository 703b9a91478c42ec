package cli

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/wwwzy/FinSight/internal/agent"
	"github.com/wwwzy/FinSight/internal/logging"
	"github.com/wwwzy/FinSight/internal/retrieval"
	"github.com/wwwzy/FinSight/internal/sandbox"
	"github.com/wwwzy/FinSight/internal/storage"
)

// runtime 聚合一次研究会话所需的全部组件。
type runtime struct {
	graph  compose.Runnable[agent.AgentState, agent.AgentState]
	store  *storage.Storage
	logger *zap.Logger
}

func (r *runtime) close() {
	if r.store != nil {
		_ = r.store.Close()
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	_ = sandbox.CloseClient()
}

// buildRuntime 按配置装配日志、存储、检索客户端、沙箱执行器和编排图。
// 存储打开失败只降级告警（审计和 run 记录不可用），不阻断研究功能。
func buildRuntime(ctx context.Context) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Warn("打开存储失败，审计记录不可用", zap.Error(err))
		store = nil
	}

	retrievalClient := retrieval.NewClient(cfg.Tavily, logger)
	executor := sandbox.NewExecutor(cfg.Sandbox, logger)

	graph, err := agent.BuildGraph(ctx, cfg, agent.Deps{
		Store:     store,
		Retrieval: retrievalClient,
		Executor:  executor,
		Logger:    logger,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("构建 Agent Graph 失败: %w", err)
	}

	return &runtime{graph: graph, store: store, logger: logger}, nil
}
