package ui

import (
	"context"

	"github.com/cloudwego/eino/compose"
	"github.com/wwwzy/FinSight/internal/agent"
)

type ChatBackend interface {
	Invoke(ctx context.Context, state agent.AgentState, opts ...compose.Option) (agent.AgentState, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, initial agent.AgentState, opts ChatOptions) error
}

type ChatOptions struct {
	// ArtifactDir 为可视化产物的落盘目录；为空则不落盘。
	ArtifactDir string
}

func DefaultInitialState() agent.AgentState {
	return agent.NormalizeState(agent.AgentState{})
}
