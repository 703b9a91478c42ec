package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/FinSight/internal/retrieval"
)

// InputNode 处理用户输入，构建初始状态
func InputNode(ctx context.Context, state AgentState) (AgentState, error) {
	state = NormalizeState(state)

	// 将 UserQuery 转换为 UserMessage 并追加
	// 调用方可能已经把 UserQuery 放入了 Messages，这里做个检查
	if state.UserQuery != "" {
		isLastUser := false
		if len(state.Messages) > 0 {
			lastMsg := state.Messages[len(state.Messages)-1]
			if lastMsg != nil && lastMsg.Role == schema.User && lastMsg.Content == state.UserQuery {
				isLastUser = true
			}
		}
		if !isLastUser {
			state.Messages = append(state.Messages, schema.UserMessage(state.UserQuery))
		}
	}

	// 没有任何用户输入无法开始推理
	hasUser := false
	for _, m := range state.Messages {
		if m != nil && m.Role == schema.User {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return state, errors.New("user query is required")
	}

	return state, nil
}

// ReasonNode 执行一轮推理，并负责迭代预算的守门。
// 预算在进入推理之前检查：超出预算的那一轮不再调用模型，直接转入降级收束。
func ReasonNode(ctx context.Context, state AgentState, chatModel model.ToolCallingChatModel, maxIterations int) (AgentState, error) {
	if maxIterations <= 0 {
		maxIterations = 8
	}

	state.Iterations++
	if state.Iterations > maxIterations {
		state.Iterations = maxIterations
		state.LastFailure = NewToolError(KindIterationBudgetExceeded, "",
			fmt.Sprintf("iteration budget of %d exhausted without a final answer", maxIterations), nil)
		state.NextToolCall = nil
		return state, nil
	}

	return Reason(ctx, state, chatModel)
}

// DispatchNode 执行推理器产出的工具请求，并就地消化可原样重发的失败。
// 超时与服务不可用在本节点内重试（后者带指数退避）；执行失败把错误注入
// 上下文后交还推理节点修正；不可恢复失败转入降级收束。
func DispatchNode(ctx context.Context, state AgentState, registry *Registry, corrector *Corrector) (AgentState, error) {
	req := state.NextToolCall
	if req == nil {
		return state, errors.New("dispatch node entered without a pending tool call")
	}
	if state.Attempts == nil {
		state.Attempts = make(map[string]int)
	}

	for {
		result, err := registry.Dispatch(ctx, *req)
		if err == nil {
			state = absorbToolResult(state, *req, result)
			state.NextToolCall = nil
			state.LastFailure = nil
			return state, nil
		}

		// 外层取消直接向上冒泡，不进入纠错
		if ctx.Err() != nil {
			return state, ctx.Err()
		}

		failure := AsToolError(req.Name, err)
		key := attemptKey(req.Name, failure.Kind)
		state.Attempts[key]++

		decision := corrector.Correct(failure, state.Attempts[key])
		if !decision.Retry {
			state.LastFailure = failure
			state.GiveUpReason = decision.Explanation
			state.NextToolCall = nil
			return state, nil
		}

		if decision.Target == TargetReason {
			// 把失败观察注入上下文，让模型看到错误后修正
			observation := ExecOutcome{Success: false, Error: decision.Explanation}
			content, mErr := json.Marshal(observation)
			if mErr != nil {
				content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, decision.Explanation))
			}
			state.Messages = append(state.Messages, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: req.ID,
				Content:    string(content),
			})
			state.NextToolCall = nil
			state.LastFailure = nil
			return state, nil
		}

		// TargetDispatch: 退避后原样重发
		if decision.Backoff > 0 {
			timer := time.NewTimer(decision.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return state, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// absorbToolResult 把工具结果追加为 Tool 消息并更新累积上下文。
// 可视化产物从消息中剥离存入状态，避免 base64 撑爆模型上下文。
func absorbToolResult(state AgentState, req ToolRequest, result string) AgentState {
	content := result

	switch req.Name {
	case PythonSandboxToolName:
		var outcome ExecOutcome
		if err := json.Unmarshal([]byte(result), &outcome); err == nil {
			state.CodeOutput = outcome.Stdout
			if len(outcome.Artifacts) > 0 {
				state.Artifacts = append(state.Artifacts, outcome.Artifacts...)
				outcome.ArtifactCount = len(outcome.Artifacts)
				outcome.Artifacts = nil
				if stripped, err := json.Marshal(outcome); err == nil {
					content = string(stripped)
				}
			}
		}
	case WebSearchToolName:
		var snippets []retrieval.Snippet
		if err := json.Unmarshal([]byte(result), &snippets); err == nil {
			for _, s := range snippets {
				state.DataContext = append(state.DataContext, fmt.Sprintf("%s (%s): %s", s.Title, s.URL, s.Content))
			}
		}
	}

	state.Messages = append(state.Messages, &schema.Message{
		Role:       schema.Tool,
		ToolCallID: req.ID,
		Content:    content,
	})
	return state
}

// FinalizeNode 在无法正常收束时合成降级回答。
// 降级回答只基于已累积的资料与输出，不再触发任何模型或工具调用。
func FinalizeNode(ctx context.Context, state AgentState) (AgentState, error) {
	if state.GiveUpReason == "" && state.LastFailure != nil {
		state.GiveUpReason = state.LastFailure.Error()
	}
	if state.GiveUpReason == "" {
		state.GiveUpReason = "run was finalized before reaching a final answer"
	}

	answer := degradedAnswer(state)
	state.Messages = append(state.Messages, schema.AssistantMessage(answer, nil))
	state.NextToolCall = nil
	state.Done = true
	state.Degraded = true
	return state, nil
}

func degradedAnswer(state AgentState) string {
	var b strings.Builder
	b.WriteString("很抱歉，本次研究未能完成完整分析。\n")
	b.WriteString(fmt.Sprintf("原因: %s\n", state.GiveUpReason))

	if len(state.DataContext) > 0 {
		b.WriteString("\n已获取的资料:\n")
		limit := len(state.DataContext)
		if limit > 5 {
			limit = 5
		}
		for i := 0; i < limit; i++ {
			b.WriteString("- ")
			b.WriteString(state.DataContext[i])
			b.WriteString("\n")
		}
	}
	if state.CodeOutput != "" {
		b.WriteString("\n已完成的计算输出:\n")
		b.WriteString(state.CodeOutput)
		b.WriteString("\n")
	}
	if len(state.DataContext) == 0 && state.CodeOutput == "" {
		b.WriteString("\n未能获取任何有效资料，建议换一种问法重试。\n")
	}
	return b.String()
}
