package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// Reason 执行一次推理：把完整上下文交给 ChatModel，产出要么是一个
// 结构化工具请求，要么是最终回答。
// 不论产出是什么，助手消息都会追加到历史中，保证上下文完整。
func Reason(ctx context.Context, state AgentState, chatModel model.ToolCallingChatModel) (AgentState, error) {
	// 1. 准备模板变量
	// 这里的 key 必须与 NewChatTemplate 中的 MessagesPlaceholder 和变量名一致
	inputVars := map[string]any{
		"time":    time.Now().Format(time.RFC3339),
		"history": state.Messages,
	}

	// 2. 生成消息列表
	template := NewChatTemplate()
	messages, err := template.Format(ctx, inputVars)
	if err != nil {
		return state, fmt.Errorf("format chat template failed: %w", err)
	}

	// 3. 调用 ChatModel
	// 使用 Generate 而不是 Stream，因为需要完整的 ToolCalls 信息做路由决策
	aiMsg, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return state, fmt.Errorf("chat model generate failed: %w", err)
	}

	// 4. 更新状态
	state.Messages = append(state.Messages, aiMsg)
	state.NextToolCall = nil
	state.LastFailure = nil

	if len(aiMsg.ToolCalls) == 0 {
		// 没有工具调用即为最终回答
		state.Done = true
		return state, nil
	}

	// 5. 只取第一个工具调用（顺序执行，一轮一个动作）
	tc := aiMsg.ToolCalls[0]
	req := ToolRequest{
		ID:            tc.ID,
		Name:          tc.Function.Name,
		ArgumentsJSON: sanitizeArguments(tc.Function.Arguments),
	}

	if req.Name == "" {
		state.LastFailure = NewToolError(KindMalformedToolRequest, "", "model emitted a tool call without a name", nil)
		return state, nil
	}
	if !json.Valid([]byte(req.ArgumentsJSON)) {
		state.LastFailure = NewToolError(KindMalformedToolRequest, req.Name, "model emitted tool arguments that are not valid JSON", nil)
		return state, nil
	}

	state.NextToolCall = &req
	return state, nil
}

// sanitizeArguments 容错处理模型偶发输出的残缺参数。
// 空串、"null"、孤立的 "{" 都规整为空对象；其余原样保留交给 json.Valid 把关。
func sanitizeArguments(args string) string {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" || trimmed == "null" || trimmed == "{" {
		return "{}"
	}
	return trimmed
}
