package agent

import (
	"github.com/cloudwego/eino/schema"
)

// ToolRequest 是推理器产出的一次结构化工具调用请求。
type ToolRequest struct {
	// ID 为模型侧的 tool call id，回填到工具结果消息上。
	ID string `json:"id,omitempty"`
	// Name 为目标工具名。
	Name string `json:"name"`
	// ArgumentsJSON 为参数的 JSON 对象文本（已经过规整，保证合法）。
	ArgumentsJSON string `json:"arguments_json"`
}

// ExecOutcome 是代码执行工具返回给推理器的结构化结果。
type ExecOutcome struct {
	Success   bool     `json:"success"`
	Stdout    string   `json:"stdout,omitempty"`
	Stderr    string   `json:"stderr,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
	// ArtifactCount 在产物被剥离出上下文后告知模型产物数量。
	ArtifactCount int    `json:"artifact_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// AgentState 定义了在 Graph 中流转的状态
type AgentState struct {
	// 历史对话消息 (包含 User, System, AI, Tool 消息)
	Messages []*schema.Message `json:"messages"`

	// 用户本轮的研究问题
	UserQuery string `json:"user_query"`

	// Iterations 为已经完成的推理轮数；每进入一次推理节点加一。
	Iterations int `json:"iterations"`

	// DataContext 为检索工具累积的资料片段（供降级回答兜底使用）。
	DataContext []string `json:"data_context,omitempty"`
	// CodeOutput 为最近一次成功代码执行的标准输出。
	CodeOutput string `json:"code_output,omitempty"`
	// Artifacts 为累积的可视化产物（base64 编码）。
	Artifacts []string `json:"artifacts,omitempty"`

	// 显式信号字段，用于 Graph 分支判断
	NextToolCall *ToolRequest `json:"next_tool_call,omitempty"` // 本轮推理产出的工具调用
	LastFailure  *ToolError   `json:"last_failure,omitempty"`   // 最近一次未消化的工具失败

	// Attempts 为各失败谱系的累计次数，key 为 "工具名/错误分类"。
	Attempts map[string]int `json:"attempts,omitempty"`

	// Done 表示运行已收束（正常回答或降级回答都算）。
	Done bool `json:"done"`
	// Degraded 表示最终回答是降级产物（预算耗尽或不可恢复失败）。
	Degraded bool `json:"degraded"`
	// GiveUpReason 记录降级原因，为空表示正常收束。
	GiveUpReason string `json:"give_up_reason,omitempty"`
}

// NormalizeState 将任意（可能全空）的初始状态规整为可安全流转的形态。
// 调用方传入零值 AgentState 加 UserQuery 即可。
func NormalizeState(state AgentState) AgentState {
	if state.Messages == nil {
		state.Messages = make([]*schema.Message, 0)
	}
	if state.Attempts == nil {
		state.Attempts = make(map[string]int)
	}
	state.NextToolCall = nil
	state.LastFailure = nil
	state.Done = false
	state.Degraded = false
	state.GiveUpReason = ""
	return state
}

// FinalAnswer 返回最终的助手回答；尚未收束时返回空串。
func (s AgentState) FinalAnswer() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m != nil && m.Role == schema.Assistant && len(m.ToolCalls) == 0 && m.Content != "" {
			return m.Content
		}
	}
	return ""
}

func attemptKey(toolName string, kind ErrorKind) string {
	return toolName + "/" + string(kind)
}
