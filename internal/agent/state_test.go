package agent

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeState_AllNullInput(t *testing.T) {
	// 外部调用方可能传入全空 JSON 反序列化出来的状态
	var state AgentState
	require.NoError(t, json.Unmarshal([]byte(`{"messages":null,"attempts":null}`), &state))

	normalized := NormalizeState(state)
	assert.NotNil(t, normalized.Messages)
	assert.NotNil(t, normalized.Attempts)
	assert.Nil(t, normalized.NextToolCall)
	assert.Nil(t, normalized.LastFailure)
	assert.False(t, normalized.Done)
	assert.False(t, normalized.Degraded)
}

func TestNormalizeState_ClearsStaleSignals(t *testing.T) {
	state := AgentState{
		NextToolCall: &ToolRequest{Name: "web_search"},
		LastFailure:  NewToolError(KindTimeout, "web_search", "stale", nil),
		Done:         true,
		Degraded:     true,
		GiveUpReason: "stale reason",
	}
	normalized := NormalizeState(state)
	assert.Nil(t, normalized.NextToolCall)
	assert.Nil(t, normalized.LastFailure)
	assert.False(t, normalized.Done)
	assert.False(t, normalized.Degraded)
	assert.Empty(t, normalized.GiveUpReason)
}

func TestFinalAnswer(t *testing.T) {
	state := AgentState{Messages: []*schema.Message{
		schema.UserMessage("question"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1"}}),
		{Role: schema.Tool, ToolCallID: "c1", Content: "result"},
		schema.AssistantMessage("final answer", nil),
	}}
	assert.Equal(t, "final answer", state.FinalAnswer())

	empty := AgentState{}
	assert.Empty(t, empty.FinalAnswer())
}

func TestAttemptKey_SeparatesLineages(t *testing.T) {
	a := attemptKey("python_sandbox", KindExecutionFailed)
	b := attemptKey("python_sandbox", KindTimeout)
	c := attemptKey("web_search", KindExecutionFailed)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
