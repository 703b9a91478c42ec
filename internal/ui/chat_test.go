package ui

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/FinSight/internal/agent"
)

type scriptedBackend struct {
	answer   string
	degraded bool
	invoked  int
}

func (b *scriptedBackend) Invoke(_ context.Context, state agent.AgentState, _ ...compose.Option) (agent.AgentState, error) {
	b.invoked++
	state.Messages = append(state.Messages, schema.UserMessage(state.UserQuery))
	state.Messages = append(state.Messages, schema.AssistantMessage(b.answer, nil))
	state.Done = true
	state.Degraded = b.degraded
	if b.degraded {
		state.GiveUpReason = "iteration budget exhausted"
	}
	return state, nil
}

func TestConsoleChat_PrintsAssistantReply(t *testing.T) {
	in := strings.NewReader("什么是市盈率\nexit\n")
	out := &bytes.Buffer{}

	backend := &scriptedBackend{answer: "市盈率是股价与每股收益之比。"}
	u := &ConsoleChatUI{In: in, Out: out}

	err := u.Run(context.Background(), backend, DefaultInitialState(), ChatOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.invoked)
	assert.Contains(t, out.String(), "助手: 市盈率是股价与每股收益之比。")
}

func TestConsoleChat_AnnotatesDegradedAnswers(t *testing.T) {
	in := strings.NewReader("analyze everything\nquit\n")
	out := &bytes.Buffer{}

	backend := &scriptedBackend{answer: "部分结果", degraded: true}
	u := &ConsoleChatUI{In: in, Out: out}

	err := u.Run(context.Background(), backend, DefaultInitialState(), ChatOptions{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "降级结果")
}

func TestSaveArtifacts(t *testing.T) {
	dir := t.TempDir()
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	saved, err := SaveArtifacts(dir, []string{payload, "!!!not-base64!!!"})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	data, err := os.ReadFile(saved[0])
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, ".png", filepath.Ext(saved[0]))
}

func TestSaveArtifacts_NoopWithoutDir(t *testing.T) {
	saved, err := SaveArtifacts("", []string{"aGk="})
	require.NoError(t, err)
	assert.Nil(t, saved)
}
