package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/wwwzy/FinSight/internal/agent"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, initial agent.AgentState, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	reader := bufio.NewReader(in)
	history := initial.Messages

	fmt.Fprintln(out, "进入 FinSight 研究模式。输入 exit/quit 退出。")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(out, "\n已退出。")
				return nil
			}
			return fmt.Errorf("读取输入失败: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		// 每次新提问都是一个独立的 run：全新信号状态，保留对话历史
		state := agent.NormalizeState(agent.AgentState{
			Messages:  history,
			UserQuery: line,
		})

		// 每次新用户查询生成一个 TraceID，串联该次 run 的全部工具调用
		traceID := uuid.New().String()
		runCtx := agent.WithTraceID(ctx, traceID)

		state, err = backend.Invoke(runCtx, state)
		if err != nil {
			return err
		}
		history = state.Messages

		if printed := printLastAssistant(out, state.Messages); !printed {
			fmt.Fprintln(out, "助手: (无最终回复)")
		}
		if state.Degraded {
			fmt.Fprintf(out, "(本次回答为降级结果: %s)\n", state.GiveUpReason)
		}

		if len(state.Artifacts) > 0 && opts.ArtifactDir != "" {
			saved, err := SaveArtifacts(opts.ArtifactDir, state.Artifacts)
			if err != nil {
				fmt.Fprintf(out, "保存图表失败: %v\n", err)
			}
			for _, p := range saved {
				fmt.Fprintf(out, "图表已保存: %s\n", p)
			}
		}
		fmt.Fprintln(out)
	}
}

func printLastAssistant(w io.Writer, messages []*schema.Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg == nil || msg.Role != schema.Assistant {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			fmt.Fprintln(w, "助手: (无文本输出)")
		} else {
			fmt.Fprintf(w, "助手: %s\n", content)
		}
		return true
	}
	return false
}
