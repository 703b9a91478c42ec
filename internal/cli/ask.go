package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wwwzy/FinSight/internal/agent"
	"github.com/wwwzy/FinSight/internal/storage"
	"github.com/wwwzy/FinSight/internal/ui"
)

var askArtifactDir string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "提交一个研究问题并等待完整回答",
	Long: `一次性模式：提交一个金融研究问题，Agent 自主完成检索、分析与作答后退出。
生成的图表可通过 --artifact-dir 落盘。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("问题不能为空")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		traceID := uuid.New().String()
		runCtx := agent.WithTraceID(ctx, traceID)

		state := agent.NormalizeState(agent.AgentState{UserQuery: question})

		started := time.Now()
		final, err := rt.graph.Invoke(runCtx, state)
		if err != nil {
			return fmt.Errorf("研究失败: %w", err)
		}
		elapsed := time.Since(started)

		answer := final.FinalAnswer()
		if answer == "" {
			answer = "(无最终回复)"
		}
		fmt.Println(answer)
		if final.Degraded {
			fmt.Printf("\n(本次回答为降级结果: %s)\n", final.GiveUpReason)
		}

		if len(final.Artifacts) > 0 && askArtifactDir != "" {
			saved, err := ui.SaveArtifacts(askArtifactDir, final.Artifacts)
			if err != nil {
				fmt.Printf("保存图表失败: %v\n", err)
			}
			for _, p := range saved {
				fmt.Printf("图表已保存: %s\n", p)
			}
		}

		// run 记录尽力而为，不影响命令结果
		if rt.store != nil {
			record := &storage.RunRecord{
				TraceID:       traceID,
				Question:      question,
				FinalAnswer:   answer,
				Degraded:      final.Degraded,
				Iterations:    final.Iterations,
				ArtifactCount: len(final.Artifacts),
				DurationMS:    elapsed.Milliseconds(),
				CreatedAt:     time.Now().UTC(),
			}
			if err := rt.store.InsertRunRecord(context.Background(), record); err != nil {
				fmt.Printf("[WARN] 保存 run 记录失败: %v\n", err)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askArtifactDir, "artifact-dir", "artifacts", "图表落盘目录，置空则不落盘")
}
