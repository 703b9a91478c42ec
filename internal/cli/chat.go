package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wwwzy/FinSight/internal/tui"
	"github.com/wwwzy/FinSight/internal/ui"
)

var chatUIKind string
var chatArtifactDir string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式研究模式",
	Long: `进入一个简单的控制台 REPL，连续提交金融研究问题。
Agent 会在必要时自主调用检索与代码沙箱工具。`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		var uiImpl ui.ChatUI
		switch chatUIKind {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUIKind)
		}

		return uiImpl.Run(ctx, rt.graph, ui.DefaultInitialState(), ui.ChatOptions{
			ArtifactDir: chatArtifactDir,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUIKind, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatArtifactDir, "artifact-dir", "artifacts", "图表落盘目录，置空则不落盘")
}
