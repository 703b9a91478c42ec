package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wwwzy/FinSight/internal/janitor"
	"github.com/wwwzy/FinSight/internal/sandbox"
	"github.com/wwwzy/FinSight/internal/storage"

	"github.com/spf13/cobra"
)

// startCmd 代表 start 命令
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 FinSight 后台维护服务",
	Long: `启动 FinSight 后台维护服务。
这将初始化数据库，连接到 Docker，周期性清理过期的审计数据并回收残留的沙箱容器。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 上下文用于优雅退出
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// 2. 初始化存储
		fmt.Println("正在初始化存储...")
		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		// 3. 检查 Docker 客户端
		fmt.Println("正在检查 Docker 连接...")
		cli, err := sandbox.GetClient()
		if err != nil {
			return fmt.Errorf("连接 docker 失败: %w", err)
		}

		// 4. 初始化维护管理器
		fmt.Println("正在初始化维护管理器...")
		mgr, err := janitor.NewManager(cfg.Janitor)
		if err != nil {
			return fmt.Errorf("创建维护管理器失败: %w", err)
		}

		// 5. 初始化并注入后台任务
		ret, err := janitor.NewRetentionCollector(store)
		if err != nil {
			return fmt.Errorf("创建 retention 任务失败: %w", err)
		}

		reaper, err := janitor.NewReaper(cli)
		if err != nil {
			return fmt.Errorf("创建沙箱回收任务失败: %w", err)
		}

		// 流式接口挂载任务
		mgr.WithRetention(ret).WithReaper(reaper)

		// 6. 启动管理器
		fmt.Println("正在启动维护服务...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动管理器失败: %w", err)
		}

		// 7. 等待信号
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		fmt.Println("FinSight 维护服务已启动。按 Ctrl+C 停止。")

		select {
		case sig := <-sigChan:
			fmt.Printf("收到信号: %s, 正在关闭...\n", sig)
		case <-ctx.Done():
			fmt.Println("上下文已取消, 正在关闭...")
		}

		// 8. 优雅停止
		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			return fmt.Errorf("管理器停止时发生错误: %w", err)
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
