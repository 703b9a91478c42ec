package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/containerd/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"go.uber.org/zap"
)

// EnsureImage 保证沙箱镜像在本地可用，缺失时自动拉取。
// 拉取输出仅用于日志，不返回给调用方。
func EnsureImage(ctx context.Context, ref string, platform string, logger *zap.Logger) error {
	cli, err := GetClient()
	if err != nil {
		return err
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("image ref is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	_, err = cli.ImageInspect(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	logger.Info("sandbox image not found locally, pulling", zap.String("image", ref))

	pullOpts := image.PullOptions{}
	if strings.TrimSpace(platform) != "" {
		pullOpts.Platform = strings.TrimSpace(platform)
	}

	reader, err := cli.ImagePull(ctx, ref, pullOpts)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to read image pull output: %w", err)
	}

	logger.Info("sandbox image ready", zap.String("image", ref))
	return nil
}
