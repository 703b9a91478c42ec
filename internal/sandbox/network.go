package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/containerd/errdefs"
	"github.com/docker/docker/api/types/network"
)

// EnsureNetwork 保证沙箱专用 bridge 网络存在，返回网络 ID。
// 专用网络把沙箱容器与宿主机上的其他容器隔离开，同时保留出网能力。
func EnsureNetwork(ctx context.Context, name string) (string, error) {
	cli, err := GetClient()
	if err != nil {
		return "", err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("network name is required")
	}

	inspect, err := cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return inspect.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("failed to inspect network %s: %w", name, err)
	}

	created, err := cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{SandboxLabel: "1"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return created.ID, nil
}
