package janitor

import (
	"context"
	"errors"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/wwwzy/FinSight/internal/sandbox"
)

// Reaper 兜底回收带沙箱标签的残留容器。
// 正常情况下执行器在每次运行后自行删除容器；进程被杀或 Docker 操作失败时
// 可能留下孤儿容器，回收器周期性扫描并强制清理。
type Reaper struct {
	cfg ReaperConfig

	cli *client.Client
}

func NewReaper(cli *client.Client) (*Reaper, error) {
	if cli == nil {
		return nil, errors.New("docker client is required")
	}
	return &Reaper{cli: cli}, nil
}

func (r *Reaper) Run(ctx context.Context) error {
	if r == nil || r.cli == nil {
		return errors.New("reaper not initialized")
	}
	r.cfg = r.cfg.withDefaults()

	if err := r.runOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.runOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

func (r *Reaper) runOnce(ctx context.Context, now time.Time) error {
	f := filters.NewArgs()
	f.Add("label", sandbox.SandboxLabel)

	containers, err := r.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		r.cfg.OnError(err)
		return err
	}

	for _, c := range containers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stale, err := r.isStale(ctx, c, now)
		if err != nil {
			r.cfg.OnError(err)
			continue
		}
		if !stale {
			continue
		}
		if err := r.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			r.cfg.OnError(err)
		}
	}
	return nil
}

// isStale 判断容器是否超出宽限期。
// 已退出的容器按退出时间计算，仍在运行的按创建时间计算
// （运行中的沙箱自身带有执行超时，存活超过宽限期说明执行器已经不在了）。
func (r *Reaper) isStale(ctx context.Context, c container.Summary, now time.Time) (bool, error) {
	inspect, err := r.cli.ContainerInspect(ctx, c.ID)
	if err != nil {
		return false, err
	}

	if inspect.State != nil && inspect.State.Running {
		started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
		if err != nil {
			return false, err
		}
		return now.Sub(started) > r.cfg.GracePeriod, nil
	}

	if inspect.State != nil && inspect.State.FinishedAt != "" {
		finished, err := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt)
		if err == nil && finished.After(time.Unix(0, 0)) {
			return now.Sub(finished) > r.cfg.GracePeriod, nil
		}
	}

	// 创建后从未启动的容器按创建时间兜底
	created := time.Unix(c.Created, 0)
	return now.Sub(created) > r.cfg.GracePeriod, nil
}
