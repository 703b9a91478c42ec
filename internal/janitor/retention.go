package janitor

import (
	"context"
	"errors"
	"time"

	"github.com/wwwzy/FinSight/internal/storage"
)

type RetentionCollector struct {
	cfg RetentionConfig

	store *storage.Storage
}

func NewRetentionCollector(store *storage.Storage) (*RetentionCollector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &RetentionCollector{store: store}, nil
}

func (c *RetentionCollector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}
	c.cfg = c.cfg.withDefaults()

	if err := c.runOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.runOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

func (c *RetentionCollector) runOnce(ctx context.Context, now time.Time) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	auditCut := now.Add(-c.cfg.AuditKeep)
	if _, err := c.store.DeleteToolAuditRecordsBefore(ctx, auditCut); err != nil {
		c.cfg.OnError(err)
		return err
	}

	if c.cfg.AuditKeepLatest > 0 {
		if _, err := c.store.DeleteToolAuditRecordsKeepLatest(ctx, c.cfg.AuditKeepLatest); err != nil {
			c.cfg.OnError(err)
			return err
		}
	}

	runCut := now.Add(-c.cfg.RunKeep)
	if _, err := c.store.DeleteRunRecordsBefore(ctx, runCut); err != nil {
		c.cfg.OnError(err)
		return err
	}

	return nil
}
