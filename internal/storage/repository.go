package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultLimit = 200
	maxLimit     = 5000
)

// AuditQuery 为工具审计记录的查询条件。
type AuditQuery struct {
	// TraceID/ToolName/Status 为可选过滤条件，均为精确匹配。
	TraceID  string
	ToolName string
	Status   string
	// From/To 过滤 StartedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按 StartedAt 倒序返回（优先返回最新记录）。
	Desc bool
}

// AuditUpdate 为工具审计记录的部分更新；nil 字段不更新。
type AuditUpdate struct {
	Status       *string
	ResultJSON   *string
	ErrorKind    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (s *Storage) InsertToolAuditRecord(ctx context.Context, record *ToolAuditRecord) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if record == nil {
		return errors.New("record is nil")
	}
	now := time.Now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert tool audit record: %w", err)
	}
	return nil
}

func (s *Storage) UpdateToolAuditRecord(ctx context.Context, id uint64, update AuditUpdate) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if id == 0 {
		return errors.New("record id is required")
	}

	fields := map[string]interface{}{}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.ResultJSON != nil {
		fields["result_json"] = *update.ResultJSON
	}
	if update.ErrorKind != nil {
		fields["error_kind"] = *update.ErrorKind
	}
	if update.ErrorMessage != nil {
		fields["error_message"] = *update.ErrorMessage
	}
	if update.FinishedAt != nil {
		fields["finished_at"] = *update.FinishedAt
	}
	if len(fields) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&ToolAuditRecord{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("update tool audit record: %w", err)
	}
	return nil
}

func (s *Storage) QueryToolAuditRecords(ctx context.Context, q AuditQuery) ([]ToolAuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&ToolAuditRecord{})
	if q.TraceID != "" {
		db = db.Where("trace_id = ?", q.TraceID)
	}
	if q.ToolName != "" {
		db = db.Where("tool_name = ?", q.ToolName)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.From != nil {
		db = db.Where("started_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("started_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("started_at DESC")
	} else {
		db = db.Order("started_at ASC")
	}
	db = db.Limit(limit)

	var out []ToolAuditRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query tool audit records: %w", err)
	}
	return out, nil
}

func (s *Storage) CountToolAuditRecords(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&ToolAuditRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count tool audit records: %w", err)
	}
	return count, nil
}

func (s *Storage) DeleteToolAuditRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&ToolAuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete tool audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Storage) DeleteToolAuditRecordsKeepLatest(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	if keep <= 0 {
		return 0, errors.New("keep must be positive")
	}

	// 子查询找到第 keep 条（按 ID 倒序）之前的记录并删除。
	res := s.db.WithContext(ctx).Exec(`
		DELETE FROM tool_audit_records
		WHERE id NOT IN (
			SELECT id FROM tool_audit_records ORDER BY id DESC LIMIT ?
		)`, keep)
	if res.Error != nil {
		return 0, fmt.Errorf("delete tool audit records keep latest: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RunQuery 为提问记录的查询条件。
type RunQuery struct {
	TraceID  string
	Degraded *bool
	Limit    int
	Desc     bool
}

func (s *Storage) InsertRunRecord(ctx context.Context, record *RunRecord) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if record == nil {
		return errors.New("record is nil")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

func (s *Storage) QueryRunRecords(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&RunRecord{})
	if q.TraceID != "" {
		db = db.Where("trace_id = ?", q.TraceID)
	}
	if q.Degraded != nil {
		db = db.Where("degraded = ?", *q.Degraded)
	}
	if q.Desc {
		db = db.Order("created_at DESC")
	} else {
		db = db.Order("created_at ASC")
	}
	db = db.Limit(limit)

	var out []RunRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query run records: %w", err)
	}
	return out, nil
}

func (s *Storage) CountRunRecords(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&RunRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count run records: %w", err)
	}
	return count, nil
}

func (s *Storage) DeleteRunRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&RunRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete run records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
