package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/FinSight/internal/storage"
)

const (
	auditTruncateLimit = 2048
)

// AuditedTool 是一个工具包装器，用于在工具执行前后记录审计日志
type AuditedTool struct {
	impl  tool.InvokableTool
	store *storage.Storage
}

// WrapWithAudit 将普通工具包装为带审计功能的工具
func WrapWithAudit(t tool.InvokableTool, store *storage.Storage) tool.InvokableTool {
	if store == nil {
		return t
	}
	return &AuditedTool{impl: t, store: store}
}

func (t *AuditedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.impl.Info(ctx)
}

func (t *AuditedTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	// 1. 获取工具信息（主要是工具名）
	info, err := t.impl.Info(ctx)
	toolName := "unknown"
	if err == nil && info != nil {
		toolName = info.Name
	}

	// 2. 准备审计记录
	traceID := GetTraceID(ctx)
	now := time.Now().UTC()
	record := &storage.ToolAuditRecord{
		TraceID:    traceID,
		ToolName:   toolName,
		ParamsJSON: truncate(argumentsInJSON, auditTruncateLimit),
		Status:     "running",
		StartedAt:  now,
	}

	// 3. 插入初始记录（Status=running）
	// 插入失败不阻断工具执行
	if err := t.store.InsertToolAuditRecord(ctx, record); err != nil {
		fmt.Printf("[WARN] Failed to insert audit record: %v\n", err)
	}

	// 4. 执行原始工具逻辑
	result, runErr := t.impl.InvokableRun(ctx, argumentsInJSON, opts...)

	// 5. 更新审计记录
	finishedAt := time.Now().UTC()
	status := "success"
	var errMsg *string
	var errKind *string
	var resultJSON *string

	if runErr != nil {
		status = "failed"
		e := truncate(runErr.Error(), auditTruncateLimit)
		errMsg = &e
		k := string(Classify(runErr))
		errKind = &k
	} else {
		r := truncate(result, auditTruncateLimit)
		resultJSON = &r
	}

	// 只有在 Insert 成功且有了 ID 后，才能 Update
	if record.ID != 0 {
		update := storage.AuditUpdate{
			Status:       &status,
			ResultJSON:   resultJSON,
			ErrorKind:    errKind,
			ErrorMessage: errMsg,
			FinishedAt:   &finishedAt,
		}
		if err := t.store.UpdateToolAuditRecord(ctx, record.ID, update); err != nil {
			fmt.Printf("[WARN] Failed to update audit record: %v\n", err)
		}
	}

	return result, runErr
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
