package storage

import "time"

// ToolAuditRecord 记录一次工具调度（检索 / 代码执行）及其结果，用于审计、追溯与后续分析。
//
// 一条记录对应编排循环中的一次 dispatch（例如：web_search 查询、python_sandbox 执行）。
// 复杂入参/输出统一以 JSON 字符串存放并做截断，便于快速落地与版本演进。
type ToolAuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 用于串联一次提问的完整编排链路（一次 run 内的所有工具调用共享同一 TraceID）。
	TraceID string `gorm:"size:64;index"`
	// ToolName 为被调度的工具名（web_search / python_sandbox）。
	ToolName string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放工具入参（JSON 字符串，已截断）。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放工具输出摘要（JSON 字符串，已截断）。
	ResultJSON string `gorm:"type:text"`
	// Status 表示执行状态（running/success/failed），用于快速筛选与统计。
	Status string `gorm:"size:32;not null;index"`
	// ErrorKind 为失败时的错误分类（execution_failed/timeout/unavailable 等，可选）。
	ErrorKind string `gorm:"size:64;index"`
	// ErrorMessage 存放失败时的错误信息（可选，便于检索）。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 表示动作起止时间。统计耗时可用 FinishedAt-StartedAt。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为记录写入数据库的时间（与 StartedAt 含义不同），默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// RunRecord 记录一次完整的提问-回答调用（一次编排循环的生命周期）。
//
// 核心循环本身不跨请求持久化任何对话状态；该表是外围的运营记录，
// 便于回看提问历史、迭代次数分布与产物数量。
type RunRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 与该次 run 内的 ToolAuditRecord.TraceID 对应。
	TraceID string `gorm:"size:64;index"`
	// Question 为用户的原始提问。
	Question string `gorm:"type:text;not null"`
	// FinalAnswer 为最终回答（包括降级回答），已截断。
	FinalAnswer string `gorm:"type:text"`
	// Degraded 表示该次回答是否为降级结果（重试耗尽或迭代预算用完）。
	Degraded bool `gorm:"not null"`
	// Iterations 为本次循环的推理迭代次数。
	Iterations int `gorm:"not null"`
	// ArtifactCount 为本次收集到的图表产物数量。
	ArtifactCount int `gorm:"not null"`
	// DurationMS 为整次调用耗时（毫秒）。
	DurationMS int64 `gorm:"not null"`
	// CreatedAt 为记录写入数据库的时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}
