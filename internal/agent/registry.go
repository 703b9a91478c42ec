package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Registry 维护名字到工具实现的映射，是所有工具调用的唯一入口。
// 未注册的工具名在进入任何实现之前就被拒绝。
type Registry struct {
	tools map[string]tool.InvokableTool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]tool.InvokableTool)}
}

// Register 注册一个工具；同名重复注册是编程错误。
func (r *Registry) Register(ctx context.Context, t tool.InvokableTool) error {
	info, err := t.Info(ctx)
	if err != nil {
		return fmt.Errorf("get tool info failed: %w", err)
	}
	if info == nil || info.Name == "" {
		return fmt.Errorf("tool info has empty name")
	}
	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool %q already registered", info.Name)
	}
	r.tools[info.Name] = t
	return nil
}

// Tools 返回已注册的工具列表（按名字排序，保证绑定顺序稳定）。
func (r *Registry) Tools() []tool.InvokableTool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]tool.InvokableTool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// ToolInfos 返回绑定到 ChatModel 所需的工具描述。
func (r *Registry) ToolInfos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.Tools() {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info failed: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Dispatch 校验并执行一次工具请求。
// 校验顺序固定：先查名字，再查参数，未通过校验的请求不会触达工具实现。
// 失败以 *ToolError 返回，分类供上层自纠错策略使用。
func (r *Registry) Dispatch(ctx context.Context, req ToolRequest) (string, error) {
	if req.Name == "" {
		return "", NewToolError(KindMalformedToolRequest, "", "tool request has empty name", nil)
	}

	t, ok := r.tools[req.Name]
	if !ok {
		return "", NewToolError(KindUnknownTool, req.Name, fmt.Sprintf("tool %q is not registered", req.Name), nil)
	}

	args := req.ArgumentsJSON
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return "", NewToolError(KindMalformedToolRequest, req.Name, "tool arguments are not valid JSON", nil)
	}

	result, err := t.InvokableRun(ctx, args)
	if err != nil {
		return "", AsToolError(req.Name, err)
	}
	return result, nil
}
