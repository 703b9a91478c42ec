package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/wwwzy/FinSight/internal/config"
)

// NewChatModel 初始化 Ark ChatModel
func NewChatModel(ctx context.Context, arkConfig config.ArkConfig) (*ark.ChatModel, error) {
	apiKey := arkConfig.APIKey
	modelID := arkConfig.ModelID
	baseURL := arkConfig.BaseURL

	if apiKey == "" || modelID == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}

	cfg := &ark.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelID,
		BaseURL: baseURL,
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return chatModel, nil
}
