package ui

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveArtifacts 将 base64 编码的可视化产物写入目录，返回写出的文件路径。
// 单个产物解码失败只跳过该产物，不中断其余写出。
func SaveArtifacts(dir string, artifacts []string) ([]string, error) {
	if dir == "" || len(artifacts) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")
	var saved []string
	for i, a := range artifacts {
		data, err := base64.StdEncoding.DecodeString(a)
		if err != nil {
			continue
		}
		name := fmt.Sprintf("chart-%s-%d.png", stamp, i+1)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return saved, fmt.Errorf("write artifact %s: %w", path, err)
		}
		saved = append(saved, path)
	}
	return saved, nil
}
