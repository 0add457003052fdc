/**
 * internal/annotations/annotations.go
 * 注解聚合
 *
 * 功能：
 * - 将多个 JSON 片段（清单声明的注解文件、雪碧图布局）合并为一个文档
 * - 记录所有来源文件，输出文件的修改时间为来源中的最大值
 * - 紧凑 JSON 输出（键有序），内容和修改时间都未变时跳过写入
 *
 * 合并策略：
 *   两边都是对象时做浅合并，同名内层键后写入者覆盖；
 *   其他情况新值直接替换旧值。
 */

package annotations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"sitebuild/internal/mtime"
	"sitebuild/internal/utils"
)

// SpritesKey 雪碧图布局的保留键
const SpritesKey = "sprites"

// Annotations 注解累加器
type Annotations struct {
	values  map[string]any
	sources []string
}

// New 创建空的注解累加器
func New() *Annotations {
	return &Annotations{values: make(map[string]any)}
}

// Merge 合并两个注解值（浅合并，后者优先）
func Merge(existing, incoming any) any {
	old, okOld := existing.(map[string]any)
	next, okNew := incoming.(map[string]any)
	if !okOld || !okNew {
		return incoming
	}

	merged := make(map[string]any, len(old)+len(next))
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range next {
		merged[k] = v
	}
	return merged
}

// Add 合并一个值到 key，并记录其来源文件
// 值先被规整为通用 JSON 结构，以便合并时统一按对象处理
func (a *Annotations) Add(key string, value any, sources ...string) error {
	generic, err := normalize(value)
	if err != nil {
		return fmt.Errorf("annotation %q: %w", key, err)
	}

	if existing, ok := a.values[key]; ok {
		generic = Merge(existing, generic)
	}
	a.values[key] = generic
	a.sources = append(a.sources, sources...)
	return nil
}

// Read 读取 JSON 文件并合并到 key
func (a *Annotations) Read(key, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read annotation %q: %w", key, err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("annotation %q in %s is not valid JSON: %w", key, file, err)
	}
	return a.Add(key, value, file)
}

// Len 顶层键数量
func (a *Annotations) Len() int {
	return len(a.values)
}

// Get 获取 key 当前的值
func (a *Annotations) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Sources 所有来源文件
func (a *Annotations) Sources() []string {
	return a.sources
}

// MTime 来源文件中最大的修改时间
func (a *Annotations) MTime() int64 {
	return mtime.Max(a.sources...)
}

// Bytes 紧凑 JSON（对象键按字典序）
func (a *Annotations) Bytes() ([]byte, error) {
	return json.Marshal(a.values)
}

// Write 写出注解文件，返回是否实际写入
func (a *Annotations) Write(path string) (bool, error) {
	data, err := a.Bytes()
	if err != nil {
		return false, fmt.Errorf("failed to encode annotations: %w", err)
	}

	t := a.MTime()
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) && mtime.Of(path) == t {
		return false, nil
	}

	if err := utils.WriteFile(path, data); err != nil {
		return false, err
	}
	if err := mtime.Stamp(path, t); err != nil {
		return false, err
	}
	return true, nil
}

// normalize 转为 encoding/json 的通用结构（map[string]any、[]any 等）
func normalize(value any) (any, error) {
	switch value.(type) {
	case nil, bool, float64, string, []any, map[string]any:
		return value, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}
