/**
 * internal/manifest/ordered.go
 * 保序 JSON 对象
 *
 * 功能：
 * - 按声明顺序保存 JSON 对象的键
 * - 每个值都使用严格模式解码（拒绝未知字段）
 * - 拒绝重复键
 */

package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ordered 保序的 JSON 对象，值类型为 V
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

// Keys 按声明顺序返回所有键
func (o Ordered[V]) Keys() []string {
	return o.keys
}

// Get 获取键对应的值
func (o Ordered[V]) Get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Len 键数量
func (o Ordered[V]) Len() int {
	return len(o.keys)
}

// UnmarshalJSON 逐个 token 解码，记录键顺序
func (o *Ordered[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = Ordered[V]{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected an object, got %v", ErrInvalidSpec, tok)
	}

	o.keys = nil
	o.values = make(map[string]V)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		var value V
		if err := decodeStrict(raw, &value); err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		if _, dup := o.values[key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidSpec, key)
		}

		o.keys = append(o.keys, key)
		o.values[key] = value
	}

	// 读取结尾的 '}'
	_, err = dec.Token()
	return err
}

// StringList 字符串列表，也接受单个字符串
type StringList []string

// UnmarshalJSON 解码字符串或字符串数组
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: expected a string or a list of strings", ErrInvalidSpec)
	}
	*l = list
	return nil
}

// decodeStrict 严格解码（拒绝未知字段和多余内容）
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected trailing data", ErrInvalidSpec)
	}
	return nil
}
