/**
 * internal/manifest/size.go
 * 图片尺寸类与尺寸规则
 *
 * 尺寸类键：W_H，W/H 为正整数或 u（不限制），u_u 为原始尺寸
 * 尺寸值：  "<W|auto> x <H|auto>"
 */

package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// ====================  常量定义 ====================

const (
	// IdentityClass 原始尺寸类，每个尺寸组都隐式包含
	IdentityClass = "u_u"

	unconstrained = "u"
	autoDimension = "auto"
)

// ====================  尺寸 ====================

// Size 目标尺寸，0 表示按原图宽高比自动计算
type Size struct {
	Width  int
	Height int
}

// ParseSize 解析 "<W|auto> x <H|auto>"
func ParseSize(value string) (Size, error) {
	parts := strings.SplitN(value, "x", 2)
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("%w: malformed size %q", ErrInvalidSpec, value)
	}

	w, err := parseDimension(strings.TrimSpace(parts[0]), autoDimension)
	if err != nil {
		return Size{}, fmt.Errorf("%w: malformed size %q", ErrInvalidSpec, value)
	}
	h, err := parseDimension(strings.TrimSpace(parts[1]), autoDimension)
	if err != nil {
		return Size{}, fmt.Errorf("%w: malformed size %q", ErrInvalidSpec, value)
	}
	return Size{Width: w, Height: h}, nil
}

// Scaled 根据原图尺寸计算目标尺寸
//
// 规则：
//   - 固定值直接使用
//   - 只固定一边时，另一边按原图比例截断计算：orig * fixedOther / origOther
//   - 两边都自动时保持原图尺寸
func (s Size) Scaled(origW, origH int) (int, int) {
	w, h := origW, origH

	switch {
	case s.Width > 0:
		w = s.Width
	case s.Height > 0 && origH > 0:
		w = origW * s.Height / origH
	}

	switch {
	case s.Height > 0:
		h = s.Height
	case s.Width > 0 && origW > 0:
		h = origH * s.Width / origW
	}

	return w, h
}

// IsIdentity 两边都自动
func (s Size) IsIdentity() bool {
	return s.Width == 0 && s.Height == 0
}

// String 还原为尺寸值格式
func (s Size) String() string {
	return formatDimension(s.Width, autoDimension) + " x " + formatDimension(s.Height, autoDimension)
}

// ====================  尺寸类 ====================

// ValidateClassKey 检查尺寸类键 W_H
func ValidateClassKey(key string) error {
	parts := strings.Split(key, "_")
	if len(parts) != 2 {
		return fmt.Errorf("%w: malformed size class %q", ErrInvalidSpec, key)
	}
	for _, p := range parts {
		if _, err := parseDimension(p, unconstrained); err != nil {
			return fmt.Errorf("%w: malformed size class %q", ErrInvalidSpec, key)
		}
	}
	return nil
}

// ====================  尺寸组 ====================

// SizeGroup 尺寸类键到目标尺寸的映射（保序，首项为原始尺寸类）
type SizeGroup struct {
	Name    string
	classes []string
	sizes   map[string]Size
}

// newSizeGroup 从声明构造尺寸组，补充原始尺寸类
func newSizeGroup(name string, declared Ordered[string]) (*SizeGroup, error) {
	g := &SizeGroup{
		Name:    name,
		classes: []string{IdentityClass},
		sizes:   map[string]Size{IdentityClass: {}},
	}

	for _, class := range declared.Keys() {
		if err := ValidateClassKey(class); err != nil {
			return nil, err
		}
		value, _ := declared.Get(class)
		size, err := ParseSize(value)
		if err != nil {
			return nil, err
		}
		if class != IdentityClass {
			g.classes = append(g.classes, class)
		}
		g.sizes[class] = size
	}
	return g, nil
}

// Classes 尺寸类列表（原始尺寸类在前，其余按声明顺序）
func (g *SizeGroup) Classes() []string {
	return g.classes
}

// Size 获取尺寸类对应的目标尺寸
func (g *SizeGroup) Size(class string) (Size, bool) {
	s, ok := g.sizes[class]
	return s, ok
}

// ====================  私有函数 ====================

func parseDimension(s, wildcard string) (int, error) {
	if s == wildcard {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid dimension %q", s)
	}
	return n, nil
}

func formatDimension(n int, wildcard string) string {
	if n == 0 {
		return wildcard
	}
	return strconv.Itoa(n)
}
