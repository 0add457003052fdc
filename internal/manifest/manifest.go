/**
 * internal/manifest/manifest.go
 * 编译清单（compilation.json）的强类型视图
 *
 * 功能：
 * - 严格解析清单：任何层级出现未知字段都视为错误
 * - 保留声明顺序（HTML 按顺序处理，打包源按顺序拼接）
 * - 加载时一次性校验所有引用关系，校验失败时不做任何文件操作
 *
 * 顶层字段（均可选）：
 *   sitemap, html, css, javascript, resources, annotations,
 *   image_size_classes, image_size_groups, images, sprites, archives
 */

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
)

// ====================  错误定义 ====================

// ErrInvalidSpec 清单格式或引用关系错误
var ErrInvalidSpec = errors.New("INVALID_COMPILATION_SPEC")

// ====================  常量定义 ====================

const (
	// LosslessQuality 质量 >= 100 表示无损
	LosslessQuality = 100
)

// ====================  原始结构 ====================

type rawSpec struct {
	Sitemap          *Sitemap                 `json:"sitemap"`
	HTML             Ordered[string]          `json:"html"`
	CSS              Ordered[StringList]      `json:"css"`
	JavaScript       Ordered[StringList]      `json:"javascript"`
	Resources        Ordered[string]          `json:"resources"`
	Annotations      Ordered[string]          `json:"annotations"`
	ImageSizeClasses Ordered[string]          `json:"image_size_classes"`
	ImageSizeGroups  Ordered[Ordered[string]] `json:"image_size_groups"`
	Images           Ordered[rawImage]        `json:"images"`
	Sprites          Ordered[StringList]      `json:"sprites"`
	Archives         Ordered[string]          `json:"archives"`
}

type rawImage struct {
	Dest               *string          `json:"dest"`
	SizeGroup          *string          `json:"size_group"`
	Sizes              *Ordered[string] `json:"sizes"`
	CompressionQuality *int             `json:"compression_quality"`
}

// ====================  公开类型 ====================

// Sitemap 站点地图
type Sitemap struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

// Mapping 源路径到目标路径
type Mapping struct {
	Source string
	Dest   string
}

// Bundle 命名打包产物及其有序源文件
type Bundle struct {
	Name    string
	Sources []string
}

// Annotation 注解键及其 JSON 源文件
type Annotation struct {
	Key    string
	Source string
}

// Image 图片描述
type Image struct {
	Source  string
	Dest    string // 为空时只作为雪碧图成员
	Group   *SizeGroup
	Quality int
}

// Standalone 是否单独输出
func (img *Image) Standalone() bool {
	return img.Dest != ""
}

// Lossless 是否无损编码
func (img *Image) Lossless() bool {
	return img.Quality >= LosslessQuality
}

// Classes 尺寸类列表
func (img *Image) Classes() []string {
	return img.Group.Classes()
}

// Size 尺寸类对应的目标尺寸
func (img *Image) Size(class string) (Size, bool) {
	return img.Group.Size(class)
}

// Sprite 雪碧图描述
type Sprite struct {
	Dest    string
	Members []*Image
}

// Classes 成员共有的尺寸类（校验保证所有成员一致）
func (s *Sprite) Classes() []string {
	return s.Members[0].Classes()
}

// Quality 成员中最高的编码质量
func (s *Sprite) Quality() int {
	q := 0
	for _, m := range s.Members {
		if m.Quality > q {
			q = m.Quality
		}
	}
	return q
}

// Sources 成员源文件
func (s *Sprite) Sources() []string {
	out := make([]string, len(s.Members))
	for i, m := range s.Members {
		out[i] = m.Source
	}
	return out
}

// Spec 编译清单
type Spec struct {
	Sitemap     *Sitemap
	HTML        []Mapping
	CSS         []Bundle
	JavaScript  []Bundle
	Resources   []Mapping
	Annotations []Annotation
	SizeClasses map[string]string
	SizeGroups  map[string]*SizeGroup
	Images      []*Image
	Sprites     []*Sprite
	Archives    []Mapping

	images map[string]*Image
}

// Image 按源路径查找图片
func (s *Spec) Image(source string) (*Image, bool) {
	img, ok := s.images[source]
	return img, ok
}

// ====================  加载 ====================

// Load 从文件加载清单
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Parse 解析并校验清单内容
func Parse(data []byte) (*Spec, error) {
	var raw rawSpec
	if err := decodeStrict(data, &raw); err != nil {
		if errors.Is(err, ErrInvalidSpec) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	spec := &Spec{
		Sitemap:     raw.Sitemap,
		SizeClasses: make(map[string]string),
		SizeGroups:  make(map[string]*SizeGroup),
		images:      make(map[string]*Image),
	}

	if spec.Sitemap != nil && (spec.Sitemap.Source == "" || spec.Sitemap.Dest == "") {
		return nil, fmt.Errorf("%w: sitemap requires source and dest", ErrInvalidSpec)
	}

	spec.HTML = mappings(raw.HTML, false)
	spec.Resources = mappings(raw.Resources, false)
	spec.Archives = mappings(raw.Archives, true)

	var err error
	if spec.CSS, err = bundles("css", raw.CSS); err != nil {
		return nil, err
	}
	if spec.JavaScript, err = bundles("javascript", raw.JavaScript); err != nil {
		return nil, err
	}

	for _, key := range raw.Annotations.Keys() {
		source, _ := raw.Annotations.Get(key)
		spec.Annotations = append(spec.Annotations, Annotation{Key: key, Source: source})
	}

	if err := spec.buildSizeGroups(raw); err != nil {
		return nil, err
	}
	if err := spec.buildImages(raw); err != nil {
		return nil, err
	}
	if err := spec.buildSprites(raw); err != nil {
		return nil, err
	}
	return spec, nil
}

// ====================  校验与构造 ====================

func (s *Spec) buildSizeGroups(raw rawSpec) error {
	for _, class := range raw.ImageSizeClasses.Keys() {
		if err := ValidateClassKey(class); err != nil {
			return err
		}
		name, _ := raw.ImageSizeClasses.Get(class)
		s.SizeClasses[class] = name
	}

	for _, name := range raw.ImageSizeGroups.Keys() {
		declared, _ := raw.ImageSizeGroups.Get(name)
		group, err := s.newGroup(name, declared)
		if err != nil {
			return err
		}
		s.SizeGroups[name] = group
	}
	return nil
}

// newGroup 构造尺寸组并检查尺寸类是否已声明
func (s *Spec) newGroup(name string, declared Ordered[string]) (*SizeGroup, error) {
	group, err := newSizeGroup(name, declared)
	if err != nil {
		return nil, fmt.Errorf("size group %q: %w", name, err)
	}
	if len(s.SizeClasses) == 0 {
		return group, nil
	}
	for _, class := range group.Classes() {
		if class == IdentityClass {
			continue
		}
		if _, ok := s.SizeClasses[class]; !ok {
			return nil, fmt.Errorf("%w: size group %q uses undeclared size class %q", ErrInvalidSpec, name, class)
		}
	}
	return group, nil
}

func (s *Spec) buildImages(raw rawSpec) error {
	for _, source := range raw.Images.Keys() {
		r, _ := raw.Images.Get(source)
		img := &Image{Source: source, Quality: LosslessQuality}

		if r.Dest != nil {
			img.Dest = stripImageExt(*r.Dest)
			if img.Dest == "" {
				return fmt.Errorf("%w: image %q has an empty dest", ErrInvalidSpec, source)
			}
		}

		if r.CompressionQuality != nil {
			if *r.CompressionQuality < 1 {
				return fmt.Errorf("%w: image %q has compression_quality %d", ErrInvalidSpec, source, *r.CompressionQuality)
			}
			img.Quality = *r.CompressionQuality
		}

		switch {
		case r.SizeGroup != nil && r.Sizes != nil:
			return fmt.Errorf("%w: image %q declares both size_group and sizes", ErrInvalidSpec, source)
		case r.SizeGroup != nil:
			group, ok := s.SizeGroups[*r.SizeGroup]
			if !ok {
				return fmt.Errorf("%w: image %q references unknown size group %q", ErrInvalidSpec, source, *r.SizeGroup)
			}
			img.Group = group
		case r.Sizes != nil:
			group, err := s.newGroup(source, *r.Sizes)
			if err != nil {
				return err
			}
			img.Group = group
		default:
			img.Group, _ = newSizeGroup(source, Ordered[string]{})
		}

		s.Images = append(s.Images, img)
		s.images[source] = img
	}
	return nil
}

func (s *Spec) buildSprites(raw rawSpec) error {
	for _, dest := range raw.Sprites.Keys() {
		members, _ := raw.Sprites.Get(dest)
		if len(members) == 0 {
			return fmt.Errorf("%w: sprite %q has no members", ErrInvalidSpec, dest)
		}

		sprite := &Sprite{Dest: stripImageExt(dest)}
		for _, source := range members {
			img, ok := s.images[source]
			if !ok {
				return fmt.Errorf("%w: sprite %q references unknown image %q", ErrInvalidSpec, dest, source)
			}
			sprite.Members = append(sprite.Members, img)
		}

		want := classSet(sprite.Members[0])
		for _, m := range sprite.Members[1:] {
			if got := classSet(m); got != want {
				return fmt.Errorf("%w: sprite %q members have differing size classes (%s vs %s)",
					ErrInvalidSpec, dest, want, got)
			}
		}

		s.Sprites = append(s.Sprites, sprite)
	}
	return nil
}

// ====================  辅助函数 ====================

func mappings(o Ordered[string], reversed bool) []Mapping {
	out := make([]Mapping, 0, o.Len())
	for _, key := range o.Keys() {
		value, _ := o.Get(key)
		if reversed {
			out = append(out, Mapping{Source: value, Dest: key})
		} else {
			out = append(out, Mapping{Source: key, Dest: value})
		}
	}
	return out
}

func bundles(kind string, o Ordered[StringList]) ([]Bundle, error) {
	out := make([]Bundle, 0, o.Len())
	for _, name := range o.Keys() {
		sources, _ := o.Get(name)
		if len(sources) == 0 {
			return nil, fmt.Errorf("%w: %s bundle %q has no sources", ErrInvalidSpec, kind, name)
		}
		out = append(out, Bundle{Name: name, Sources: sources})
	}
	return out, nil
}

// classSet 排序后的尺寸类集合，用于比较
func classSet(img *Image) string {
	classes := append([]string(nil), img.Classes()...)
	sort.Strings(classes)
	return strings.Join(classes, ",")
}

// stripImageExt 去掉目标路径上的图片扩展名
func stripImageExt(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".webp", ".jpg", ".jpeg", ".gif":
		return strings.TrimSuffix(p, path.Ext(p))
	}
	return p
}
