package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sitebuild/internal/mtime"
	"sitebuild/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 记录请求并原样返回源码
type recorder struct {
	calls []Request
}

func (r *recorder) Compile(req Request) (string, error) {
	r.calls = append(r.calls, req)
	return req.Source, nil
}

func source(t *testing.T, dir, rel, content string, ts int64) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	require.NoError(t, mtime.Stamp(p, ts))
}

func TestBundleConcatenatesInOrderAndStamps(t *testing.T) {
	dir := t.TempDir()
	source(t, dir, "js/b.js", "var b = 2;", 200)
	source(t, dir, "js/a.js", "var a = 1;\nvar a2 = 1;", 100)

	rec := &recorder{}
	b := &Bundler{SourceDir: dir, CacheDir: filepath.Join(dir, "build"), Compiler: rec}

	out, err := b.Bundle(Script, "game.js", []string{"js/b.js", "js/a.js"})
	require.NoError(t, err)
	assert.True(t, out.Written)
	assert.Equal(t, int64(200), out.MTime)
	assert.Equal(t, int64(200), mtime.Of(out.Path))

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "var b = 2;\nvar a = 1;\nvar a2 = 1;", string(data))

	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].TypeScript)
	file, line := rec.calls[0].Locate(3)
	assert.Equal(t, "js/a.js", file)
	assert.Equal(t, 2, line)

	out, err = b.Bundle(Script, "game.js", []string{"js/b.js", "js/a.js"})
	require.NoError(t, err)
	assert.False(t, out.Written)
	assert.Len(t, rec.calls, 1)

	source(t, dir, "js/a.js", "var a = 3;", 250)
	out, err = b.Bundle(Script, "game.js", []string{"js/b.js", "js/a.js"})
	require.NoError(t, err)
	assert.True(t, out.Written)
	assert.Equal(t, int64(250), mtime.Of(out.Path))
}

// unquoter 像 esbuild 的 CSS 输出一样去掉引号
type unquoter struct {
	calls int
}

func (u *unquoter) Compile(req Request) (string, error) {
	u.calls++
	return strings.ReplaceAll(req.Source, `"`, ""), nil
}

func TestBundleReplacesMarkersBeforeCompiling(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "compiled")
	source(t, dir, "css/base.css", `a { content: "x"; }`+"\n"+`b { background: url("/res/board.[ver].png"); }`, 100)
	source(t, target, "res/board.png", "png", 500)

	comp := &unquoter{}
	b := &Bundler{
		SourceDir: dir,
		CacheDir:  filepath.Join(dir, "build"),
		Compiler:  comp,
		Filter:    &version.Filter{Root: target, Release: true},
	}

	out, err := b.Bundle(Stylesheet, "style.css", []string{"css/base.css"})
	require.NoError(t, err)
	assert.True(t, out.Written)
	assert.Equal(t, int64(500), out.MTime)
	assert.Equal(t, int64(500), mtime.Of(out.Path))

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "url(/res/board.v500.png)")
	assert.Contains(t, string(data), "content: x")

	out, err = b.Bundle(Stylesheet, "style.css", []string{"css/base.css"})
	require.NoError(t, err)
	assert.False(t, out.Written)
	assert.Equal(t, 1, comp.calls)

	// 被引用文件变新：源文件没变也要重建
	source(t, target, "res/board.png", "png2", 600)
	out, err = b.Bundle(Stylesheet, "style.css", []string{"css/base.css"})
	require.NoError(t, err)
	assert.True(t, out.Written)
	data, err = os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "url(/res/board.v600.png)")
}

func TestBundleRaisedVersionFloorRebuilds(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "compiled")
	source(t, dir, "js/main.js", `var img = "/res/a.[ver].png";`, 100)
	source(t, target, "res/a.png", "png", 200)

	filter := &version.Filter{Root: target, Release: true}
	b := &Bundler{SourceDir: dir, CacheDir: filepath.Join(dir, "build"), Compiler: &recorder{}, Filter: filter}

	_, err := b.Bundle(Script, "main.js", []string{"js/main.js"})
	require.NoError(t, err)

	filter.Floor = 900
	out, err := b.Bundle(Script, "main.js", []string{"js/main.js"})
	require.NoError(t, err)
	assert.True(t, out.Written)
	assert.Equal(t, int64(900), out.MTime)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, `var img = "/res/a.v900.png";`, string(data))
}

func TestBundleMarkerErrorNamesBundle(t *testing.T) {
	dir := t.TempDir()
	source(t, dir, "js/main.js", `var img = "/res/missing.[ver].png";`, 100)

	b := &Bundler{
		SourceDir: dir,
		CacheDir:  filepath.Join(dir, "build"),
		Compiler:  &recorder{},
		Filter:    &version.Filter{Root: filepath.Join(dir, "compiled")},
	}

	_, err := b.Bundle(Script, "main.js", []string{"js/main.js"})
	assert.ErrorIs(t, err, version.ErrUnresolvedReference)
	assert.Contains(t, err.Error(), "main.js")
}

func TestEsbuildKeepsVersionedCSSURLPaths(t *testing.T) {
	for _, minify := range []bool{false, true} {
		code, err := Esbuild{}.Compile(Request{Kind: Stylesheet, Name: "style.css", Source: `a { background: url("/res/board.v5.png"); }`, Minify: minify})
		require.NoError(t, err)
		assert.Contains(t, code, "/res/board.v5.png")
	}
}

func TestBundleDetectsTypeScriptAndMissingSources(t *testing.T) {
	dir := t.TempDir()
	source(t, dir, "js/a.ts", "let a: number = 1;", 1)

	rec := &recorder{}
	b := &Bundler{SourceDir: dir, CacheDir: filepath.Join(dir, "build"), Compiler: rec, Minify: true}

	_, err := b.Bundle(Script, "a.js", []string{"js/a.ts"})
	require.NoError(t, err)
	assert.True(t, rec.calls[0].TypeScript)
	assert.True(t, rec.calls[0].Minify)

	_, err = b.Bundle(Script, "b.js", []string{"js/nope.js"})
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestEsbuildTranspilesTypeScript(t *testing.T) {
	code, err := Esbuild{}.Compile(Request{Kind: Script, Name: "a.js", Source: "let total: number = 1 + 2;", TypeScript: true})
	require.NoError(t, err)
	assert.NotContains(t, code, ": number")
	assert.Contains(t, code, "total")
}

func TestEsbuildMinifiesCSS(t *testing.T) {
	src := "body {\n  color: red;\n}\n\n.a  { margin: 0px; }\n"
	code, err := Esbuild{}.Compile(Request{Kind: Stylesheet, Name: "style.css", Source: src, Minify: true})
	require.NoError(t, err)
	assert.False(t, strings.Contains(code, "\n  "))
	assert.Contains(t, code, "color:red")
}

func TestEsbuildReportsCompileErrors(t *testing.T) {
	_, err := Esbuild{}.Compile(Request{Kind: Script, Name: "bad.js", Source: "var = ;"})
	assert.ErrorIs(t, err, ErrCompileFailed)
}
