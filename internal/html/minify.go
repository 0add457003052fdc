/**
 * internal/html/minify.go
 * HTML 压缩（去空白、注释），用于正式构建
 *
 * <script>、<pre>、<textarea> 的内容原样保留（空白有意义）
 */

package html

import (
	"regexp"
	"strconv"
	"strings"
)

// HTML 压缩用正则（预编译，提高性能）
var (
	// 注释和需要原样保留的元素一起匹配，保证按出现顺序处理
	htmlVerbatimRe   = regexp.MustCompile(`(?is)<!--.*?-->|<script\b[^>]*>.*?</script\s*>|<pre\b[^>]*>.*?</pre\s*>|<textarea\b[^>]*>.*?</textarea\s*>`)
	htmlPlaceholder  = regexp.MustCompile(`<\x00([0-9]+)>`)
	htmlWhitespaceRe = regexp.MustCompile(`\s+`)
	htmlTagSpaceRe   = regexp.MustCompile(`>\s+<`)
)

// Minify 压缩 HTML（去空白、注释）
func Minify(html string) string {
	if html == "" {
		return ""
	}

	// 移除 HTML 注释，保留元素先换成占位标签
	var kept []string
	html = htmlVerbatimRe.ReplaceAllStringFunc(html, func(m string) string {
		if strings.HasPrefix(m, "<!--") {
			return ""
		}
		kept = append(kept, m)
		return "<\x00" + strconv.Itoa(len(kept)-1) + ">"
	})

	// 移除多余空白（保留单个空格）
	html = htmlWhitespaceRe.ReplaceAllString(html, " ")

	// 移除标签间的空白
	html = htmlTagSpaceRe.ReplaceAllString(html, "><")

	if len(kept) > 0 {
		html = htmlPlaceholder.ReplaceAllStringFunc(html, func(m string) string {
			i, _ := strconv.Atoi(htmlPlaceholder.FindStringSubmatch(m)[1])
			return kept[i]
		})
	}

	return strings.TrimSpace(html)
}
