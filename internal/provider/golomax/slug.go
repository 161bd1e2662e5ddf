package golomax

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugDropRE  = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
	slugSpaceRE = regexp.MustCompile(`\s+`)
)

// Slugify 生成详情链接中的 URL 片段：
// NFKD 分解后丢弃所有非 ASCII，只保留字母数字/空白/'-'，转小写，空白折叠为 '-'。
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}
	ascii = slugDropRE.ReplaceAllString(ascii, "")
	ascii = strings.ToLower(strings.TrimSpace(ascii))
	return slugSpaceRE.ReplaceAllString(ascii, "-")
}
