// Package match 实现“搜索词 -> 目录候选”的最佳匹配选择。
//
// 相似度采用最长匹配块（Ratcliff/Obershelp）算法族：ratio = 2*M / T。
// 为保证与历史输出逐字节一致，这里完整复现了经典 SequenceMatcher 的行为，
// 包括 b 侧索引、popular 元素的 autojunk 规则、块两端的扩展与左右递归。
// 不要替换成编辑距离类算法：排名与并列关系都会变化。
package match

import "strings"

// autojunkMinLen 是触发 popular 元素剔除的 b 长度下限。
const autojunkMinLen = 200

// Ratio 返回 a 与 b 忽略大小写后的相似度，范围 [0,1]。
// 两个空串视为完全相同（1.0）。
func Ratio(a, b string) float64 {
	m := newMatcher([]rune(strings.ToLower(a)), []rune(strings.ToLower(b)))
	return m.ratio()
}

type matcher struct {
	a, b []rune

	// b2j：b 中每个元素出现的位置（升序），已剔除 popular 元素。
	b2j     map[rune][]int
	popular map[rune]struct{}
}

func newMatcher(a, b []rune) *matcher {
	m := &matcher{a: a, b: b}
	m.indexB()
	return m
}

func (m *matcher) indexB() {
	b2j := make(map[rune][]int, len(m.b))
	for j, r := range m.b {
		b2j[r] = append(b2j[r], j)
	}

	m.popular = map[rune]struct{}{}
	n := len(m.b)
	if n >= autojunkMinLen {
		ntest := n/100 + 1
		for r, idxs := range b2j {
			if len(idxs) > ntest {
				m.popular[r] = struct{}{}
				delete(b2j, r)
			}
		}
	}
	m.b2j = b2j
}

func (m *matcher) ratio() float64 {
	total := len(m.a) + len(m.b)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(m.matches()) / float64(total)
}

// matches 返回所有匹配块长度之和。
func (m *matcher) matches() int {
	return m.sumBlocks(0, len(m.a), 0, len(m.b))
}

func (m *matcher) sumBlocks(alo, ahi, blo, bhi int) int {
	i, j, k := m.longestMatch(alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	sum := k
	if alo < i && blo < j {
		sum += m.sumBlocks(alo, i, blo, j)
	}
	if i+k < ahi && j+k < bhi {
		sum += m.sumBlocks(i+k, ahi, j+k, bhi)
	}
	return sum
}

// longestMatch 在 a[alo:ahi] 与 b[blo:bhi] 中找最长公共块。
// 多个等长块时取 a 中最早的，其次取 b 中最早的。
func (m *matcher) longestMatch(alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj, bestk = alo, blo, 0

	// j2len[j] = 以 a[i-1]、b[j] 结尾的匹配长度。
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}

	// popular 元素不在索引里，但仍可作为块的延伸部分。
	for besti > alo && bestj > blo && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestk = besti-1, bestj-1, bestk+1
	}
	for besti+bestk < ahi && bestj+bestk < bhi && m.a[besti+bestk] == m.b[bestj+bestk] {
		bestk++
	}
	return besti, bestj, bestk
}
