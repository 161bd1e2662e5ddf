package match

import (
	"sort"
	"strings"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

// Scored 是带相似度的候选（只用于排序，不落盘）。
type Scored struct {
	Candidate domain.Candidate
	Score     float64
}

// Rank 计算每个候选与 term 的相似度，并按确定性全序返回新切片：
// 相似度降序；相同则按小写 DisplayName 字典序升序；再相同则保持输入顺序。
//
// 不修改 cands。
func Rank(term string, cands []domain.Candidate) []Scored {
	out := make([]Scored, len(cands))
	keys := make([]string, len(cands))
	for i, c := range cands {
		out[i] = Scored{Candidate: c, Score: Ratio(c.DisplayName, term)}
		keys[i] = strings.ToLower(c.DisplayName)
	}

	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool {
		a, b := idx[x], idx[y]
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return keys[a] < keys[b]
	})

	ranked := make([]Scored, len(idx))
	for i, k := range idx {
		ranked[i] = out[k]
	}
	return ranked
}

// SelectBest 返回与 term 最相似的候选。
// cands 为空时返回 *domain.NotFoundError。
func SelectBest(term string, cands []domain.Candidate) (domain.Candidate, error) {
	best, err := SelectBestScored(term, cands)
	if err != nil {
		return domain.Candidate{}, err
	}
	return best.Candidate, nil
}

// SelectBestScored 与 SelectBest 相同，但同时返回胜出者的相似度（用于报告）。
func SelectBestScored(term string, cands []domain.Candidate) (Scored, error) {
	if len(cands) == 0 {
		return Scored{}, &domain.NotFoundError{Term: term}
	}
	return Rank(term, cands)[0], nil
}
