package domain

import (
	"sort"
	"time"
)

const (
	StatusResolved = "resolved"
	StatusDegraded = "degraded"
	StatusSkipped  = "skipped"
)

const (
	ErrCodeLookupFailed       = "lookup_failed"
	ErrCodeNotFound           = "not_found"
	ErrCodeParseFailed        = "parse_failed"
	ErrCodeInvalidQuantity    = "invalid_quantity"
	ErrCodeEmptyName          = "empty_name"
	ErrCodeInvalidInput       = "invalid_input"
	ErrCodeIOFailed           = "io_failed"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingInput = "config_missing_input"
	ErrCodeCanceled           = "canceled"
)

// RunReport 是对外稳定输出（stdout JSON / HTTP）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Output string `json:"output"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Rows    []RowResult   `json:"rows"`
}

type ReportSummary struct {
	Resolved int `json:"resolved"`
	Degraded int `json:"degraded"`
	Skipped  int `json:"skipped"`
	// Failed 统计 row=0 的合成条目（配置错误、读写失败等整体性问题）。
	Failed int `json:"failed"`
}

// RowResult 描述一行输入的处理结果。
type RowResult struct {
	Row        int    `json:"row"`
	SearchTerm string `json:"search_term"`

	ProviderRequested string `json:"provider_requested"`
	ProviderUsed      string `json:"provider_used"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// Score 是胜出候选的相似度；降级/跳过时为 0。
	Score      float64 `json:"score"`
	Candidates int     `json:"candidates"`
	// PageURL 是产生候选的搜索页（回放时为 file:// 快照）。
	PageURL  string            `json:"page_url,omitempty"`
	Attempts []ProviderAttempt `json:"attempts"`
	Line     *OrderLine        `json:"line,omitempty"`
}

// ProviderAttempt 是 provider 回退链路中的一次尝试（用于解释降级原因）。
type ProviderAttempt struct {
	Provider  string `json:"provider"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) rows 按输入行号稳定排序；row==0 的合成条目排在最后
// 3) summary 由 rows 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i].Row, r.Rows[j].Row
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Rows {
		if it.Row == 0 {
			s.Failed++
			continue
		}
		switch it.Status {
		case StatusResolved:
			s.Resolved++
		case StatusDegraded:
			s.Degraded++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}

// Lines 返回按行号排序的输出行（跳过的行不产生 OrderLine）。
// 调用前应先 Finalize。
func (r *RunReport) Lines() []OrderLine {
	out := make([]OrderLine, 0, len(r.Rows))
	for _, it := range r.Rows {
		if it.Line != nil {
			out = append(out, *it.Line)
		}
	}
	return out
}
