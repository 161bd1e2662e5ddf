package run

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/domain"
	"github.com/John-Robertt/ordersheet/internal/infra/cache"
	"github.com/John-Robertt/ordersheet/internal/logger"
	"github.com/John-Robertt/ordersheet/internal/match"
	"github.com/John-Robertt/ordersheet/internal/pricing"
	"github.com/John-Robertt/ordersheet/internal/provider"
)

type lookupOutcome struct {
	res      provider.Result
	attempts []provider.Attempt
}

// rowProcessor 持有一次运行内共享的依赖；memo 让重复的商品名只查询一次。
type rowProcessor struct {
	eff   config.EffectiveConfig
	reg   provider.Registry
	fetch provider.FetchFunc
	memo  *cache.Memo[lookupOutcome]
	log   *slog.Logger
}

// ProcessRows 并发处理 reqs，返回与 reqs 同序的 RowResult（每条都带 Line）。
//
// 任何查询失败都走降级策略，所以输出条数恒等于 len(reqs)。
// obs 可为 nil。
func ProcessRows(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, fetch provider.FetchFunc, reqs []domain.SearchRequest, obs Observer) ([]domain.RowResult, error) {
	memo, err := cache.NewMemo[lookupOutcome](cache.DefaultMemoSize)
	if err != nil {
		return nil, err
	}
	rp := &rowProcessor{eff: eff, reg: reg, fetch: fetch, memo: memo, log: logger.FromContext(ctx)}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(reqs) && len(reqs) > 0 {
		workers = len(reqs)
	}

	type done struct {
		idx int
		res domain.RowResult
		dur time.Duration
	}

	jobs := make(chan int)
	results := make(chan done, len(reqs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				started := time.Now()
				r := rp.one(ctx, reqs[idx])
				results <- done{idx: idx, res: r, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		for i := range reqs {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	// 结果按完成顺序到达，按下标放回原位即恢复输入顺序。
	out := make([]domain.RowResult, len(reqs))
	n := 0
	for d := range results {
		n++
		out[d.idx] = d.res
		if obs != nil {
			obs.OnRowDone(n, len(reqs), d.res, d.dur)
		}
	}
	return out, nil
}

func (rp *rowProcessor) one(ctx context.Context, req domain.SearchRequest) domain.RowResult {
	rr := domain.RowResult{
		Row:               req.Row,
		SearchTerm:        req.SearchTerm,
		ProviderRequested: rp.eff.Provider,
		Attempts:          []domain.ProviderAttempt{},
	}
	log := rp.log.With("row", req.Row, "term", req.SearchTerm)

	key := cache.NormTerm(req.SearchTerm)
	out, hit, err := rp.memo.Do(key, func() (lookupOutcome, error) {
		res, attempts, err := provider.LookupTrace(ctx, rp.reg, rp.eff.Provider, req.SearchTerm, rp.fetch)
		return lookupOutcome{res: res, attempts: attempts}, err
	})
	rr.Attempts = toAttempts(out.attempts)
	if hit {
		log.Debug("复用同名查询结果")
	}
	if err != nil {
		code := classify(err)
		if ctx.Err() != nil {
			// 取消导致的失败不代表该商品查不到，不能留给同名行复用。
			rp.memo.Forget(key)
			code = domain.ErrCodeCanceled
		}
		return rp.degrade(log, rr, req, code, err)
	}
	rr.ProviderUsed = out.res.Provider
	rr.Candidates = len(out.res.Candidates)
	rr.PageURL = out.res.PageURL

	best, err := match.SelectBestScored(req.SearchTerm, out.res.Candidates)
	if err != nil {
		return rp.degrade(log, rr, req, domain.ErrCodeNotFound, err)
	}
	if log.Enabled(ctx, slog.LevelDebug) {
		ranked := match.Rank(req.SearchTerm, out.res.Candidates)
		for i := 0; i < len(ranked) && i < 3; i++ {
			log.Debug("候选", "rank", i+1, "name", ranked[i].Candidate.DisplayName, "score", ranked[i].Score)
		}
	}

	line, err := pricing.Resolve(req, best.Candidate)
	if err != nil {
		// 站点数据不满足计算前置条件（例如最小起订量 <= 0）。
		return rp.degrade(log, rr, req, domain.ErrCodeInvalidInput, err)
	}
	rr.Status = domain.StatusResolved
	rr.Score = best.Score
	rr.Line = &line
	return rr
}

// degrade 按降级策略产出兜底行：名称保留搜索词，数量不调整，总价为 0。
func (rp *rowProcessor) degrade(log *slog.Logger, rr domain.RowResult, req domain.SearchRequest, code string, err error) domain.RowResult {
	line := pricing.Degraded(req)
	rr.Status = domain.StatusDegraded
	rr.ErrorCode = code
	rr.ErrorMsg = err.Error()
	rr.Score = 0
	rr.Line = &line
	log.Warn("查询失败，按原样输出", "error_code", code, "error", err)
	return rr
}

// classify 把查询链路的错误映射为稳定的 error_code。
func classify(err error) string {
	switch {
	case domain.IsNotFound(err):
		return domain.ErrCodeNotFound
	case domain.IsInvalidInput(err):
		return domain.ErrCodeInvalidInput
	}
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Stage == "parse" {
		return domain.ErrCodeParseFailed
	}
	return domain.ErrCodeLookupFailed
}

func toAttempts(in []provider.Attempt) []domain.ProviderAttempt {
	out := make([]domain.ProviderAttempt, 0, len(in))
	for _, a := range in {
		pa := domain.ProviderAttempt{Provider: a.Provider, Stage: a.Stage}
		if a.Err != nil {
			pa.ErrorCode = classify(a.Err)
			if a.Stage == "parse" && pa.ErrorCode == domain.ErrCodeLookupFailed {
				pa.ErrorCode = domain.ErrCodeParseFailed
			}
			pa.ErrorMsg = a.Err.Error()
		}
		out = append(out, pa)
	}
	return out
}
