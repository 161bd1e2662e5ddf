package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

// FetchFunc 抽象“拿到某个 provider 的搜索页 HTML”的方式：直连站点，或从快照回放。
type FetchFunc func(ctx context.Context, p Provider, term string) (html []byte, pageURL string, err error)

// Direct 返回直连站点的 FetchFunc。
func Direct(c *http.Client) FetchFunc {
	return func(ctx context.Context, p Provider, term string) ([]byte, string, error) {
		return p.Fetch(ctx, term, c)
	}
}

// Attempt 记录一次 provider 尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" / "parse" / "ok"
	Err      error  // nil when Stage=="ok"
}

// Result 是一次成功查询的结果。
type Result struct {
	Candidates []domain.Candidate
	Provider   string
	PageURL    string
}

// Error 是 provider 阶段的可追溯错误。
// 上层据此把失败归类为 lookup_failed / parse_failed / not_found。
type Error struct {
	Provider string
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Lookup 按“requested -> 其余 provider”顺序查询 term 的候选商品。
func Lookup(ctx context.Context, reg Registry, requested, term string, fetch FetchFunc) (Result, error) {
	res, _, err := LookupTrace(ctx, reg, requested, term, fetch)
	return res, err
}

// LookupTrace 与 Lookup 相同，但额外返回尝试链路。
// 整条链都失败时返回 *domain.LookupError（包裹最后一个 *Error）。
func LookupTrace(ctx context.Context, reg Registry, requested, term string, fetch FetchFunc) (Result, []Attempt, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Result{}, nil, &domain.InvalidInputError{Field: "search_term", Reason: "不能为空"}
	}
	if fetch == nil {
		return Result{}, nil, errors.New("fetch 不能为空")
	}
	order, err := reg.Order(requested)
	if err != nil {
		return Result{}, nil, err
	}

	var (
		attempts []Attempt
		lastErr  error
	)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		p, _ := reg.Get(name)

		html, pageURL, ferr := fetch(ctx, p, term)
		if ferr != nil {
			lastErr = &Error{Provider: name, Stage: "fetch", Err: ferr}
			attempts = append(attempts, Attempt{Provider: name, Stage: "fetch", Err: ferr})
			continue
		}

		cands, perr := p.Parse(term, html, pageURL)
		if perr == nil && len(cands) == 0 {
			perr = &domain.NotFoundError{Term: term}
		}
		if perr != nil {
			lastErr = &Error{Provider: name, Stage: "parse", Err: perr}
			attempts = append(attempts, Attempt{Provider: name, Stage: "parse", Err: perr})
			continue
		}

		attempts = append(attempts, Attempt{Provider: name, Stage: "ok"})
		return Result{Candidates: cands, Provider: name, PageURL: pageURL}, attempts, nil
	}
	if lastErr == nil {
		lastErr = errors.New("无可用 provider")
	}
	return Result{}, attempts, &domain.LookupError{Term: term, Err: lastErr}
}
