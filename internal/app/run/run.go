package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/domain"
	"github.com/John-Robertt/ordersheet/internal/infra/fsx"
	"github.com/John-Robertt/ordersheet/internal/logger"
	"github.com/John-Robertt/ordersheet/internal/provider"
	"github.com/John-Robertt/ordersheet/internal/sheet"
)

// Execute 读取 eff.Input，逐行查询并定价，原子写出 eff.Output，返回报告与输出行。
//
// 单行失败不影响其他行：查询失败降级，输入无效的行跳过并告警。
// 整体性问题（读写失败、配置无效）记为 row=0 的合成条目。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, obs Observer) (domain.RunReport, []domain.OrderLine) {
	return ExecuteWith(ctx, eff, reg, nil, obs)
}

// ExecuteWith 与 Execute 相同，但允许注入取页方式；fetch 为 nil 时按配置组装。
func ExecuteWith(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, fetch provider.FetchFunc, obs Observer) (domain.RunReport, []domain.OrderLine) {
	rr := domain.RunReport{
		RunID:     logger.NewRunID(),
		Input:     eff.Input,
		Output:    eff.Output,
		StartedAt: time.Now().UTC(),
		Rows:      make([]domain.RowResult, 0, 64),
	}
	ctx = logger.WithRunID(ctx, rr.RunID)
	log := logger.FromContext(ctx)

	if obs != nil {
		obs.OnStart(eff)
	}

	fail := func(code, msg string) (domain.RunReport, []domain.OrderLine) {
		log.Error("运行失败", "error_code", code, "error", msg)
		rr.Rows = append(rr.Rows, syntheticFailed(code, msg))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, nil
	}

	if fetch == nil {
		f, err := NewFetcher(eff, log)
		if err != nil {
			return fail(domain.ErrCodeConfigInvalid, err.Error())
		}
		fetch = f
	}

	readStarted := time.Now()
	in, code, err := readInput(eff.Input)
	if err != nil {
		return fail(code, err.Error())
	}
	if obs != nil {
		obs.OnPhaseDone("read", map[string]any{
			"rows":       in.Rows(),
			"requests":   len(in.Requests),
			"skipped":    len(in.Issues),
			"positional": in.Positional,
		}, time.Since(readStarted))
	}

	rows, err := ProcessSheet(ctx, eff, reg, fetch, in, obs)
	if err != nil {
		return fail(domain.ErrCodeIOFailed, err.Error())
	}
	rr.Rows = append(rr.Rows, rows...)
	rr.Finalize()
	lines := rr.Lines()

	if err := ctx.Err(); err != nil {
		// 已取消：不写出不完整的表。
		return fail(domain.ErrCodeCanceled, fmt.Sprintf("运行被取消：%v", err))
	}

	writeStarted := time.Now()
	if err := writeOutput(eff.Output, lines, eff.PriceFormat); err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Sprintf("写出 %s 失败：%v", eff.Output, err))
	}
	if obs != nil {
		obs.OnPhaseDone("write", map[string]any{
			"lines":  len(lines),
			"output": eff.Output,
		}, time.Since(writeStarted))
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	log.Info("完成",
		"resolved", rr.Summary.Resolved,
		"degraded", rr.Summary.Degraded,
		"skipped", rr.Summary.Skipped,
		"output", eff.Output,
	)
	return rr, lines
}

// ProcessSheet 处理一张已解析的表：无效行记为 skipped 并告警，其余交给 ProcessRows。
// 返回的 RowResult 未排序；调用方 Finalize 后按行号排列。
func ProcessSheet(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, fetch provider.FetchFunc, in sheet.Input, obs Observer) ([]domain.RowResult, error) {
	log := logger.FromContext(ctx)
	out := make([]domain.RowResult, 0, in.Rows())
	for _, is := range in.Issues {
		log.Warn("跳过无效行", "row", is.Row, "term", is.Term, "raw", is.Raw, "error_code", is.ErrorCode, "error", is.Err)
		out = append(out, skippedRow(eff.Provider, is))
	}
	if in.Positional {
		log.Info("表头缺少 Cantidad/Nombre，按前两列解析")
	}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":    workers,
			"total_rows": len(in.Requests),
		}, 0)
	}

	rows, err := ProcessRows(ctx, eff, reg, fetch, in.Requests, obs)
	if err != nil {
		return nil, err
	}
	return append(out, rows...), nil
}

// readInput 区分打不开（io_failed）与表格本身不合法（invalid_input）。
func readInput(path string) (sheet.Input, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return sheet.Input{}, domain.ErrCodeIOFailed, err
	}
	defer f.Close()
	in, err := sheet.Read(f)
	if err != nil {
		return sheet.Input{}, domain.ErrCodeInvalidInput, fmt.Errorf("%s：%w", path, err)
	}
	return in, "", nil
}

func writeOutput(path string, lines []domain.OrderLine, priceFormat string) error {
	return fsx.WriteAtomicFunc(filepath.Dir(path), filepath.Base(path), func(w io.Writer) error {
		return sheet.Write(w, lines, priceFormat)
	})
}

func skippedRow(providerRequested string, is sheet.RowIssue) domain.RowResult {
	msg := ""
	if is.Err != nil {
		msg = is.Err.Error()
	}
	return domain.RowResult{
		Row:               is.Row,
		SearchTerm:        is.Term,
		ProviderRequested: providerRequested,
		Status:            domain.StatusSkipped,
		ErrorCode:         is.ErrorCode,
		ErrorMsg:          msg,
		Attempts:          []domain.ProviderAttempt{},
	}
}

func syntheticFailed(code, msg string) domain.RowResult {
	return domain.RowResult{
		Row:       0,
		ErrorCode: code,
		ErrorMsg:  msg,
		Attempts:  []domain.ProviderAttempt{},
	}
}
