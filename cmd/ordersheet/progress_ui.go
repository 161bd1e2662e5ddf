package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/ordersheet/internal/app/run"
	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// - 只写到 stderr（或退化到 stdout），不影响非终端下的 JSON 输出
// - 长时间没有行完成时定期打印一行 keepalive
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers  int
	total    int
	done     int
	resolved int
	degraded int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] ordersheet run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	fmt.Fprintf(p.w, "  output: %s\n", eff.Output)
	fmt.Fprintf(p.w, "  provider: %s\n", eff.Provider)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  cache: %s\n", eff.Cache)
	fmt.Fprintf(p.w, "  price_format: %s\n", eff.PriceFormat)
	if strings.TrimSpace(eff.BaseURL) != "" {
		fmt.Fprintf(p.w, "  base_url: %s\n", truncate(eff.BaseURL, 120))
	}
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "read":
		note := ""
		if b, _ := fields["positional"].(bool); b {
			note = " (按前两列解析)"
		}
		fmt.Fprintf(p.w, "读取: rows=%d requests=%d skipped=%d%s (%s)\n",
			intField(fields, "rows"), intField(fields, "requests"), intField(fields, "skipped"), note, formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_rows")
		fmt.Fprintf(p.w, "执行: workers=%d total_rows=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "write":
		out, _ := fields["output"].(string)
		fmt.Fprintf(p.w, "\n写出: lines=%d -> %s (%s)\n", intField(fields, "lines"), out, formatShortDuration(dur))
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnRowDone(idx, total int, res domain.RowResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusResolved:
		p.resolved++
		name, sum := "", ""
		if res.Line != nil {
			name = res.Line.ResolvedName
			sum = res.Line.TotalPrice.StringFixed(2)
		}
		fmt.Fprintf(p.w, "[%d/%d] row %d OK %q -> %q score=%.2f total=%s%s (%s)\n",
			idx, p.total, res.Row, truncate(res.SearchTerm, 60), truncate(name, 60), res.Score, sum,
			formatFallbackNote(res), formatShortDuration(dur),
		)
	default:
		p.degraded++
		chain := formatAttemptChain(res.Attempts, 1)
		if chain != "" {
			chain = " attempts=" + chain
		}
		fmt.Fprintf(p.w, "[%d/%d] row %d DEGRADED %q %s: %s%s (%s)\n",
			idx, p.total, res.Row, truncate(res.SearchTerm, 60), res.ErrorCode, truncate(res.ErrorMsg, 160), chain,
			formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一行完成后停掉 ticker，避免结束后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Stop 停止 keepalive（运行中途失败时 OnRowDone 可能不会走到最后一行）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.done; remain < active {
						active = remain
					}
					fmt.Fprintf(p.w, "进度: done=%d/%d resolved=%d degraded=%d active=%d elapsed=%s\n",
						p.done, p.total, p.resolved, p.degraded, active, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按 rune 截断，避免切坏多字节字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// formatFallbackNote 只在实际使用的 provider 不是首选时说明首选为何失败。
func formatFallbackNote(res domain.RowResult) string {
	req := strings.ToLower(strings.TrimSpace(res.ProviderRequested))
	used := strings.ToLower(strings.TrimSpace(res.ProviderUsed))
	if req == "" || used == "" || req == used {
		return ""
	}
	for _, a := range res.Attempts {
		if strings.ToLower(strings.TrimSpace(a.Provider)) != req || strings.TrimSpace(a.ErrorCode) == "" {
			continue
		}
		msg := a.ErrorCode
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			msg += ": " + em
		}
		return " fallback(" + req + " " + truncate(msg, 90) + ")"
	}
	return " fallback(" + req + ")"
}

func formatAttemptChain(attempts []domain.ProviderAttempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Provider) + ":" + strings.TrimSpace(a.Stage)
		if ec := strings.TrimSpace(a.ErrorCode); ec != "" {
			s += ":" + ec
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
