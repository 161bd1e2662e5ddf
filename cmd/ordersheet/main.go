package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/John-Robertt/ordersheet/internal/app/run"
	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/domain"
	"github.com/John-Robertt/ordersheet/internal/logger"
	"github.com/John-Robertt/ordersheet/internal/provider"
	"github.com/John-Robertt/ordersheet/internal/provider/golomax"
)

func main() {
	// .env 可选：只补充 ORDERSHEET_* 等环境变量，不覆盖已有值。
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch args[0] {
	case "run":
		code = runCmd(ctx, args[1:])
	case "serve":
		code = serveCmd(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		code = 2
	}
	if code != 0 {
		stop()
		os.Exit(code)
	}
}

func runCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	tty := isTTY(os.Stdout)
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Input:       ra.Input,
		Output:      ra.Output,
		Provider:    ra.Provider,
		ProviderSet: ra.ProviderSet,
		Cache:       ra.Cache,
		CacheSet:    ra.CacheSet,
	})
	if err != nil {
		emitReport(os.Stdout, os.Stderr, tty, reportForConfigError(ra, config.Code(err), err))
		return 1
	}

	reg, err := newRegistry(eff)
	if err != nil {
		emitReport(os.Stdout, os.Stderr, tty, reportForConfigError(ra, domain.ErrCodeConfigInvalid, err))
		return 1
	}

	progressW, interactive := pickProgressWriter()
	log := logger.New(os.Stderr, runLogConfig(eff, interactive))
	ctx = logger.WithLogger(ctx, log)

	var obs run.Observer
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Stop()
		obs = ui
	}

	rr, _ := run.Execute(ctx, eff, reg, obs)

	emitReport(os.Stdout, os.Stderr, tty, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	return exitCode(rr)
}

// newRegistry 注册所有目录 provider，并提前确认 eff.Provider 可用。
func newRegistry(eff config.EffectiveConfig) (provider.Registry, error) {
	reg, err := provider.NewRegistry(
		golomax.Provider{BaseURL: eff.BaseURL},
	)
	if err != nil {
		return provider.Registry{}, err
	}
	if _, err := reg.Order(eff.Provider); err != nil {
		return provider.Registry{}, err
	}
	return reg, nil
}

// runLogConfig：交互终端下进度行已逐行说明降级原因，默认级别的日志只保留 error，
// 避免与进度行交错；显式配置的 log.level 照常生效。
func runLogConfig(eff config.EffectiveConfig, interactive bool) logger.Config {
	cfg := logger.Config{Level: eff.LogLevel, Format: eff.LogFormat}
	if interactive && (eff.LogLevel == "" || eff.LogLevel == config.DefaultLogLevel) {
		cfg.Level = "error"
	}
	return cfg
}

// exitCode：全部解析成功为 0；有降级、跳过或整体失败为 1。
func exitCode(rr domain.RunReport) int {
	s := rr.Summary
	if s.Failed == 0 && s.Degraded == 0 && s.Skipped == 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Input  string
	Output string

	Provider    string
	ProviderSet bool

	Cache    string
	CacheSet bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	// value 同时支持 "--flag v" 与 "--flag=v"。
	value := func(i *int, a, name string) (string, bool, error) {
		if a == name {
			if *i+1 >= len(args) {
				return "", true, fmt.Errorf("%s 需要一个值", name)
			}
			*i++
			return args[*i], true, nil
		}
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"="), true, nil
		}
		return "", false, nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]

		if v, ok, err := value(&i, a, "--out"); ok {
			if err != nil {
				return runArgs{}, err
			}
			if strings.TrimSpace(v) == "" {
				return runArgs{}, fmt.Errorf("--out 不能为空")
			}
			ra.Output = v
			continue
		}
		if v, ok, err := value(&i, a, "--provider"); ok {
			if err != nil {
				return runArgs{}, err
			}
			if strings.TrimSpace(v) == "" {
				return runArgs{}, fmt.Errorf("--provider 不能为空")
			}
			ra.Provider, ra.ProviderSet = v, true
			continue
		}
		if v, ok, err := value(&i, a, "--cache"); ok {
			if err != nil {
				return runArgs{}, err
			}
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "off", "record", "replay":
			default:
				return runArgs{}, fmt.Errorf("--cache 只能是 off、record 或 replay，实际是 %q", v)
			}
			ra.Cache, ra.CacheSet = v, true
			continue
		}

		switch {
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		case ra.Input != "":
			return runArgs{}, fmt.Errorf("重复的输入文件：%q 与 %q", ra.Input, a)
		default:
			ra.Input = a
		}
	}
	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ordersheet run [input.csv] [--out output.csv] [--provider golomax] [--cache off|record|replay]
  ordersheet serve [--addr :8080]

命令：
  run    读取订货表，查询目录并定价，写出结果表
  serve  以 HTTP 方式提供同样的能力（POST /v1/order-sheets）

使用 "ordersheet run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ordersheet run [input.csv] [--out output.csv] [--provider golomax] [--cache off|record|replay]

参数：
  input.csv   输入表（Cantidad, Nombre）；未指定则读取 ordersheet.yaml 中的 input
  --out       输出表路径（默认与输入同目录的 output.csv）
  --provider  首选目录 provider（默认 golomax）
  --cache     搜索页快照：off 不使用；record 抓取并保存；replay 只用快照不联网
  -h, --help  显示帮助
`)
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：resolved=%d degraded=%d skipped=%d failed=%d",
		rr.Summary.Resolved, rr.Summary.Degraded, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

// emitReport 按 stdout 是否为终端决定输出形态：
// - 终端：stdout 打摘要，问题行打到 stderr
// - 非终端：stdout 只输出一个 RunReport JSON，摘要走 stderr
func emitReport(stdout, stderr io.Writer, tty bool, rr domain.RunReport) {
	if tty {
		fmt.Fprintln(stdout, summaryLine(rr))
		for _, it := range rr.Rows {
			if it.Status == domain.StatusResolved {
				continue
			}
			key := fmt.Sprintf("row %d %q", it.Row, it.SearchTerm)
			if it.Row == 0 {
				key = "<run>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func reportForConfigError(ra runArgs, code string, err error) domain.RunReport {
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	now := time.Now().UTC()
	rr := domain.RunReport{
		RunID:      logger.NewRunID(),
		Input:      ra.Input,
		Output:     ra.Output,
		StartedAt:  now,
		FinishedAt: now,
		Rows: []domain.RowResult{{
			ProviderRequested: ra.Provider,
			ErrorCode:         code,
			ErrorMsg:          err.Error(),
			Attempts:          []domain.ProviderAttempt{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度只在交互终端启用；默认走 stderr，不污染 stdout 的 JSON。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "output: %s\n", eff.Output)
	if eff.Cache != "off" {
		fmt.Fprintf(w, "cache: %s\n", filepath.Join(eff.CacheDir, "providers"))
	}
}
