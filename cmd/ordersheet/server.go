package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/John-Robertt/ordersheet/internal/app/run"
	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/domain"
	"github.com/John-Robertt/ordersheet/internal/logger"
	"github.com/John-Robertt/ordersheet/internal/pricing"
	"github.com/John-Robertt/ordersheet/internal/provider"
	"github.com/John-Robertt/ordersheet/internal/sheet"
)

const maxUploadBytes = 4 << 20

func serveCmd(ctx context.Context, args []string) int {
	addr := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case isHelp(a):
			fmt.Fprint(os.Stdout, "用法：\n  ordersheet serve [--addr :8080]\n")
			return 0
		case a == "--addr":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "参数错误：--addr 需要一个值")
				return 2
			}
			i++
			addr = args[i]
		case strings.HasPrefix(a, "--addr="):
			addr = strings.TrimPrefix(a, "--addr=")
		default:
			fmt.Fprintf(os.Stderr, "参数错误：未知参数 %q\n", a)
			return 2
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{InputOptional: true, Addr: addr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.New(os.Stderr, logger.Config{Level: eff.LogLevel, Format: eff.LogFormat})

	reg, err := newRegistry(eff)
	if err != nil {
		log.Error("初始化 provider 失败", "error", err)
		return 1
	}
	fetch, err := run.NewFetcher(eff, log)
	if err != nil {
		log.Error("初始化抓取失败", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:              eff.ServeAddr,
		Handler:           newServer(eff, reg, fetch, log).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("监听", "addr", eff.ServeAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("服务退出", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("关闭服务失败", "error", err)
		return 1
	}
	log.Info("已关闭")
	return 0
}

// server 把一次上传当成一次 run：同样的解析、查询、降级与输出列。
type server struct {
	eff   config.EffectiveConfig
	reg   provider.Registry
	fetch provider.FetchFunc
	log   *slog.Logger
}

func newServer(eff config.EffectiveConfig, reg provider.Registry, fetch provider.FetchFunc, log *slog.Logger) *server {
	if log == nil {
		log = logger.Discard()
	}
	return &server{eff: eff, reg: reg, fetch: fetch, log: log}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/order-sheets", s.handleOrderSheet)
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/healthz") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{ErrorCode: code, ErrorMsg: msg})
}

// handleOrderSheet 接收 CSV（原始 body 或 multipart 字段 file），返回定价后的 CSV。
// 可选 ?price_format=plain|es-AR 覆盖配置。
func (s *server) handleOrderSheet(w http.ResponseWriter, r *http.Request) {
	style := s.eff.PriceFormat
	if q := strings.TrimSpace(r.URL.Query().Get("price_format")); q != "" {
		if !pricing.ValidStyle(q) {
			writeError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, fmt.Sprintf("price_format 只能是 plain 或 es-AR，实际是 %q", q))
			return
		}
		style = q
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	body, closeBody, err := uploadBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
		return
	}
	defer closeBody()

	in, err := sheet.Read(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
		return
	}

	rr := domain.RunReport{RunID: logger.NewRunID(), StartedAt: time.Now().UTC()}
	ctx := logger.WithRunID(logger.WithLogger(r.Context(), s.log), rr.RunID)

	rows, err := run.ProcessSheet(ctx, s.eff, s.reg, s.fetch, in, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrCodeIOFailed, err.Error())
		return
	}
	rr.Rows = rows
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="output.csv"`)
	w.Header().Set("X-Run-Id", rr.RunID)
	w.Header().Set("X-Rows-Resolved", fmt.Sprint(rr.Summary.Resolved))
	w.Header().Set("X-Rows-Degraded", fmt.Sprint(rr.Summary.Degraded))
	w.Header().Set("X-Rows-Skipped", fmt.Sprint(rr.Summary.Skipped))
	if err := sheet.Write(w, rr.Lines(), style); err != nil {
		// 状态码已发出，只能记录。
		logger.FromContext(ctx).Error("写出响应失败", "error", err)
	}
}

// uploadBody 取出上传的 CSV：multipart 时读字段 file，否则直接用 body。
func uploadBody(r *http.Request) (io.Reader, func(), error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return r.Body, func() {}, nil
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("缺少 multipart 字段 file：%w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
