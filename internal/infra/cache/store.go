package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/ordersheet/internal/infra/fsx"
	"github.com/John-Robertt/ordersheet/internal/provider"
)

// Mode 决定搜索页快照的使用方式。
type Mode string

const (
	ModeOff    Mode = "off"
	ModeRecord Mode = "record" // 联网抓取，并把 HTML 落盘
	ModeReplay Mode = "replay" // 只读快照，不联网
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeOff, nil
	case ModeOff, ModeRecord, ModeReplay:
		return m, nil
	default:
		return "", fmt.Errorf("非法 cache 模式：%q（可选 off/record/replay）", s)
	}
}

// MissError 表示 replay 模式下没有对应快照。
type MissError struct {
	Provider string
	Term     string
	Path     string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("快照缺失：provider=%s term=%q path=%s", e.Provider, e.Term, e.Path)
}

// Store 管理 <Root>/providers/<provider>/<key>.html 下的搜索页快照。
type Store struct {
	Root string
	Mode Mode

	// Logger 为空时静默；只用于记录快照写入失败（不影响本次查询结果）。
	Logger *slog.Logger
}

func New(root string, mode Mode) Store {
	root = strings.TrimSpace(root)
	if root == "" {
		root = ".ordersheet-cache"
	}
	return Store{Root: filepath.Clean(root), Mode: mode}
}

// SnapshotPath 返回 provider/term 对应的快照文件路径。
func (s Store) SnapshotPath(providerName, term string) (string, error) {
	p, err := cleanProvider(providerName)
	if err != nil {
		return "", err
	}
	key, err := snapshotKey(term)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "providers", p, key+".html"), nil
}

func (s Store) Read(providerName, term string) ([]byte, bool, error) {
	path, err := s.SnapshotPath(providerName, term)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) Write(providerName, term string, html []byte) error {
	path, err := s.SnapshotPath(providerName, term)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), html)
}

// Fetcher 按 Mode 包装 direct：
// - off：原样返回 direct
// - record：direct 抓取成功后写快照
// - replay：只读快照，缺失时返回 *MissError
func (s Store) Fetcher(direct provider.FetchFunc) provider.FetchFunc {
	switch s.Mode {
	case ModeRecord:
		return func(ctx context.Context, p provider.Provider, term string) ([]byte, string, error) {
			html, pageURL, err := direct(ctx, p, term)
			if err != nil {
				return nil, "", err
			}
			if werr := s.Write(p.Name(), term, html); werr != nil && s.Logger != nil {
				s.Logger.Warn("快照写入失败", "provider", p.Name(), "term", term, "error", werr)
			}
			return html, pageURL, nil
		}
	case ModeReplay:
		return func(ctx context.Context, p provider.Provider, term string) ([]byte, string, error) {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}
			html, ok, err := s.Read(p.Name(), term)
			if err != nil {
				return nil, "", err
			}
			if !ok {
				path, _ := s.SnapshotPath(p.Name(), term)
				return nil, "", &MissError{Provider: p.Name(), Term: term, Path: path}
			}
			path, _ := s.SnapshotPath(p.Name(), term)
			return html, "file://" + filepath.ToSlash(path), nil
		}
	default:
		return direct
	}
}

var (
	providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	keyDropRE      = regexp.MustCompile(`[^a-z0-9]+`)
)

func cleanProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("provider 不能为空")
	}
	// 避免路径穿越。
	if !providerNameRE.MatchString(p) {
		return "", fmt.Errorf("非法 provider：%q", p)
	}
	return p, nil
}

// snapshotKey 是可读前缀 + 归一化 term 的短哈希；大小写和多余空白不影响结果。
func snapshotKey(term string) (string, error) {
	norm := NormTerm(term)
	if norm == "" {
		return "", fmt.Errorf("term 不能为空")
	}
	prefix := strings.Trim(keyDropRE.ReplaceAllString(norm, "-"), "-")
	if len(prefix) > 48 {
		prefix = strings.TrimRight(prefix[:48], "-")
	}
	sum := sha256.Sum256([]byte(norm))
	h := hex.EncodeToString(sum[:4])
	if prefix == "" {
		return h, nil
	}
	return prefix + "-" + h, nil
}

// NormTerm 是查询去重用的 key：小写并折叠空白。
func NormTerm(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}
