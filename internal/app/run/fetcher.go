package run

import (
	"log/slog"

	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/infra/cache"
	"github.com/John-Robertt/ordersheet/internal/infra/httpx"
	"github.com/John-Robertt/ordersheet/internal/provider"
)

// NewFetcher 按配置组装取页方式：httpx client 直连，再按 cache 模式包一层快照读写。
func NewFetcher(eff config.EffectiveConfig, log *slog.Logger) (provider.FetchFunc, error) {
	mode, err := cache.ParseMode(eff.Cache)
	if err != nil {
		return nil, err
	}
	c, err := httpx.NewClient(eff.ProxyURL)
	if err != nil {
		return nil, err
	}
	store := cache.New(eff.CacheDir, mode)
	store.Logger = log
	return store.Fetcher(provider.Direct(c)), nil
}
