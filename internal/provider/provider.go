package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

// Provider 把“目录站点变化”限制在 provider 包内部；核心流程只依赖统一接口与 domain.Candidate。
//
// 约束：
// - Fetch 不做缓存（由 cache 层统一实现），网络重试只在 httpx 层
// - Parse 必须是纯函数：相同输入 => 相同输出
// - pageURL 是搜索结果页（用于报告追溯与快照）
type Provider interface {
	Name() string
	Fetch(ctx context.Context, term string, c *http.Client) (html []byte, pageURL string, err error)
	Parse(term string, html []byte, pageURL string) ([]domain.Candidate, error)
}
