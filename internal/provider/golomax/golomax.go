// Package golomax 实现 golomax.com.ar 目录搜索页的抓取与解析。
package golomax

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/John-Robertt/ordersheet/internal/domain"
	providerx "github.com/John-Robertt/ordersheet/internal/provider"
)

const defaultBaseURL = "https://www.golomax.com.ar"

// Provider 实现 golomax 的搜索页抓取与 HTML 解析。
//
// 约束：
// - 搜索页即候选列表，不进入详情页
// - Parse 必须是纯函数（依赖输入 html + pageURL）
type Provider struct {
	// BaseURL 为空时使用 https://www.golomax.com.ar；详情链接也基于它拼接。
	BaseURL string
}

func (Provider) Name() string { return "golomax" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// SearchURL 返回 term 的搜索页地址：{base}/catalogo/buscar?search_text=<term>
func (p Provider) SearchURL(term string) string {
	return p.baseURL() + "/catalogo/buscar?search_text=" + url.QueryEscape(strings.TrimSpace(term))
}

func (p Provider) Fetch(ctx context.Context, term string, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if strings.TrimSpace(term) == "" {
		return nil, "", errors.New("term 不能为空")
	}

	pageURL := p.SearchURL(term)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept-Language", "es-AR,es;q=0.9")
	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &providerx.HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	b, err := io.ReadAll(resp.Body)
	return b, pageURL, err
}

// Parse 把搜索页 HTML 解析为候选列表（保持页面顺序）。
//
// - 没有任何商品块：*domain.NotFoundError
// - 验证/拦截页：*provider.BlockedError
// - 单个商品块缺少可解析的价格时跳过；全部跳过则报错（多半是页面结构变了）
func (p Provider) Parse(term string, html []byte, pageURL string) ([]domain.Candidate, error) {
	if len(html) == 0 {
		return nil, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	blocks := doc.Find("div.block-producto")
	if blocks.Length() == 0 {
		if reason := blockedReason(doc); reason != "" {
			return nil, &providerx.BlockedError{URL: pageURL, Reason: reason}
		}
		return nil, &domain.NotFoundError{Term: term}
	}

	base := p.baseURL()
	out := make([]domain.Candidate, 0, blocks.Length())
	var skipped []string
	blocks.Each(func(i int, b *goquery.Selection) {
		name := normSpace(b.Find("h3[itemprop='name']").First().Text())
		if name == "" {
			skipped = append(skipped, fmt.Sprintf("#%d 缺少商品名", i))
			return
		}

		priceSel := b.Find("div.precio-unitario[content]").First()
		raw, _ := priceSel.Attr("content")
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || price.IsNegative() {
			skipped = append(skipped, fmt.Sprintf("%q 价格无效 %q", name, raw))
			return
		}

		out = append(out, domain.Candidate{
			DisplayName:      name,
			UnitPriceDisplay: normSpace(priceSel.Text()),
			UnitPriceValue:   price,
			MinOrderQuantity: minQuantity(b),
			DetailLink:       detailLink(base, b, name),
		})
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("所有商品块都无法解析（页面结构可能变化）：%s", strings.Join(skipped, "; "))
	}
	return out, nil
}

// minQuantity 取加购输入框的 value，其次 min；都不可用时为 1。
func minQuantity(b *goquery.Selection) int64 {
	in := b.Find("div.meta-cart input.quantity").First()
	for _, attr := range []string{"value", "min"} {
		v, ok := in.Attr(attr)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// detailLink 拼接详情页：{base}/catalogo/detalle/{typeid}-{articleID}-{slug}
// articleID 来自商品图文件名中 '_' 之前的部分。
func detailLink(base string, b *goquery.Selection, name string) string {
	typeID := strings.TrimSpace(b.AttrOr("typeid", ""))
	if typeID == "" {
		typeID = "0"
	}
	articleID := "0"
	if src, ok := b.Find("div.image img").First().Attr("src"); ok {
		file := src[strings.LastIndex(src, "/")+1:]
		if id, _, _ := strings.Cut(file, "_"); strings.TrimSpace(id) != "" {
			articleID = strings.TrimSpace(id)
		}
	}
	return fmt.Sprintf("%s/catalogo/detalle/%s-%s-%s", base, typeID, articleID, Slugify(name))
}

func blockedReason(doc *goquery.Document) string {
	if doc.Find("#challenge-form, .g-recaptcha, .h-captcha").Length() > 0 {
		return "captcha"
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "just a moment") || strings.Contains(title, "attention required") {
		return "challenge"
	}
	return ""
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
