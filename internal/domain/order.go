package domain

import "github.com/shopspring/decimal"

// SearchRequest 是输入表中的一行：想要的数量 + 自由文本商品名。
//
// Row 是数据行号（从 1 开始，不含表头），用于并发执行后按输入顺序重排。
type SearchRequest struct {
	Row               int
	RequestedQuantity decimal.Decimal
	SearchTerm        string
}

// Candidate 是目录搜索结果中的一个商品。
//
// 约束：
// - UnitPriceDisplay 是站点展示的原样文本，不参与计算
// - MinOrderQuantity 未知时为 1
type Candidate struct {
	DisplayName      string          `json:"display_name"`
	UnitPriceDisplay string          `json:"unit_price_display"`
	UnitPriceValue   decimal.Decimal `json:"unit_price_value"`
	MinOrderQuantity int64           `json:"min_order_quantity"`
	DetailLink       string          `json:"detail_link"`
}

// OrderLine 是输出表中的一行。每个有效的 SearchRequest 恰好产生一条。
//
// 不变量（已解析的行）：
// - AdjustedQuantity 是 MinOrderQuantity 的正整数倍
// - RequestedQuantity <= MinOrderQuantity 时 AdjustedQuantity == MinOrderQuantity
// - 否则 AdjustedQuantity 是 >= RequestedQuantity 的最小倍数
//
// 降级行（查询失败）的 MinOrderQuantity 为 0，表示未知。
type OrderLine struct {
	Row               int             `json:"row"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	MinOrderQuantity  int64           `json:"min_order_quantity"`
	AdjustedQuantity  decimal.Decimal `json:"adjusted_quantity"`
	ResolvedName      string          `json:"resolved_name"`
	UnitPriceDisplay  string          `json:"unit_price_display"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	DetailLink        string          `json:"detail_link"`
}

// Degraded 报告该行是否走了降级策略（未解析到任何商品）。
func (l OrderLine) Degraded() bool { return l.MinOrderQuantity == 0 }
