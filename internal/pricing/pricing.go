// Package pricing 把“想要的数量”调整为可购买数量（最小起订量的倍数），并计算总价。
//
// 所有金额与数量都用 decimal 表示，避免二进制浮点在取整边界上漂移。
// 总价取整规则固定为：保留 2 位小数，四舍五入且 .5 远离零（half away from zero）。
package pricing

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

// PricePlaces 是总价保留的小数位数。
const PricePlaces = 2

var maxQuantity = decimal.NewFromInt(math.MaxInt64)

// ComputeOrderLine 计算调整后的数量与总价。
//
// - requested <= minQty：adjusted = minQty
// - 否则：adjusted = minQty * ceil(requested / minQty)（整数商 + 余数判定，精确无漂移）
// - total = adjusted * unitPrice，按 PricePlaces 取整
func ComputeOrderLine(requested decimal.Decimal, minQty int64, unitPrice decimal.Decimal) (adjusted int64, total decimal.Decimal, err error) {
	if requested.IsNegative() {
		return 0, decimal.Zero, &domain.InvalidInputError{Field: "requested_quantity", Value: requested.String(), Reason: "不能为负数"}
	}
	if minQty <= 0 {
		return 0, decimal.Zero, &domain.InvalidInputError{Field: "min_order_quantity", Value: strconv.FormatInt(minQty, 10), Reason: "必须为正整数"}
	}
	if unitPrice.IsNegative() {
		return 0, decimal.Zero, &domain.InvalidInputError{Field: "unit_price", Value: unitPrice.String(), Reason: "不能为负数"}
	}

	adjusted, ok := RoundUpToMultiple(requested, minQty)
	if !ok {
		return 0, decimal.Zero, &domain.InvalidInputError{Field: "requested_quantity", Value: requested.String(), Reason: "超出可计算范围"}
	}
	total = decimal.NewFromInt(adjusted).Mul(unitPrice).Round(PricePlaces)
	return adjusted, total, nil
}

// RoundUpToMultiple 返回 >= requested 的最小 minQty 倍数，且不小于 minQty。
// 结果超出 int64 时 ok 为 false。
// 调用方需保证 requested >= 0、minQty > 0。
func RoundUpToMultiple(requested decimal.Decimal, minQty int64) (adjusted int64, ok bool) {
	m := decimal.NewFromInt(minQty)
	if requested.LessThanOrEqual(m) {
		return minQty, true
	}
	q, r := requested.QuoRem(m, 0)
	if r.Sign() > 0 {
		q = q.Add(decimal.NewFromInt(1))
	}
	// 整个乘积都在 decimal 上算，比较后再转 int64，避免 IntPart 与乘法溢出。
	n := q.Mul(m)
	if n.GreaterThan(maxQuantity) {
		return 0, false
	}
	return n.IntPart(), true
}

// Resolve 把选中的候选与请求组合为一条 OrderLine。
func Resolve(req domain.SearchRequest, c domain.Candidate) (domain.OrderLine, error) {
	adjusted, total, err := ComputeOrderLine(req.RequestedQuantity, c.MinOrderQuantity, c.UnitPriceValue)
	if err != nil {
		return domain.OrderLine{}, err
	}
	return domain.OrderLine{
		Row:               req.Row,
		RequestedQuantity: req.RequestedQuantity,
		MinOrderQuantity:  c.MinOrderQuantity,
		AdjustedQuantity:  decimal.NewFromInt(adjusted),
		ResolvedName:      c.DisplayName,
		UnitPriceDisplay:  c.UnitPriceDisplay,
		TotalPrice:        total,
		DetailLink:        c.DetailLink,
	}, nil
}

// Degraded 是查询失败时的兜底行：保留原始搜索词与数量，价格为 0，链接为空。
// 最小起订量未知（0），因此数量不做倍数调整。
func Degraded(req domain.SearchRequest) domain.OrderLine {
	return domain.OrderLine{
		Row:               req.Row,
		RequestedQuantity: req.RequestedQuantity,
		MinOrderQuantity:  0,
		AdjustedQuantity:  req.RequestedQuantity,
		ResolvedName:      req.SearchTerm,
		UnitPriceDisplay:  "",
		TotalPrice:        decimal.Zero,
		DetailLink:        "",
	}
}
