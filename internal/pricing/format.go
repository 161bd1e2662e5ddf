package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// StylePlain 输出 "1234.56"。
	StylePlain = "plain"
	// StyleAR 输出阿根廷习惯的 "1.234,56"（千分位 '.'，小数点 ','）。
	StyleAR = "es-AR"
)

// ValidStyle 报告 style 是否是已支持的金额格式。
func ValidStyle(style string) bool {
	return style == StylePlain || style == StyleAR
}

// FormatAmount 按 style 把金额格式化为 2 位小数的展示文本。
func FormatAmount(d decimal.Decimal, style string) (string, error) {
	s := d.StringFixed(PricePlaces)
	switch style {
	case StylePlain, "":
		return s, nil
	case StyleAR:
		return groupAR(s), nil
	default:
		return "", fmt.Errorf("未知金额格式：%q", style)
	}
}

// FormatQuantity 输出不带多余尾零的数量（12、2.5）。
func FormatQuantity(d decimal.Decimal) string {
	return d.String()
}

func groupAR(fixed string) string {
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte('.')
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}
