package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ordersheet/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeOrderLine_Scenarios(t *testing.T) {
	cases := []struct {
		name      string
		requested string
		min       int64
		price     string
		wantQty   int64
		wantTotal string
	}{
		{"below minimum", "5", 12, "10", 12, "120"},
		{"equal minimum", "12", 12, "1.5", 12, "18"},
		{"round up", "25", 12, "2", 36, "72"},
		{"exact multiple", "24", 12, "0.5", 24, "12"},
		{"min one", "7", 1, "3.33", 7, "23.31"},
		{"zero requested", "0", 6, "1", 6, "6"},
		{"fractional above minimum", "2.5", 1, "100", 3, "300"},
		{"fractional just above multiple", "24.0000000000000001", 12, "1", 36, "36"},
		{"fractional below minimum", "0.5", 2, "1", 2, "2"},
		{"free item", "3", 1, "0", 3, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty, total, err := ComputeOrderLine(dec(tc.requested), tc.min, dec(tc.price))
			require.NoError(t, err)
			assert.Equal(t, tc.wantQty, qty)
			assert.True(t, dec(tc.wantTotal).Equal(total), "total=%s want=%s", total, tc.wantTotal)
		})
	}
}

func TestComputeOrderLine_RoundsHalfAwayFromZero(t *testing.T) {
	// 19.995 * 3 = 59.985 -> 59.99
	_, total, err := ComputeOrderLine(dec("3"), 1, dec("19.995"))
	require.NoError(t, err)
	assert.Equal(t, "59.99", total.StringFixed(2))

	// 0.125 -> 0.13（银行家舍入会得到 0.12）
	_, total, err = ComputeOrderLine(dec("1"), 1, dec("0.125"))
	require.NoError(t, err)
	assert.Equal(t, "0.13", total.StringFixed(2))

	// 1.004 -> 1.00
	_, total, err = ComputeOrderLine(dec("1"), 1, dec("1.004"))
	require.NoError(t, err)
	assert.Equal(t, "1.00", total.StringFixed(2))
}

func TestComputeOrderLine_InvalidInput(t *testing.T) {
	_, _, err := ComputeOrderLine(dec("-1"), 1, dec("1"))
	assert.True(t, domain.IsInvalidInput(err))

	_, _, err = ComputeOrderLine(dec("1"), 0, dec("1"))
	assert.True(t, domain.IsInvalidInput(err))

	_, _, err = ComputeOrderLine(dec("1"), -3, dec("1"))
	assert.True(t, domain.IsInvalidInput(err))

	_, _, err = ComputeOrderLine(dec("1"), 1, dec("-0.01"))
	assert.True(t, domain.IsInvalidInput(err))

	// 超出 int64 的数量不能悄悄溢出成一个更小的结果。
	for _, q := range []string{"1e30", "99999999999999999999", "9223372036854775807.5"} {
		adjusted, _, err := ComputeOrderLine(dec(q), 12, dec("1"))
		assert.True(t, domain.IsInvalidInput(err), "requested=%s adjusted=%d", q, adjusted)
	}
}

func TestComputeOrderLine_LargestRepresentableQuantity(t *testing.T) {
	// 9223372036854775800 = 12 * 768614336404564650，刚好可表示。
	adjusted, _, err := ComputeOrderLine(dec("9223372036854775790"), 12, dec("0"))
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775800), adjusted)
}

func TestRoundUpToMultiple_Properties(t *testing.T) {
	for min := int64(1); min <= 13; min++ {
		for req := int64(0); req <= 60; req++ {
			got, ok := RoundUpToMultiple(decimal.NewFromInt(req), min)
			require.True(t, ok)
			if req <= min {
				require.Equal(t, min, got, "req=%d min=%d", req, min)
				continue
			}
			require.Zero(t, got%min, "req=%d min=%d", req, min)
			require.GreaterOrEqual(t, got, req)
			require.Less(t, got-min, req, "必须是最小的倍数")
		}
	}
}

func TestResolve_BuildsOrderLine(t *testing.T) {
	req := domain.SearchRequest{Row: 4, RequestedQuantity: dec("25"), SearchTerm: "alfajor"}
	c := domain.Candidate{
		DisplayName:      "Alfajor Jorgito x 12u",
		UnitPriceDisplay: "$ 1.234,50",
		UnitPriceValue:   dec("1234.5"),
		MinOrderQuantity: 12,
		DetailLink:       "https://www.golomax.com.ar/catalogo/detalle/1-2-alfajor",
	}

	line, err := Resolve(req, c)
	require.NoError(t, err)
	assert.Equal(t, 4, line.Row)
	assert.Equal(t, int64(12), line.MinOrderQuantity)
	assert.Equal(t, "36", line.AdjustedQuantity.String())
	assert.Equal(t, "44442.00", line.TotalPrice.StringFixed(2))
	assert.Equal(t, c.DisplayName, line.ResolvedName)
	assert.Equal(t, c.UnitPriceDisplay, line.UnitPriceDisplay)
	assert.Equal(t, c.DetailLink, line.DetailLink)
	assert.False(t, line.Degraded())
}

func TestDegraded_KeepsRequestAsIs(t *testing.T) {
	req := domain.SearchRequest{Row: 2, RequestedQuantity: dec("7"), SearchTerm: "producto raro"}

	line := Degraded(req)
	assert.True(t, line.Degraded())
	assert.Equal(t, "producto raro", line.ResolvedName)
	assert.Equal(t, "7", line.AdjustedQuantity.String())
	assert.True(t, line.TotalPrice.IsZero())
	assert.Empty(t, line.UnitPriceDisplay)
	assert.Empty(t, line.DetailLink)
}
