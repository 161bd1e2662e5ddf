package match

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 期望值来自经典 SequenceMatcher(None, a.lower(), b.lower()).ratio()。
func TestRatio_MatchesReferenceValues(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"Choco Bar", "chocobar", 0.9411764705882353},
		{"Chocolate Bar", "chocobar", 0.7619047619047619},
		{"abcd", "bcde", 0.75},
		{"Alfajor Jorgito x 6u", "alfajor jorgito", 0.8571428571428571},
		{"Galletitas Oreo 118g", "oreo", 0.3333333333333333},
		{"Oreo Galletitas", "oreo", 0.42105263157894735},
		{"Agua Mineral 500ml", "agua", 0.36363636363636365},
		{"Aguila 500ml", "agua", 0.5},
		{"Arroz Molinos 1kg", "arroz", 0.45454545454545453},
		{"Ñandú", "ñandu", 0.8},
		{"ARROZ", "arroz", 1.0},
		{"", "", 1.0},
		{"abc", "", 0.0},
	}
	for _, tc := range cases {
		got := Ratio(tc.a, tc.b)
		assert.Equal(t, tc.want, got, "Ratio(%q, %q)", tc.a, tc.b)
	}
}

func TestRatio_AutojunkPopularElements(t *testing.T) {
	// b 长度 >= 200 时，出现次数过多的元素不进入索引，但仍可用于块延伸。
	assert.Equal(t, 0.023529411764705882, Ratio("abc", strings.Repeat("a", 250)+"bc"))

	// 两个元素都是 popular：找不到任何起始块。
	assert.Equal(t, 0.0, Ratio("ba", strings.Repeat("ab", 120)))

	// 短 b 不触发 autojunk。
	assert.Equal(t, 0.08396946564885496, Ratio(strings.Repeat("a", 250)+"b", strings.Repeat("a", 10)+"b"))
}

func TestRatio_InRange(t *testing.T) {
	pairs := [][2]string{
		{"Yerba Playadito 1kg", "yerba playadito"},
		{"x", "y"},
		{"Leche Entera La Serenísima 1L", "leche"},
	}
	for _, p := range pairs {
		r := Ratio(p[0], p[1])
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}
