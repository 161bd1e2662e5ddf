package sheet

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/John-Robertt/ordersheet/internal/domain"
	"github.com/John-Robertt/ordersheet/internal/pricing"
)

// OutputHeader 是输出表的固定列（顺序即契约）。
var OutputHeader = []string{
	"Cantidad pedida",
	"Cantidad mínima",
	"Cantidad ajustada",
	"Nombre",
	"Precio unitario",
	"Precio total",
	"Link",
}

// Write 把 OrderLine 写成带 BOM 的 UTF-8 CSV（便于 Excel 直接打开）。
// priceStyle 见 pricing.FormatAmount。
func Write(w io.Writer, lines []domain.OrderLine, priceStyle string) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputHeader); err != nil {
		return err
	}
	for _, l := range lines {
		total, err := pricing.FormatAmount(l.TotalPrice, priceStyle)
		if err != nil {
			return err
		}
		minQty := ""
		if l.MinOrderQuantity > 0 {
			minQty = strconv.FormatInt(l.MinOrderQuantity, 10)
		}
		rec := []string{
			pricing.FormatQuantity(l.RequestedQuantity),
			minQty,
			pricing.FormatQuantity(l.AdjustedQuantity),
			l.ResolvedName,
			l.UnitPriceDisplay,
			total,
			l.DetailLink,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
